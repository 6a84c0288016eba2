package server

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/gear/compiler"
	"github.com/chazu/gear/module"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "gear-lsp"

// LspOptions configures NewLSP.
type LspOptions struct {
	// Config configures the compiler behind the server.
	Config compiler.Config
	// Entry is the path of the file whose unit provides the entry point.
	Entry string
}

// LspServer bridges LSP editor features to a compiler. Every open document
// is one compilation unit; the compiler is only touched on the worker
// goroutine.
type LspServer struct {
	worker *Worker[*compiler.Compiler]
	entry  string

	// Owned by the worker goroutine.
	units     map[protocol.DocumentUri]*compiler.Unit
	byDisplay map[string]protocol.DocumentUri
	last      *module.Module

	mu      sync.Mutex
	docs    map[protocol.DocumentUri]string // URI → full document content
	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server with a fresh compiler.
func NewLSP(opts LspOptions) *LspServer {
	s := &LspServer{
		worker:    NewWorker(compiler.New(opts.Config)),
		entry:     opts.Entry,
		units:     make(map[protocol.DocumentUri]*compiler.Unit),
		byDisplay: make(map[string]protocol.DocumentUri),
		docs:      make(map[protocol.DocumentUri]string),
		version:   module.Version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("gear LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()

	result, err := s.worker.Do(func(c *compiler.Compiler) interface{} {
		if err := s.open(c, uri, text); err != nil {
			return err
		}
		return s.compile(c)
	})
	return s.publish(ctx, result, err)
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	text, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	for _, change := range params.ContentChanges {
		switch ch := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = ch.Text
		case protocol.TextDocumentContentChangeEvent:
			if ch.Range == nil {
				text = ch.Text
				continue
			}
			start, end := ch.Range.IndexesIn(text)
			text = text[:start] + ch.Text + text[end:]
		}
	}
	s.docs[uri] = text
	s.mu.Unlock()

	result, err := s.worker.Do(func(c *compiler.Compiler) interface{} {
		if err := s.change(uri, text); err != nil {
			return err
		}
		return s.compile(c)
	})
	return s.publish(ctx, result, err)
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()

	result, err := s.worker.Do(func(c *compiler.Compiler) interface{} {
		if u, ok := s.units[uri]; ok {
			delete(s.byDisplay, u.DisplayName())
			delete(s.units, uri)
			c.DeleteUnit(u)
			log.Debugf("closed %s", uri)
		}
		return s.compile(c)
	})
	if err != nil {
		return err
	}

	// Clear diagnostics for the closed document
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return s.publish(ctx, result, nil)
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(c *compiler.Compiler) interface{} {
		return s.complete(prefix)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(c *compiler.Compiler) interface{} {
		return s.hover(word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(c *compiler.Compiler) interface{} {
		return s.definition(word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result, nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[uri]
	return text, ok
}

// --- Compiler-backed logic (called on worker goroutine) ---

// open creates the unit for uri, or replaces its source if it exists.
func (s *LspServer) open(c *compiler.Compiler, uri protocol.DocumentUri, text string) error {
	if u, ok := s.units[uri]; ok {
		return u.SetProperty(compiler.PropSource, text)
	}
	u := c.NewUnit()
	if err := u.SetProperty(compiler.PropName, uri); err != nil {
		c.DeleteUnit(u)
		return err
	}
	display := uriPath(uri)
	u.SetProperty(compiler.PropDisplayName, display)
	if s.entry != "" && display == s.entry {
		u.SetProperty(compiler.PropMain, "true")
	}
	u.SetProperty(compiler.PropSource, text)
	s.units[uri] = u
	s.byDisplay[display] = uri
	log.Debugf("opened %s", uri)
	return nil
}

// change brings the unit for uri up to text with a line-diff edit batch.
func (s *LspServer) change(uri protocol.DocumentUri, text string) error {
	u, ok := s.units[uri]
	if !ok {
		return nil
	}
	edits := lineEdits(u.Source(), text)
	if len(edits) == 0 {
		return nil
	}
	if err := u.Apply(edits...); err != nil {
		log.Warningf("edit batch for %s rejected, replacing source: %s", uri, err)
		return u.SetProperty(compiler.PropSource, text)
	}
	return nil
}

// compile recompiles every unit and returns the diagnostics of each open
// document. The target follows the units: an application when one is
// marked main, a library otherwise.
func (s *LspServer) compile(c *compiler.Compiler) map[protocol.DocumentUri][]protocol.Diagnostic {
	target := module.Library
	for _, u := range c.Units() {
		if u.IsMain() {
			target = module.Application
		}
	}
	c.SetTarget(target)
	if err := c.Compile(); err == nil {
		if m, err := c.Module(target); err == nil {
			s.last = m
		}
	}

	out := make(map[protocol.DocumentUri][]protocol.Diagnostic, len(s.units))
	for uri := range s.units {
		out[uri] = []protocol.Diagnostic{}
	}
	for _, d := range c.Diagnostics() {
		uri, ok := s.byDisplay[d.Unit]
		if !ok {
			log.Warning(d.String())
			continue
		}
		out[uri] = append(out[uri], toProtocolDiagnostic(d))
	}
	return out
}

func (s *LspServer) publish(ctx *glsp.Context, result interface{}, err error) error {
	if err != nil {
		return err
	}
	if e, ok := result.(error); ok {
		return e
	}
	diags, _ := result.(map[protocol.DocumentUri][]protocol.Diagnostic)
	for uri, list := range diags {
		ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         uri,
			Diagnostics: list,
		})
	}
	return nil
}

func toProtocolDiagnostic(d compiler.Diagnostic) protocol.Diagnostic {
	start := toProtocolPosition(d.Pos)
	end := start
	if d.End.Line > 0 {
		end = toProtocolPosition(d.End)
	}
	severity := protocol.DiagnosticSeverityError
	var code *protocol.IntegerOrString
	if d.Severity == compiler.SeverityWarning {
		severity = protocol.DiagnosticSeverityWarning
		code = &protocol.IntegerOrString{Value: d.Warning.String()}
	}
	source := lspName
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Code:     code,
		Source:   &source,
		Message:  d.Message,
	}
}

func toProtocolPosition(p compiler.Position) protocol.Position {
	var pos protocol.Position
	if p.Line > 0 {
		pos.Line = protocol.UInteger(p.Line - 1)
	}
	if p.Column > 0 {
		pos.Character = protocol.UInteger(p.Column - 1)
	}
	return pos
}

// keywordNames lists the reserved words offered by completion.
var keywordNames = []string{
	"import", "native", "func", "type", "let", "var", "if", "else", "while",
	"return", "new", "this", "true", "false", "null",
}

func (s *LspServer) complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(label, prefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	if m := s.last; m != nil {
		for _, fn := range m.Functions {
			if !fn.Method && fn.Name != compiler.InitName && fn.Name != module.EntryName {
				add(fn.Name, signature(fn.Name, fn.Params), protocol.CompletionItemKindFunction)
			}
		}
		for _, n := range m.Natives {
			add(n.Name, fmt.Sprintf("native func %s/%d", n.Name, n.Arity), protocol.CompletionItemKindFunction)
		}
		for _, g := range m.Globals {
			add(g.Name, globalKeyword(g)+" "+g.Name, protocol.CompletionItemKindVariable)
		}
		for _, t := range m.Types {
			add(t.Name, "type "+t.Name, protocol.CompletionItemKindClass)
			for _, f := range t.Fields {
				add(f, t.Name+"."+f, protocol.CompletionItemKindField)
			}
			for meth := range t.Methods {
				add(meth, t.Name+"."+meth, protocol.CompletionItemKindMethod)
			}
		}
	}
	for _, kw := range keywordNames {
		add(kw, "keyword", protocol.CompletionItemKindKeyword)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func (s *LspServer) hover(word string) *protocol.Hover {
	m := s.last
	if m == nil {
		return nil
	}

	var b strings.Builder
	if fn := m.Function(word); fn != nil && fn.Name != module.EntryName {
		fmt.Fprintf(&b, "```gear\nfunc %s\n```", signature(fn.Name, fn.Params))
		if fn.Unit != "" {
			fmt.Fprintf(&b, "\n\nDefined in `%s` at line %d", fn.Unit, fn.Line)
		}
	} else if t := m.Type(word); t != nil {
		fmt.Fprintf(&b, "**type %s**", t.Name)
		if len(t.Attributes) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(t.Attributes, ", "))
		}
		if len(t.Fields) > 0 {
			fmt.Fprintf(&b, "\n\nFields: `%s`", strings.Join(t.Fields, " "))
		}
		if len(t.Methods) > 0 {
			methods := make([]string, 0, len(t.Methods))
			for name, idx := range t.Methods {
				methods = append(methods, signature(name, m.Functions[idx].Params))
			}
			sort.Strings(methods)
			fmt.Fprintf(&b, "\n\nMethods:\n")
			for _, meth := range methods {
				fmt.Fprintf(&b, "- `%s`\n", meth)
			}
		}
	} else if g, ok := findGlobal(m, word); ok {
		fmt.Fprintf(&b, "```gear\n%s %s\n```\n\nmodule global", globalKeyword(g), g.Name)
	} else if n, ok := findNative(m, word); ok {
		fmt.Fprintf(&b, "```gear\nnative func %s\n```\n\n%d parameters, implemented by the host", n.Name, n.Arity)
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func (s *LspServer) definition(word string) []protocol.Location {
	m := s.last
	if m == nil {
		return nil
	}

	var locations []protocol.Location
	for _, fn := range m.Functions {
		name := fn.Name
		if fn.Method {
			name = name[strings.LastIndexByte(name, '.')+1:]
		}
		if name != word || fn.Line == 0 {
			continue
		}
		uri, ok := s.byDisplay[fn.Unit]
		if !ok {
			continue
		}
		pos := protocol.Position{Line: protocol.UInteger(fn.Line - 1)}
		locations = append(locations, protocol.Location{
			URI:   uri,
			Range: protocol.Range{Start: pos, End: pos},
		})
	}
	return locations
}

func signature(name string, params []string) string {
	return name + "(" + strings.Join(params, ", ") + ")"
}

func globalKeyword(g module.Global) string {
	if g.Mutable {
		return "var"
	}
	return "let"
}

func findGlobal(m *module.Module, name string) (module.Global, bool) {
	for _, g := range m.Globals {
		if g.Name == name {
			return g, true
		}
	}
	return module.Global{}, false
}

func findNative(m *module.Module, name string) (module.Native, bool) {
	for _, n := range m.Natives {
		if n.Name == name {
			return n, true
		}
	}
	return module.Native{}, false
}

// uriPath returns the file path of a file:// URI, or the URI itself.
func uriPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return u.Path
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentByte(line[end]) {
		end++
	}
	return line[start:end]
}

func cursorLine(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := strings.TrimSuffix(lines[pos.Line], "\r")
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

func isIdentByte(ch byte) bool {
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || ch == '_'
}

func boolPtr(b bool) *bool {
	return &b
}
