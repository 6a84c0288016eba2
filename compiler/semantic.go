package compiler

import (
	"math"
	"strings"

	"github.com/chazu/gear/module"
	"github.com/chazu/gear/status"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: name resolution, scope checks and warnings
// ---------------------------------------------------------------------------

// knownAttributes are the type attributes the compiler understands.
var knownAttributes = map[string]bool{
	"final": true,
}

type symbolKind int

const (
	symGlobal symbolKind = iota
	symFunction
	symNative
	symType
)

func (k symbolKind) String() string {
	switch k {
	case symFunction:
		return "function"
	case symNative:
		return "native function"
	case symType:
		return "type"
	}
	return "global"
}

// symbol is a program-level declaration visible from every unit.
type symbol struct {
	kind    symbolKind
	name    string
	unit    string
	span    Span
	mutable bool
	arity   int
	typ     *TypeDecl
}

// program is the set of declarations across all units of one compile.
type program struct {
	symbols map[string]*symbol
}

func newProgram() *program {
	return &program{symbols: make(map[string]*symbol)}
}

// declareModule adds the declarations of an imported module. Names that an
// earlier import already declared keep their first binding.
func (p *program) declareModule(m *module.Module) {
	add := func(sym *symbol) {
		sym.unit = m.Name
		if _, ok := p.symbols[sym.name]; !ok {
			p.symbols[sym.name] = sym
		}
	}
	for _, n := range m.Natives {
		add(&symbol{kind: symNative, name: n.Name, arity: n.Arity})
	}
	for _, t := range m.Types {
		add(&symbol{kind: symType, name: t.Name})
	}
	for _, name := range m.Exports {
		if fn := m.Function(name); fn != nil {
			add(&symbol{kind: symFunction, name: name, arity: len(fn.Params)})
		}
	}
	for _, g := range m.Globals {
		add(&symbol{kind: symGlobal, name: g.Name, mutable: g.Mutable})
	}
}

// localVar is a parameter or local variable of the function being analyzed.
type localVar struct {
	name    string
	slot    int
	mutable bool
	param   bool
	used    bool
	span    Span
}

// binding is what an identifier resolved to. Exactly one field is set.
type binding struct {
	local  *localVar
	global *symbol
}

// annotations carry analysis results to the code generator.
type annotations struct {
	refs   map[*Identifier]binding
	slots  map[*VarDecl]int
	frames map[Node]int // *FuncDecl or *SourceFile (entry body) -> local count
}

func newAnnotations() *annotations {
	return &annotations{
		refs:   make(map[*Identifier]binding),
		slots:  make(map[*VarDecl]int),
		frames: make(map[Node]int),
	}
}

// analyzer checks one unit at a time against the shared program.
type analyzer struct {
	prog    *program
	ann     *annotations
	diag    *diagnostics
	intBits int

	scopes    [][]*localVar
	numLocals int
	typ       *TypeDecl // enclosing type while analyzing a method
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// collect registers the unit's program-level declarations. It runs for every
// unit before any unit is analyzed so declarations may be used before they
// appear.
func (a *analyzer) collect(f *SourceFile) {
	seen := make(map[string]bool)
	for _, imp := range f.Imports {
		if seen[imp.Name] {
			a.diag.warnAt(DuplicateImports, imp.SpanVal, "%q is imported more than once", imp.Name)
		}
		seen[imp.Name] = true
	}
	for _, n := range f.Natives {
		a.checkParams(n.Params)
		a.declare(&symbol{kind: symNative, name: n.Name, span: n.SpanVal, arity: len(n.Params)})
	}
	for _, t := range f.Types {
		a.collectType(t)
		a.declare(&symbol{kind: symType, name: t.Name, span: t.SpanVal, typ: t})
	}
	for _, fn := range f.Funcs {
		a.declare(&symbol{kind: symFunction, name: fn.Name, span: fn.SpanVal, arity: len(fn.Params)})
	}
	for _, g := range f.Globals {
		a.declare(&symbol{kind: symGlobal, name: g.Name, span: g.SpanVal, mutable: g.Mutable})
	}
}

func (a *analyzer) declare(sym *symbol) {
	sym.unit = a.diag.unit
	if sym.name == module.EntryName {
		a.diag.errorKind(status.DuplicateName, sym.span, "%q is reserved for the entry point", sym.name)
		return
	}
	if prev, ok := a.prog.symbols[sym.name]; ok {
		where := ""
		if prev.unit != sym.unit {
			where = " in " + prev.unit
		}
		a.diag.errorKind(status.DuplicateName, sym.span, "%q already declared as a %s%s at line %d",
			sym.name, prev.kind, where, prev.span.Start.Line)
		return
	}
	a.prog.symbols[sym.name] = sym
}

func (a *analyzer) checkParams(params []*Ident) {
	seen := make(map[string]bool)
	for _, p := range params {
		if seen[p.Name] {
			a.diag.errorAt(p.SpanVal, "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
	}
}

func (a *analyzer) collectType(t *TypeDecl) {
	for _, attr := range t.Attributes {
		if !knownAttributes[attr.Name] {
			a.diag.warnAt(UnknownAttribute, attr.SpanVal, "unknown attribute %q on type %s", attr.Name, t.Name)
		}
	}
	members := make(map[string]bool)
	for _, f := range t.Fields {
		if members[f.Name] {
			a.diag.errorAt(f.SpanVal, "duplicate field %q in type %s", f.Name, t.Name)
		}
		members[f.Name] = true
	}
	for _, m := range t.Methods {
		if members[m.Name] {
			a.diag.errorAt(m.SpanVal, "duplicate member %q in type %s", m.Name, t.Name)
		}
		members[m.Name] = true
	}
}

// ---------------------------------------------------------------------------
// Bodies
// ---------------------------------------------------------------------------

// analyze checks every body in f. main reports whether f belongs to the
// unit marked as the entry point.
func (a *analyzer) analyze(f *SourceFile, main bool) {
	for _, g := range f.Globals {
		if !g.Mutable && g.Init == nil {
			a.diag.errorAt(g.SpanVal, "missing initializer for let %q", g.Name)
		}
		if g.Init != nil {
			a.begin()
			a.expr(g.Init)
		}
	}
	for _, t := range f.Types {
		a.typ = t
		for _, m := range t.Methods {
			a.function(m)
		}
		a.typ = nil
	}
	for _, fn := range f.Funcs {
		a.function(fn)
	}
	if len(f.Stmts) == 0 {
		return
	}
	if !main {
		a.diag.errorAt(f.Stmts[0].Span(), "statements outside a function are only allowed in the main unit")
		return
	}
	a.begin()
	a.pushScope()
	a.stmts(f.Stmts)
	a.popScope()
	a.ann.frames[f] = a.numLocals
}

func (a *analyzer) begin() {
	a.scopes = nil
	a.numLocals = 0
}

func (a *analyzer) function(fn *FuncDecl) {
	a.begin()
	a.checkParams(fn.Params)
	a.pushScope()
	for _, p := range fn.Params {
		a.declareLocal(p.Name, p.SpanVal, true, true)
	}
	a.stmts(fn.Body.Stmts)
	a.popScope()
	a.ann.frames[fn] = a.numLocals
}

func (a *analyzer) pushScope() {
	a.scopes = append(a.scopes, nil)
}

// popScope closes the innermost scope and reports its unused names.
func (a *analyzer) popScope() {
	scope := a.scopes[len(a.scopes)-1]
	a.scopes = a.scopes[:len(a.scopes)-1]
	for _, v := range scope {
		switch {
		case v.used:
		case v.param:
			a.diag.warnAt(UnusedParams, v.span, "parameter %q is never used", v.name)
		default:
			a.diag.warnAt(UnusedVariables, v.span, "variable %q is declared but never used", v.name)
		}
	}
}

func (a *analyzer) lookupLocal(name string) *localVar {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		for _, v := range a.scopes[i] {
			if v.name == name {
				return v
			}
		}
	}
	return nil
}

func (a *analyzer) declareLocal(name string, sp Span, mutable, param bool) *localVar {
	inner := a.scopes[len(a.scopes)-1]
	for _, v := range inner {
		if v.name == name {
			if !param {
				a.diag.errorAt(sp, "%q redeclared in this block", name)
			}
			return v
		}
	}
	if a.lookupLocal(name) != nil {
		a.diag.warnAt(VariableShadowing, sp, "declaration of %q shadows an outer variable", name)
	} else if sym, ok := a.prog.symbols[name]; ok {
		a.diag.warnAt(VariableShadowing, sp, "declaration of %q shadows the %s %s", name, sym.kind, name)
	}
	v := &localVar{name: name, slot: a.numLocals, mutable: mutable, param: param, span: sp}
	a.numLocals++
	a.scopes[len(a.scopes)-1] = append(inner, v)
	return v
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (a *analyzer) stmts(list []Stmt) {
	terminated, reported := false, false
	for _, s := range list {
		if terminated && !reported {
			a.diag.warnAt(Unreachable, s.Span(), "unreachable code")
			reported = true
		}
		a.stmt(s)
		if terminates(s) {
			terminated = true
		}
	}
}

// terminates reports whether control never continues past s.
func terminates(s Stmt) bool {
	switch s := s.(type) {
	case *ReturnStmt:
		return true
	case *Block:
		for _, inner := range s.Stmts {
			if terminates(inner) {
				return true
			}
		}
	case *IfStmt:
		return s.Else != nil && terminates(s.Then) && terminates(s.Else)
	}
	return false
}

func (a *analyzer) stmt(s Stmt) {
	switch s := s.(type) {
	case *VarDecl:
		if !s.Mutable && s.Init == nil {
			a.diag.errorAt(s.SpanVal, "missing initializer for let %q", s.Name)
		}
		if s.Init != nil {
			a.expr(s.Init)
		}
		a.ann.slots[s] = a.declareLocal(s.Name, s.SpanVal, s.Mutable, false).slot
	case *Assign:
		a.assign(s)
	case *IfStmt:
		a.condition(s.Cond, false)
		a.body(s.Then)
		switch e := s.Else.(type) {
		case *Block:
			a.body(e)
		case *IfStmt:
			a.stmt(e)
		}
	case *WhileStmt:
		a.condition(s.Cond, true)
		a.body(s.Body)
	case *ReturnStmt:
		if s.Value != nil {
			a.expr(s.Value)
		}
	case *ExprStmt:
		a.expr(s.X)
		switch s.X.(type) {
		case *CallExpr, *MethodCall:
		default:
			a.diag.warnAt(UnusedExpressions, s.SpanVal, "expression result is not used")
		}
	case *Block:
		a.body(s)
	case *EmptyStmt:
		a.diag.warnAt(Empty, s.SpanVal, "empty statement")
	}
}

func (a *analyzer) body(b *Block) {
	if len(b.Stmts) == 0 {
		a.diag.warnAt(Empty, b.SpanVal, "empty block")
	}
	a.pushScope()
	a.stmts(b.Stmts)
	a.popScope()
}

func (a *analyzer) condition(cond Expr, loop bool) {
	a.expr(cond)
	if !isLiteral(cond) {
		return
	}
	if b, ok := cond.(*BoolLiteral); ok && loop && b.Value {
		return // while (true) is the idiomatic infinite loop
	}
	a.diag.warnAt(ConstantCondition, cond.Span(), "condition is always %v", literalTruth(cond))
}

func (a *analyzer) assign(s *Assign) {
	switch t := s.Target.(type) {
	case *Identifier:
		a.expr(s.Value)
		if v := a.lookupLocal(t.Name); v != nil {
			if !v.mutable {
				a.diag.errorAt(t.SpanVal, "cannot assign to let %q", t.Name)
			}
			if v.param {
				a.diag.warnAt(ParamReassignment, s.SpanVal, "assignment to parameter %q", t.Name)
			}
			a.ann.refs[t] = binding{local: v}
			return
		}
		sym, ok := a.prog.symbols[t.Name]
		switch {
		case !ok:
			a.diag.errorKind(status.UnknownSymbol, t.SpanVal, "undefined: %s", t.Name)
			return
		case sym.kind != symGlobal:
			a.diag.errorAt(t.SpanVal, "cannot assign to %s %q", sym.kind, t.Name)
		case !sym.mutable:
			a.diag.errorAt(t.SpanVal, "cannot assign to let %q", t.Name)
		}
		a.ann.refs[t] = binding{global: sym}
	case *This:
		a.this(t)
		a.expr(s.Value)
		a.diag.warnAt(ThisAssignment, s.SpanVal, "assignment to this has no effect")
	case *FieldAccess:
		a.expr(t.Receiver)
		a.checkMember(t.Receiver, t.Name, false, t.SpanVal)
		a.expr(s.Value)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (a *analyzer) expr(e Expr) {
	switch e := e.(type) {
	case *IntLiteral:
		a.intLiteral(e, false)
	case *FloatLiteral:
		if math.IsInf(e.Value, 0) {
			a.diag.warnAt(NumericTruncation, e.SpanVal, "float literal is out of range")
		}
	case *Identifier:
		a.use(e)
	case *This:
		a.this(e)
	case *UnaryExpr:
		if lit, ok := e.Operand.(*IntLiteral); ok && e.Op == TokenMinus {
			a.intLiteral(lit, true)
			return
		}
		a.expr(e.Operand)
	case *BinaryExpr:
		a.expr(e.Left)
		a.expr(e.Right)
		if isComparison(e.Op) && isLiteral(e.Left) && !isLiteral(e.Right) {
			a.diag.warnAt(Yoda, e.SpanVal, "literal on the left-hand side of %s", e.Op)
		}
	case *CallExpr:
		a.call(e)
	case *MethodCall:
		a.expr(e.Receiver)
		if e.Safe {
			a.checkSafe(e.Receiver, e.SpanVal)
		}
		a.checkMember(e.Receiver, e.Name, true, e.SpanVal)
		for _, arg := range e.Args {
			a.expr(arg)
		}
	case *FieldAccess:
		a.expr(e.Receiver)
		if e.Safe {
			a.checkSafe(e.Receiver, e.SpanVal)
		}
		a.checkMember(e.Receiver, e.Name, false, e.SpanVal)
	case *NewExpr:
		if sym, ok := a.prog.symbols[e.TypeName]; !ok || sym.kind != symType {
			a.diag.errorKind(status.UnknownSymbol, e.SpanVal, "unknown type %s", e.TypeName)
		}
	}
}

func (a *analyzer) use(id *Identifier) {
	if v := a.lookupLocal(id.Name); v != nil {
		v.used = true
		a.ann.refs[id] = binding{local: v}
		return
	}
	if sym, ok := a.prog.symbols[id.Name]; ok {
		a.ann.refs[id] = binding{global: sym}
		return
	}
	a.diag.errorKind(status.UnknownSymbol, id.SpanVal, "undefined: %s", id.Name)
}

func (a *analyzer) call(e *CallExpr) {
	a.expr(e.Callee)
	for _, arg := range e.Args {
		a.expr(arg)
	}
	id, ok := e.Callee.(*Identifier)
	if !ok {
		return
	}
	b, ok := a.ann.refs[id]
	if !ok || b.global == nil {
		return
	}
	switch sym := b.global; sym.kind {
	case symFunction, symNative:
		if len(e.Args) != sym.arity {
			a.diag.errorAt(e.SpanVal, "%s expects %d argument%s, got %d", sym.name, sym.arity, plural(sym.arity), len(e.Args))
		}
	case symType:
		a.diag.errorAt(e.SpanVal, "cannot call type %s; use new %s", sym.name, sym.name)
	}
}

func (a *analyzer) this(e *This) {
	if a.typ == nil {
		a.diag.warnAt(InvalidThis, e.SpanVal, "this used outside a method")
	}
}

func (a *analyzer) intLiteral(e *IntLiteral, negated bool) {
	if e.Overflow {
		a.diag.warnAt(NumericTruncation, e.SpanVal, "integer literal overflows 64 bits")
		return
	}
	if a.intBits != 32 {
		return
	}
	v := e.Value
	if negated {
		v = -v
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		a.diag.warnAt(NumericTruncation, e.SpanVal, "integer literal %d does not fit in 32 bits", v)
	}
}

// checkSafe flags ?. on receivers that are never null.
func (a *analyzer) checkSafe(recv Expr, sp Span) {
	switch recv.(type) {
	case *This:
		if a.typ == nil {
			return
		}
	case *NewExpr, *StringLiteral, *IntLiteral, *FloatLiteral, *BoolLiteral:
	default:
		return
	}
	a.diag.warnAt(UselessSafe, sp, "'?.' applied to a value that is never null")
}

// checkMember validates members accessed on this against the enclosing type.
func (a *analyzer) checkMember(recv Expr, name string, method bool, sp Span) {
	if _, ok := recv.(*This); !ok || a.typ == nil {
		return
	}
	for _, f := range a.typ.Fields {
		if f.Name == name {
			return
		}
	}
	if method {
		for _, m := range a.typ.Methods {
			if m.Name == name {
				return
			}
		}
		a.diag.errorKind(status.UnknownSymbol, sp, "type %s has no method %q", a.typ.Name, name)
		return
	}
	a.diag.errorKind(status.UnknownSymbol, sp, "type %s has no field %q", a.typ.Name, name)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func isLiteral(e Expr) bool {
	switch e := e.(type) {
	case *IntLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral:
		return true
	case *UnaryExpr:
		switch e.Operand.(type) {
		case *IntLiteral, *FloatLiteral:
			return e.Op == TokenMinus
		}
	}
	return false
}

// literalTruth is the truthiness a literal has at runtime.
func literalTruth(e Expr) bool {
	switch e := e.(type) {
	case *NullLiteral:
		return false
	case *BoolLiteral:
		return e.Value
	case *IntLiteral:
		return e.Value != 0
	case *UnaryExpr:
		if lit, ok := e.Operand.(*IntLiteral); ok {
			return lit.Value != 0
		}
	}
	return true
}

func isComparison(op TokenType) bool {
	switch op {
	case TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe:
		return true
	}
	return false
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// checkLines reports the line-level warnings of a unit's buffer.
func checkLines(d *diagnostics, lines []string) {
	for i, line := range lines {
		if col := strings.IndexByte(line, '\t'); col >= 0 {
			pos := Position{Line: i + 1, Column: col + 1}
			d.warnAt(Tabs, Span{Start: pos, End: pos}, "line contains a tab character")
		}
	}
	if len(lines) == 0 {
		return
	}
	crlf := strings.HasSuffix(lines[0], "\r")
	for i, line := range lines[1:] {
		if strings.HasSuffix(line, "\r") != crlf {
			pos := Position{Line: i + 2, Column: 1}
			d.warnAt(MixedLineEndings, Span{Start: pos, End: pos}, "inconsistent line endings")
			return
		}
	}
}
