package compiler

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Gear
// ---------------------------------------------------------------------------

// ParseError is a syntax error with its location.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Parser parses Gear source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	prevEnd   Position // end of the last consumed token
	errors    []*ParseError
	failed    bool // an error was reported since the last recovery point
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.End
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
	for p.peekToken.Type == TokenError && p.curToken.Type == TokenError {
		// Report consecutive lexical errors once.
		p.peekToken = p.lexer.NextToken()
	}
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.unexpected(t.String())
	return false
}

// expectIdent consumes an identifier and returns it.
func (p *Parser) expectIdent(what string) (*Ident, bool) {
	if !p.curTokenIs(TokenIdentifier) {
		p.unexpected(what)
		return nil, false
	}
	id := &Ident{SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End}, Name: p.curToken.Literal}
	p.nextToken()
	return id, true
}

func (p *Parser) unexpected(want string) {
	switch p.curToken.Type {
	case TokenError:
		p.errorf("%s", p.curToken.Literal)
	case TokenEOF:
		p.errorf("expected %s, got end of file", want)
	default:
		p.errorf("expected %s, got %s", want, p.describe(p.curToken))
	}
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TokenIdentifier:
		return fmt.Sprintf("identifier %q", tok.Literal)
	case TokenInteger, TokenFloat:
		return fmt.Sprintf("number %s", tok.Literal)
	case TokenString:
		return "string literal"
	}
	return tok.Type.String()
}

// errorf records a parse error at the current token. Only the first error
// between recovery points is kept.
func (p *Parser) errorf(format string, args ...interface{}) {
	if p.failed {
		return
	}
	p.failed = true
	p.errors = append(p.errors, &ParseError{Pos: p.curToken.Pos, Message: fmt.Sprintf(format, args...)})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []*ParseError {
	return p.errors
}

// recover skips to the next statement boundary after an error. from is
// where the failed construct began; at least one token is consumed if the
// parser has not moved past it.
func (p *Parser) recover(from Position) {
	if !p.failed {
		return
	}
	p.failed = false
	if p.curToken.Pos.Offset == from.Offset && !p.curTokenIs(TokenEOF) {
		p.nextToken()
	}
	for {
		switch p.curToken.Type {
		case TokenSemicolon:
			p.nextToken()
			return
		case TokenEOF, TokenRBrace, TokenFunc, TokenType_, TokenNative, TokenImport,
			TokenLet, TokenVar, TokenIf, TokenWhile, TokenReturn:
			return
		}
		p.nextToken()
	}
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseSourceFile parses a complete compilation unit.
func (p *Parser) ParseSourceFile() *SourceFile {
	f := &SourceFile{SpanVal: Span{Start: p.curToken.Pos}}
	for !p.curTokenIs(TokenEOF) {
		start := p.curToken.Pos
		switch p.curToken.Type {
		case TokenImport:
			if d := p.parseImport(); d != nil {
				f.Imports = append(f.Imports, d)
			}
		case TokenNative:
			if d := p.parseNative(); d != nil {
				f.Natives = append(f.Natives, d)
			}
		case TokenLet, TokenVar:
			if d := p.parseVarDecl(); d != nil {
				f.Globals = append(f.Globals, d)
			}
		case TokenType_:
			if d := p.parseTypeDecl(); d != nil {
				f.Types = append(f.Types, d)
			}
		case TokenFunc:
			if d := p.parseFunc(false); d != nil {
				f.Funcs = append(f.Funcs, d)
			}
		case TokenRBrace:
			p.errorf("unexpected '}'")
		default:
			if s := p.parseStatement(); s != nil {
				f.Stmts = append(f.Stmts, s)
			}
		}
		p.recover(start)
	}
	f.SpanVal.End = p.curToken.Pos
	return f
}

// ParseExpression parses a single expression.
func (p *Parser) ParseExpression() Expr {
	return p.parseOr()
}

func (p *Parser) parseImport() *ImportDecl {
	start := p.curToken.Pos
	p.nextToken()
	name, ok := p.expectIdent("module name")
	if !ok || !p.expect(TokenSemicolon) {
		return nil
	}
	return &ImportDecl{SpanVal: p.span(start), Name: name.Name}
}

func (p *Parser) parseNative() *NativeDecl {
	start := p.curToken.Pos
	p.nextToken()
	if !p.expect(TokenFunc) {
		return nil
	}
	name, ok := p.expectIdent("function name")
	if !ok {
		return nil
	}
	params, ok := p.parseParams()
	if !ok || !p.expect(TokenSemicolon) {
		return nil
	}
	return &NativeDecl{SpanVal: p.span(start), Name: name.Name, Params: params}
}

func (p *Parser) parseFunc(method bool) *FuncDecl {
	start := p.curToken.Pos
	p.nextToken()
	name, ok := p.expectIdent("function name")
	if !ok {
		return nil
	}
	params, ok := p.parseParams()
	if !ok {
		return nil
	}
	if !p.curTokenIs(TokenLBrace) {
		p.unexpected("'{'")
		return nil
	}
	body := p.parseBlock()
	return &FuncDecl{SpanVal: p.span(start), Name: name.Name, Params: params, Body: body, Method: method}
}

// parseParams parses '(' [ident {',' ident}] ')'.
func (p *Parser) parseParams() ([]*Ident, bool) {
	if !p.expect(TokenLParen) {
		return nil, false
	}
	var params []*Ident
	for !p.curTokenIs(TokenRParen) {
		id, ok := p.expectIdent("parameter name")
		if !ok {
			return nil, false
		}
		params = append(params, id)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(TokenRParen) {
		return nil, false
	}
	return params, true
}

func (p *Parser) parseTypeDecl() *TypeDecl {
	start := p.curToken.Pos
	p.nextToken()
	name, ok := p.expectIdent("type name")
	if !ok {
		return nil
	}
	decl := &TypeDecl{Name: name.Name}
	if p.curTokenIs(TokenLParen) {
		attrs, ok := p.parseParams()
		if !ok {
			return nil
		}
		decl.Attributes = attrs
	}
	if !p.expect(TokenLBrace) {
		return nil
	}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		from := p.curToken.Pos
		if p.curTokenIs(TokenFunc) {
			if m := p.parseFunc(true); m != nil {
				decl.Methods = append(decl.Methods, m)
			}
		} else if field, ok := p.expectIdent("field name or func"); ok {
			decl.Fields = append(decl.Fields, field)
			p.expect(TokenSemicolon)
		}
		p.recover(from)
	}
	if !p.expect(TokenRBrace) {
		return nil
	}
	decl.SpanVal = p.span(start)
	return decl
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseBlock parses '{' stmts '}'. The current token must be '{'.
func (p *Parser) parseBlock() *Block {
	start := p.curToken.Pos
	p.nextToken()
	b := &Block{}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		from := p.curToken.Pos
		if s := p.parseStatement(); s != nil {
			b.Stmts = append(b.Stmts, s)
		}
		p.recover(from)
	}
	p.expect(TokenRBrace)
	b.SpanVal = p.span(start)
	return b
}

func (p *Parser) parseStatement() Stmt {
	switch p.curToken.Type {
	case TokenLet, TokenVar:
		if d := p.parseVarDecl(); d != nil {
			return d
		}
		return nil
	case TokenIf:
		if s := p.parseIf(); s != nil {
			return s
		}
		return nil
	case TokenWhile:
		if s := p.parseWhile(); s != nil {
			return s
		}
		return nil
	case TokenReturn:
		if s := p.parseReturn(); s != nil {
			return s
		}
		return nil
	case TokenLBrace:
		return p.parseBlock()
	case TokenSemicolon:
		s := &EmptyStmt{SpanVal: Span{Start: p.curToken.Pos, End: p.curToken.End}}
		p.nextToken()
		return s
	}

	start := p.curToken.Pos
	x := p.ParseExpression()
	if x == nil {
		return nil
	}
	if p.curTokenIs(TokenAssign) {
		switch t := x.(type) {
		case *Identifier, *This:
		case *FieldAccess:
			if t.Safe {
				p.errorf("cannot assign through '?.'")
				return nil
			}
		default:
			p.errorf("cannot assign to this expression")
			return nil
		}
		p.nextToken()
		v := p.ParseExpression()
		if v == nil || !p.expect(TokenSemicolon) {
			return nil
		}
		return &Assign{SpanVal: p.span(start), Target: x, Value: v}
	}
	if !p.expect(TokenSemicolon) {
		return nil
	}
	return &ExprStmt{SpanVal: p.span(start), X: x}
}

func (p *Parser) parseVarDecl() *VarDecl {
	start := p.curToken.Pos
	mutable := p.curTokenIs(TokenVar)
	p.nextToken()
	name, ok := p.expectIdent("variable name")
	if !ok {
		return nil
	}
	d := &VarDecl{Name: name.Name, Mutable: mutable}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		if d.Init = p.ParseExpression(); d.Init == nil {
			return nil
		}
	}
	if !p.expect(TokenSemicolon) {
		return nil
	}
	d.SpanVal = p.span(start)
	return d
}

// parseCondition parses '(' expr ')'.
func (p *Parser) parseCondition() Expr {
	if !p.expect(TokenLParen) {
		return nil
	}
	cond := p.ParseExpression()
	if cond == nil || !p.expect(TokenRParen) {
		return nil
	}
	return cond
}

func (p *Parser) parseBody() *Block {
	if !p.curTokenIs(TokenLBrace) {
		p.unexpected("'{'")
		return nil
	}
	return p.parseBlock()
}

func (p *Parser) parseIf() *IfStmt {
	start := p.curToken.Pos
	p.nextToken()
	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	then := p.parseBody()
	if then == nil {
		return nil
	}
	s := &IfStmt{Cond: cond, Then: then}
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenIf) {
			elif := p.parseIf()
			if elif == nil {
				return nil
			}
			s.Else = elif
		} else {
			els := p.parseBody()
			if els == nil {
				return nil
			}
			s.Else = els
		}
	}
	s.SpanVal = p.span(start)
	return s
}

func (p *Parser) parseWhile() *WhileStmt {
	start := p.curToken.Pos
	p.nextToken()
	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	return &WhileStmt{SpanVal: p.span(start), Cond: cond, Body: body}
}

func (p *Parser) parseReturn() *ReturnStmt {
	start := p.curToken.Pos
	p.nextToken()
	s := &ReturnStmt{}
	if !p.curTokenIs(TokenSemicolon) {
		if s.Value = p.ParseExpression(); s.Value == nil {
			return nil
		}
	}
	if !p.expect(TokenSemicolon) {
		return nil
	}
	s.SpanVal = p.span(start)
	return s
}

// ---------------------------------------------------------------------------
// Expressions (lowest to highest precedence)
// ---------------------------------------------------------------------------

// binaryLevels lists the operators of each precedence level.
var binaryLevels = [][]TokenType{
	{TokenOr},
	{TokenAnd},
	{TokenEq, TokenNe},
	{TokenLt, TokenLe, TokenGt, TokenGe},
	{TokenPlus, TokenMinus},
	{TokenStar, TokenSlash, TokenPct},
}

func (p *Parser) parseOr() Expr {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	left := p.parseBinary(level + 1)
	for left != nil && p.curIn(binaryLevels[level]) {
		op := p.curToken.Type
		p.nextToken()
		right := p.parseBinary(level + 1)
		if right == nil {
			return nil
		}
		left = &BinaryExpr{
			SpanVal: Span{Start: left.Span().Start, End: right.Span().End},
			Op:      op,
			Left:    left,
			Right:   right,
		}
	}
	return left
}

func (p *Parser) curIn(types []TokenType) bool {
	for _, t := range types {
		if p.curToken.Type == t {
			return true
		}
	}
	return false
}

func (p *Parser) parseUnary() Expr {
	if p.curTokenIs(TokenMinus) || p.curTokenIs(TokenBang) {
		start := p.curToken.Pos
		op := p.curToken.Type
		p.nextToken()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		return &UnaryExpr{SpanVal: p.span(start), Op: op, Operand: operand}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for x != nil {
		start := x.Span().Start
		switch p.curToken.Type {
		case TokenLParen:
			args, ok := p.parseArgs()
			if !ok {
				return nil
			}
			x = &CallExpr{SpanVal: p.span(start), Callee: x, Args: args}
		case TokenDot, TokenSafeDot:
			safe := p.curTokenIs(TokenSafeDot)
			p.nextToken()
			name, ok := p.expectIdent("field or method name")
			if !ok {
				return nil
			}
			if p.curTokenIs(TokenLParen) {
				args, ok := p.parseArgs()
				if !ok {
					return nil
				}
				x = &MethodCall{SpanVal: p.span(start), Receiver: x, Name: name.Name, Args: args, Safe: safe}
			} else {
				x = &FieldAccess{SpanVal: p.span(start), Receiver: x, Name: name.Name, Safe: safe}
			}
		default:
			return x
		}
	}
	return nil
}

// parseArgs parses '(' [expr {',' expr}] ')'.
func (p *Parser) parseArgs() ([]Expr, bool) {
	p.nextToken()
	var args []Expr
	for !p.curTokenIs(TokenRParen) {
		a := p.ParseExpression()
		if a == nil {
			return nil, false
		}
		args = append(args, a)
		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(TokenRParen) {
		return nil, false
	}
	return args, true
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	sp := Span{Start: tok.Pos, End: tok.End}
	switch tok.Type {
	case TokenInteger:
		p.nextToken()
		return parseInteger(tok.Literal, sp)
	case TokenFloat:
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil && !isRangeErr(err) {
			p.errorf("invalid number %s", tok.Literal)
			return nil
		}
		return &FloatLiteral{SpanVal: sp, Value: v}
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: sp, Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: sp, Value: tok.Type == TokenTrue}
	case TokenNull:
		p.nextToken()
		return &NullLiteral{SpanVal: sp}
	case TokenThis:
		p.nextToken()
		return &This{SpanVal: sp}
	case TokenIdentifier:
		p.nextToken()
		return &Identifier{SpanVal: sp, Name: tok.Literal}
	case TokenNew:
		p.nextToken()
		name, ok := p.expectIdent("type name")
		if !ok {
			return nil
		}
		if p.curTokenIs(TokenLParen) && p.peekToken.Type == TokenRParen {
			p.nextToken()
			p.nextToken()
		}
		return &NewExpr{SpanVal: p.span(tok.Pos), TypeName: name.Name}
	case TokenLParen:
		p.nextToken()
		x := p.ParseExpression()
		if x == nil || !p.expect(TokenRParen) {
			return nil
		}
		return x
	}
	p.unexpected("expression")
	return nil
}

func parseInteger(lit string, sp Span) *IntLiteral {
	v, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return &IntLiteral{SpanVal: sp, Value: math.MaxInt64, Overflow: true}
	}
	return &IntLiteral{SpanVal: sp, Value: v}
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

// ParseSource parses input as a compilation unit.
func ParseSource(input string) (*SourceFile, []*ParseError) {
	p := NewParser(input)
	f := p.ParseSourceFile()
	return f, p.Errors()
}
