package compiler

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Gear
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal  Span
	Value    int64
	Overflow bool // literal did not fit in 64 bits and was saturated
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BoolLiteral represents true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// NullLiteral represents null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// Identifier represents a variable, function, or type reference.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// This represents the receiver inside a method.
type This struct {
	SpanVal Span
}

func (n *This) Span() Span { return n.SpanVal }
func (n *This) node()      {}
func (n *This) expr()      {}

// UnaryExpr represents -x or !x.
type UnaryExpr struct {
	SpanVal Span
	Op      TokenType
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// BinaryExpr represents an infix operation.
type BinaryExpr struct {
	SpanVal Span
	Op      TokenType
	Left    Expr
	Right   Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// CallExpr represents a call of a function value: f(a, b).
type CallExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// MethodCall represents recv.name(args) or recv?.name(args).
type MethodCall struct {
	SpanVal  Span
	Receiver Expr
	Name     string
	Args     []Expr
	Safe     bool
}

func (n *MethodCall) Span() Span { return n.SpanVal }
func (n *MethodCall) node()      {}
func (n *MethodCall) expr()      {}

// FieldAccess represents recv.name or recv?.name.
type FieldAccess struct {
	SpanVal  Span
	Receiver Expr
	Name     string
	Safe     bool
}

func (n *FieldAccess) Span() Span { return n.SpanVal }
func (n *FieldAccess) node()      {}
func (n *FieldAccess) expr()      {}

// NewExpr represents new T.
type NewExpr struct {
	SpanVal  Span
	TypeName string
}

func (n *NewExpr) Span() Span { return n.SpanVal }
func (n *NewExpr) node()      {}
func (n *NewExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// VarDecl represents let/var name = init. At file level it declares a
// module global.
type VarDecl struct {
	SpanVal Span
	Name    string
	Mutable bool // var rather than let
	Init    Expr // may be nil
}

func (n *VarDecl) Span() Span { return n.SpanVal }
func (n *VarDecl) node()      {}
func (n *VarDecl) stmt()      {}

// Assign represents target = value where target is an identifier, a field
// access, or this.
type Assign struct {
	SpanVal Span
	Target  Expr
	Value   Expr
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}
func (n *Assign) stmt()      {}

// IfStmt represents if (cond) { ... } else ...
type IfStmt struct {
	SpanVal Span
	Cond    Expr
	Then    *Block
	Else    Stmt // *Block, *IfStmt, or nil
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt represents while (cond) { ... }
type WhileStmt struct {
	SpanVal Span
	Cond    Expr
	Body    *Block
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// ReturnStmt represents return [value].
type ReturnStmt struct {
	SpanVal Span
	Value   Expr // may be nil
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	SpanVal Span
	X       Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// Block is a braced statement list with its own scope.
type Block struct {
	SpanVal Span
	Stmts   []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}
func (n *Block) stmt()      {}

// EmptyStmt is a lone semicolon.
type EmptyStmt struct {
	SpanVal Span
}

func (n *EmptyStmt) Span() Span { return n.SpanVal }
func (n *EmptyStmt) node()      {}
func (n *EmptyStmt) stmt()      {}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// Ident is a name with its location.
type Ident struct {
	SpanVal Span
	Name    string
}

func (n *Ident) Span() Span { return n.SpanVal }
func (n *Ident) node()      {}

// ImportDecl represents import name.
type ImportDecl struct {
	SpanVal Span
	Name    string
}

func (n *ImportDecl) Span() Span { return n.SpanVal }
func (n *ImportDecl) node()      {}

// NativeDecl represents native func name(params); implemented by the host.
type NativeDecl struct {
	SpanVal Span
	Name    string
	Params  []*Ident
}

func (n *NativeDecl) Span() Span { return n.SpanVal }
func (n *NativeDecl) node()      {}

// FuncDecl represents a function or, inside a type, a method.
type FuncDecl struct {
	SpanVal Span
	Name    string
	Params  []*Ident
	Body    *Block
	Method  bool
}

func (n *FuncDecl) Span() Span { return n.SpanVal }
func (n *FuncDecl) node()      {}

// TypeDecl represents type Name (attrs) { fields; methods }.
type TypeDecl struct {
	SpanVal    Span
	Name       string
	Attributes []*Ident
	Fields     []*Ident
	Methods    []*FuncDecl
}

func (n *TypeDecl) Span() Span { return n.SpanVal }
func (n *TypeDecl) node()      {}

// SourceFile is the parse of one compilation unit.
type SourceFile struct {
	Imports []*ImportDecl
	Natives []*NativeDecl
	Globals []*VarDecl
	Types   []*TypeDecl
	Funcs   []*FuncDecl
	Stmts   []Stmt // top-level statements, in order
	SpanVal Span
}

func (n *SourceFile) Span() Span { return n.SpanVal }
func (n *SourceFile) node()      {}

// Walk calls fn for n and then, in source order, for each of its
// descendants while fn returns true.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *UnaryExpr:
		Walk(n.Operand, fn)
	case *BinaryExpr:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *CallExpr:
		Walk(n.Callee, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *MethodCall:
		Walk(n.Receiver, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *FieldAccess:
		Walk(n.Receiver, fn)
	case *VarDecl:
		if n.Init != nil {
			Walk(n.Init, fn)
		}
	case *Assign:
		Walk(n.Target, fn)
		Walk(n.Value, fn)
	case *IfStmt:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		if n.Else != nil {
			Walk(n.Else, fn)
		}
	case *WhileStmt:
		Walk(n.Cond, fn)
		Walk(n.Body, fn)
	case *ReturnStmt:
		if n.Value != nil {
			Walk(n.Value, fn)
		}
	case *ExprStmt:
		Walk(n.X, fn)
	case *Block:
		for _, s := range n.Stmts {
			Walk(s, fn)
		}
	case *FuncDecl:
		Walk(n.Body, fn)
	case *TypeDecl:
		for _, m := range n.Methods {
			Walk(m, fn)
		}
	case *SourceFile:
		for _, g := range n.Globals {
			Walk(g, fn)
		}
		for _, t := range n.Types {
			Walk(t, fn)
		}
		for _, f := range n.Funcs {
			Walk(f, fn)
		}
		for _, s := range n.Stmts {
			Walk(s, fn)
		}
	}
}
