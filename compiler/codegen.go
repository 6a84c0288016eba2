package compiler

import (
	"github.com/chazu/gear/module"
)

// ---------------------------------------------------------------------------
// Codegen: Lower analyzed units to a module
// ---------------------------------------------------------------------------

// InitName is the name of the generated module initializer.
const InitName = "<init>"

// parsedUnit is a unit's syntax tree together with its identity.
type parsedUnit struct {
	unit  *Unit
	label string // display name used in traces
	file  *SourceFile
}

// codegen builds one module from every unit of a compile.
type codegen struct {
	m   *module.Module
	ann *annotations
}

var binaryOps = map[TokenType]module.Opcode{
	TokenPlus:  module.OpAdd,
	TokenMinus: module.OpSub,
	TokenStar:  module.OpMul,
	TokenSlash: module.OpDiv,
	TokenPct:   module.OpMod,
	TokenEq:    module.OpEq,
	TokenNe:    module.OpNe,
	TokenLt:    module.OpLt,
	TokenLe:    module.OpLe,
	TokenGt:    module.OpGt,
	TokenGe:    module.OpGe,
}

// generate lowers units to a module. Units must have analyzed without
// errors. main is the unit providing the entry point, or nil.
func generate(name string, units []*parsedUnit, main *parsedUnit, ann *annotations) *module.Module {
	cg := &codegen{m: module.New(name, module.Application), ann: ann}

	imported := make(map[string]bool)
	for _, pu := range units {
		for _, imp := range pu.file.Imports {
			if !imported[imp.Name] {
				imported[imp.Name] = true
				cg.m.Imports = append(cg.m.Imports, imp.Name)
			}
		}
		for _, n := range pu.file.Natives {
			cg.m.Natives = append(cg.m.Natives, module.Native{Name: n.Name, Arity: len(n.Params)})
		}
	}
	for _, pu := range units {
		for _, t := range pu.file.Types {
			cg.typeDecl(pu.label, t)
		}
		for _, fn := range pu.file.Funcs {
			cg.m.AddFunction(cg.function(pu.label, fn.Name, fn))
			cg.m.Exports = append(cg.m.Exports, fn.Name)
		}
	}
	cg.initializer(units)
	if main != nil {
		cg.m.Entry = cg.m.AddFunction(cg.entry(main))
	}
	return cg.m
}

func (cg *codegen) typeDecl(unit string, t *TypeDecl) {
	typ := &module.Type{Name: t.Name, Methods: make(map[string]int, len(t.Methods))}
	for _, f := range t.Fields {
		typ.Fields = append(typ.Fields, f.Name)
	}
	for _, a := range t.Attributes {
		typ.Attributes = append(typ.Attributes, a.Name)
	}
	for _, m := range t.Methods {
		typ.Methods[m.Name] = cg.m.AddFunction(cg.function(unit, t.Name+"."+m.Name, m))
	}
	cg.m.Types = append(cg.m.Types, typ)
}

func (cg *codegen) function(unit, name string, fn *FuncDecl) *module.Function {
	g := &funcGen{cg: cg}
	g.b.SetLine(fn.SpanVal.Start.Line)
	g.stmts(fn.Body.Stmts)
	g.b.Emit(module.OpReturnNull)

	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Name
	}
	return &module.Function{
		Name:      name,
		Params:    params,
		NumLocals: cg.ann.frames[fn],
		Code:      g.b.Code(),
		Method:    fn.Method,
		Unit:      unit,
		Line:      fn.SpanVal.Start.Line,
	}
}

// initializer emits the function assigning every global with an initializer,
// in unit order.
func (cg *codegen) initializer(units []*parsedUnit) {
	g := &funcGen{cg: cg}
	for _, pu := range units {
		for _, v := range pu.file.Globals {
			cg.m.Globals = append(cg.m.Globals, module.Global{Name: v.Name, Mutable: v.Mutable})
			if v.Init == nil {
				continue
			}
			g.b.SetLine(v.SpanVal.Start.Line)
			g.expr(v.Init)
			g.b.Emit(module.OpStoreGlobal, cg.m.Intern(v.Name))
		}
	}
	if g.b.Len() == 0 {
		return
	}
	g.b.Emit(module.OpReturnNull)
	cg.m.Init = cg.m.AddFunction(&module.Function{Name: InitName, Code: g.b.Code()})
}

func (cg *codegen) entry(pu *parsedUnit) *module.Function {
	g := &funcGen{cg: cg}
	g.stmts(pu.file.Stmts)
	g.b.Emit(module.OpReturnNull)
	line := 0
	if len(pu.file.Stmts) > 0 {
		line = pu.file.Stmts[0].Span().Start.Line
	}
	return &module.Function{
		Name:      module.EntryName,
		NumLocals: cg.ann.frames[pu.file],
		Code:      g.b.Code(),
		Unit:      pu.label,
		Line:      line,
	}
}

// ---------------------------------------------------------------------------
// Function bodies
// ---------------------------------------------------------------------------

type funcGen struct {
	cg *codegen
	b  module.Builder
}

func (g *funcGen) intern(s string) int64 {
	return g.cg.m.Intern(s)
}

func (g *funcGen) stmts(list []Stmt) {
	for _, s := range list {
		g.stmt(s)
	}
}

func (g *funcGen) stmt(s Stmt) {
	g.b.SetLine(s.Span().Start.Line)
	switch s := s.(type) {
	case *VarDecl:
		if s.Init != nil {
			g.expr(s.Init)
		} else {
			g.b.Emit(module.OpPushNull)
		}
		g.b.Emit(module.OpStoreLocal, int64(g.cg.ann.slots[s]))
	case *Assign:
		g.assign(s)
	case *IfStmt:
		elseL, end := g.b.NewLabel(), g.b.NewLabel()
		g.expr(s.Cond)
		g.b.EmitJump(module.OpJumpFalse, elseL)
		g.stmts(s.Then.Stmts)
		if s.Else != nil {
			g.b.EmitJump(module.OpJump, end)
		}
		g.b.Mark(elseL)
		if s.Else != nil {
			g.stmt(s.Else)
		}
		g.b.Mark(end)
	case *WhileStmt:
		top, end := g.b.NewLabel(), g.b.NewLabel()
		g.b.Mark(top)
		g.expr(s.Cond)
		g.b.EmitJump(module.OpJumpFalse, end)
		g.stmts(s.Body.Stmts)
		g.b.EmitJump(module.OpJump, top)
		g.b.Mark(end)
	case *ReturnStmt:
		if s.Value == nil {
			g.b.Emit(module.OpReturnNull)
			return
		}
		g.expr(s.Value)
		g.b.Emit(module.OpReturn)
	case *ExprStmt:
		g.expr(s.X)
		g.b.Emit(module.OpPop)
	case *Block:
		g.stmts(s.Stmts)
	case *EmptyStmt:
	}
}

func (g *funcGen) assign(s *Assign) {
	switch t := s.Target.(type) {
	case *Identifier:
		g.expr(s.Value)
		if b := g.cg.ann.refs[t]; b.local != nil {
			g.b.Emit(module.OpStoreLocal, int64(b.local.slot))
			return
		}
		g.b.Emit(module.OpStoreGlobal, g.intern(t.Name))
	case *This:
		g.expr(s.Value)
		g.b.Emit(module.OpPop)
	case *FieldAccess:
		g.expr(t.Receiver)
		g.expr(s.Value)
		g.b.Emit(module.OpSetField, g.intern(t.Name))
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (g *funcGen) expr(e Expr) {
	switch e := e.(type) {
	case *IntLiteral:
		g.b.Emit(module.OpPushInt, e.Value)
	case *FloatLiteral:
		g.b.EmitFloat(e.Value)
	case *StringLiteral:
		g.b.Emit(module.OpPushString, g.intern(e.Value))
	case *BoolLiteral:
		if e.Value {
			g.b.Emit(module.OpPushTrue)
		} else {
			g.b.Emit(module.OpPushFalse)
		}
	case *NullLiteral:
		g.b.Emit(module.OpPushNull)
	case *This:
		g.b.Emit(module.OpPushThis)
	case *Identifier:
		if b := g.cg.ann.refs[e]; b.local != nil {
			g.b.Emit(module.OpLoadLocal, int64(b.local.slot))
			return
		}
		g.b.Emit(module.OpLoadGlobal, g.intern(e.Name))
	case *UnaryExpr:
		g.unary(e)
	case *BinaryExpr:
		g.binary(e)
	case *CallExpr:
		g.expr(e.Callee)
		for _, a := range e.Args {
			g.expr(a)
		}
		g.b.Emit(module.OpCall, int64(len(e.Args)))
	case *MethodCall:
		g.expr(e.Receiver)
		for _, a := range e.Args {
			g.expr(a)
		}
		op := module.OpCallMethod
		if e.Safe {
			op = module.OpCallMethodSafe
		}
		g.b.Emit(op, g.intern(e.Name), int64(len(e.Args)))
	case *FieldAccess:
		g.expr(e.Receiver)
		op := module.OpGetField
		if e.Safe {
			op = module.OpGetFieldSafe
		}
		g.b.Emit(op, g.intern(e.Name))
	case *NewExpr:
		g.b.Emit(module.OpNew, g.intern(e.TypeName))
	}
}

func (g *funcGen) unary(e *UnaryExpr) {
	if e.Op == TokenMinus {
		// Negative literals are folded.
		switch lit := e.Operand.(type) {
		case *IntLiteral:
			g.b.Emit(module.OpPushInt, -lit.Value)
			return
		case *FloatLiteral:
			g.b.EmitFloat(-lit.Value)
			return
		}
	}
	g.expr(e.Operand)
	if e.Op == TokenMinus {
		g.b.Emit(module.OpNeg)
	} else {
		g.b.Emit(module.OpNot)
	}
}

func (g *funcGen) binary(e *BinaryExpr) {
	if e.Op == TokenAnd || e.Op == TokenOr {
		// Short circuit, leaving the deciding operand as the result.
		end := g.b.NewLabel()
		g.expr(e.Left)
		g.b.Emit(module.OpDup)
		if e.Op == TokenAnd {
			g.b.EmitJump(module.OpJumpFalse, end)
		} else {
			g.b.EmitJump(module.OpJumpTrue, end)
		}
		g.b.Emit(module.OpPop)
		g.expr(e.Right)
		g.b.Mark(end)
		return
	}
	g.expr(e.Left)
	g.expr(e.Right)
	g.b.Emit(binaryOps[e.Op])
}
