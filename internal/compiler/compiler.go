// Package compiler walks the parser's AST and emits bytecode.Chunk content
// for it. It knows nothing about the vm package's runtime Value/Obj types —
// number and string constants go into the chunk as plain float64/string,
// and a nested function goes in as a *Function — so the vm package is the
// only place that ever has to look at both a Chunk and a Value.
package compiler

import (
	"fmt"

	"loxvm/internal/bytecode"
	"loxvm/internal/lexer"
	"loxvm/internal/parser"
)

// maxLocals mirrors vm.UInt8Count: local/upvalue slots are one-byte operands.
const maxLocals = 256
const maxParams = 255

type FunctionType int

const (
	typeFunction FunctionType = iota
	typeInitializer
	typeMethod
	typeScript
)

// Function is the not-yet-loaded counterpart of vm.ObjFunction: everything
// the compiler produces for one function body, before the vm package turns
// its raw constants into Values.
type Function struct {
	Name         string
	Arity        int
	UpvalueCount int
	Chunk        *bytecode.Chunk
}

type local struct {
	name       string
	depth      int // -1: declared but not yet initialized
	isCaptured bool
}

type upvalueRef struct {
	index   int
	isLocal bool
}

// funcState is one compiler frame, one per Lox function/method body plus
// the implicit top-level script. They chain through enclosing the same way
// call frames chain through the VM at runtime.
type funcState struct {
	enclosing  *funcState
	function   *Function
	fnType     FunctionType
	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler holds the current funcState/classState chain while it walks a
// statement list, emitting into whichever chunk is "current" at the time.
type Compiler struct {
	current *funcState
	class   *classState
	errors  []error
}

// Compile compiles a whole program into its implicit top-level function.
func Compile(stmts []parser.Stmt) (*Function, []error) {
	c := &Compiler{}
	c.current = c.pushFunc(nil, "", typeScript)
	for _, s := range stmts {
		c.compileStmt(s)
	}
	c.emitReturn()
	return c.current.function, c.errors
}

func (c *Compiler) pushFunc(enclosing *funcState, name string, fnType FunctionType) *funcState {
	fs := &funcState{
		enclosing: enclosing,
		function:  &Function{Name: name, Chunk: bytecode.NewChunk()},
		fnType:    fnType,
	}
	// Slot 0 is reserved: `this` for methods/initializers, otherwise an
	// unnamed slot holding the callee itself.
	slot := local{depth: 0}
	if fnType == typeMethod || fnType == typeInitializer {
		slot.name = "this"
	}
	fs.locals = append(fs.locals, slot)
	return fs
}

func (c *Compiler) errorAt(line int, msg string) {
	c.errors = append(c.errors, fmt.Errorf("[line %d] Error: %s", line, msg))
}

// --- emission helpers, all against c.current's chunk ---

func (c *Compiler) chunk() *bytecode.Chunk { return c.current.function.Chunk }

func (c *Compiler) emitByte(b byte, line int) { c.chunk().Write(b, line) }

func (c *Compiler) emitOp(op bytecode.OpCode, line int) { c.emitByte(byte(op), line) }

func (c *Compiler) emitOpByte(op bytecode.OpCode, operand byte, line int) {
	c.emitByte(byte(op), line)
	c.emitByte(operand, line)
}

func (c *Compiler) lastLine() int {
	lines := c.chunk().Lines
	if len(lines) == 0 {
		return 0
	}
	return lines[len(lines)-1]
}

func (c *Compiler) makeConstant(v interface{}, line int) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.errorAt(line, "Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v interface{}, line int) {
	c.emitOpByte(bytecode.OpConstant, c.makeConstant(v, line), line)
}

func (c *Compiler) identifierConstant(name string, line int) byte {
	return c.makeConstant(name, line)
}

func (c *Compiler) emitJump(op bytecode.OpCode, line int) int {
	c.emitOp(op, line)
	c.emitByte(0xff, line)
	c.emitByte(0xff, line)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int, line int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 1<<16-1 {
		c.errorAt(line, "Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int, line int) {
	c.emitOp(bytecode.OpLoop, line)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 1<<16-1 {
		c.errorAt(line, "Loop body too large.")
	}
	c.emitByte(byte(offset>>8), line)
	c.emitByte(byte(offset), line)
}

func (c *Compiler) emitReturn() {
	line := c.lastLine()
	if c.current.fnType == typeInitializer {
		// `return;` inside init() yields the instance, not nil.
		c.emitOpByte(bytecode.OpGetLocal, 0, line)
	} else {
		c.emitOp(bytecode.OpNil, line)
	}
	c.emitOp(bytecode.OpReturn, line)
}

// --- scopes and variable resolution ---

func (c *Compiler) beginScope() { c.current.scopeDepth++ }

func (c *Compiler) endScope(line int) {
	fs := c.current
	fs.scopeDepth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		last := fs.locals[len(fs.locals)-1]
		if last.isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue, line)
		} else {
			c.emitOp(bytecode.OpPop, line)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

func (c *Compiler) declareLocal(name string, line int) {
	fs := c.current
	if fs.scopeDepth == 0 {
		return
	}
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.depth != -1 && l.depth < fs.scopeDepth {
			break
		}
		if l.name == name {
			c.errorAt(line, "Already a variable with this name in this scope.")
		}
	}
	if len(fs.locals) >= maxLocals {
		c.errorAt(line, "Too many local variables in function.")
		return
	}
	fs.locals = append(fs.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	fs := c.current
	if fs.scopeDepth == 0 {
		return
	}
	fs.locals[len(fs.locals)-1].depth = fs.scopeDepth
}

func (c *Compiler) parseVariable(name lexer.Token) byte {
	if c.current.scopeDepth > 0 {
		c.declareLocal(name.Lexeme, name.Line)
		return 0
	}
	return c.identifierConstant(name.Lexeme, name.Line)
}

func (c *Compiler) defineVariable(global byte, line int) {
	if c.current.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(bytecode.OpDefineGlobal, global, line)
}

func (c *Compiler) resolveLocal(fs *funcState, name string, line int) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if fs.locals[i].depth == -1 {
				c.errorAt(line, "Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(fs *funcState, index int, isLocal bool, line int) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= maxLocals {
		c.errorAt(line, "Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fs.function.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

// resolveUpvalue recursively threads a free variable through every
// enclosing function, adding an upvalue slot at each level it crosses
// (the "upvalues all the way up" capture chain).
func (c *Compiler) resolveUpvalue(fs *funcState, name string, line int) int {
	if fs.enclosing == nil {
		return -1
	}
	if slot := c.resolveLocal(fs.enclosing, name, line); slot != -1 {
		fs.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(fs, slot, true, line)
	}
	if slot := c.resolveUpvalue(fs.enclosing, name, line); slot != -1 {
		return c.addUpvalue(fs, slot, false, line)
	}
	return -1
}

// resolveVariable decides whether name is a local, an upvalue, or a global,
// returning the get/set opcode pair and the operand byte for either.
func (c *Compiler) resolveVariable(name lexer.Token) (bytecode.OpCode, bytecode.OpCode, byte) {
	if slot := c.resolveLocal(c.current, name.Lexeme, name.Line); slot != -1 {
		return bytecode.OpGetLocal, bytecode.OpSetLocal, byte(slot)
	}
	if slot := c.resolveUpvalue(c.current, name.Lexeme, name.Line); slot != -1 {
		return bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, byte(slot)
	}
	return bytecode.OpGetGlobal, bytecode.OpSetGlobal, c.identifierConstant(name.Lexeme, name.Line)
}

func (c *Compiler) loadNamed(name string, line int) {
	getOp, _, slot := c.resolveVariable(lexer.Token{Type: lexer.TokenIdentifier, Lexeme: name, Line: line})
	c.emitOpByte(getOp, slot, line)
}

// exprLine recovers a source line from an Expr node for instructions (like
// a statement's trailing OP_POP) that aren't tied to any one token.
func exprLine(e parser.Expr) int {
	switch v := e.(type) {
	case *parser.Binary:
		return v.Op.Line
	case *parser.Logical:
		return v.Op.Line
	case *parser.Unary:
		return v.Op.Line
	case *parser.Literal:
		return v.Line
	case *parser.Variable:
		return v.Name.Line
	case *parser.Assign:
		return v.Name.Line
	case *parser.Call:
		return v.Paren.Line
	case *parser.Get:
		return v.Name.Line
	case *parser.Set:
		return v.Name.Line
	case *parser.This:
		return v.Keyword.Line
	case *parser.Super:
		return v.Keyword.Line
	case *parser.Grouping:
		return exprLine(v.Expression)
	default:
		return 0
	}
}

// --- expressions ---

func (c *Compiler) compileExpr(e parser.Expr) { e.Accept(c) }

func (c *Compiler) VisitBinary(b *parser.Binary) interface{} {
	c.compileExpr(b.Left)
	c.compileExpr(b.Right)
	line := b.Op.Line
	switch b.Op.Type {
	case lexer.TokenPlus:
		c.emitOp(bytecode.OpAdd, line)
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpSubtract, line)
	case lexer.TokenStar:
		c.emitOp(bytecode.OpMultiply, line)
	case lexer.TokenSlash:
		c.emitOp(bytecode.OpDivide, line)
	case lexer.TokenBangEqual:
		c.emitOp(bytecode.OpEqual, line)
		c.emitOp(bytecode.OpNot, line)
	case lexer.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual, line)
	case lexer.TokenGreater:
		c.emitOp(bytecode.OpGreater, line)
	case lexer.TokenGreaterEqual:
		c.emitOp(bytecode.OpLess, line)
		c.emitOp(bytecode.OpNot, line)
	case lexer.TokenLess:
		c.emitOp(bytecode.OpLess, line)
	case lexer.TokenLessEqual:
		c.emitOp(bytecode.OpGreater, line)
		c.emitOp(bytecode.OpNot, line)
	}
	return nil
}

func (c *Compiler) VisitLogical(l *parser.Logical) interface{} {
	line := l.Op.Line
	c.compileExpr(l.Left)
	if l.Op.Type == lexer.TokenOr {
		elseJump := c.emitJump(bytecode.OpJumpIfFalse, line)
		endJump := c.emitJump(bytecode.OpJump, line)
		c.patchJump(elseJump, line)
		c.emitOp(bytecode.OpPop, line)
		c.compileExpr(l.Right)
		c.patchJump(endJump, line)
		return nil
	}
	endJump := c.emitJump(bytecode.OpJumpIfFalse, line)
	c.emitOp(bytecode.OpPop, line)
	c.compileExpr(l.Right)
	c.patchJump(endJump, line)
	return nil
}

func (c *Compiler) VisitUnary(u *parser.Unary) interface{} {
	c.compileExpr(u.Right)
	line := u.Op.Line
	switch u.Op.Type {
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpNegate, line)
	case lexer.TokenBang:
		c.emitOp(bytecode.OpNot, line)
	}
	return nil
}

func (c *Compiler) VisitLiteral(l *parser.Literal) interface{} {
	switch v := l.Value.(type) {
	case nil:
		c.emitOp(bytecode.OpNil, l.Line)
	case bool:
		if v {
			c.emitOp(bytecode.OpTrue, l.Line)
		} else {
			c.emitOp(bytecode.OpFalse, l.Line)
		}
	case float64:
		c.emitConstant(v, l.Line)
	case string:
		c.emitConstant(v, l.Line)
	}
	return nil
}

func (c *Compiler) VisitVariable(v *parser.Variable) interface{} {
	getOp, _, slot := c.resolveVariable(v.Name)
	c.emitOpByte(getOp, slot, v.Name.Line)
	return nil
}

func (c *Compiler) VisitAssign(a *parser.Assign) interface{} {
	c.compileExpr(a.Value)
	_, setOp, slot := c.resolveVariable(a.Name)
	c.emitOpByte(setOp, slot, a.Name.Line)
	return nil
}

func (c *Compiler) compileArgs(args []parser.Expr, line int) int {
	if len(args) > maxParams {
		c.errorAt(line, "Can't have more than 255 arguments.")
	}
	for _, a := range args {
		c.compileExpr(a)
	}
	return len(args)
}

// VisitCall fuses `receiver.method(args)` and `super.method(args)` straight
// into OP_INVOKE/OP_SUPER_INVOKE instead of a separate property load
// followed by a generic call, matching the single-dispatch opcodes.
func (c *Compiler) VisitCall(call *parser.Call) interface{} {
	if get, ok := call.Callee.(*parser.Get); ok {
		c.compileExpr(get.Object)
		argCount := c.compileArgs(call.Arguments, call.Paren.Line)
		name := c.identifierConstant(get.Name.Lexeme, get.Name.Line)
		c.emitOpByte(bytecode.OpInvoke, name, call.Paren.Line)
		c.emitByte(byte(argCount), call.Paren.Line)
		return nil
	}
	if super, ok := call.Callee.(*parser.Super); ok {
		c.loadNamed("this", super.Keyword.Line)
		argCount := c.compileArgs(call.Arguments, call.Paren.Line)
		c.loadNamed("super", super.Keyword.Line)
		name := c.identifierConstant(super.Method.Lexeme, super.Method.Line)
		c.emitOpByte(bytecode.OpSuperInvoke, name, call.Paren.Line)
		c.emitByte(byte(argCount), call.Paren.Line)
		return nil
	}
	c.compileExpr(call.Callee)
	argCount := c.compileArgs(call.Arguments, call.Paren.Line)
	c.emitOpByte(bytecode.OpCall, byte(argCount), call.Paren.Line)
	return nil
}

func (c *Compiler) VisitGet(g *parser.Get) interface{} {
	c.compileExpr(g.Object)
	name := c.identifierConstant(g.Name.Lexeme, g.Name.Line)
	c.emitOpByte(bytecode.OpGetProperty, name, g.Name.Line)
	return nil
}

func (c *Compiler) VisitSet(s *parser.Set) interface{} {
	c.compileExpr(s.Object)
	c.compileExpr(s.Value)
	name := c.identifierConstant(s.Name.Lexeme, s.Name.Line)
	c.emitOpByte(bytecode.OpSetProperty, name, s.Name.Line)
	return nil
}

func (c *Compiler) VisitThis(t *parser.This) interface{} {
	if c.class == nil {
		c.errorAt(t.Keyword.Line, "Can't use 'this' outside of a class.")
	}
	c.loadNamed("this", t.Keyword.Line)
	return nil
}

// VisitSuper handles `super.method` used as a value (not immediately
// called); OP_GET_SUPER expects [..., instance, superclass] on the stack.
func (c *Compiler) VisitSuper(s *parser.Super) interface{} {
	if c.class == nil {
		c.errorAt(s.Keyword.Line, "Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.errorAt(s.Keyword.Line, "Can't use 'super' in a class with no superclass.")
	}
	c.loadNamed("this", s.Keyword.Line)
	name := c.identifierConstant(s.Method.Lexeme, s.Method.Line)
	c.loadNamed("super", s.Keyword.Line)
	c.emitOpByte(bytecode.OpGetSuper, name, s.Keyword.Line)
	return nil
}

func (c *Compiler) VisitGrouping(g *parser.Grouping) interface{} {
	c.compileExpr(g.Expression)
	return nil
}

// --- statements ---

func (c *Compiler) compileStmt(s parser.Stmt) { s.Accept(c) }

func (c *Compiler) VisitExpressionStmt(e *parser.ExpressionStmt) interface{} {
	c.compileExpr(e.Expression)
	c.emitOp(bytecode.OpPop, exprLine(e.Expression))
	return nil
}

func (c *Compiler) VisitPrintStmt(p *parser.PrintStmt) interface{} {
	c.compileExpr(p.Expression)
	c.emitOp(bytecode.OpPrint, exprLine(p.Expression))
	return nil
}

func (c *Compiler) VisitVarStmt(v *parser.VarStmt) interface{} {
	global := c.parseVariable(v.Name)
	if v.Initializer != nil {
		c.compileExpr(v.Initializer)
	} else {
		c.emitOp(bytecode.OpNil, v.Name.Line)
	}
	c.defineVariable(global, v.Name.Line)
	return nil
}

func (c *Compiler) VisitBlockStmt(b *parser.BlockStmt) interface{} {
	c.beginScope()
	for _, s := range b.Statements {
		c.compileStmt(s)
	}
	c.endScope(c.lastLine())
	return nil
}

func (c *Compiler) VisitIfStmt(i *parser.IfStmt) interface{} {
	line := exprLine(i.Condition)
	c.compileExpr(i.Condition)
	thenJump := c.emitJump(bytecode.OpJumpIfFalse, line)
	c.emitOp(bytecode.OpPop, line)
	c.compileStmt(i.Then)
	elseJump := c.emitJump(bytecode.OpJump, c.lastLine())
	c.patchJump(thenJump, line)
	c.emitOp(bytecode.OpPop, c.lastLine())
	if i.Else != nil {
		c.compileStmt(i.Else)
	}
	c.patchJump(elseJump, c.lastLine())
	return nil
}

func (c *Compiler) VisitWhileStmt(w *parser.WhileStmt) interface{} {
	line := exprLine(w.Condition)
	loopStart := len(c.chunk().Code)
	c.compileExpr(w.Condition)
	exitJump := c.emitJump(bytecode.OpJumpIfFalse, line)
	c.emitOp(bytecode.OpPop, line)
	c.compileStmt(w.Body)
	c.emitLoop(loopStart, c.lastLine())
	c.patchJump(exitJump, c.lastLine())
	c.emitOp(bytecode.OpPop, c.lastLine())
	return nil
}

func (c *Compiler) VisitFunctionStmt(f *parser.FunctionStmt) interface{} {
	global := c.parseVariable(f.Name)
	c.markInitialized()
	c.compileFunction(f, typeFunction)
	c.defineVariable(global, f.Name.Line)
	return nil
}

// compileFunction pushes a fresh funcState, compiles f's body into it, then
// emits OP_CLOSURE back in the enclosing chunk with one (isLocal, index)
// byte pair per upvalue the new function captured.
func (c *Compiler) compileFunction(f *parser.FunctionStmt, fnType FunctionType) {
	enclosing := c.current
	fs := c.pushFunc(enclosing, f.Name.Lexeme, fnType)
	c.current = fs
	c.beginScope()

	fs.function.Arity = len(f.Params)
	if fs.function.Arity > maxParams {
		c.errorAt(f.Name.Line, "Can't have more than 255 parameters.")
	}
	for _, p := range f.Params {
		c.declareLocal(p.Lexeme, p.Line)
		c.markInitialized()
	}
	for _, s := range f.Body {
		c.compileStmt(s)
	}
	c.emitReturn()

	compiled := fs.function
	upvalues := fs.upvalues
	c.current = enclosing

	idx := c.makeConstant(compiled, f.Name.Line)
	c.emitOpByte(bytecode.OpClosure, idx, f.Name.Line)
	for _, uv := range upvalues {
		isLocal := byte(0)
		if uv.isLocal {
			isLocal = 1
		}
		c.emitByte(isLocal, f.Name.Line)
		c.emitByte(byte(uv.index), f.Name.Line)
	}
}

func (c *Compiler) VisitReturnStmt(r *parser.ReturnStmt) interface{} {
	if c.current.fnType == typeScript {
		c.errorAt(r.Keyword.Line, "Can't return from top-level code.")
	}
	if r.Value == nil {
		c.emitReturn()
		return nil
	}
	if c.current.fnType == typeInitializer {
		c.errorAt(r.Keyword.Line, "Can't return a value from an initializer.")
	}
	c.compileExpr(r.Value)
	c.emitOp(bytecode.OpReturn, r.Keyword.Line)
	return nil
}

func (c *Compiler) compileMethod(m *parser.FunctionStmt) {
	nameConst := c.identifierConstant(m.Name.Lexeme, m.Name.Line)
	fnType := typeMethod
	if m.Name.Lexeme == "init" {
		fnType = typeInitializer
	}
	c.compileFunction(m, fnType)
	c.emitOpByte(bytecode.OpMethod, nameConst, m.Name.Line)
}

// VisitClassStmt emits, in order: OP_CLASS, an optional superclass load
// into a synthetic "super" local plus OP_INHERIT, then the class pushed
// back on top for each OP_METHOD to target, matching the stack contract
// vm.dispatch's OP_INHERIT/OP_METHOD cases expect.
func (c *Compiler) VisitClassStmt(stmt *parser.ClassStmt) interface{} {
	name := stmt.Name
	nameConst := c.identifierConstant(name.Lexeme, name.Line)
	c.declareLocal(name.Lexeme, name.Line)
	c.emitOpByte(bytecode.OpClass, nameConst, name.Line)
	c.defineVariable(nameConst, name.Line)

	classCtx := &classState{enclosing: c.class}
	c.class = classCtx

	if stmt.Superclass != nil {
		if stmt.Superclass.Name.Lexeme == name.Lexeme {
			c.errorAt(stmt.Superclass.Name.Line, "A class can't inherit from itself.")
		}
		c.VisitVariable(stmt.Superclass)
		c.beginScope()
		c.declareLocal("super", stmt.Superclass.Name.Line)
		c.markInitialized()
		c.loadNamed(name.Lexeme, name.Line)
		c.emitOp(bytecode.OpInherit, name.Line)
		classCtx.hasSuperclass = true
	}

	c.loadNamed(name.Lexeme, name.Line)
	for _, m := range stmt.Methods {
		c.compileMethod(m)
	}
	c.emitOp(bytecode.OpPop, c.lastLine())

	if classCtx.hasSuperclass {
		c.endScope(c.lastLine())
	}

	c.class = classCtx.enclosing
	return nil
}
