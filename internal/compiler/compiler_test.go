package compiler

import (
	"testing"

	"loxvm/internal/bytecode"
	"loxvm/internal/lexer"
	"loxvm/internal/parser"
)

func compileSource(t *testing.T, source string) *Function {
	t.Helper()
	tokens := lexer.NewScanner(source).ScanTokens()
	stmts, parseErrs := parser.NewParser(tokens).Parse()
	if len(parseErrs) != 0 {
		t.Fatalf("unexpected parse errors: %v", parseErrs)
	}
	fn, compileErrs := Compile(stmts)
	if len(compileErrs) != 0 {
		t.Fatalf("unexpected compile errors: %v", compileErrs)
	}
	return fn
}

func opcodes(chunk *bytecode.Chunk) []bytecode.OpCode {
	var ops []bytecode.OpCode
	offset := 0
	for offset < len(chunk.Code) {
		op := bytecode.OpCode(chunk.Code[offset])
		ops = append(ops, op)
		switch op {
		case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpGetUpvalue,
			bytecode.OpSetUpvalue, bytecode.OpCall, bytecode.OpGetGlobal,
			bytecode.OpDefineGlobal, bytecode.OpSetGlobal, bytecode.OpGetProperty,
			bytecode.OpSetProperty, bytecode.OpGetSuper, bytecode.OpClass,
			bytecode.OpMethod, bytecode.OpConstant:
			offset += 2
		case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpLoop,
			bytecode.OpInvoke, bytecode.OpSuperInvoke:
			offset += 3
		case bytecode.OpClosure:
			fn := chunk.Constants[chunk.Code[offset+1]].(*Function)
			offset += 2 + 2*fn.UpvalueCount
		default:
			offset++
		}
	}
	return ops
}

func TestCompilesArithmeticToConstantsAndOps(t *testing.T) {
	fn := compileSource(t, "print 1 + 2;")
	ops := opcodes(fn.Chunk)
	want := []bytecode.OpCode{
		bytecode.OpConstant, bytecode.OpConstant, bytecode.OpAdd,
		bytecode.OpPrint, bytecode.OpNil, bytecode.OpReturn,
	}
	if len(ops) != len(want) {
		t.Fatalf("got ops %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: got %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestCompilesGlobalVarDeclaration(t *testing.T) {
	fn := compileSource(t, "var x = 5;")
	ops := opcodes(fn.Chunk)
	want := []bytecode.OpCode{bytecode.OpConstant, bytecode.OpDefineGlobal, bytecode.OpNil, bytecode.OpReturn}
	if len(ops) != len(want) {
		t.Fatalf("got ops %v, want %v", ops, want)
	}
}

func TestCompilesLocalsWithoutGlobalOps(t *testing.T) {
	fn := compileSource(t, "{ var x = 1; print x; }")
	ops := opcodes(fn.Chunk)
	for _, op := range ops {
		if op == bytecode.OpDefineGlobal || op == bytecode.OpGetGlobal {
			t.Fatalf("a block-scoped local must not compile to a global op, got %v", ops)
		}
	}
	found := false
	for _, op := range ops {
		if op == bytecode.OpGetLocal {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an OpGetLocal reading back the local, got %v", ops)
	}
}

func TestNestedFunctionCompilesToClosure(t *testing.T) {
	fn := compileSource(t, `
		fun outer() {
			var x = 1;
			fun inner() { return x; }
			return inner;
		}
	`)
	ops := opcodes(fn.Chunk)
	found := false
	for _, op := range ops {
		if op == bytecode.OpClosure {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the top-level chunk to emit OpClosure for 'outer', got %v", ops)
	}
}

func TestClassWithSuperclassEmitsInherit(t *testing.T) {
	fn := compileSource(t, `
		class Animal {}
		class Dog < Animal {
			speak() { return super.speak(); }
		}
	`)
	ops := opcodes(fn.Chunk)
	// super.speak() compiles into the method's own chunk, so walk the nested
	// functions' chunks as well as the top-level one.
	for _, c := range fn.Chunk.Constants {
		if nested, ok := c.(*Function); ok {
			ops = append(ops, opcodes(nested.Chunk)...)
		}
	}
	foundInherit, foundSuperInvoke := false, false
	for _, op := range ops {
		if op == bytecode.OpInherit {
			foundInherit = true
		}
		if op == bytecode.OpSuperInvoke {
			foundSuperInvoke = true
		}
	}
	if !foundInherit {
		t.Errorf("expected OpInherit for 'class Dog < Animal', got %v", ops)
	}
	if !foundSuperInvoke {
		t.Errorf("expected super.speak() to fuse into OpSuperInvoke, got %v", ops)
	}
}

func TestMethodCallFusesIntoInvoke(t *testing.T) {
	fn := compileSource(t, `
		class Greeter {
			greet() { print "hi"; }
		}
		Greeter().greet();
	`)
	ops := opcodes(fn.Chunk)
	found := false
	for _, op := range ops {
		if op == bytecode.OpInvoke {
			found = true
		}
	}
	if !found {
		t.Errorf("expected 'Greeter().greet()' to fuse into OpInvoke, got %v", ops)
	}
}
