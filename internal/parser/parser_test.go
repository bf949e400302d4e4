package parser

import (
	"testing"

	"loxvm/internal/lexer"
)

func parse(t *testing.T, source string) ([]Stmt, []*ParseError) {
	t.Helper()
	tokens := lexer.NewScanner(source).ScanTokens()
	return NewParser(tokens).Parse()
}

func TestParsesBinaryPrecedence(t *testing.T) {
	stmts, errs := parse(t, "1 + 2 * 3;")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	exprStmt, ok := stmts[0].(*ExpressionStmt)
	if !ok {
		t.Fatalf("expected *ExpressionStmt, got %T", stmts[0])
	}
	top, ok := exprStmt.Expression.(*Binary)
	if !ok {
		t.Fatalf("expected top-level *Binary (the '+'), got %T", exprStmt.Expression)
	}
	if top.Op.Type != lexer.TokenPlus {
		t.Fatalf("expected '+' at the top (lowest precedence binds last), got %s", top.Op.Type)
	}
	if _, ok := top.Right.(*Binary); !ok {
		t.Fatalf("expected '2 * 3' folded into the right operand, got %T", top.Right)
	}
}

func TestParsesVarDeclaration(t *testing.T) {
	stmts, errs := parse(t, "var x = 1;")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v, ok := stmts[0].(*VarStmt)
	if !ok {
		t.Fatalf("expected *VarStmt, got %T", stmts[0])
	}
	if v.Name.Lexeme != "x" {
		t.Errorf("expected name 'x', got %q", v.Name.Lexeme)
	}
	if _, ok := v.Initializer.(*Literal); !ok {
		t.Errorf("expected a literal initializer, got %T", v.Initializer)
	}
}

func TestParsesClassWithSuperclass(t *testing.T) {
	stmts, errs := parse(t, "class Dog < Animal { speak() { print 1; } }")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	class, ok := stmts[0].(*ClassStmt)
	if !ok {
		t.Fatalf("expected *ClassStmt, got %T", stmts[0])
	}
	if class.Name.Lexeme != "Dog" {
		t.Errorf("expected class name 'Dog', got %q", class.Name.Lexeme)
	}
	if class.Superclass == nil || class.Superclass.Name.Lexeme != "Animal" {
		t.Fatalf("expected superclass 'Animal', got %v", class.Superclass)
	}
	if len(class.Methods) != 1 || class.Methods[0].Name.Lexeme != "speak" {
		t.Fatalf("expected one method 'speak', got %v", class.Methods)
	}
}

func TestForDesugarsToWhile(t *testing.T) {
	stmts, errs := parse(t, "for (var i = 0; i < 3; i = i + 1) print i;")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	block, ok := stmts[0].(*BlockStmt)
	if !ok {
		t.Fatalf("expected the for-loop to desugar into a *BlockStmt, got %T", stmts[0])
	}
	if len(block.Statements) != 2 {
		t.Fatalf("expected [initializer, while], got %d statements", len(block.Statements))
	}
	if _, ok := block.Statements[0].(*VarStmt); !ok {
		t.Errorf("expected the initializer first, got %T", block.Statements[0])
	}
	whileStmt, ok := block.Statements[1].(*WhileStmt)
	if !ok {
		t.Fatalf("expected a *WhileStmt second, got %T", block.Statements[1])
	}
	innerBlock, ok := whileStmt.Body.(*BlockStmt)
	if !ok || len(innerBlock.Statements) != 2 {
		t.Fatalf("expected the while body to be [original body, increment], got %#v", whileStmt.Body)
	}
}

func TestInvalidAssignmentTargetIsReported(t *testing.T) {
	_, errs := parse(t, "1 + 2 = 3;")
	if len(errs) == 0 {
		t.Fatal("expected an error for assigning to a non-lvalue")
	}
}

func TestMissingSemicolonRecovers(t *testing.T) {
	stmts, errs := parse(t, "var a = 1\nvar b = 2;")
	if len(errs) == 0 {
		t.Fatal("expected a parse error for the missing semicolon")
	}
	// synchronize() should still let parsing pick back up at `var b`.
	found := false
	for _, s := range stmts {
		if v, ok := s.(*VarStmt); ok && v.Name.Lexeme == "b" {
			found = true
		}
	}
	if !found {
		t.Error("expected the parser to recover and still parse 'var b = 2;'")
	}
}
