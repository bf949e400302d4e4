package interpreter

import (
	"bytes"
	"strings"
	"testing"

	"loxvm/internal/vm"
)

func run(t *testing.T, source string) (string, Result, error) {
	t.Helper()
	var out bytes.Buffer
	it := New(vm.WithStdout(&out))
	result, err := it.Run(source)
	return out.String(), result, err
}

func TestArithmeticPrecedence(t *testing.T) {
	out, result, err := run(t, `print 1 + 2 * 3 - 4 / 2;`)
	if result != ResultOK || err != nil {
		t.Fatalf("unexpected result %v, err %v", result, err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Fatalf("got %q, want 5", out)
	}
}

func TestStringConcatenation(t *testing.T) {
	out, result, err := run(t, `print "foo" + "bar";`)
	if result != ResultOK || err != nil {
		t.Fatalf("unexpected result %v, err %v", result, err)
	}
	if strings.TrimSpace(out) != "foobar" {
		t.Fatalf("got %q, want foobar", out)
	}
}

func TestClosureCapturesSharedUpvalue(t *testing.T) {
	source := `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				print count;
			}
			return increment;
		}
		var counter = makeCounter();
		counter();
		counter();
		counter();
	`
	out, result, err := run(t, source)
	if result != ResultOK || err != nil {
		t.Fatalf("unexpected result %v, err %v", result, err)
	}
	if strings.TrimSpace(out) != "1\n2\n3" {
		t.Fatalf("got %q, want 1\\n2\\n3", out)
	}
}

func TestTwoClosuresShareOneUpvalue(t *testing.T) {
	source := `
		fun makePair() {
			var value = 0;
			fun set(v) { value = v; }
			fun get() { print value; }
			set(5);
			get();
		}
		makePair();
	`
	out, result, err := run(t, source)
	if result != ResultOK || err != nil {
		t.Fatalf("unexpected result %v, err %v", result, err)
	}
	if strings.TrimSpace(out) != "5" {
		t.Fatalf("got %q, want 5", out)
	}
}

func TestClassConstructorAndMethod(t *testing.T) {
	source := `
		class Greeter {
			init(name) {
				this.name = name;
			}
			greet() {
				print "Hello, " + this.name + "!";
			}
		}
		var g = Greeter("world");
		g.greet();
	`
	out, result, err := run(t, source)
	if result != ResultOK || err != nil {
		t.Fatalf("unexpected result %v, err %v", result, err)
	}
	if strings.TrimSpace(out) != "Hello, world!" {
		t.Fatalf("got %q, want Hello, world!", out)
	}
}

func TestInheritanceAndSuper(t *testing.T) {
	source := `
		class Animal {
			speak() {
				print "...";
			}
			describe() {
				print "An animal says:";
				this.speak();
			}
		}
		class Dog < Animal {
			speak() {
				print "Woof";
			}
			describe() {
				super.describe();
				print "(a dog)";
			}
		}
		Dog().describe();
	`
	out, result, err := run(t, source)
	if result != ResultOK || err != nil {
		t.Fatalf("unexpected result %v, err %v", result, err)
	}
	want := "An animal says:\nWoof\n(a dog)"
	if strings.TrimSpace(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestArityMismatchIsRuntimeError(t *testing.T) {
	source := `
		fun add(a, b) { return a + b; }
		add(1);
	`
	_, result, err := run(t, source)
	if result != ResultRuntimeError {
		t.Fatalf("expected a runtime error, got result %v, err %v", result, err)
	}
	if err == nil || !strings.Contains(err.Error(), "Expected 2 arguments but got 1") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUndefinedVariableIsCompileTimeClean(t *testing.T) {
	_, result, err := run(t, `print undeclared;`)
	if result != ResultRuntimeError {
		t.Fatalf("expected a runtime error for an undefined global, got %v, err %v", result, err)
	}
	if err == nil || !strings.Contains(err.Error(), "Undefined variable") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPersistentGlobalsAcrossRunCalls(t *testing.T) {
	var out bytes.Buffer
	it := New(vm.WithStdout(&out))

	if _, err := it.Run(`var x = 10;`); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if _, err := it.Run(`print x + 5;`); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "15" {
		t.Fatalf("got %q, want 15", out.String())
	}
}
