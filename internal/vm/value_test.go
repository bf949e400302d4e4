package vm

import "testing"

func TestFalsey(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil(), true},
		{Bool(false), true},
		{Bool(true), false},
		{Number(0), false},
		{Number(1), false},
	}
	for _, c := range cases {
		if got := c.v.Falsey(); got != c.want {
			t.Errorf("Falsey(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal(Number(1), Number(1)) {
		t.Error("expected 1 == 1")
	}
	if Equal(Number(1), Number(2)) {
		t.Error("expected 1 != 2")
	}
	if Equal(Nil(), Bool(false)) {
		t.Error("nil must not equal false")
	}
	if !Equal(Nil(), Nil()) {
		t.Error("nil must equal nil")
	}
}

func TestEqualInternedStrings(t *testing.T) {
	vm := New()
	a := vm.copyString("hello")
	b := vm.copyString("hello")
	if a != b {
		t.Fatal("copyString must return the same pointer for equal content")
	}
	if !Equal(ObjectValue(a), ObjectValue(b)) {
		t.Error("interned strings with equal content must compare equal")
	}
}

func TestPrintValue(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Nil(), "nil"},
		{Bool(true), "true"},
		{Number(3), "3"},
		{Number(3.5), "3.5"},
	}
	for _, c := range cases {
		if got := PrintValue(c.v); got != c.want {
			t.Errorf("PrintValue(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}
