package vm

import "testing"

func TestTableSetGetDelete(t *testing.T) {
	vm := New()
	table := NewTable()

	key := vm.copyString("greeting")
	if isNew := table.Set(key, Number(1)); !isNew {
		t.Fatal("first Set of a key must report isNew = true")
	}
	if isNew := table.Set(key, Number(2)); isNew {
		t.Fatal("overwriting an existing key must report isNew = false")
	}

	got, ok := table.Get(key)
	if !ok || got.Number != 2 {
		t.Fatalf("Get = (%v, %v), want (2, true)", got, ok)
	}

	if !table.Delete(key) {
		t.Fatal("Delete of a present key must return true")
	}
	if _, ok := table.Get(key); ok {
		t.Fatal("Get after Delete must report not found")
	}
	if table.Delete(key) {
		t.Fatal("Delete of an absent key must return false")
	}
}

func TestTableGrowPreservesEntries(t *testing.T) {
	vm := New()
	table := NewTable()

	keys := make([]*ObjString, 0, 64)
	for i := 0; i < 64; i++ {
		k := vm.copyString(string(rune('a' + (i % 26))) + string(rune('0'+i%10)) + string(rune('A'+i%26)))
		keys = append(keys, k)
		table.Set(k, Number(float64(i)))
	}

	for i, k := range keys {
		got, ok := table.Get(k)
		if !ok {
			t.Fatalf("key %d missing after growth", i)
		}
		if got.Number != float64(i) {
			t.Fatalf("key %d = %v, want %v", i, got.Number, i)
		}
	}
}

func TestTableAddAll(t *testing.T) {
	vm := New()
	src := NewTable()
	dst := NewTable()

	a := vm.copyString("a")
	b := vm.copyString("b")
	src.Set(a, Number(1))
	src.Set(b, Number(2))
	dst.Set(a, Number(99))

	dst.AddAll(src)

	if v, _ := dst.Get(a); v.Number != 1 {
		t.Errorf("AddAll must overwrite existing keys, got %v", v.Number)
	}
	if v, _ := dst.Get(b); v.Number != 2 {
		t.Errorf("AddAll must copy new keys, got %v", v.Number)
	}
}

func TestFindString(t *testing.T) {
	vm := New()
	s := vm.copyString("shared")
	found := vm.strings.FindString("shared", fnv1a("shared"))
	if found != s {
		t.Fatal("FindString must return the interned string by content")
	}
	if vm.strings.FindString("not-there", fnv1a("not-there")) != nil {
		t.Fatal("FindString must return nil for a string never interned")
	}
}
