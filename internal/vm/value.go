// Package vm is the execution core: the tagged Value representation, the
// heap object model, the hash table, the garbage collector, call-frame
// management, upvalue capture, and the opcode dispatch loop. These pieces
// are split across several files in one package because they are not
// independently replaceable: the dispatch loop, object layout, and
// collector all share the same invariants.
package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ValueType is the discriminant of the tagged Value union.
type ValueType byte

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObj
)

// Value is a tagged union over nil, boolean, number, and object-reference.
// Go interfaces would let any type through, so the variant is kept explicit
// in a discriminant field instead. NaN-boxing is a viable alternative but
// isn't worth the unsafe-pointer games in Go.
type Value struct {
	Type   ValueType
	Bool   bool
	Number float64
	Obj    Obj
}

func Nil() Value                 { return Value{Type: ValNil} }
func Bool(b bool) Value          { return Value{Type: ValBool, Bool: b} }
func Number(n float64) Value     { return Value{Type: ValNumber, Number: n} }
func ObjectValue(o Obj) Value    { return Value{Type: ValObj, Obj: o} }
func (v Value) IsNil() bool      { return v.Type == ValNil }
func (v Value) IsBool() bool     { return v.Type == ValBool }
func (v Value) IsNumber() bool   { return v.Type == ValNumber }
func (v Value) IsObj() bool      { return v.Type == ValObj }
func (v Value) IsString() bool   { return v.Type == ValObj && v.Obj.Kind() == ObjTypeString }
func (v Value) IsClass() bool    { return v.Type == ValObj && v.Obj.Kind() == ObjTypeClass }
func (v Value) IsInstance() bool { return v.Type == ValObj && v.Obj.Kind() == ObjTypeInstance }

// AsString panics if v is not a string; callers must check IsString first.
// Cheap, unchecked access guarded by an Is* predicate at the call site.
func (v Value) AsString() *ObjString { return v.Obj.(*ObjString) }

// Falsey reports whether v is falsey: only nil and false are falsey.
func (v Value) Falsey() bool {
	return v.Type == ValNil || (v.Type == ValBool && !v.Bool)
}

// Equal implements value equality: same variant required, numbers
// compare with Go's ==, objects (other than strings) compare by reference
// identity, strings compare by reference identity too because interning
// guarantees equal content shares one object.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case ValNil:
		return true
	case ValBool:
		return a.Bool == b.Bool
	case ValNumber:
		return a.Number == b.Number
	case ValObj:
		if sa, ok := a.Obj.(*ObjString); ok {
			sb, ok := b.Obj.(*ObjString)
			return ok && sa == sb
		}
		return a.Obj == b.Obj
	default:
		return false
	}
}

// PrintValue renders v the way `print` and the REPL display a value.
func PrintValue(v Value) string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValNumber:
		return formatNumber(v.Number)
	case ValObj:
		return printObj(v.Obj)
	default:
		return ""
	}
}

// formatNumber reproduces clox's "shortest round-trip decimal", integral
// values printed without a fractional part.
func formatNumber(n float64) string {
	if math.IsNaN(n) {
		return "nan"
	}
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func printObj(o Obj) string {
	switch obj := o.(type) {
	case *ObjString:
		return obj.Chars
	case *ObjFunction:
		if obj.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", obj.Name.Chars)
	case *ObjNative:
		return "<native fn>"
	case *ObjClosure:
		return printObj(obj.Function)
	case *ObjUpvalue:
		return "<upvalue>"
	case *ObjClass:
		return fmt.Sprintf("<class %s>", obj.Name.Chars)
	case *ObjInstance:
		return fmt.Sprintf("%s instance", obj.Class.Name.Chars)
	case *ObjBoundMethod:
		return printObj(obj.Method)
	default:
		return "<object>"
	}
}
