package vm

import "loxvm/internal/bytecode"

// ObjType tags which heap-object variant a given Obj is.
type ObjType byte

const (
	ObjTypeString ObjType = iota
	ObjTypeFunction
	ObjTypeNative
	ObjTypeClosure
	ObjTypeUpvalue
	ObjTypeClass
	ObjTypeInstance
	ObjTypeBoundMethod
)

// Obj is implemented by every heap-allocated variant. objHeader supplies
// Kind/IsMarked/SetMarked so concrete types only need to embed it.
type Obj interface {
	Kind() ObjType
	IsMarked() bool
	SetMarked(bool)
	Size() int
	SetSize(int)
}

// objHeader is embedded first in every heap struct: the GC mark bit plus the
// type tag. clox threads an intrusive "next" pointer through every object
// for the all-objects list; Go's lack of ordered pointer arithmetic makes
// that awkward, so the list is kept out-of-line instead, as a slice owned
// by the collector.
type objHeader struct {
	kind   ObjType
	marked bool
	size   int
}

func (h *objHeader) Kind() ObjType    { return h.kind }
func (h *objHeader) IsMarked() bool   { return h.marked }
func (h *objHeader) SetMarked(m bool) { h.marked = m }
func (h *objHeader) Size() int        { return h.size }
func (h *objHeader) SetSize(s int)    { h.size = s }

// ObjString is the heap string object: byte length is len(Chars), content
// hashed with FNV-1a and precomputed once at creation. Every ObjString
// reachable from the string table is content-unique, via interning.
type ObjString struct {
	objHeader
	Chars string
	Hash  uint32
}

// ObjFunction is a compiled function body: arity, declared upvalue count,
// an optional name (absent for the top-level script), and its owned chunk.
// Never mutated after compilation.
type ObjFunction struct {
	objHeader
	Name         *ObjString
	Arity        int
	UpvalueCount int
	Chunk        *bytecode.Chunk
}

// NativeFn is a host routine bridged into Lox as a callable value.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a host callback; immutable once created.
type ObjNative struct {
	objHeader
	Name string
	Fn   NativeFn
}

// ObjUpvalue is the sharing mechanism a closure uses to reach a variable
// that may outlive the stack frame it was declared in. While open,
// Index names a live stack slot; Index == -1 means closed, and the value
// lives in Closed instead. A stack index stands in for clox's raw *Value
// pointer: Go forbids ordered comparison of pointers, which the capture
// algorithm's "sorted by descending address" needs, so a plain integer
// index takes its place and is compared with `>` instead.
type ObjUpvalue struct {
	objHeader
	Index  int
	Closed Value
	Next   *ObjUpvalue // intrusive open-upvalue list, sorted by descending Index
}

// Get reads the upvalue's current value, open or closed.
func (u *ObjUpvalue) Get(vm *VM) Value {
	if u.Index >= 0 {
		return vm.stack[u.Index]
	}
	return u.Closed
}

// Set writes through the upvalue, open or closed.
func (u *ObjUpvalue) Set(vm *VM, v Value) {
	if u.Index >= 0 {
		vm.stack[u.Index] = v
	} else {
		u.Closed = v
	}
}

// ObjClosure pairs a Function with the upvalue references it captured at
// creation time; the upvalue slice is owned by the closure, but individual
// upvalues may be shared with other closures.
type ObjClosure struct {
	objHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

// ObjClass is a class: its name and its method table (Closures keyed by
// name), populated at class-definition time and by OP_INHERIT.
type ObjClass struct {
	objHeader
	Name    *ObjString
	Methods *Table
}

// ObjInstance is a runtime object of some class, with freely mutable fields.
type ObjInstance struct {
	objHeader
	Class  *ObjClass
	Fields *Table
}

// ObjBoundMethod pairs a receiver with the method closure found on it,
// created by OP_GET_PROPERTY when lookup falls through fields to a method.
type ObjBoundMethod struct {
	objHeader
	Receiver Value
	Method   *ObjClosure
}

func newObjString(chars string, hash uint32) *ObjString {
	s := &ObjString{Chars: chars, Hash: hash}
	s.kind = ObjTypeString
	return s
}

func newObjFunction(name *ObjString) *ObjFunction {
	f := &ObjFunction{Name: name, Chunk: bytecode.NewChunk()}
	f.kind = ObjTypeFunction
	return f
}

func newObjNative(name string, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Fn: fn}
	n.kind = ObjTypeNative
	return n
}

func newObjUpvalue(index int) *ObjUpvalue {
	u := &ObjUpvalue{Index: index}
	u.kind = ObjTypeUpvalue
	return u
}

func newObjClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	c.kind = ObjTypeClosure
	return c
}

func newObjClass(name *ObjString) *ObjClass {
	c := &ObjClass{Name: name, Methods: NewTable()}
	c.kind = ObjTypeClass
	return c
}

func newObjInstance(class *ObjClass) *ObjInstance {
	i := &ObjInstance{Class: class, Fields: NewTable()}
	i.kind = ObjTypeInstance
	return i
}

func newObjBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	b := &ObjBoundMethod{Receiver: receiver, Method: method}
	b.kind = ObjTypeBoundMethod
	return b
}
