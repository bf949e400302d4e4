package vm

import (
	"fmt"
	"hash/fnv"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slices"
)

const gcHeapGrowFactor = 2

// heap owns every live object and the collector's bookkeeping. It's a
// separate struct embedded in VM (rather than loose VM fields) so the
// allocation/collection concern reads as one unit: a single arena owning
// every heap object.
type heap struct {
	objects        []Obj // all-objects list, allocation order
	strings        *Table
	bytesAllocated int
	nextGC         int
	grayStack      []Obj
	stressGC       bool
	traceGC        bool
}

func newHeap() *heap {
	return &heap{
		strings: NewTable(),
		nextGC:  1 << 20, // 1 MiB; after each collection, 2x the surviving bytes, never below 1 MiB
	}
}

// track charges o's estimated size against the collection threshold,
// triggers a collection if that pushes the heap over nextGC, and only then
// links o into the all-objects list — clox's reallocate-then-link order.
// Running the check first means the collection o's own allocation provoked
// never finds o in vm.objects, so it can't mark o as a root and then sweep
// it out of the list in the same cycle.
func (vm *VM) track(o Obj, size int) {
	o.SetSize(size)
	vm.bytesAllocated += size
	if vm.bytesAllocated > vm.nextGC || vm.stressGC {
		vm.collectGarbage()
	}
	vm.objects = append(vm.objects, o)
}

func (vm *VM) newFunction(name *ObjString) *ObjFunction {
	f := newObjFunction(name)
	vm.track(f, 64)
	return f
}

func (vm *VM) newNative(name string, fn NativeFn) *ObjNative {
	n := newObjNative(name, fn)
	vm.track(n, 32)
	return n
}

func (vm *VM) newClosure(fn *ObjFunction) *ObjClosure {
	c := newObjClosure(fn)
	vm.track(c, 32+8*len(c.Upvalues))
	return c
}

func (vm *VM) newUpvalue(slot int) *ObjUpvalue {
	u := newObjUpvalue(slot)
	vm.track(u, 24)
	return u
}

func (vm *VM) newClass(name *ObjString) *ObjClass {
	c := newObjClass(name)
	vm.track(c, 48)
	return c
}

func (vm *VM) newInstance(class *ObjClass) *ObjInstance {
	i := newObjInstance(class)
	vm.track(i, 48)
	return i
}

func (vm *VM) newBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	b := newObjBoundMethod(receiver, method)
	vm.track(b, 32)
	return b
}

func fnv1a(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// copyString interns a freshly scanned string literal (the compiler owns
// the source bytes; we always make our own copy — that's what distinguishes
// it from takeString in clox, though in Go both end up copying a string
// header, not the bytes, so the two converge to one helper).
func (vm *VM) copyString(chars string) *ObjString {
	hash := fnv1a(chars)
	if interned := vm.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	s := newObjString(chars, hash)
	vm.track(s, 16+len(chars))
	vm.strings.Set(s, Nil())
	return s
}

// markValue marks v's object payload, if it has one.
func (vm *VM) markValue(v Value) {
	if v.Type == ValObj && v.Obj != nil {
		vm.markObject(v.Obj)
	}
}

// markObject pushes o onto the gray worklist the first time it's seen.
func (vm *VM) markObject(o Obj) {
	if o == nil || o.IsMarked() {
		return
	}
	o.SetMarked(true)
	vm.grayStack = append(vm.grayStack, o)
}

func (vm *VM) markTable(t *Table) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			vm.markObject(e.key)
			vm.markValue(e.value)
		}
	}
}

// markRoots marks every root: the value stack, every frame's closure,
// every open upvalue, globals, initString, plus anything a native call
// has pinned for the duration of its execution.
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.Next {
		vm.markObject(up)
	}
	vm.markTable(vm.globals)
	if vm.initString != nil {
		vm.markObject(vm.initString)
	}
	for _, v := range vm.nativePins {
		vm.markValue(v)
	}
}

// blackenObject marks every object o itself references, completing the
// mark phase's trace step for one gray object.
func (vm *VM) blackenObject(o Obj) {
	switch obj := o.(type) {
	case *ObjString, *ObjNative:
		// no outgoing references
	case *ObjFunction:
		if obj.Name != nil {
			vm.markObject(obj.Name)
		}
		for _, c := range obj.Chunk.Constants {
			if v, ok := c.(Value); ok {
				vm.markValue(v)
			}
		}
	case *ObjClosure:
		vm.markObject(obj.Function)
		for _, u := range obj.Upvalues {
			vm.markObject(u)
		}
	case *ObjUpvalue:
		if obj.Index < 0 {
			vm.markValue(obj.Closed)
		}
	case *ObjClass:
		vm.markObject(obj.Name)
		vm.markTable(obj.Methods)
	case *ObjInstance:
		vm.markObject(obj.Class)
		vm.markTable(obj.Fields)
	case *ObjBoundMethod:
		vm.markValue(obj.Receiver)
		vm.markObject(obj.Method)
	}
}

// collectGarbage runs one full tri-color mark-sweep cycle: mark
// roots, trace until the gray stack is empty, weak-sweep the string table,
// then sweep the all-objects list and clear survivors' mark bits.
func (vm *VM) collectGarbage() {
	before := vm.bytesAllocated

	vm.markRoots()
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		o := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]
		vm.blackenObject(o)
	}

	vm.strings.RemoveWhite()
	vm.sweep()

	vm.nextGC = vm.bytesAllocated * gcHeapGrowFactor
	if vm.nextGC < 1<<20 {
		vm.nextGC = 1 << 20
	}

	if vm.traceGC {
		fmt.Fprintf(os.Stderr, "-- gc collected %s (from %s to %s), next at %s\n",
			humanize.Bytes(uint64(before-vm.bytesAllocated)),
			humanize.Bytes(uint64(before)),
			humanize.Bytes(uint64(vm.bytesAllocated)),
			humanize.Bytes(uint64(vm.nextGC)))
	}
}

// sweep walks the all-objects list, keeping only marked survivors (which it
// unmarks for the next cycle) and dropping the rest — "freeing" an object
// here means forgetting it, which is enough in Go: nothing else reaches an
// unmarked object once it falls out of vm.objects.
func (vm *VM) sweep() {
	live := vm.objects[:0]
	for _, o := range vm.objects {
		if o.IsMarked() {
			o.SetMarked(false)
			live = append(live, o)
		} else {
			vm.bytesAllocated -= o.Size()
		}
	}
	vm.objects = slices.Clip(live)
}
