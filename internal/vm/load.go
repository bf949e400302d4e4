package vm

import "loxvm/internal/compiler"

// Load converts a compiler.Function — and, recursively, every nested
// function its constant pool references — into a heap-allocated
// ObjFunction. This is the one place vm touches compiler output directly:
// the compiler emits raw Go values (float64, string, *compiler.Function)
// so its package never needs to know about vm.Value, and this function
// does the one conversion pass that lets the dispatch loop treat every
// constant as a Value.
func (vm *VM) Load(cf *compiler.Function) *ObjFunction {
	var name *ObjString
	if cf.Name != "" {
		name = vm.copyString(cf.Name)
	}
	fn := vm.newFunction(name)
	fn.Arity = cf.Arity
	fn.UpvalueCount = cf.UpvalueCount
	fn.Chunk = cf.Chunk

	for i, c := range fn.Chunk.Constants {
		switch v := c.(type) {
		case float64:
			fn.Chunk.Constants[i] = Number(v)
		case string:
			fn.Chunk.Constants[i] = ObjectValue(vm.copyString(v))
		case *compiler.Function:
			fn.Chunk.Constants[i] = ObjectValue(vm.Load(v))
		}
	}
	return fn
}
