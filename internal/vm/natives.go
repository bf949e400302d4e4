package vm

import "time"

// registerNatives installs the host primitives the core language exposes.
// clock() is the sole built-in the base language defines; see DESIGN.md
// for the native surface this deliberately doesn't grow into.
func (vm *VM) registerNatives() {
	vm.defineNative("clock", 0, func(args []Value) (Value, error) {
		return Number(time.Since(clockStart).Seconds()), nil
	})
}

func (vm *VM) defineNative(name string, arity int, fn NativeFn) {
	nameObj := vm.copyString(name)
	native := vm.newNative(name, fn)
	vm.push(ObjectValue(nameObj))
	vm.push(ObjectValue(native))
	vm.globals.Set(nameObj, vm.stack[vm.stackTop-1])
	vm.pop()
	vm.pop()
}
