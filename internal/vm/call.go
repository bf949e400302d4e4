package vm

import "loxvm/internal/vmerr"

// lastCallError carries the message from a callValue/invoke failure back to
// the dispatch loop, which is the only place with access to the frame that
// was live when the call was attempted (needed to build the trace).
//
// (Declared on VM in vm.go, set by the helpers below.)

// callValue dispatches a call to a closure, a native, a class (constructor),
// or a bound method (the "Calls" semantics). Returns false and sets
// vm.lastCallError on failure instead of unwinding, matching the "no
// exceptions" rule.
func (vm *VM) callValue(callee Value, argCount int) bool {
	if callee.IsObj() {
		switch obj := callee.Obj.(type) {
		case *ObjClosure:
			return vm.call(obj, argCount)
		case *ObjNative:
			return vm.callNative(obj, argCount)
		case *ObjClass:
			return vm.callClass(obj, argCount)
		case *ObjBoundMethod:
			vm.stack[vm.stackTop-argCount-1] = obj.Receiver
			return vm.call(obj.Method, argCount)
		}
	}
	vm.lastCallError = vmerr.MsgCanOnlyCallFunctionsClasses
	return false
}

func (vm *VM) call(closure *ObjClosure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.lastCallError = vmerr.ArityMismatch(closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == FramesMax {
		vm.lastCallError = vmerr.MsgStackOverflow
		return false
	}
	vm.frames[vm.frameCount] = CallFrame{
		closure:  closure,
		ip:       0,
		slotBase: vm.stackTop - argCount - 1,
	}
	vm.frameCount++
	return true
}

func (vm *VM) callNative(native *ObjNative, argCount int) bool {
	args := vm.stack[vm.stackTop-argCount : vm.stackTop]
	vm.nativePins = append(vm.nativePins, args...)
	result, err := native.Fn(args)
	vm.nativePins = vm.nativePins[:len(vm.nativePins)-len(args)]
	if err != nil {
		vm.lastCallError = err.Error()
		return false
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return true
}

func (vm *VM) callClass(class *ObjClass, argCount int) bool {
	instance := vm.newInstance(class)
	vm.stack[vm.stackTop-argCount-1] = ObjectValue(instance)
	if initializer, ok := class.Methods.Get(vm.initString); ok {
		return vm.call(initializer.Obj.(*ObjClosure), argCount)
	}
	if argCount != 0 {
		vm.lastCallError = vmerr.ArityMismatch(0, argCount)
		return false
	}
	return true
}

// invoke is the fused property-get-then-call behind OP_INVOKE: if
// the receiver has an ordinary field by that name, call it like any other
// value (handles a callable stashed in a field); otherwise resolve it as a
// method on the receiver's class.
func (vm *VM) invoke(name *ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if !receiver.IsInstance() {
		vm.lastCallError = vmerr.MsgOnlyInstancesHaveProperties
		return false
	}
	inst := receiver.Obj.(*ObjInstance)
	if field, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argCount int) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		vm.lastCallError = vmerr.UndefinedProperty(name.Chars)
		return false
	}
	return vm.call(method.Obj.(*ObjClosure), argCount)
}

// bindMethod resolves name on class and, if found, pops the instance and
// pushes a BoundMethod in its place.
func (vm *VM) bindMethod(class *ObjClass, name *ObjString) bool {
	if !vm.bindMethodOn(class, vm.peek(0), name) {
		return false
	}
	bound := vm.pop()
	vm.pop()
	vm.push(bound)
	return true
}

func (vm *VM) bindMethodOn(class *ObjClass, receiver Value, name *ObjString) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		return false
	}
	bound := vm.newBoundMethod(receiver, method.Obj.(*ObjClosure))
	vm.push(ObjectValue(bound))
	return true
}

// defineMethod installs peek(0) (a closure) as a method on peek(1)'s class
// (the OP_METHOD) and pops the method, leaving the class on the stack.
func (vm *VM) defineMethod(name *ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).Obj.(*ObjClass)
	class.Methods.Set(name, method)
	vm.pop()
}
