package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"loxvm/internal/bytecode"
	"loxvm/internal/vmerr"
)

const (
	FramesMax  = 64
	UInt8Count = 256
	StackMax   = FramesMax * UInt8Count
)

// VM is the whole execution core: value stack, call frames, globals,
// open-upvalue list, and the heap/collector embedded via heap — one struct
// holding every piece of mutable execution state needed to run a chunk.
type VM struct {
	heap

	stack    [StackMax]Value
	stackTop int

	frames     [FramesMax]CallFrame
	frameCount int

	globals      *Table
	openUpvalues *ObjUpvalue
	initString   *ObjString

	// nativePins roots values a native function is still holding onto
	// mid-call, so an allocation it triggers can't collect its own
	// arguments out from under it ( safety rule,  native discipline).
	nativePins []Value

	stdout io.Writer
	trace  bool

	SessionID uuid.UUID
	traceHook func(string)

	// lastCallError carries a callValue/invoke failure message back to the
	// dispatch loop, which builds the trace from the still-live frame.
	lastCallError string
}

// Option configures a VM at construction time, in place of a config file,
// through the functional-options pattern rather than external config.
type Option func(*VM)

func WithStressGC() Option  { return func(vm *VM) { vm.stressGC = true } }
func WithTraceGC() Option   { return func(vm *VM) { vm.traceGC = true } }
func WithTrace() Option     { return func(vm *VM) { vm.trace = true } }
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}
func WithTraceHook(hook func(string)) Option {
	return func(vm *VM) { vm.traceHook = hook }
}

func New(opts ...Option) *VM {
	vm := &VM{
		heap:      *newHeap(),
		globals:   NewTable(),
		stdout:    os.Stdout,
		SessionID: uuid.New(),
	}
	vm.initString = vm.copyString("init")
	vm.registerNatives()
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Run wraps fn in a closure, pushes it, and enters the dispatch loop — the
// driver sequence  describes. It returns the script's final popped value
// (normally nil) or a *vmerr.RuntimeError.
func (vm *VM) Run(fn *ObjFunction) (Value, error) {
	closure := vm.newClosure(fn)
	vm.push(ObjectValue(closure))
	vm.callValue(ObjectValue(closure), 0)
	return vm.dispatch()
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

func (vm *VM) push(v Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.stackTop-1-distance]
}

// --- dispatch loop ---

func (vm *VM) dispatch() (Value, error) {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() uint16 {
		hi := uint16(frame.closure.Function.Chunk.Code[frame.ip])
		lo := uint16(frame.closure.Function.Chunk.Code[frame.ip+1])
		frame.ip += 2
		return hi<<8 | lo
	}
	readConstant := func() Value {
		return frame.closure.Function.Chunk.Constants[readByte()].(Value)
	}
	readString := func() *ObjString {
		return readConstant().AsString()
	}

	for {
		if vm.trace {
			vm.printTraceLine(frame)
		}

		op := bytecode.OpCode(readByte())
		switch op {
		case bytecode.OpConstant:
			vm.push(readConstant())

		case bytecode.OpNil:
			vm.push(Nil())
		case bytecode.OpTrue:
			vm.push(Bool(true))
		case bytecode.OpFalse:
			vm.push(Bool(false))
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[frame.slotBase+slot])
		case bytecode.OpSetLocal:
			slot := int(readByte())
			vm.stack[frame.slotBase+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError(frame, vmerr.UndefinedVariable(name.Chars))
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case bytecode.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError(frame, vmerr.UndefinedVariable(name.Chars))
			}

		case bytecode.OpGetUpvalue:
			slot := int(readByte())
			vm.push(frame.closure.Upvalues[slot].Get(vm))
		case bytecode.OpSetUpvalue:
			slot := int(readByte())
			frame.closure.Upvalues[slot].Set(vm, vm.peek(0))

		case bytecode.OpGetProperty:
			name := readString()
			if !vm.peek(0).IsInstance() {
				return vm.runtimeError(frame, vmerr.MsgOnlyInstancesHaveProperties)
			}
			inst := vm.peek(0).Obj.(*ObjInstance)
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if !vm.bindMethod(inst.Class, name) {
				return vm.runtimeError(frame, vmerr.UndefinedProperty(name.Chars))
			}

		case bytecode.OpSetProperty:
			name := readString()
			if !vm.peek(1).IsInstance() {
				return vm.runtimeError(frame, vmerr.MsgOnlyInstancesHaveFields)
			}
			inst := vm.peek(1).Obj.(*ObjInstance)
			inst.Fields.Set(name, vm.peek(0))
			value := vm.pop()
			vm.pop()
			vm.push(value)

		case bytecode.OpGetSuper:
			name := readString()
			super := vm.pop().Obj.(*ObjClass)
			inst := vm.pop()
			if !vm.bindMethodOn(super, inst, name) {
				return vm.runtimeError(frame, vmerr.UndefinedProperty(name.Chars))
			}

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(Bool(Equal(a, b)))
		case bytecode.OpGreater:
			if err := vm.binaryCompare(frame, func(a, b float64) bool { return a > b }); err != nil {
				return Nil(), err
			}
		case bytecode.OpLess:
			if err := vm.binaryCompare(frame, func(a, b float64) bool { return a < b }); err != nil {
				return Nil(), err
			}

		case bytecode.OpAdd:
			if err := vm.add(frame); err != nil {
				return Nil(), err
			}
		case bytecode.OpSubtract:
			if err := vm.arith(frame, func(a, b float64) float64 { return a - b }); err != nil {
				return Nil(), err
			}
		case bytecode.OpMultiply:
			if err := vm.arith(frame, func(a, b float64) float64 { return a * b }); err != nil {
				return Nil(), err
			}
		case bytecode.OpDivide:
			if err := vm.arith(frame, func(a, b float64) float64 { return a / b }); err != nil {
				return Nil(), err
			}

		case bytecode.OpNot:
			vm.push(Bool(vm.pop().Falsey()))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError(frame, vmerr.MsgOperandMustBeNumber)
			}
			vm.push(Number(-vm.pop().Number))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.stdout, PrintValue(vm.pop()))

		case bytecode.OpJump:
			offset := readShort()
			frame.ip += int(offset)
		case bytecode.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).Falsey() {
				frame.ip += int(offset)
			}
		case bytecode.OpLoop:
			offset := readShort()
			frame.ip -= int(offset)

		case bytecode.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return vm.runtimeError(frame, vm.lastCallError)
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpInvoke:
			method := readString()
			argCount := int(readByte())
			if !vm.invoke(method, argCount) {
				return vm.runtimeError(frame, vm.lastCallError)
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpSuperInvoke:
			method := readString()
			argCount := int(readByte())
			super := vm.pop().Obj.(*ObjClass)
			if !vm.invokeFromClass(super, method, argCount) {
				return vm.runtimeError(frame, vm.lastCallError)
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClosure:
			fn := readConstant().Obj.(*ObjFunction)
			closure := vm.newClosure(fn)
			vm.push(ObjectValue(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotBase + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the script closure
				return result, nil
			}
			vm.stackTop = frame.slotBase
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClass:
			vm.push(ObjectValue(vm.newClass(readString())))

		case bytecode.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsClass() {
				return vm.runtimeError(frame, vmerr.MsgSuperclassMustBeClass)
			}
			subclass := vm.peek(0).Obj.(*ObjClass)
			subclass.Methods.AddAll(superVal.Obj.(*ObjClass).Methods)
			vm.pop() // subclass only; superclass stays for OP_GET_SUPER

		case bytecode.OpMethod:
			vm.defineMethod(readString())

		default:
			return vm.runtimeError(frame, fmt.Sprintf("Unknown opcode %d.", op))
		}
	}
}

func (vm *VM) arith(frame *CallFrame, op func(a, b float64) float64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		_, err := vm.runtimeError(frame, vmerr.MsgOperandsMustBeNumbers)
		return err
	}
	b := vm.pop().Number
	a := vm.pop().Number
	vm.push(Number(op(a, b)))
	return nil
}

func (vm *VM) binaryCompare(frame *CallFrame, op func(a, b float64) bool) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		_, err := vm.runtimeError(frame, vmerr.MsgOperandsMustBeNumbers)
		return err
	}
	b := vm.pop().Number
	a := vm.pop().Number
	vm.push(Bool(op(a, b)))
	return nil
}

// add implements the overloaded OP_ADD: number+number, string+string
// (interned concatenation), anything else is an error.
func (vm *VM) add(frame *CallFrame) error {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(Number(a.Number + b.Number))
	case a.IsString() && b.IsString():
		vm.pop()
		vm.pop()
		vm.push(ObjectValue(vm.copyString(a.AsString().Chars + b.AsString().Chars)))
	default:
		_, err := vm.runtimeError(frame, vmerr.MsgOperandsNumbersOrStrings)
		return err
	}
	return nil
}

// runtimeError captures the current call stack (innermost first) and
// returns it as a *vmerr.RuntimeError, then resets the stack/frames so the
// VM can serve another Interpret call cleanly.
func (vm *VM) runtimeError(frame *CallFrame, message string) (Value, error) {
	_ = frame
	trace := make([]vmerr.Frame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		line := fn.Chunk.LineAt(f.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars
		}
		trace = append(trace, vmerr.Frame{Function: name, Line: line})
	}
	err := vmerr.New(message, trace)
	vm.resetStack()
	return Nil(), err
}

func (vm *VM) printTraceLine(frame *CallFrame) {
	var sb []byte
	sb = append(sb, "          "...)
	for i := 0; i < vm.stackTop; i++ {
		sb = append(sb, '[')
		sb = append(sb, PrintValue(vm.stack[i])...)
		sb = append(sb, ']')
	}
	sb = append(sb, '\n')
	sb, _ = disassembleInstruction(sb, frame.closure.Function.Chunk, frame.ip)

	line := string(sb)
	if vm.traceHook != nil {
		vm.traceHook(line)
	}
	fmt.Fprintln(os.Stderr, line)
}

// clockStart anchors the clock() native to process start, so it reports
// seconds since the VM started rather than wall-clock epoch time.
var clockStart = time.Now()
