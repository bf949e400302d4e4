package bytecode

// OpCode is a one-byte instruction tag, optionally followed by 0-3 operand
// bytes as documented per opcode below.
type OpCode byte

const (
	OpConstant     OpCode = iota // c: push Constants[c]
	OpNil                        // push nil
	OpTrue                       // push true
	OpFalse                      // push false
	OpPop                        // pop and discard
	OpGetLocal                   // s: push frame.slots[s]
	OpSetLocal                   // s: frame.slots[s] = peek(0)
	OpGetGlobal                  // c: push globals[Constants[c]]
	OpDefineGlobal               // c: globals[Constants[c]] = pop()
	OpSetGlobal                  // c: globals[Constants[c]] = peek(0); must pre-exist
	OpGetUpvalue                 // s: push *frame.closure.Upvalues[s].location
	OpSetUpvalue                 // s: *frame.closure.Upvalues[s].location = peek(0)
	OpGetProperty                // c: push peek(0).fields[Constants[c]] or bound method
	OpSetProperty                // c: peek(1).fields[Constants[c]] = peek(0)
	OpGetSuper                   // c: bind Constants[c] method from superclass
	OpEqual                      // pop b, a; push a == b
	OpGreater                    // pop b, a; push a > b
	OpLess                       // pop b, a; push a < b
	OpAdd                        // pop b, a; push a + b (number or string concat)
	OpSubtract                   // pop b, a; push a - b
	OpMultiply                   // pop b, a; push a * b
	OpDivide                     // pop b, a; push a / b
	OpNot                        // push !truthy(pop())
	OpNegate                     // push -pop()
	OpPrint                      // print pop()
	OpJump                       // o16: ip += o16
	OpJumpIfFalse                // o16: if !truthy(peek(0)) ip += o16
	OpLoop                       // o16: ip -= o16
	OpCall                       // n: call peek(n) with n args
	OpInvoke                     // c, n: fused GetProperty+Call for Constants[c]
	OpSuperInvoke                // c, n: fused GetSuper+Call for Constants[c]
	OpClosure                    // c, then n*(isLocal, index): build closure over Constants[c]
	OpCloseUpvalue               // close stackTop-1 into the heap, then pop it
	OpReturn                     // pop result, return it from the current frame
	OpClass                      // c: push new empty Class named Constants[c]
	OpInherit                    // copy superclass (peek(1)) methods into subclass (peek(0)), pop subclass
	OpMethod                     // c: peek(1).methods[Constants[c]] = peek(0) (a closure); pop method

	// OpCodeCount is not itself a valid opcode — it's the number of entries
	// above, for callers that want to size a dispatch table or report it.
	OpCodeCount
)

var opcodeNames = map[OpCode]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "OP_UNKNOWN"
}
