package vm

// CallFrame is one activation record: the running closure, its instruction
// pointer, and the base of its local-variable window in the value stack.
// Local slot 0 is the callee itself (or the receiver, for methods/init).
type CallFrame struct {
	closure  *ObjClosure
	ip       int
	slotBase int
}
