package vm

// captureUpvalue implements the capture algorithm: walk openUpvalues
// (sorted by descending stack index) looking for an existing upvalue over
// this exact slot so closures sharing a local actually share one upvalue; if
// none exists, splice a new one into sorted position.
func (vm *VM) captureUpvalue(slot int) *ObjUpvalue {
	var prev *ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Index > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Index == slot {
		return cur
	}

	created := vm.newUpvalue(slot)
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue whose Index is at or above `last`,
// moving the stack value into the upvalue's own Closed field and
// retargeting it there. Used by OP_RETURN (closing a whole frame's
// window) and OP_CLOSE_UPVALUE (closing exactly one local).
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Index >= last {
		up := vm.openUpvalues
		up.Closed = vm.stack[up.Index]
		up.Index = -1
		vm.openUpvalues = up.Next
		up.Next = nil
	}
}
