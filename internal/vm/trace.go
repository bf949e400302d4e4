package vm

import (
	"fmt"

	"loxvm/internal/bytecode"
)

// disassembleInstruction renders the single instruction at offset in the
// same clox-style layout internal/disasm uses for the `debug` subcommand.
// It's a separate implementation rather than a call into disasm: disasm
// imports vm to print a loaded chunk's Value constants, so vm importing
// disasm back would be a cycle. Keep the two in sync by hand if the
// instruction formats change.
func disassembleInstruction(sb []byte, chunk *bytecode.Chunk, offset int) ([]byte, int) {
	sb = append(sb, fmt.Sprintf("%04d ", offset)...)
	if offset > 0 && chunk.LineAt(offset) == chunk.LineAt(offset-1) {
		sb = append(sb, "   | "...)
	} else {
		sb = append(sb, fmt.Sprintf("%4d ", chunk.LineAt(offset))...)
	}

	op := bytecode.OpCode(chunk.Code[offset])
	switch op {
	case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, bytecode.OpCall:
		slot := chunk.Code[offset+1]
		sb = append(sb, fmt.Sprintf("%-18s %4d", op, slot)...)
		return sb, offset + 2
	case bytecode.OpGetGlobal, bytecode.OpDefineGlobal, bytecode.OpSetGlobal,
		bytecode.OpGetProperty, bytecode.OpSetProperty, bytecode.OpGetSuper,
		bytecode.OpClass, bytecode.OpMethod, bytecode.OpConstant:
		idx := chunk.Code[offset+1]
		sb = append(sb, fmt.Sprintf("%-18s %4d '%s'", op, idx, traceConstant(chunk.Constants[idx]))...)
		return sb, offset + 2
	case bytecode.OpJump, bytecode.OpJumpIfFalse:
		jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
		sb = append(sb, fmt.Sprintf("%-18s %4d -> %d", op, offset, offset+3+jump)...)
		return sb, offset + 3
	case bytecode.OpLoop:
		jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
		sb = append(sb, fmt.Sprintf("%-18s %4d -> %d", op, offset, offset+3-jump)...)
		return sb, offset + 3
	case bytecode.OpInvoke, bytecode.OpSuperInvoke:
		idx := chunk.Code[offset+1]
		argCount := chunk.Code[offset+2]
		sb = append(sb, fmt.Sprintf("%-18s (%d args) %4d '%s'", op, argCount, idx, traceConstant(chunk.Constants[idx]))...)
		return sb, offset + 3
	case bytecode.OpClosure:
		idx := chunk.Code[offset+1]
		sb = append(sb, fmt.Sprintf("%-18s %4d '%s'", bytecode.OpClosure, idx, traceConstant(chunk.Constants[idx]))...)
		offset += 2
		upvalueCount := 0
		if v, ok := chunk.Constants[idx].(Value); ok && v.IsObj() {
			if f, ok := v.Obj.(*ObjFunction); ok {
				upvalueCount = f.UpvalueCount
			}
		}
		for i := 0; i < upvalueCount; i++ {
			isLocal := chunk.Code[offset]
			index := chunk.Code[offset+1]
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			sb = append(sb, fmt.Sprintf("\n%04d      |                     %s %d", offset, kind, index)...)
			offset += 2
		}
		return sb, offset
	default:
		sb = append(sb, op.String()...)
		return sb, offset + 1
	}
}

func traceConstant(v interface{}) string {
	val, ok := v.(Value)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return PrintValue(val)
}
