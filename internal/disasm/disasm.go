// Package disasm renders a bytecode.Chunk as clox-style human-readable
// text: one line per instruction, operands resolved against the constant
// pool. It backs the `debug` CLI subcommand's static disassembly listing.
// The VM's --trace printer needs the identical per-instruction format but
// can't import this package (disasm already imports vm for its Value
// constants), so it carries its own copy of the same decoding logic in
// internal/vm/trace.go instead of reusing DisassembleInstruction.
package disasm

import (
	"fmt"
	"io"
	"strconv"

	"github.com/kr/pretty"

	"loxvm/internal/bytecode"
	"loxvm/internal/compiler"
	"loxvm/internal/vm"
)

// DisassembleChunk writes every instruction in chunk to w, headed by name.
func DisassembleChunk(w io.Writer, chunk *bytecode.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = DisassembleInstruction(w, chunk, offset)
	}
}

// DisassembleInstruction writes the instruction at offset and returns the
// offset of the next one.
func DisassembleInstruction(w io.Writer, chunk *bytecode.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && chunk.LineAt(offset) == chunk.LineAt(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.LineAt(offset))
	}

	op := bytecode.OpCode(chunk.Code[offset])
	switch op {
	case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, bytecode.OpCall:
		return byteInstruction(w, op, chunk, offset)
	case bytecode.OpGetGlobal, bytecode.OpDefineGlobal, bytecode.OpSetGlobal,
		bytecode.OpGetProperty, bytecode.OpSetProperty, bytecode.OpGetSuper,
		bytecode.OpClass, bytecode.OpMethod, bytecode.OpConstant:
		return constantInstruction(w, op, chunk, offset)
	case bytecode.OpJump, bytecode.OpJumpIfFalse:
		return jumpInstruction(w, op, 1, chunk, offset)
	case bytecode.OpLoop:
		return jumpInstruction(w, op, -1, chunk, offset)
	case bytecode.OpInvoke, bytecode.OpSuperInvoke:
		return invokeInstruction(w, op, chunk, offset)
	case bytecode.OpClosure:
		return closureInstruction(w, chunk, offset)
	default:
		fmt.Fprintf(w, "%s\n", op)
		return offset + 1
	}
}

func byteInstruction(w io.Writer, op bytecode.OpCode, chunk *bytecode.Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-18s %4d\n", op, slot)
	return offset + 2
}

func constantInstruction(w io.Writer, op bytecode.OpCode, chunk *bytecode.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-18s %4d '%s'\n", op, idx, formatConstant(chunk.Constants[idx]))
	return offset + 2
}

func invokeInstruction(w io.Writer, op bytecode.OpCode, chunk *bytecode.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	argCount := chunk.Code[offset+2]
	fmt.Fprintf(w, "%-18s (%d args) %4d '%s'\n", op, argCount, idx, formatConstant(chunk.Constants[idx]))
	return offset + 3
}

func jumpInstruction(w io.Writer, op bytecode.OpCode, sign int, chunk *bytecode.Chunk, offset int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	fmt.Fprintf(w, "%-18s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

// closureInstruction also walks the (isLocal, index) byte pairs OP_CLOSURE
// carries for each upvalue the new function captures.
func closureInstruction(w io.Writer, chunk *bytecode.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-18s %4d '%s'\n", bytecode.OpClosure, idx, formatConstant(chunk.Constants[idx]))
	offset += 2

	upvalueCount := 0
	switch fn := chunk.Constants[idx].(type) {
	case *compiler.Function:
		upvalueCount = fn.UpvalueCount
	case vm.Value:
		if fn.IsObj() {
			if f, ok := fn.Obj.(*vm.ObjFunction); ok {
				upvalueCount = f.UpvalueCount
			}
		}
	}
	for i := 0; i < upvalueCount; i++ {
		isLocal := chunk.Code[offset]
		index := chunk.Code[offset+1]
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d      |                     %s %d\n", offset, kind, index)
		offset += 2
	}
	return offset
}

func formatConstant(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case *compiler.Function:
		name := x.Name
		if name == "" {
			name = "script"
		}
		return fmt.Sprintf("<fn %s>", name)
	case vm.Value:
		return vm.PrintValue(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Dump writes a structured field-by-field dump of chunk, used by the
// `debug --dump` flag when the line-oriented disassembly isn't enough to
// track down a compiler bug.
func Dump(w io.Writer, chunk *bytecode.Chunk) {
	pretty.Fprintf(w, "%# v\n", chunk)
}
