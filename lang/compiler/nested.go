package compiler

import (
	"encoding/binary"
	"math"
)

// NestedFuncodes returns, in the order they are created, the function
// definitions directly nested inside fn — i.e. the targets of every MAKEFUNC
// instruction in fn's bytecode. This drives the marshal subsystem's
// nested-definition vector, since the compiler stores all functions in one
// flat pool (Program.Functions) rather than as a tree.
func NestedFuncodes(fn *Funcode) []*Funcode {
	var nested []*Funcode
	code := fn.Code
	var addr int
	for addr < len(code) {
		op := Opcode(code[addr])
		sz := 1
		var arg uint32
		if op >= OpcodeArgMin {
			v, n := binary.Uvarint(code[addr+1:])
			if n <= 0 || v > math.MaxUint32 {
				break
			}
			arg = uint32(v)
			if isJump(op) && n < 4 {
				n = 4
			}
			sz += n
		}
		if op == MAKEFUNC && int(arg) < len(fn.Prog.Functions) {
			nested = append(nested, fn.Prog.Functions[arg])
		}
		addr += sz
	}
	return nested
}
