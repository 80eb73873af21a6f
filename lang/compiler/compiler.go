// Much of the compiler package is adapted from the Starlark source code:
// https://github.com/google/starlark-go/tree/ee8ed142361c69d52fe8e9fb5e311d2a0a7c02de
//
// Copyright 2017 The Bazel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compiler defines the compiled program representation — Program,
// Funcode and Opcode — that the virtual machine executes and the marshal
// subsystem serializes. It also provides a pseudo-assembly serialization and
// deserialization (see asm.go) to build and inspect a Program in textual form
// without going through a source parser.
//
// Compiling a parsed and resolved source AST down to this representation
// (name resolution, control-flow linearization, stack-depth computation) is
// the source compiler's job; it is a separate concern from the compiled
// representation and from marshaling, so it is not implemented in this
// package. Programs are instead built directly, either by a higher-level
// front end or, for tests and tooling, via Asm.
package compiler

import "fmt"

// Binding records the name and declaration position of a local variable,
// parameter or free variable.
type Binding struct {
	Name string
	Pos  Pos
}

// Pos is a lightweight source position recorded alongside a Binding; it
// carries no file reference since the compiled representation is
// file-agnostic (Funcode.Source names the file separately).
type Pos struct {
	Line, Col int
}

// Defer describes a defer or catch block covering the instruction range
// [PC0, PC1) and starting its own execution at StartPC.
type Defer struct {
	PC0, PC1, StartPC uint32
}

// Covers reports whether pc falls within the defer/catch block's range.
func (d Defer) Covers(pc int64) bool {
	return pc >= int64(d.PC0) && pc < int64(d.PC1)
}

func (d Defer) String() string {
	return fmt.Sprintf("[%d,%d)->%d", d.PC0, d.PC1, d.StartPC)
}

// insn is a single not-yet-encoded instruction, used by the assembler while
// it resolves jump targets to addresses before emitting bytecode.
type insn struct {
	op  Opcode
	arg uint32
}
