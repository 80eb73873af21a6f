package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/nenuphar/lang/compiler"
	"github.com/mna/nenuphar/lang/machine"
)

// Asm reads a textual bytecode fixture (see compiler.Asm), runs its
// top-level function on a fresh Thread, and prints the result.
func (c *Cmd) Asm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) == 0 {
		return printError(stdio, fmt.Errorf("asm: a fixture file must be provided"))
	}
	v, err := runAsmFile(ctx, stdio, args[0])
	if err != nil {
		return printError(stdio, err)
	}
	fmt.Fprintln(stdio.Stdout, v.String())
	return nil
}

// runAsmFile compiles the .asm fixture at path via compiler.Asm and runs its
// top-level function on a fresh Thread, sharing stdio with the caller. It is
// the common entry point the marshal and unmarshal commands use to produce a
// value to round-trip.
func runAsmFile(ctx context.Context, stdio mainer.Stdio, path string) (machine.Value, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := compiler.Asm(b)
	if err != nil {
		return nil, err
	}
	th := &machine.Thread{Stdout: stdio.Stdout, Stderr: stdio.Stderr, Stdin: stdio.Stdin}
	return th.RunProgram(ctx, prog)
}
