package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"
	"github.com/mna/nenuphar/lang/marshal"
)

// Marshal assembles and runs a textual bytecode fixture like Asm, then
// writes the binary-encoded result of the run to stdout.
func (c *Cmd) Marshal(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) == 0 {
		return printError(stdio, fmt.Errorf("marshal: a fixture file must be provided"))
	}
	v, err := runAsmFile(ctx, stdio, args[0])
	if err != nil {
		return printError(stdio, err)
	}
	data, err := marshal.Marshal(v, nil)
	if err != nil {
		return printError(stdio, err)
	}
	if _, err := stdio.Stdout.Write(data); err != nil {
		return printError(stdio, err)
	}
	return nil
}
