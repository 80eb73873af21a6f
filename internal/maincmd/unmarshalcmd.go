package maincmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mna/mainer"
	"github.com/mna/nenuphar/lang/marshal"
)

// Unmarshal reads binary-encoded data from a file, or from stdin if no file
// is given, decodes a single value from it and prints its representation.
func (c *Cmd) Unmarshal(ctx context.Context, stdio mainer.Stdio, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(stdio.Stdin)
	}
	if err != nil {
		return printError(stdio, err)
	}

	v, _, err := marshal.Unmarshal(data, nil)
	if err != nil {
		return printError(stdio, err)
	}
	fmt.Fprintln(stdio.Stdout, v.String())
	return nil
}
