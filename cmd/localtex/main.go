package main

import (
	"errors"
	"os"

	"github.com/localtex/cli/internal/cli"
	clierrors "github.com/localtex/cli/internal/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		// Extract error code from CLIError if present
		var cliErr *clierrors.CLIError
		if errors.As(err, &cliErr) {
			os.Exit(int(cliErr.Code))
		}
		os.Exit(1)
	}
}
