// Command ferretbot is the FerretBot binary: a local-first agent runtime.
// All behavior lives in internal/cli; main only translates the command
// result into a process exit code.
package main

import (
	"os"

	"github.com/ferretbot/ferretbot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
