// Command recsync copies record fields between projects on save events.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/recsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
