package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rl1809/prepfire/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
