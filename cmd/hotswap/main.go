package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/hotswap/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		msg, code := cmd.Diagnose(err)
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(code)
	}
}
