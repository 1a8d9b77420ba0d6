package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/netwatch/netwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr cmd.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
