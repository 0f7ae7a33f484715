package main

import (
	"errors"
	"fmt"
	"os"

	"go-liveness-verifier/cmd/liveness/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		if !errors.Is(err, commands.ErrVerificationFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
