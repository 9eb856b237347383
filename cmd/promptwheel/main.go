package main

import (
	"errors"
	"fmt"
	"os"

	logginginfra "github.com/codewheel-dev/promptwheel/internal/infrastructure/logging"
)

func buildLogger(level string) (*logginginfra.Logger, error) {
	return logginginfra.New(logginginfra.Options{
		Level:     level,
		Component: "cli",
		Layer:     "infrastructure",
	})
}

func main() {
	appLogger, err := buildLogger("info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create application logger: %v\n", err)
		os.Exit(1)
	}

	app := &AppContext{Logger: appLogger}

	rootCmd := newRootCmd(app)

	if err := rootCmd.Execute(); err != nil {
		var ece *exitCodeError
		if errors.As(err, &ece) {
			fmt.Fprintln(os.Stderr, ece.err)
			os.Exit(ece.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
