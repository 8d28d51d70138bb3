// Package main is the entry point for the Louyass API server and its admin CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"louyass/bootstrap"
	"louyass/cmd"
	_ "louyass/docs"
)

// run initializes and starts the API server.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		// the admin command already knows its own name
		os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

		if err := cmd.NewAdminCmd().Execute(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
