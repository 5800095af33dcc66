// Command importctl runs the bulk import pipeline from the command line:
// download templates, inspect and validate files, and commit them to Postgres.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/a7mdelbanna/classboom/internal/core/schemas" // Register entity schemas
)

func main() {
	// A missing .env is fine; flags and the environment still apply
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(newApp(os.Stdout, os.Getenv))
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
