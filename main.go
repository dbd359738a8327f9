// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/rover-cli/cmd"
)

// main is the entry point for the rover CLI. A signal-aware context flows
// into every command so Ctrl-C winds a run down cleanly.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.ExecuteContext(ctx)
}
