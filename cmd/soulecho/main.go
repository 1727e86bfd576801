// Command soulecho is a terminal relaxation game: breathe to gather clarity,
// reflect to collect AI-generated Soul Echoes, and talk with a voice guide.
//
// Usage:
//
//	soulecho play                  # interactive session
//	soulecho reflect               # discover one echo
//	soulecho converse --input in.wav --output out.pcm
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/soulecho/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "soulecho: %v\n", err)
		return 1
	}
	return 0
}
