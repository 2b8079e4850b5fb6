package main

import (
	"context"
	"fmt"
	"os"

	"insulink/shutdown"
)

var version = "dev"

func main() {
	ctx, stop := shutdown.Context(context.Background())
	err := Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
