package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	root := newRootCommand()
	err := root.Execute()
	if err == nil {
		return
	}
	// An interrupted command already stopped cleanly; nothing to report.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "remedy: %v\n", err)
	}
	os.Exit(1)
}
