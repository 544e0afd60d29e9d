// cmd/cli/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"server-warden/internal/app"
)

func main() {
	root, closeApp := newRootCmd(func(ctx context.Context) (*app.App, error) {
		cfg, log, err := app.Setup()
		if err != nil {
			return nil, err
		}
		return app.Open(ctx, cfg, log)
	})
	err := root.Execute()
	if cerr := closeApp(); cerr != nil {
		fmt.Fprintln(os.Stderr, cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
