// Command recipectl runs RecipeBox maintenance tasks: database migrations,
// import job retention and one-off analysis sweeps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/recipebox/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := 0
	if err := cli.Execute(ctx); err != nil {
		code = 1
	}
	stop()
	os.Exit(code)
}
