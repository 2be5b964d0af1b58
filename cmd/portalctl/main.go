// portalctl is the terminal client of the coffee staff portal: login and
// context selection, company administration, and the media library of
// the selected company.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/coffeestaff/portal/internal/config"
	"github.com/coffeestaff/portal/internal/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		switch {
		case errors.Is(err, tui.ErrCancelled):
			os.Exit(130)
		case errors.Is(err, errReported):
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadCLI(os.Getenv("PORTAL_CONFIG"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{cfg: cfg, out: os.Stdout, in: os.Stdin}
	defer a.close()
	return rootCommand().execute(ctx, a, args)
}

func rootCommand() *command {
	return &command{
		name:    "portalctl",
		summary: "Coffee staff portal from the terminal",
		sub: []*command{
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			selectCommand(),
			switchCommand(),
			profileCommand(),
			companiesCommand(),
			rightsCommand(),
			foldersCommand(),
			imagesCommand(),
			configCommand(),
		},
	}
}
