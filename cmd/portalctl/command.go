package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/coffeestaff/portal/internal/config"
)

// command is one node of the portalctl command tree. Leaves set run;
// groups set sub.
type command struct {
	name    string
	summary string
	usage   string
	flags   func(fs *pflag.FlagSet)
	sub     []*command
	run     func(ctx context.Context, a *app, args []string) error

	parent *command
}

func (c *command) fullName() string {
	if c.parent == nil {
		return c.name
	}
	return c.parent.fullName() + " " + c.name
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}

// execute dispatches args down the tree and runs the matching leaf with
// its flags parsed. Every leaf also accepts the global configuration
// flags.
func (c *command) execute(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 && isHelpFlag(args[0]) {
		c.printHelp(os.Stdout)
		return nil
	}

	if len(c.sub) > 0 {
		if len(args) == 0 || strings.HasPrefix(args[0], "-") {
			c.printHelp(os.Stderr)
			return errors.New("subcommand required")
		}
		for _, sub := range c.sub {
			if sub.name == args[0] {
				sub.parent = c
				return sub.execute(ctx, a, args[1:])
			}
		}
		return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage.", args[0], c.fullName())
	}

	fs := pflag.NewFlagSet(c.fullName(), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	a.bindFlags(fs)
	if c.flags != nil {
		c.flags(fs)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.printHelp(os.Stdout)
			return nil
		}
		return fmt.Errorf("%s: %w\n\nRun '%s --help' for usage.", c.fullName(), err, c.fullName())
	}
	return c.run(ctx, a, fs.Args())
}

func (c *command) printHelp(w io.Writer) {
	usage := c.usage
	if usage == "" {
		usage = c.fullName()
		if len(c.sub) > 0 {
			usage += " <command>"
		}
	}
	fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n", c.summary, usage)

	if len(c.sub) > 0 {
		fmt.Fprintln(w, "\nCommands:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, sub := range c.sub {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.name, sub.summary)
		}
		tw.Flush()
		return
	}

	fs := pflag.NewFlagSet(c.fullName(), pflag.ContinueOnError)
	(&app{cfg: config.DefaultCLI()}).bindFlags(fs)
	if c.flags != nil {
		c.flags(fs)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", fs.FlagUsages())
}
