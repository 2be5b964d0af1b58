package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/session"
	"github.com/coffeestaff/portal/internal/tui"
)

func loginCommand() *command {
	var username, provider, code string
	return &command{
		name:    "login",
		summary: "Log in and choose a working context",
		usage:   "portalctl login [--username name] [--provider id [--code code]]",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&username, "username", "u", "", "user name (prompted when empty)")
			fs.StringVar(&provider, "provider", "", "log in through yandex, google, apple or telegram")
			fs.StringVar(&code, "code", "", "authorization code returned to the provider callback")
		},
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.open(ctx); err != nil {
				return err
			}

			if provider != "" {
				if _, ok := client.LookupOAuthProvider(provider); !ok {
					return fmt.Errorf("unknown login provider %q", provider)
				}
				if code == "" {
					fmt.Fprintf(a.out, "Log in at the address below, then run this command again with --code:\n  %s\n",
						a.manager.API().OAuthURL(provider))
					return nil
				}
				if err := a.manager.LoginOAuth(ctx, provider, code); err != nil {
					return loginError(err)
				}
			} else {
				var err error
				if username == "" {
					if username, err = a.readLine("Username: "); err != nil {
						return err
					}
				}
				password, err := a.password("Password: ")
				if err != nil {
					return err
				}
				if err := a.manager.Login(ctx, username, password); err != nil {
					return loginError(err)
				}
			}
			a.restored = true

			a.notice(notify.Success("login", "Logged in as "+a.manager.UserID()))
			return resolveContext(ctx, a)
		},
	}
}

func loginError(err error) error {
	if client.IsUnauthorized(err) {
		return errors.New("incorrect username or password")
	}
	return errors.New(client.Message(err, "Login failed"))
}

// resolveContext finishes a login: the selector runs when the user must
// choose, otherwise the resolved context is shown.
func resolveContext(ctx context.Context, a *app) error {
	r := a.manager.Resolver()
	switch r.State() {
	case session.AwaitingChoice:
		if a.interactive() {
			return chooseContext(ctx, a)
		}
		printOptions(a, r.Options())
		fmt.Fprintln(a.out, "\nChoose one with 'portalctl select <id>'.")
		return nil
	case session.Resolving:
		msg := "Could not load your roles"
		if err := r.Err(); err != nil {
			msg = client.Message(err, msg)
		}
		return fmt.Errorf("%s, run 'portalctl select --retry'", msg)
	}
	printContext(a, r.Snapshot())
	return nil
}

func chooseContext(ctx context.Context, a *app) error {
	opts := a.manager.Resolver().Options()
	if len(opts) == 0 {
		return errors.New("you hold no role that can be selected")
	}
	o, err := tui.RunSelector(opts)
	if err != nil {
		return err
	}
	return selectOption(ctx, a, o.ID)
}

func selectOption(ctx context.Context, a *app, id string) error {
	role, err := a.manager.Select(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrUnknownOption) {
			return fmt.Errorf("%q is not one of your contexts, see 'portalctl select'", id)
		}
		return err
	}
	a.notice(notify.Success("select", "Now working as "+role.String()))
	return nil
}

func printOptions(a *app, opts []session.Option) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tROLE")
	for _, o := range opts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.ID, o.CompanyName, o.RoleKind.DisplayName())
	}
	tw.Flush()
}

func printContext(a *app, s session.Snapshot) {
	if s.Selected == nil {
		fmt.Fprintf(a.out, "Context: none (%s)\n", s.State)
		return
	}
	fmt.Fprintf(a.out, "Context: %s\n", tui.OptionLabel(*s.Selected))
}

func logoutCommand() *command {
	return &command{
		name:    "logout",
		summary: "Log out and forget the local session",
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.open(ctx); err != nil {
				return err
			}
			if err := a.manager.Logout(ctx); err != nil {
				return err
			}
			a.notice(notify.Success("logout", "Logged out"))
			return nil
		},
	}
}

func statusCommand() *command {
	return &command{
		name:    "status",
		summary: "Show the login state and working context",
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.session(ctx); err != nil {
				return err
			}
			if !a.manager.LoggedIn() {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			s := a.manager.Resolver().Snapshot()
			fmt.Fprintf(a.out, "User:    %s\nBackend: %s\n", a.manager.UserID(), a.cfg.BackendURL)
			printContext(a, s)
			if s.Error != "" {
				fmt.Fprintf(a.out, "Roles:   %s\n", s.Error)
			}
			return nil
		},
	}
}

func selectCommand() *command {
	var retry bool
	return &command{
		name:    "select",
		summary: "Choose the company and role to work as",
		usage:   "portalctl select [option-id] [--retry]",
		flags: func(fs *pflag.FlagSet) {
			fs.BoolVar(&retry, "retry", false, "fetch the role list again first")
		},
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.loggedIn(ctx); err != nil {
				return err
			}
			if retry {
				if err := a.manager.RetryRoles(ctx); err != nil {
					return errors.New(client.Message(err, "Could not load your roles"))
				}
			}
			return pickContext(ctx, a, args)
		},
	}
}

func switchCommand() *command {
	return &command{
		name:    "switch",
		summary: "Switch to another of your contexts",
		usage:   "portalctl switch [option-id]",
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.resolved(ctx); err != nil {
				return err
			}
			return pickContext(ctx, a, args)
		},
	}
}

func pickContext(ctx context.Context, a *app, args []string) error {
	switch {
	case len(args) > 1:
		return errors.New("expected one option id")
	case len(args) == 1:
		return selectOption(ctx, a, args[0])
	case a.interactive():
		return chooseContext(ctx, a)
	}
	printOptions(a, a.manager.Resolver().Options())
	return nil
}

func profileCommand() *command {
	return &command{
		name:    "profile",
		summary: "Show your profile and roles",
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.resolved(ctx); err != nil {
				return err
			}
			info, err := a.manager.Profile(ctx)
			if err != nil {
				return errors.New(client.Message(err, "Could not load your profile"))
			}
			fmt.Fprintf(a.out, "%s %s\n", info.Name, info.Surname)
			fmt.Fprintf(a.out, "ID:    %s\nEmail: %s\nPhone: %s\n", info.UserID, info.Email, info.Phone)
			printContext(a, a.manager.Resolver().Snapshot())

			fmt.Fprintln(a.out)
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "COMPANY\tROLE")
			for _, rec := range a.manager.Roles() {
				fmt.Fprintf(tw, "%s\t%s\n", companyLabel(a, rec), rec.Role.DisplayName())
			}
			return tw.Flush()
		},
	}
}

func companyLabel(a *app, rec models.RoleRecord) string {
	id := rec.Company()
	if id == "" {
		return "-"
	}
	if name, ok := a.cache.Name(id); ok {
		return name
	}
	if rec.CompanyName != "" {
		return rec.CompanyName
	}
	return id
}
