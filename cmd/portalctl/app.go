package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/companies"
	"github.com/coffeestaff/portal/internal/config"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/media"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/objects"
	"github.com/coffeestaff/portal/internal/session"
	"github.com/coffeestaff/portal/internal/store/sqlite"
	"github.com/coffeestaff/portal/internal/tui"
)

// errReported is returned after the failure was already shown to the
// user as a notification.
var errReported = errors.New("operation failed")

// app holds what one portalctl invocation needs. Everything past the
// configuration is opened lazily by the commands that use it.
type app struct {
	cfg     *config.CLI
	out     io.Writer
	in      *os.File
	reader  *bufio.Reader
	yes     bool
	company string

	st       *sqlite.Store
	manager  *session.Manager
	cache    *companies.Cache
	restored bool
	lib      *media.Library
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	a.cfg.BindFlags(fs)
	fs.BoolVarP(&a.yes, "yes", "y", false, "do not ask for confirmation")
	fs.StringVar(&a.company, "company", "", "company to operate on (super admins)")
}

// open connects the local state and the API client.
func (a *app) open(ctx context.Context) error {
	if a.manager != nil {
		return nil
	}
	if err := logging.Init(logging.Config{
		Level:      a.cfg.LogLevel,
		Format:     "console",
		OutputPath: "stderr",
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	st, err := sqlite.Open(a.cfg.StatePath)
	if err != nil {
		return err
	}
	a.st = st

	api := client.New(client.Config{
		BaseURL: a.cfg.BackendURL,
		Timeout: a.cfg.Timeout,
	})
	a.cache = companies.NewCache(api, st, 0)
	a.manager = session.NewManager(session.ManagerConfig{
		API:       api,
		Store:     st,
		Companies: a.cache,
		OnTeardown: func(string) {
			a.notice(notify.Notification{
				Level:   notify.LevelWarning,
				Op:      "session",
				Message: "Session expired, run 'portalctl login' again",
			})
		},
	})
	return nil
}

// session opens the app and resumes the persisted session.
func (a *app) session(ctx context.Context) error {
	if err := a.open(ctx); err != nil {
		return err
	}
	if a.restored {
		return nil
	}
	a.restored = true
	err := a.manager.Restore(ctx)
	switch {
	case err == nil, errors.Is(err, session.ErrNotLoggedIn):
		return nil
	case errors.Is(err, session.ErrSessionExpired):
		a.notice(notify.Notification{Level: notify.LevelWarning, Op: "session", Message: "Your session has expired"})
		return nil
	}
	return fmt.Errorf("resume session: %s", client.Message(err, "backend unavailable"))
}

func (a *app) loggedIn(ctx context.Context) error {
	if err := a.session(ctx); err != nil {
		return err
	}
	if !a.manager.LoggedIn() {
		return errors.New("not logged in, run 'portalctl login'")
	}
	return nil
}

// resolved requires a logged-in session with a resolved context.
func (a *app) resolved(ctx context.Context) error {
	if err := a.loggedIn(ctx); err != nil {
		return err
	}
	switch a.manager.Resolver().Guard(session.RouteResolved) {
	case "":
		return nil
	case session.PathSelector:
		return errors.New("no context selected, run 'portalctl select'")
	}
	return errors.New("not logged in, run 'portalctl login'")
}

// library loads the media library of the active company.
func (a *app) library(ctx context.Context) (*media.Library, error) {
	if a.lib != nil {
		return a.lib, nil
	}
	if err := a.resolved(ctx); err != nil {
		return nil, err
	}
	if a.manager.Resolver().Guard(session.RouteCompany) != "" {
		return nil, errors.New("the selected context has no company, pick a company role with 'portalctl switch'")
	}
	companyID, err := a.manager.Resolver().ActiveCompany(a.company)
	if err != nil {
		if errors.Is(err, session.ErrNoContext) {
			return nil, errors.New("name the company with --company")
		}
		return nil, err
	}

	cfg := media.Config{
		API:       a.manager.API(),
		CompanyID: companyID,
		Store:     a.st,
		Notifier:  notify.Func(a.notice),
	}
	if a.cfg.S3.Enabled() {
		lister, err := objects.NewS3Lister(ctx, a.cfg.S3)
		if err != nil {
			return nil, err
		}
		cfg.Lister = lister
	}
	lib := media.New(cfg)
	if err := lib.Load(ctx); err != nil {
		lib.Close()
		return nil, fmt.Errorf("load media library: %s", client.Message(err, "backend unavailable"))
	}
	a.lib = lib
	return lib, nil
}

// notice prints successes on stdout and problems on stderr.
func (a *app) notice(n notify.Notification) {
	if n.Level == notify.LevelSuccess || n.Level == notify.LevelInfo {
		fmt.Fprintln(a.out, tui.Notice(n))
		return
	}
	fmt.Fprintln(os.Stderr, tui.Notice(n))
}

func (a *app) interactive() bool {
	return a.in != nil && term.IsTerminal(int(a.in.Fd()))
}

func (a *app) readLine(prompt string) (string, error) {
	if a.reader == nil {
		a.reader = bufio.NewReader(a.in)
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := a.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// password reads a password without echo on a terminal, or one line of
// stdin otherwise.
func (a *app) password(prompt string) (string, error) {
	if !a.interactive() {
		return a.readLine("")
	}
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(a.in.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// confirm asks before a destructive operation. Without a terminal the
// operation needs --yes.
func (a *app) confirm(question string) error {
	if a.yes {
		return nil
	}
	if !a.interactive() {
		return errors.New("refusing to continue without --yes")
	}
	answer, err := a.readLine(question + " [y/N] ")
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return nil
	}
	return errors.New("aborted")
}

func (a *app) close() {
	if a.lib != nil {
		a.lib.Close()
	}
	if a.st != nil {
		a.st.Close()
	}
	if a.manager != nil {
		logging.Sync()
	}
}
