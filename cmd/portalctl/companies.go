package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/companies"
	"github.com/coffeestaff/portal/internal/config"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/protocol"
)

func companiesCommand() *command {
	return &command{
		name:    "companies",
		summary: "List and edit companies",
		sub: []*command{
			companiesListCommand(),
			companiesShowCommand(),
			companiesUpdateCommand(),
			companiesCreateCommand(),
		},
	}
}

func companiesListCommand() *command {
	return &command{
		name:    "list",
		summary: "List the companies you can see",
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.resolved(ctx); err != nil {
				return err
			}
			list, err := a.cache.List(ctx)
			if err != nil {
				return errors.New(client.Message(err, "Could not load companies"))
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPHONE\tEMAIL\tACTIVE")
			for _, co := range companies.Sorted(list) {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", co.CompanyID, co.CompanyName, co.Phone, co.Email, yesNo(co.IsActive))
			}
			return tw.Flush()
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func companiesShowCommand() *command {
	return &command{
		name:    "show",
		summary: "Show one company",
		usage:   "portalctl companies show [company-id]",
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.resolved(ctx); err != nil {
				return err
			}
			id, err := companyArg(a, args)
			if err != nil {
				return err
			}
			co, err := a.cache.Get(ctx, id)
			if err != nil {
				return errors.New(client.Message(err, "Could not load the company"))
			}
			printCompany(a, co)
			return nil
		},
	}
}

// companyArg picks the company named on the command line, falling back to
// the company of the selected context.
func companyArg(a *app, args []string) (string, error) {
	explicit := a.company
	if len(args) > 0 {
		explicit = args[0]
	}
	id, err := a.manager.Resolver().ActiveCompany(explicit)
	if err != nil {
		if explicit == "" {
			return "", errors.New("name the company")
		}
		return "", err
	}
	return id, nil
}

func printCompany(a *app, co *models.Company) {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", co.CompanyID)
	fmt.Fprintf(tw, "Name\t%s\n", co.CompanyName)
	fmt.Fprintf(tw, "Address\t%s\n", co.Address)
	fmt.Fprintf(tw, "Phone\t%s\n", co.Phone)
	fmt.Fprintf(tw, "Email\t%s\n", co.Email)
	fmt.Fprintf(tw, "Active\t%s\n", yesNo(co.IsActive))
	fmt.Fprintf(tw, "Age limit\t%s\n", yesNo(co.AgeLimit))
	tw.Flush()
}

func companiesUpdateCommand() *command {
	var name, address, phone string
	return &command{
		name:    "update",
		summary: "Edit the name, address or phone of a company",
		usage:   "portalctl companies update [company-id] [--name n] [--address a] [--phone p]",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&name, "name", "", "new company name")
			fs.StringVar(&address, "address", "", "new address")
			fs.StringVar(&phone, "phone", "", "new phone (+7XXXXXXXXXX or 8XXXXXXXXXX)")
		},
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.resolved(ctx); err != nil {
				return err
			}
			id, err := companyArg(a, args)
			if err != nil {
				return err
			}
			current, err := a.cache.Get(ctx, id)
			if err != nil {
				return errors.New(client.Message(err, "Could not load the company"))
			}

			p := companies.Patch{CompanyName: current.CompanyName, Address: current.Address, Phone: current.Phone}
			if name != "" {
				p.CompanyName = name
			}
			if address != "" {
				p.Address = address
			}
			if phone != "" {
				p.Phone = phone
			}
			co, err := a.cache.Update(ctx, id, p)
			if err != nil {
				return companyError(err, "Could not save the company")
			}
			a.notice(notify.Success("update_company", "Company saved"))
			printCompany(a, co)
			return nil
		},
	}
}

func companyError(err error, fallback string) error {
	var validation *companies.ValidationError
	if errors.As(err, &validation) {
		return validation
	}
	return errors.New(client.Message(err, fallback))
}

func companiesCreateCommand() *command {
	var req protocol.CompanyCreateRequest
	return &command{
		name:    "create",
		summary: "Register a new company (super admins)",
		usage:   "portalctl companies create --name n [--address a] [--phone p] [--email e]",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&req.CompanyName, "name", "", "company name")
			fs.StringVar(&req.Address, "address", "", "address")
			fs.StringVar(&req.Phone, "phone", "", "phone (+7XXXXXXXXXX or 8XXXXXXXXXX)")
			fs.StringVar(&req.Email, "email", "", "contact email")
			fs.BoolVar(&req.IsActive, "active", true, "open the company right away")
			fs.BoolVar(&req.AgeLimit, "age-limit", false, "the company sells age-restricted goods")
		},
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.resolved(ctx); err != nil {
				return err
			}
			if !a.manager.Resolver().Holds(models.RoleSuperAdmin) {
				return errors.New("only super admins can create companies")
			}
			co, err := a.cache.Create(ctx, req)
			if err != nil {
				return companyError(err, "Could not create the company")
			}
			a.notice(notify.Success("create_company", "Company "+co.CompanyName+" created"))
			printCompany(a, co)
			return nil
		},
	}
}

func rightsCommand() *command {
	return &command{
		name:    "rights",
		summary: "Grant or revoke roles",
		sub: []*command{
			delegateCommand(companies.Grant),
			delegateCommand(companies.Revoke),
		},
	}
}

func delegateCommand(action companies.Action) *command {
	var role, userID string
	return &command{
		name:    string(action),
		summary: strings.ToUpper(string(action[:1])) + string(action[1:]) + " a role",
		usage:   fmt.Sprintf("portalctl rights %s --role admin|moderator|user|superadmin --user id [--company id]", action),
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&role, "role", "", "role to "+string(action))
			fs.StringVar(&userID, "user", "", "user id")
		},
		run: func(ctx context.Context, a *app, args []string) error {
			if err := a.resolved(ctx); err != nil {
				return err
			}
			kind, err := parseRole(role)
			if err != nil {
				return err
			}
			d := companies.Delegation{Action: action, Role: kind, UserID: userID}
			if kind.CompanyScoped() {
				if d.CompanyID, err = companyArg(a, nil); err != nil {
					return err
				}
			}
			if err := d.Validate(); err != nil {
				return err
			}
			if err := companies.NewRights(a.manager.API()).Delegate(ctx, d); err != nil {
				return errors.New(client.Message(err, "Could not change rights"))
			}
			a.notice(notify.Success("rights", "Rights updated"))
			return nil
		},
	}
}

func parseRole(s string) (models.RoleKind, error) {
	switch strings.ToLower(s) {
	case "admin":
		return models.RoleAdmin, nil
	case "moderator":
		return models.RoleModerator, nil
	case "user":
		return models.RoleUser, nil
	case "superadmin", "super_admin":
		return models.RoleSuperAdmin, nil
	}
	if k := models.RoleKind(s); k.Valid() {
		return k, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func configCommand() *command {
	return &command{
		name:    "config",
		summary: "Show or save the client configuration",
		sub: []*command{
			{
				name:    "show",
				summary: "Print the effective configuration",
				run: func(ctx context.Context, a *app, args []string) error {
					fmt.Fprintf(a.out, "backend_url: %s\ntimeout: %s\nstate_path: %s\nlog_level: %s\n",
						a.cfg.BackendURL, a.cfg.Timeout, a.cfg.StatePath, a.cfg.LogLevel)
					if a.cfg.S3.Enabled() {
						fmt.Fprintf(a.out, "s3: %s/%s\n", a.cfg.S3.Endpoint, a.cfg.S3.Bucket)
					}
					return nil
				},
			},
			{
				name:    "save",
				summary: "Write the effective configuration to the config file",
				run: func(ctx context.Context, a *app, args []string) error {
					path := filepath.Join(config.Dir(), "config.yaml")
					if err := a.cfg.Save(path); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Saved %s\n", path)
					return nil
				},
			},
		},
	}
}
