package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ericfisherdev/keyhub/internal/application"
	"github.com/ericfisherdev/keyhub/internal/config"
	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

func runKeys(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return usageError("keys: expected list, create, patch, delete or url")
	}

	var cmd func(context.Context, *app, []string, io.Writer) error
	switch args[0] {
	case "list":
		cmd = keysList
	case "create":
		cmd = keysCreate
	case "patch":
		cmd = keysPatch
	case "delete":
		cmd = keysDelete
	case "url":
		cmd = keysURL
	default:
		return usageError("keys: unknown command %q", args[0])
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return cmd(ctx, a, args[1:], stdout)
}

// filterFlags binds the flags that select keys for list, patch and delete.
type filterFlags struct {
	owner   string
	id      string
	expired bool
	all     bool
}

func (f *filterFlags) filter() application.KeyFilter {
	return application.KeyFilter{
		Owner:       model.ParseOwnerRef(f.owner),
		ID:          f.id,
		ExpiredOnly: f.expired,
	}
}

// requireScope refuses to act on every key unless --all was given.
func (f *filterFlags) requireScope(cmd string) error {
	if f.owner == "" && f.id == "" && !f.expired && !f.all {
		return usageError("%s: select keys with --owner, --id or --expired, or pass --all", cmd)
	}
	return nil
}

func keysList(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	var f filterFlags
	fs := newCommandFlags("keys list")
	fs.StringVar(&f.owner, "owner", "", "owner id or nickname")
	fs.StringVar(&f.id, "id", "", "key id")
	fs.BoolVar(&f.expired, "expired", false, "only keys past their expiry")
	fs.BoolVar(&f.all, "all", false, "include expired keys instead of deleting them")
	if ok, err := parseCommandFlags(fs, args, stdout); !ok {
		return err
	}

	keys, err := a.keys.GetAccessKeys(ctx, f.filter(), f.all || f.expired)
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	return printJSON(stdout, toKeyViews(keys))
}

func keysCreate(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	var owner, dataLimit, expiresIn string
	var nk application.NewKey
	fs := newCommandFlags("keys create")
	fs.StringVar(&owner, "owner", "", "owner id or nickname (default: system owner)")
	fs.StringVar(&nk.Name, "name", "", "key name")
	fs.StringVar(&nk.Password, "password", "", "shadowsocks password")
	fs.StringVar(&nk.Method, "method", "", "shadowsocks cipher")
	fs.IntVar(&nk.Port, "port", 0, "key port")
	fs.StringVar(&dataLimit, "data-limit", "", "data limit, e.g. 5GB")
	fs.StringVar(&expiresIn, "expires-in", "", "lifetime, e.g. 720h")
	if ok, err := parseCommandFlags(fs, args, stdout); !ok {
		return err
	}

	if dataLimit != "" {
		limit, err := parseDataLimit(dataLimit)
		if err != nil {
			return err
		}
		if limit >= 0 {
			nk.DataLimit = &limit
		}
	}
	if expiresIn != "" {
		expiresAt, err := parseExpiresIn(expiresIn, time.Now())
		if err != nil {
			return err
		}
		nk.ExpiresAt = &expiresAt
	}

	key, err := a.keys.CreateAccessKey(ctx, ownerFlag(owner), nk)
	if err != nil {
		return fmt.Errorf("creating key: %w", err)
	}
	return printJSON(stdout, toKeyView(*key))
}

func keysPatch(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	var f filterFlags
	var name, dataLimit, expiresIn string
	var noExpiry bool
	fs := newCommandFlags("keys patch")
	fs.StringVar(&f.owner, "owner", "", "owner id or nickname")
	fs.StringVar(&f.id, "id", "", "key id")
	fs.BoolVar(&f.expired, "expired", false, "only keys past their expiry")
	fs.BoolVar(&f.all, "all", false, "patch every key on the server")
	fs.StringVar(&name, "name", "", "new key name")
	fs.StringVar(&dataLimit, "data-limit", "", "new data limit, or none to remove it")
	fs.StringVar(&expiresIn, "expires-in", "", "new lifetime from now, e.g. 720h")
	fs.BoolVar(&noExpiry, "no-expiry", false, "remove the expiry")
	if ok, err := parseCommandFlags(fs, args, stdout); !ok {
		return err
	}
	if err := f.requireScope("keys patch"); err != nil {
		return err
	}
	if expiresIn != "" && noExpiry {
		return usageError("keys patch: --expires-in and --no-expiry are mutually exclusive")
	}

	var p application.KeyPatch
	if fs.Changed("name") {
		p.Name = &name
	}
	if dataLimit != "" {
		limit, err := parseDataLimit(dataLimit)
		if err != nil {
			return err
		}
		p.DataLimit = &limit
	}
	if expiresIn != "" {
		expiresAt, err := parseExpiresIn(expiresIn, time.Now())
		if err != nil {
			return err
		}
		p.SetExpiry = true
		p.ExpiresAt = &expiresAt
	}
	if noExpiry {
		p.SetExpiry = true
	}

	n, err := a.keys.PatchAccessKeys(ctx, f.filter(), p)
	if err != nil && n == 0 {
		return fmt.Errorf("patching keys: %w", err)
	}
	if err != nil {
		slog.Warn("some keys were not patched", "patched", n, "error", err)
	}
	return printJSON(stdout, map[string]int{"patched": n})
}

func keysDelete(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	var f filterFlags
	fs := newCommandFlags("keys delete")
	fs.StringVar(&f.owner, "owner", "", "owner id or nickname")
	fs.StringVar(&f.id, "id", "", "key id")
	fs.BoolVar(&f.expired, "expired", false, "only keys past their expiry")
	fs.BoolVar(&f.all, "all", false, "delete every key on the server")
	if ok, err := parseCommandFlags(fs, args, stdout); !ok {
		return err
	}
	if err := f.requireScope("keys delete"); err != nil {
		return err
	}

	deleted, err := a.keys.DeleteAccessKeys(ctx, f.filter())
	if err != nil {
		return fmt.Errorf("deleting keys (%d deleted before the failure): %w", len(deleted), err)
	}
	return printJSON(stdout, toKeyViews(deleted))
}

func keysURL(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	var owner, id string
	fs := newCommandFlags("keys url")
	fs.StringVar(&owner, "owner", "", "owner id or nickname (default: system owner)")
	fs.StringVar(&id, "id", "", "key id")
	if ok, err := parseCommandFlags(fs, args, stdout); !ok {
		return err
	}
	if id == "" {
		return usageError("keys url: --id is required")
	}

	raw, err := a.keys.GetRawAccessURL(ctx, ownerFlag(owner), id)
	if err != nil {
		return fmt.Errorf("resolving access url: %w", err)
	}
	if raw == "" {
		return fmt.Errorf("access key %q not found", id)
	}
	_, err = fmt.Fprintln(stdout, raw)
	return err
}
