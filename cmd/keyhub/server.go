package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ericfisherdev/keyhub/internal/config"
	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

func runServer(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return usageError("server: expected show or patch")
	}

	var patch *model.ServerPatch
	switch sub, rest := args[0], args[1:]; sub {
	case "show":
	case "patch":
		p, ok, err := parseServerPatch(rest, stdout)
		if !ok {
			return err
		}
		patch = &p
	default:
		return usageError("server: unknown command %q", sub)
	}

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if patch != nil {
		if err := a.keys.PatchServerInfo(ctx, *patch); err != nil {
			return fmt.Errorf("patching server: %w", err)
		}
	}

	info, err := a.keys.GetServerInfo(ctx)
	if err != nil {
		return fmt.Errorf("reading server info: %w", err)
	}
	return printJSON(stdout, toServerView(*info))
}

// parseServerPatch builds a patch from the flags present on the command line.
func parseServerPatch(args []string, stdout io.Writer) (model.ServerPatch, bool, error) {
	var name, hostname, dataLimit string
	var port int
	var metrics bool
	fs := newCommandFlags("server patch")
	fs.StringVar(&name, "name", "", "server name")
	fs.StringVar(&hostname, "hostname", "", "hostname used in new access URLs")
	fs.IntVar(&port, "port", 0, "port for new access keys")
	fs.BoolVar(&metrics, "metrics", false, "share anonymous metrics")
	fs.StringVar(&dataLimit, "data-limit", "", "per-key data limit, or none to remove it")
	if ok, err := parseCommandFlags(fs, args, stdout); !ok {
		return model.ServerPatch{}, false, err
	}

	var p model.ServerPatch
	if fs.Changed("name") {
		p.Name = &name
	}
	if fs.Changed("hostname") {
		p.Hostname = &hostname
	}
	if fs.Changed("port") {
		if port < 1 || port > 65535 {
			return model.ServerPatch{}, false, usageError("server patch: invalid port %d", port)
		}
		p.Port = &port
	}
	if fs.Changed("metrics") {
		p.MetricsEnabled = &metrics
	}
	if fs.Changed("data-limit") {
		limit, err := parseDataLimit(dataLimit)
		if err != nil {
			return model.ServerPatch{}, false, err
		}
		p.DataLimit = &limit
	}
	return p, true, nil
}
