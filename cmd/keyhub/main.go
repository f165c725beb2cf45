package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/keyhub/internal/config"
)

const usageHeader = `Usage: keyhub [global flags] <command> [flags]

Commands:
  serve           run the expiry sweeper and the status endpoint (default)
  sweep           delete expired access keys once
  owners          add, list or remove key owners
  keys            list, create, patch or delete access keys
  server          show or patch the Outline server

Global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, rest, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		fmt.Fprint(stdout, usageHeader, config.Usage())
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "serve":
		return runServe(ctx, cfg)
	case "sweep":
		return runSweep(ctx, cfg, stdout)
	case "owners":
		return runOwners(ctx, cfg, rest, stdout)
	case "keys":
		return runKeys(ctx, cfg, rest, stdout)
	case "server":
		return runServer(ctx, cfg, rest, stdout)
	case "help":
		fmt.Fprint(stdout, usageHeader, config.Usage())
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
