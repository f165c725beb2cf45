package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/keyhub/internal/adapter/driven/outline"
	sqliteadapter "github.com/ericfisherdev/keyhub/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/keyhub/internal/adapter/driven/webhook"
	"github.com/ericfisherdev/keyhub/internal/application"
	"github.com/ericfisherdev/keyhub/internal/config"
)

// app holds the adapters and services shared by the commands. Commands that
// only touch owners leave the Outline side unset.
type app struct {
	cfg      *config.Config
	db       *sqliteadapter.DB
	owners   *sqliteadapter.OwnerRepo
	ledger   *sqliteadapter.KeyRepo
	outline  *outline.Client
	keys     *application.KeyService
	notifier *application.Notifier
}

// openStore opens the ledger database and brings its schema up to date.
func openStore(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "path", db.Path())

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("migrations complete", "version", version)

	return &app{
		cfg:    cfg,
		db:     db,
		owners: sqliteadapter.NewOwnerRepo(db),
		ledger: sqliteadapter.NewKeyRepo(db),
	}, nil
}

// openApp opens the ledger, connects to the Outline server and builds the
// KeyService. Key events go to the configured webhook, if any.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.outline, err = dialOutline(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []application.KeyServiceOption{
		application.WithAccessURLResolver(application.RelayURLResolver(cfg.PublicURL)),
	}
	if cfg.NotifyURL != "" {
		hook := webhook.NewClient(cfg.NotifyURL, application.DefaultHookTimeout)
		a.notifier = application.NewNotifier(
			cfg.NotifyQueueSize,
			application.OnlyOwnedKeys(hook.KeyCreated),
			application.OnlyOwnedKeys(hook.KeyDeleted),
		)
		opts = append(opts, application.WithKeyEvents(a.notifier))
	}

	a.keys = application.NewKeyService(a.owners, a.ledger, a.outline, opts...)
	return a, nil
}

// close flushes pending key events and closes the database.
func (a *app) close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// dialOutline connects to the configured Outline server. The API URL and
// fingerprint come from the config, falling back to the installer's
// access.txt for whichever is missing.
func dialOutline(ctx context.Context, cfg *config.Config) (*outline.Client, error) {
	if !cfg.HasOutline() {
		return nil, errors.New("no outline server configured: set --outline-api-url or --outline-access-config")
	}

	apiURL := cfg.Outline.APIURL
	certSHA256 := cfg.Outline.CertSHA256
	if cfg.Outline.AccessConfig != "" && (apiURL == "" || certSHA256 == "") {
		ac, err := outline.ParseAccessConfig(cfg.Outline.AccessConfig)
		if err != nil {
			return nil, fmt.Errorf("loading outline access config: %w", err)
		}
		if apiURL == "" {
			apiURL = ac.APIURL
		}
		if certSHA256 == "" {
			certSHA256 = ac.CertSHA256
		}
	}

	return outline.Dial(ctx, outline.Options{
		APIURL:          apiURL,
		CertSHA256:      certSHA256,
		Timeout:         cfg.Outline.Timeout,
		PreferLocalhost: cfg.Outline.PreferLocalhost,
	})
}
