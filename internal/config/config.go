// Package config loads keyhub configuration from defaults, an optional YAML
// file, KEYHUB_* environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrHelp is returned by Load when -h or --help was requested.
var ErrHelp = pflag.ErrHelp

// OutlineConfig describes how to reach the Outline management API.
type OutlineConfig struct {
	APIURL          string        `yaml:"api_url"`
	CertSHA256      string        `yaml:"cert_sha256"`
	AccessConfig    string        `yaml:"access_config"` // Path to the installer's access.txt.
	PreferLocalhost bool          `yaml:"prefer_localhost"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Config holds the keyhub configuration.
type Config struct {
	DBPath          string        `yaml:"db_path"`
	ListenAddr      string        `yaml:"listen_addr"`
	PublicURL       string        `yaml:"public_url"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	NotifyQueueSize int           `yaml:"notify_queue_size"`
	NotifyURL       string        `yaml:"notify_url"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	Outline         OutlineConfig `yaml:"outline"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		DBPath:          "keyhub.db",
		ListenAddr:      "127.0.0.1:8080",
		SweepInterval:   time.Hour,
		NotifyQueueSize: 64,
		LogLevel:        "info",
		LogFormat:       "text",
		Outline: OutlineConfig{
			PreferLocalhost: true,
			Timeout:         30 * time.Second,
		},
	}
}

// HasOutline reports whether an Outline server is configured.
func (c *Config) HasOutline() bool {
	return c.Outline.APIURL != "" || c.Outline.AccessConfig != ""
}

// Load builds the configuration for the global flags at the start of args
// and returns it with the remaining arguments (the command and its own
// flags). The YAML file is taken from --config or KEYHUB_CONFIG.
func Load(args []string) (*Config, []string, error) {
	// First pass: syntax, --help and the config file location.
	var configPath string
	probe := newFlagSet(Default(), &configPath)
	if err := probe.Parse(args); err != nil {
		return nil, nil, err
	}
	if configPath == "" {
		configPath = os.Getenv("KEYHUB_CONFIG")
	}

	cfg := Default()
	if configPath != "" {
		if err := loadFile(cfg, configPath); err != nil {
			return nil, nil, err
		}
	}
	if err := loadEnv(cfg); err != nil {
		return nil, nil, err
	}

	// Second pass: flags the user set override file and environment.
	fs := newFlagSet(cfg, &configPath)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// Usage returns the help text for the global flags.
func Usage() string {
	var configPath string
	return newFlagSet(Default(), &configPath).FlagUsages()
}

func newFlagSet(cfg *Config, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("keyhub", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)

	fs.StringVar(configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite ledger")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "status endpoint listen address")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "public base URL of the status endpoint, enables ssconf:// links")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "interval between expired key sweeps")
	fs.IntVar(&cfg.NotifyQueueSize, "notify-queue-size", cfg.NotifyQueueSize, "pending key events kept for delivery")
	fs.StringVar(&cfg.NotifyURL, "notify-url", cfg.NotifyURL, "webhook receiving key created and deleted events")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	fs.StringVar(&cfg.Outline.APIURL, "outline-api-url", cfg.Outline.APIURL, "Outline management API URL")
	fs.StringVar(&cfg.Outline.CertSHA256, "outline-cert-sha256", cfg.Outline.CertSHA256, "pinned SHA-256 fingerprint of the Outline certificate")
	fs.StringVar(&cfg.Outline.AccessConfig, "outline-access-config", cfg.Outline.AccessConfig, "path to the Outline access.txt")
	fs.BoolVar(&cfg.Outline.PreferLocalhost, "outline-prefer-localhost", cfg.Outline.PreferLocalhost, "try the management API on localhost first")
	fs.DurationVar(&cfg.Outline.Timeout, "outline-timeout", cfg.Outline.Timeout, "timeout for Outline API requests")

	return fs
}

func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) error {
	strs := map[string]*string{
		"KEYHUB_DB_PATH":               &cfg.DBPath,
		"KEYHUB_LISTEN_ADDR":           &cfg.ListenAddr,
		"KEYHUB_PUBLIC_URL":            &cfg.PublicURL,
		"KEYHUB_NOTIFY_URL":            &cfg.NotifyURL,
		"KEYHUB_LOG_LEVEL":             &cfg.LogLevel,
		"KEYHUB_LOG_FORMAT":            &cfg.LogFormat,
		"KEYHUB_OUTLINE_API_URL":       &cfg.Outline.APIURL,
		"KEYHUB_OUTLINE_CERT_SHA256":   &cfg.Outline.CertSHA256,
		"KEYHUB_OUTLINE_ACCESS_CONFIG": &cfg.Outline.AccessConfig,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"KEYHUB_SWEEP_INTERVAL":  &cfg.SweepInterval,
		"KEYHUB_OUTLINE_TIMEOUT": &cfg.Outline.Timeout,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(key); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
			}
			*dst = parsed
		}
	}

	if v, ok := os.LookupEnv("KEYHUB_NOTIFY_QUEUE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KEYHUB_NOTIFY_QUEUE_SIZE has invalid integer %q: %w", v, err)
		}
		cfg.NotifyQueueSize = n
	}

	if v, ok := os.LookupEnv("KEYHUB_OUTLINE_PREFER_LOCALHOST"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KEYHUB_OUTLINE_PREFER_LOCALHOST has invalid boolean %q: %w", v, err)
		}
		cfg.Outline.PreferLocalhost = b
	}

	return nil
}

// Validate checks the configuration for values keyhub cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.DBPath == "" {
		errs = append(errs, errors.New("db path must not be empty"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval))
	}
	if c.NotifyQueueSize < 0 {
		errs = append(errs, fmt.Errorf("notify queue size must not be negative, got %d", c.NotifyQueueSize))
	}
	if c.Outline.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("outline timeout must be positive, got %s", c.Outline.Timeout))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	if fp := c.Outline.CertSHA256; fp != "" {
		if b, err := hex.DecodeString(strings.ReplaceAll(fp, ":", "")); err != nil || len(b) != 32 {
			errs = append(errs, fmt.Errorf("outline cert fingerprint must be 64 hex characters, got %q", fp))
		}
	}
	if c.NotifyURL != "" {
		if u, err := url.Parse(c.NotifyURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("notify url must be an http or https URL, got %q", c.NotifyURL))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// NewLogger returns a logger writing to w in the configured format and level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
