package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// errUsage marks command line mistakes.
var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func newCommandFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseCommandFlags parses args and maps --help to a printed flag summary.
func parseCommandFlags(fs *pflag.FlagSet, args []string, stdout io.Writer) (bool, error) {
	err := fs.Parse(args)
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(stdout, "Usage of %s:\n%s", fs.Name(), fs.FlagUsages())
		return false, nil
	}
	if err != nil {
		return false, usageError("%s: %v", fs.Name(), err)
	}
	return true, nil
}

// noLimit are the --data-limit values that remove a limit.
var noLimit = map[string]bool{"none": true, "unlimited": true, "off": true}

// parseDataLimit parses a human readable byte size such as "5GB" or "512 MiB".
// The values in noLimit yield -1.
func parseDataLimit(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if noLimit[strings.ToLower(s)] {
		return -1, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, usageError("invalid data limit %q: %v", s, err)
	}
	if n > 1<<62 {
		return 0, usageError("data limit %q is too large", s)
	}
	return int64(n), nil
}

// parseExpiresIn turns a duration from now into an absolute expiry.
func parseExpiresIn(s string, now time.Time) (time.Time, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, usageError("invalid --expires-in %q: %v", s, err)
	}
	if d <= 0 {
		return time.Time{}, usageError("--expires-in must be positive, got %s", s)
	}
	return now.Add(d).UTC(), nil
}

// ownerFlag parses an --owner value, defaulting to the system identity.
func ownerFlag(s string) model.OwnerRef {
	if ref := model.ParseOwnerRef(s); !ref.IsZero() {
		return ref
	}
	return model.OwnerByID(model.SystemOwnerID)
}
