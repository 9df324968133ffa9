// Package logging builds the process logger and sanitizes values before
// they are attached to log events.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-syncback/internal/model"
)

// New returns a zerolog.Logger writing to w at the configured level.
// An unknown level falls back to info.
func New(cfg model.LoggingConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ForAccount returns a child logger tagged with the account's ID and
// masked address.
func ForAccount(log zerolog.Logger, acct *model.Account) zerolog.Logger {
	if acct == nil {
		return log
	}
	return log.With().
		Str("account_id", acct.ID).
		Str("account", MaskEmail(acct.Email)).
		Str("provider", string(acct.Provider)).
		Logger()
}

// MaskEmail keeps the first and last character of each address part,
// e.g. "john@example.com" becomes "j**n@e*****e.c*m".
func MaskEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}
	mask := func(part string) string {
		if len(part) <= 1 {
			return "*"
		}
		return part[:1] + strings.Repeat("*", max(0, len(part)-2)) + part[len(part)-1:]
	}

	domain := strings.Split(s[at+1:], ".")
	for i, p := range domain {
		domain[i] = mask(p)
	}
	return mask(s[:at]) + "@" + strings.Join(domain, ".")
}
