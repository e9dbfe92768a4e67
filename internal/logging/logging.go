// Package logging builds the zap loggers used by the catalog pipeline.
package logging

import (
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for mode ("dev" or "prod") at the given level name.
// An empty level means info.
func New(mode, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production", "json":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	}
	lvl := zapcore.InfoLevel
	if s := strings.TrimSpace(level); s != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
			return nil, errors.Wrapf(err, "logging: level %q", level)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "logging: build")
	}
	return l, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// RedactDSN hides the password of a URL-style or key=value DSN so it can be
// logged. Anything it cannot recognize is returned unchanged.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
		return dsn
	}
	// go-sql-driver style: user:pass@tcp(host)/db
	if at := strings.Index(dsn, "@"); at > 0 && !strings.Contains(dsn[:at], "=") {
		if colon := strings.Index(dsn[:at], ":"); colon >= 0 {
			return dsn[:colon+1] + "xxxxx" + dsn[at:]
		}
		return dsn
	}
	// key=value style, separated by ';' (sqlserver ADO) or ' ' (libpq).
	sep := " "
	if strings.Contains(dsn, ";") {
		sep = ";"
	}
	parts := strings.Split(dsn, sep)
	changed := false
	for i, p := range parts {
		k, _, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "password", "pwd":
			parts[i] = k + "=xxxxx"
			changed = true
		}
	}
	if !changed {
		return dsn
	}
	return strings.Join(parts, sep)
}
