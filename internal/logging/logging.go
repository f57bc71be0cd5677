// Package logging configures slog for the detector and keeps secrets out of
// log output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// sensitiveKeys are substrings of attribute keys whose values are masked.
var sensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"access_key",
	"accesskey",
	"private_key",
	"credentials",
	"authorization",
	"cookie",
	"sasl",
}

// IsSensitiveKey reports whether values logged under key must be masked.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// sensitivePatterns match secrets embedded in free text.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|passwd)\s*[=:]\s*['"]?[^\s'",;]+['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]+`),
	// AWS access key ids
	regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
}

// MaskSensitivePatterns masks secrets found in a raw string.
func MaskSensitivePatterns(s string) string {
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, MaskedValue)
	}
	return s
}

// MaskURL hides the password and query string of a URL. Unparseable input
// is masked entirely.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MaskedValue
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

// ReplaceAttr masks sensitive attributes. Use it as
// slog.HandlerOptions.ReplaceAttr.
func ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskedValue)
	}
	if a.Key == "url" || strings.HasSuffix(a.Key, "_url") {
		return slog.String(a.Key, MaskURL(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, MaskSensitivePatterns(a.Value.String()))
	}
	return a
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// New builds a logger writing to w in "json" or "text" format with
// sensitive attributes masked.
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: ReplaceAttr,
	}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
