// Package middleware provides HTTP middleware for the upload server.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// SecurityHeadersConfig holds security headers configuration.
type SecurityHeadersConfig struct {
	Enabled bool

	HSTSMaxAge            int // seconds, 0 disables HSTS
	HSTSIncludeSubdomains bool

	// CSP directives, keyed by directive name.
	CSP map[string][]string

	FrameOptions      string // DENY or SAMEORIGIN
	ReferrerPolicy    string
	PermissionsPolicy string

	CustomHeaders map[string]string
}

// DefaultSecurityHeadersConfig returns headers suited to the report pages.
// Styles are inlined in the page layout, so style-src allows inline.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		Enabled:               true,
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,
		CSP: map[string][]string{
			"default-src":     {"'self'"},
			"style-src":       {"'self'", "'unsafe-inline'"},
			"img-src":         {"'self'", "data:"},
			"form-action":     {"'self'"},
			"frame-ancestors": {"'none'"},
		},
		FrameOptions:      "DENY",
		ReferrerPolicy:    "strict-origin-when-cross-origin",
		PermissionsPolicy: "geolocation=(), microphone=(), camera=()",
	}
}

// SecurityHeaders returns a middleware that sets security headers.
func SecurityHeaders(cfg SecurityHeadersConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Enabled {
		logger.Info("security headers middleware disabled")
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	// Precomputed header set.
	headers := make(map[string]string)
	if cfg.HSTSMaxAge > 0 {
		hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		headers["Strict-Transport-Security"] = hsts
	}
	if csp := BuildCSP(cfg.CSP); csp != "" {
		headers["Content-Security-Policy"] = csp
	}
	if cfg.FrameOptions != "" {
		headers["X-Frame-Options"] = cfg.FrameOptions
	}
	headers["X-Content-Type-Options"] = "nosniff"
	if cfg.ReferrerPolicy != "" {
		headers["Referrer-Policy"] = cfg.ReferrerPolicy
	}
	if cfg.PermissionsPolicy != "" {
		headers["Permissions-Policy"] = cfg.PermissionsPolicy
	}
	for k, v := range cfg.CustomHeaders {
		headers[k] = v
	}

	logger.Info("security headers middleware initialized", "headers", len(headers))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cspOrder fixes the directive order so the header is stable.
var cspOrder = []string{
	"default-src", "script-src", "style-src", "img-src",
	"font-src", "connect-src", "form-action", "frame-ancestors",
}

// BuildCSP builds the Content-Security-Policy header value. Directives not in
// the known order are dropped.
func BuildCSP(directives map[string][]string) string {
	var parts []string
	for _, name := range cspOrder {
		if sources := directives[name]; len(sources) > 0 {
			parts = append(parts, name+" "+strings.Join(sources, " "))
		}
	}
	return strings.Join(parts, "; ")
}
