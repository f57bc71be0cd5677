// Package secrets resolves credential references in the sink configuration.
// A value such as "env:CLICKHOUSE_PASSWORD", "file:/run/secrets/redis" or
// "vault:iamd/kafka#password" is looked up in the matching provider; any
// other value is used literally.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

var (
	// ErrSecretNotFound is returned when a provider has no value for a key.
	ErrSecretNotFound = errors.New("secrets: secret not found")

	// ErrNoProvider is returned for a reference whose provider is not configured.
	ErrNoProvider = errors.New("secrets: provider not configured")
)

// Provider looks up secret values by key.
type Provider interface {
	Name() string
	Get(ctx context.Context, key string) (string, error)
}

// Config configures the resolver.
type Config struct {
	// FileDir is the base directory for relative file: references.
	FileDir  string        `yaml:"file_dir"`
	Vault    VaultConfig   `yaml:"vault"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		FileDir:  "/run/secrets",
		CacheTTL: 5 * time.Minute,
		Vault: VaultConfig{
			Path:    "secret",
			Timeout: 10 * time.Second,
		},
	}
}

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// Resolver resolves references against its providers and caches the results.
type Resolver struct {
	providers map[string]Provider
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSecret
}

// NewResolver creates a resolver with the env and file providers, plus the
// vault provider when an address is configured.
func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		providers: make(map[string]Provider),
		ttl:       cfg.CacheTTL,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]cachedSecret),
	}
	r.Register(NewEnvProvider())
	r.Register(NewFileProvider(cfg.FileDir))
	if cfg.Vault.Address != "" {
		r.Register(NewVaultProvider(cfg.Vault))
	}
	return r
}

// Register adds or replaces a provider under its name.
func (r *Resolver) Register(p Provider) {
	r.providers[p.Name()] = p
}

// ParseRef splits a reference into provider name and key. Values without a
// known provider prefix are literals and return an empty provider.
func ParseRef(ref string) (provider, key string) {
	name, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return "", ref
	}
	switch name {
	case "env", "file", "vault":
		return name, rest
	}
	return "", ref
}

// Resolve returns the value a reference points to.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	provider, key := ParseRef(ref)
	if provider == "" {
		return ref, nil
	}

	if v, ok := r.cached(ref); ok {
		return v, nil
	}

	p, ok := r.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoProvider, provider)
	}

	value, err := p.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s secret %q: %w", provider, key, err)
	}

	r.store(ref, value)
	r.logger.Debug("secret resolved", "provider", provider, "key", key)
	return value, nil
}

// ResolveInPlace replaces each referenced value with its resolution.
// Every reference is attempted; failures are joined.
func (r *Resolver) ResolveInPlace(ctx context.Context, values ...*string) error {
	var errs []error
	for _, v := range values {
		if v == nil || *v == "" {
			continue
		}
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*v = resolved
	}
	return errors.Join(errs...)
}

// ClearCache drops every cached value.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cachedSecret)
}

func (r *Resolver) cached(ref string) (string, bool) {
	if r.ttl <= 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cache[ref]
	if !ok || r.now().Sub(c.fetchedAt) > r.ttl {
		return "", false
	}
	return c.value, true
}

func (r *Resolver) store(ref, value string) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[ref] = cachedSecret{value: value, fetchedAt: r.now()}
}
