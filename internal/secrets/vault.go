package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VaultConfig configures the HashiCorp Vault KV v2 provider.
type VaultConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	// Path is the KV v2 mount, e.g. "secret".
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// VaultProvider reads secrets from a Vault KV v2 mount.
type VaultProvider struct {
	address    string
	token      string
	mount      string
	httpClient *http.Client
}

type vaultReadResponse struct {
	Data struct {
		Data map[string]any `json:"data"`
	} `json:"data"`
}

// NewVaultProvider creates a Vault provider. No request is made until the
// first lookup.
func NewVaultProvider(cfg VaultConfig) *VaultProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	mount := strings.Trim(cfg.Path, "/")
	if mount == "" {
		mount = "secret"
	}
	return &VaultProvider{
		address:    strings.TrimSuffix(cfg.Address, "/"),
		token:      cfg.Token,
		mount:      mount,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name returns "vault".
func (v *VaultProvider) Name() string { return "vault" }

// Get reads "path#field". The field defaults to "value".
func (v *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	path, field, ok := strings.Cut(key, "#")
	if !ok || field == "" {
		field = "value"
	}
	url := fmt.Sprintf("%s/v1/%s/data/%s", v.address, v.mount, strings.Trim(path, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrSecretNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("vault returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out vaultReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode vault response: %w", err)
	}

	value, ok := out.Data.Data[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q", ErrSecretNotFound, field)
	}
	return value, nil
}
