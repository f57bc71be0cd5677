package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvPrefix is tried before the bare variable name.
const EnvPrefix = "IAMD_"

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment variable provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// Name returns "env".
func (e *EnvProvider) Name() string { return "env" }

// Get looks up IAMD_<KEY> and then <KEY>. Keys are upper-cased with dots
// and dashes turned into underscores.
func (e *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	name := normalizeEnvKey(key)
	for _, candidate := range []string{EnvPrefix + strings.TrimPrefix(name, EnvPrefix), name} {
		if v, ok := e.lookup(candidate); ok && v != "" {
			return v, nil
		}
	}
	return "", ErrSecretNotFound
}

// normalizeEnvKey converts "kafka.sasl-password" to "KAFKA_SASL_PASSWORD".
func normalizeEnvKey(key string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(key))
}

// FileProvider reads secrets from files, as mounted by Docker or Kubernetes.
type FileProvider struct {
	baseDir string
}

// NewFileProvider creates a file provider. Relative keys are resolved
// against baseDir.
func NewFileProvider(baseDir string) *FileProvider {
	return &FileProvider{baseDir: baseDir}
}

// Name returns "file".
func (f *FileProvider) Name() string { return "file" }

// Get returns the file content with trailing newlines trimmed.
func (f *FileProvider) Get(ctx context.Context, key string) (string, error) {
	path := f.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func (f *FileProvider) path(key string) string {
	if filepath.IsAbs(key) || f.baseDir == "" {
		return filepath.Clean(key)
	}
	return filepath.Join(f.baseDir, filepath.Clean("/"+key))
}
