package storage

import (
	"testing"
	"time"
)

func TestOptions(t *testing.T) {
	cfg := DefaultClickHouseConfig()
	cfg.Password = "pw"

	opts := options(cfg, "default")
	if opts.Auth.Database != "default" || opts.Auth.Username != "default" || opts.Auth.Password != "pw" {
		t.Errorf("unexpected auth %+v", opts.Auth)
	}
	if opts.TLS != nil {
		t.Error("expected no TLS by default")
	}
	if opts.DialTimeout != 10*time.Second || opts.MaxOpenConns != 5 {
		t.Errorf("pool settings not copied: dial=%v open=%d", opts.DialTimeout, opts.MaxOpenConns)
	}

	cfg.TLSEnabled = true
	if opts := options(cfg, cfg.Database); opts.TLS == nil || opts.Auth.Database != "iam" {
		t.Errorf("expected TLS and database iam, got tls=%v db=%q", opts.TLS, opts.Auth.Database)
	}
}

func TestCreateDatabaseQuery(t *testing.T) {
	tests := map[string]string{
		"iam":       "CREATE DATABASE IF NOT EXISTS `iam`",
		"a`b; DROP": "CREATE DATABASE IF NOT EXISTS `ab; DROP`",
	}
	for in, want := range tests {
		if got := createDatabaseQuery(in); got != want {
			t.Errorf("createDatabaseQuery(%q) = %q, want %q", in, got, want)
		}
	}
}
