package app

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{Storage: TokenStorageTypeFile, File: "/tmp/session.json"}}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}

	if cfg.API.BaseURL != DefaultConfigAPIBaseURL {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Auth.RefreshTimeout != 10*time.Second {
		t.Errorf("Auth.RefreshTimeout = %s", cfg.Auth.RefreshTimeout)
	}
	if got := cfg.Auth.Endpoints(); got.Login != "/auth/login" || got.Refresh != "/auth/refresh" || got.Logout != "/auth/logout" {
		t.Errorf("Auth.Endpoints() = %+v", got)
	}
	if cfg.Auth.File != "/tmp/session.json" {
		t.Errorf("explicit file overwritten: %q", cfg.Auth.File)
	}
	if cfg.Gateway.Port != DefaultConfigGatewayPort || cfg.Gateway.RateBurst != 0 {
		t.Errorf("Gateway = %+v", cfg.Gateway)
	}
}

func TestApplyDefaults_StorageSpecific(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "file path derived from config dir",
			cfg:  Config{},
			check: func(t *testing.T, cfg *Config) {
				if filepath.Base(cfg.Auth.File) != "session.json" || !strings.Contains(cfg.Auth.File, "deskclient") {
					t.Errorf("Auth.File = %q", cfg.Auth.File)
				}
			},
		},
		{
			name: "env keys",
			cfg:  Config{Auth: AuthConfig{Storage: TokenStorageTypeEnv}},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Auth.AccessEnvKey != DefaultConfigAuthAccessEnvKey || cfg.Auth.RefreshEnvKey != DefaultConfigAuthRefreshEnvKey {
					t.Errorf("env keys = %q, %q", cfg.Auth.AccessEnvKey, cfg.Auth.RefreshEnvKey)
				}
			},
		},
		{
			name: "redis",
			cfg:  Config{Auth: AuthConfig{Storage: TokenStorageTypeRedis}},
			check: func(t *testing.T, cfg *Config) {
				r := cfg.Auth.Redis
				if r.Addr != DefaultConfigRedisAddr || r.Key != DefaultConfigRedisKey || r.LockTTL != DefaultConfigRedisLockTTL {
					t.Errorf("Redis = %+v", r)
				}
			},
		},
		{
			name: "rate burst follows rate limit",
			cfg:  Config{Auth: AuthConfig{Storage: TokenStorageTypeMemory}, Gateway: GatewayConfig{RateLimit: 5}},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Gateway.RateBurst != DefaultConfigGatewayRateBurst {
					t.Errorf("RateBurst = %d", cfg.Gateway.RateBurst)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())
			cfg := tt.cfg
			if err := cfg.ApplyDefaults(); err != nil {
				t.Fatalf("ApplyDefaults: %v", err)
			}
			tt.check(t, &cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Auth: AuthConfig{Storage: TokenStorageTypeMemory}}
		if err := cfg.ApplyDefaults(); err != nil {
			t.Fatalf("ApplyDefaults: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad storage", mutate: func(c *Config) { c.Auth.Storage = "cookie" }, wantErr: "Storage"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "LogFormat"},
		{name: "bad exporter", mutate: func(c *Config) { c.LogExporter = "kafka" }, wantErr: "LogExporter"},
		{name: "otlp exporter", mutate: func(c *Config) { c.LogExporter = "otlp_http" }},
		{name: "bad base url", mutate: func(c *Config) { c.API.BaseURL = "not a url" }, wantErr: "BaseURL"},
		{name: "negative rate", mutate: func(c *Config) { c.Gateway.RateLimit = -1 }, wantErr: "RateLimit"},
		{
			name: "redis lock shorter than refresh",
			mutate: func(c *Config) {
				c.Auth.Storage = TokenStorageTypeRedis
				c.Auth.Redis = RedisConfig{Addr: "localhost:6379", Key: "k", Lock: true, LockTTL: 5 * time.Second}
			},
			wantErr: "lock_ttl",
		},
		{
			name: "redis without lock",
			mutate: func(c *Config) {
				c.Auth.Storage = TokenStorageTypeRedis
				c.Auth.Redis = RedisConfig{Addr: "localhost:6379", Key: "k"}
			},
		},
		{
			name:    "env without key",
			mutate:  func(c *Config) { c.Auth.Storage = TokenStorageTypeEnv },
			wantErr: "access_env_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
