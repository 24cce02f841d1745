package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/florianilch/deskclient/internal/authclient"
	"github.com/florianilch/deskclient/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for the session.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeRedis   TokenStorageType = "redis"
	TokenStorageTypeMemory  TokenStorageType = "memory"
)

// keyringService is the keyring service name the session is stored under.
const keyringService = "deskclient"

// Default configuration values
const (
	DefaultConfigLogFormat          = LogFormatText
	DefaultConfigAPIBaseURL         = "http://localhost:8000/api/v1"
	DefaultConfigAPITimeout         = authclient.DefaultTimeout
	DefaultConfigAuthStorage        = TokenStorageTypeFile
	DefaultConfigAuthRefreshTimeout = authclient.DefaultRefreshTimeout
	DefaultConfigAuthAccessEnvKey   = "DESK_ACCESS_TOKEN"
	DefaultConfigAuthRefreshEnvKey  = "DESK_REFRESH_TOKEN"
	DefaultConfigRedisAddr          = "localhost:6379"
	DefaultConfigRedisKey           = "deskclient:session"
	DefaultConfigRedisLockTTL       = 15 * time.Second
	DefaultConfigGatewayHost        = "127.0.0.1"
	DefaultConfigGatewayPort        = 4000
	DefaultConfigGatewayRateBurst   = 20
	DefaultConfigShutdownTimeout    = 5 * time.Second
)

// APIConfig holds the service desk API settings.
type APIConfig struct {
	BaseURL string        `json:"base_url" validate:"required,url"`
	Timeout time.Duration `json:"timeout"`
}

// RedisConfig configures the shared Redis session store.
type RedisConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password,omitempty"`
	DB       int           `json:"db" validate:"gte=0"`
	Key      string        `json:"key"`
	TTL      time.Duration `json:"ttl"` // zero keeps the session until logout
	// Lock serializes refreshes across processes sharing the session.
	Lock    bool          `json:"lock"`
	LockTTL time.Duration `json:"lock_ttl"`
}

// AuthConfig describes where the session lives and how it is refreshed.
type AuthConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring redis memory"`

	// Storage-specific settings (used based on Storage type)
	File          string      `json:"file,omitempty"`
	AccessEnvKey  string      `json:"access_env_key,omitempty"`
	RefreshEnvKey string      `json:"refresh_env_key,omitempty"`
	KeyringUser   string      `json:"keyring_user,omitempty"`
	Redis         RedisConfig `json:"redis"`

	RefreshTimeout time.Duration `json:"refresh_timeout"`

	// Endpoint paths relative to the API base URL
	LoginPath   string `json:"login_path"`
	RefreshPath string `json:"refresh_path"`
	LogoutPath  string `json:"logout_path"`
}

// Endpoints returns the configured auth endpoint paths.
func (a *AuthConfig) Endpoints() authclient.Endpoints {
	return authclient.Endpoints{
		Login:   a.LoginPath,
		Refresh: a.RefreshPath,
		Logout:  a.LogoutPath,
	}
}

// storage bundles a token store with the optional cross-process lock and the
// resources to release on close. close may be called more than once.
type storage struct {
	store  tokenstore.TokenStore
	locker tokenstore.Locker
	close  func() error
}

// newStorage creates the token store described by the configuration.
func (a *AuthConfig) newStorage() (*storage, error) {
	noop := func() error { return nil }

	switch a.Storage {
	case TokenStorageTypeFile:
		store, err := tokenstore.NewFileStore(a.File)
		if err != nil {
			return nil, err
		}
		return &storage{store: store, close: noop}, nil
	case TokenStorageTypeEnv:
		store, err := tokenstore.NewEnvStore(a.AccessEnvKey, a.RefreshEnvKey)
		if err != nil {
			return nil, err
		}
		return &storage{store: store, close: noop}, nil
	case TokenStorageTypeKeyring:
		store, err := tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
		if err != nil {
			return nil, err
		}
		return &storage{store: store, close: noop}, nil
	case TokenStorageTypeMemory:
		return &storage{store: tokenstore.NewMemoryStore(tokenstore.Tokens{}), close: noop}, nil
	case TokenStorageTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.Redis.Addr,
			Password: a.Redis.Password,
			DB:       a.Redis.DB,
		})
		store, err := tokenstore.NewRedisStore(client, a.Redis.Key, a.Redis.TTL)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		s := &storage{store: store, close: sync.OnceValue(client.Close)}
		if a.Redis.Lock {
			locker, err := tokenstore.NewRedisLocker(client, a.Redis.Key+":lock", a.Redis.LockTTL)
			if err != nil {
				_ = client.Close()
				return nil, err
			}
			s.locker = locker
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// GatewayConfig holds the local gateway settings.
type GatewayConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
	// RateLimit is the allowed requests per second; zero disables limiting.
	RateLimit float64 `json:"rate_limit" validate:"gte=0"`
	RateBurst int     `json:"rate_burst" validate:"gte=0"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level     `json:"log_level"`
	LogFormat   LogFormat      `json:"log_format" validate:"oneof=text json"`
	LogExporter string         `json:"log_exporter" validate:"omitempty,oneof=stdout otlp_grpc otlp_http"`
	API         APIConfig      `json:"api"`
	Auth        AuthConfig     `json:"auth"`
	Gateway     GatewayConfig  `json:"gateway"`
	Shutdown    ShutdownConfig `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.RefreshTimeout == 0 {
		c.Auth.RefreshTimeout = DefaultConfigAuthRefreshTimeout
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = authclient.DefaultEndpoints.Login
	}
	if c.Auth.RefreshPath == "" {
		c.Auth.RefreshPath = authclient.DefaultEndpoints.Refresh
	}
	if c.Auth.LogoutPath == "" {
		c.Auth.LogoutPath = authclient.DefaultEndpoints.Logout
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultConfigGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultConfigGatewayPort
	}
	if c.Gateway.RateLimit > 0 && c.Gateway.RateBurst == 0 {
		c.Gateway.RateBurst = DefaultConfigGatewayRateBurst
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "deskclient", "session.json")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		if c.Auth.AccessEnvKey == "" {
			c.Auth.AccessEnvKey = DefaultConfigAuthAccessEnvKey
		}
		if c.Auth.RefreshEnvKey == "" {
			c.Auth.RefreshEnvKey = DefaultConfigAuthRefreshEnvKey
		}
	case TokenStorageTypeRedis:
		if c.Auth.Redis.Addr == "" {
			c.Auth.Redis.Addr = DefaultConfigRedisAddr
		}
		if c.Auth.Redis.Key == "" {
			c.Auth.Redis.Key = DefaultConfigRedisKey
		}
		if c.Auth.Redis.LockTTL == 0 {
			c.Auth.Redis.LockTTL = DefaultConfigRedisLockTTL
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.AccessEnvKey == "" {
			return errors.New("access_env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case TokenStorageTypeRedis:
		if c.Auth.Redis.Addr == "" || c.Auth.Redis.Key == "" {
			return errors.New("redis addr and key required for redis storage")
		}
		// The lock must outlive a refresh, or a second process may refresh concurrently
		if c.Auth.Redis.Lock && c.Auth.Redis.LockTTL <= c.Auth.RefreshTimeout {
			return fmt.Errorf("auth.redis.lock_ttl (%s) must exceed auth.refresh_timeout (%s)", c.Auth.Redis.LockTTL, c.Auth.RefreshTimeout)
		}
	}

	return nil
}
