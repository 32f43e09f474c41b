// Package config loads and persists the client configuration. Missing files
// are created with defaults so a fresh install connects with one command, and
// RCP_* environment variables override the file for scripted runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rcpkit/rcpkit/internal/core/auth"
	"github.com/rcpkit/rcpkit/internal/core/auth/secret"
	"github.com/rcpkit/rcpkit/internal/core/observability/log"
)

// Transport names accepted by ServerConfig.Transport.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
)

const (
	// DefaultServerAddress is the address dialed when none is configured.
	DefaultServerAddress = "127.0.0.1"
	// DefaultServerPort is the port dialed when none is configured.
	DefaultServerPort = 8717
	// DefaultAuthMethod is used when the auth section names no method.
	DefaultAuthMethod = "password"
)

// Config is the root client configuration.
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	Auth   AuthConfig   `json:"auth" yaml:"auth"`
	Log    LogConfig    `json:"log" yaml:"log"`
	Secret SecretConfig `json:"secret" yaml:"secret"`
}

// ServerConfig describes the server endpoint and how to reach it.
type ServerConfig struct {
	Address        string `json:"address" yaml:"address"`
	Port           uint16 `json:"port" yaml:"port"`
	Transport      string `json:"transport" yaml:"transport"`
	UseTLS         bool   `json:"use_tls" yaml:"use_tls"`
	ClientCertPath string `json:"client_cert_path,omitempty" yaml:"client_cert_path,omitempty"`
	ClientKeyPath  string `json:"client_key_path,omitempty" yaml:"client_key_path,omitempty"`
	VerifyServer   bool   `json:"verify_server" yaml:"verify_server"`
}

// AuthConfig describes how the client authenticates.
type AuthConfig struct {
	Method          string `json:"method" yaml:"method"`
	Username        string `json:"username,omitempty" yaml:"username,omitempty"`
	Psk             string `json:"psk,omitempty" yaml:"psk,omitempty"`
	SaveCredentials bool   `json:"save_credentials" yaml:"save_credentials"`
	UseNativeAuth   bool   `json:"use_native_auth" yaml:"use_native_auth"`
}

// LogConfig tunes client logging.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// SecretConfig selects and tunes the secret store backend.
type SecretConfig struct {
	Driver      string        `json:"driver" yaml:"driver"`
	TTL         time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	RedisAddr   string        `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisDB     int           `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisPrefix string        `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      DefaultServerAddress,
			Port:         DefaultServerPort,
			Transport:    TransportTCP,
			UseTLS:       false,
			VerifyServer: true,
		},
		Auth: AuthConfig{
			Method:          DefaultAuthMethod,
			SaveCredentials: false,
			UseNativeAuth:   false,
		},
		Log: LogConfig{
			Level: "info",
		},
		Secret: SecretConfig{
			Driver: secret.DriverMemory,
		},
	}
}

// Load reads the configuration at path. A missing file is created with
// defaults. Environment overrides are applied after parsing, so they win
// over the file but are never written back to it.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err = Save(path, cfg); err != nil {
			return nil, err
		}
		cfg.ApplyEnv()
		return cfg, cfg.Validate()
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", path)
	}

	cfg := Default()
	if err = yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file: %s", path)
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// Save writes the configuration to path, creating parent directories as
// needed. The file may hold a pre-shared key, so it is not group readable.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.Wrapf(err, "failed to create config directory: %s", dir)
		}
	}

	content, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to serialize config")
	}

	if err = os.WriteFile(path, content, 0o600); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}

// ApplyEnv overlays RCP_* environment variables onto the configuration.
func (c *Config) ApplyEnv() {
	envString(&c.Server.Address, "RCP_SERVER_ADDRESS")
	envPort(&c.Server.Port, "RCP_SERVER_PORT")
	envString(&c.Server.Transport, "RCP_SERVER_TRANSPORT")
	envBool(&c.Server.UseTLS, "RCP_SERVER_USE_TLS")
	envBool(&c.Server.VerifyServer, "RCP_SERVER_VERIFY_SERVER")

	envString(&c.Auth.Method, "RCP_AUTH_METHOD")
	envString(&c.Auth.Username, "RCP_AUTH_USERNAME")
	envString(&c.Auth.Psk, "RCP_AUTH_PSK")
	envBool(&c.Auth.SaveCredentials, "RCP_AUTH_SAVE_CREDENTIALS")
	envBool(&c.Auth.UseNativeAuth, "RCP_AUTH_USE_NATIVE")

	envString(&c.Log.Level, "RCP_LOG_LEVEL")

	envString(&c.Secret.Driver, "RCP_SECRET_DRIVER")
	envString(&c.Secret.RedisAddr, "RCP_SECRET_REDIS_ADDR")
	envInt(&c.Secret.RedisDB, "RCP_SECRET_REDIS_DB")
}

// Validate checks the configuration for values the client cannot act on.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// Validate checks the server section.
func (sc *ServerConfig) Validate() error {
	if sc.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if sc.Port == 0 {
		return fmt.Errorf("server port is required")
	}
	switch sc.Transport {
	case TransportTCP, TransportWebSocket, TransportQUIC:
		return nil
	default:
		return fmt.Errorf("unsupported transport: %s", sc.Transport)
	}
}

// Validate checks the auth section.
func (ac *AuthConfig) Validate() error {
	if _, err := auth.ParseMethod(ac.Method); err != nil {
		return err
	}
	return nil
}

// AuthMethod returns the parsed authentication method. Validate must have
// accepted the config first.
func (ac *AuthConfig) AuthMethod() auth.Method {
	m, err := auth.ParseMethod(ac.Method)
	if err != nil {
		return auth.MethodPassword
	}
	return m
}

// LogLevel returns the parsed logging level.
func (lc *LogConfig) LogLevel() log.Level {
	return log.ParseLevel(lc.Level)
}

// StoreConfig translates the secret section into the store factory config.
func (sc *SecretConfig) StoreConfig() secret.Config {
	cfg := secret.Config{
		Driver: sc.Driver,
		TTL:    sc.TTL,
	}
	if sc.Driver == secret.DriverRedis {
		cfg.Redis = &secret.RedisConfig{
			Addr:   sc.RedisAddr,
			DB:     sc.RedisDB,
			Prefix: sc.RedisPrefix,
		}
	}
	return cfg
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envPort(dst *uint16, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 16); err == nil {
			*dst = uint16(parsed)
		}
	}
}
