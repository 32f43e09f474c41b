//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/rcpkit/rcpkit/internal/config"
	"github.com/rcpkit/rcpkit/internal/core/auth"
	"github.com/rcpkit/rcpkit/internal/core/auth/secret"
	"github.com/rcpkit/rcpkit/internal/core/observability/log"
)

func provideLogLevel(cfg *config.Config) log.Level {
	return cfg.Log.LogLevel()
}

func provideStoreConfig(cfg *config.Config) secret.Config {
	return cfg.Secret.StoreConfig()
}

func provideAuthMethod(cfg *config.Config) auth.Method {
	return cfg.Auth.AuthMethod()
}

func provideUsername(cfg *config.Config) string {
	return cfg.Auth.Username
}

// ProvideLogger yields a logger at the configured level.
func ProvideLogger(cfg *config.Config) *log.Logger {
	wire.Build(provideLogLevel, log.New)
	return nil
}

// ProvideSecretStore yields the secret store backend named by the config.
func ProvideSecretStore(cfg *config.Config) (secret.Store, error) {
	wire.Build(provideStoreConfig, secret.New)
	return nil, nil
}

// ProvideAuthProvider yields the credential provider named by the config.
func ProvideAuthProvider(cfg *config.Config) (auth.Provider, error) {
	wire.Build(
		provideAuthMethod,
		provideUsername,
		provideStoreConfig,
		provideLogLevel,
		log.New,
		wire.Bind(new(log.Log), new(*log.Logger)),
		secret.New,
		auth.NewProvider,
	)
	return nil, nil
}
