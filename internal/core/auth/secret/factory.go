package secret

import (
	"github.com/pkg/errors"
)

// Driver identifiers supported by the secret package.
const (
	DriverMemory = "memory"
	DriverEnv    = "env"
	DriverRedis  = "redis"
)

// New creates a secret store based on the provided configuration. An empty
// driver selects the in-memory store.
func New(cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverEnv:
		return NewEnv(), nil
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, errors.Errorf("unsupported secret store driver: %s", driver)
	}
}
