// Package secret provides pluggable storage for credential material keyed
// by service and account, mirroring the shape of an OS credential store.
package secret

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports that no secret exists for the service/account pair.
	// Callers treat it as "ask another source", unlike any other error.
	ErrNotFound = errors.New("secret not found")

	// ErrReadOnly reports that the store cannot persist secrets.
	ErrReadOnly = errors.New("secret store is read-only")
)

// Store is a pluggable secret backend. Get reports ErrNotFound when the
// service/account pair has no secret; Delete of an absent secret is not an
// error.
type Store interface {
	Get(ctx context.Context, service, account string) (string, error)
	Set(ctx context.Context, service, account, secret string) error
	Delete(ctx context.Context, service, account string) error
}

// Config describes the store selection parameters.
type Config struct {
	Driver string
	TTL    time.Duration
	Redis  *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
