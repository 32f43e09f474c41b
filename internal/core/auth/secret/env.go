package secret

import (
	"context"
	"os"
	"strings"
)

type envStore struct{}

// NewEnv creates a read-only store backed by environment variables. The
// secret for service "rcp-client" and account "psk" is looked up under
// RCP_CLIENT_PSK (uppercased, non-alphanumerics folded to underscores).
func NewEnv() Store {
	return &envStore{}
}

func (s *envStore) key(service, account string) string {
	mangle := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}
	return strings.Map(mangle, service) + "_" + strings.Map(mangle, account)
}

func (s *envStore) Get(_ context.Context, service, account string) (string, error) {
	secret, ok := os.LookupEnv(s.key(service, account))
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *envStore) Set(_ context.Context, _, _, _ string) error {
	return ErrReadOnly
}

func (s *envStore) Delete(_ context.Context, _, _ string) error {
	return ErrReadOnly
}
