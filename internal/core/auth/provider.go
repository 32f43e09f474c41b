package auth

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rcpkit/rcpkit/internal/core/auth/secret"
	"github.com/rcpkit/rcpkit/internal/core/observability/log"
	"github.com/rcpkit/rcpkit/internal/core/protocol"
)

// KeyringService is the service name under which client credentials are
// stored in the secret store.
const KeyringService = "rcp-client"

// PskAccount is the account name used for the pre-shared key, which is not
// tied to a username.
const PskAccount = "psk"

// PromptFunc asks the user for a secret. Providers call it only after the
// injected override and the secret store both come up empty.
type PromptFunc func(ctx context.Context) (string, error)

// Provider produces credentials for one method and drives the exchange.
// Method is pure; GetCredentials may hit the secret store or a prompt;
// Authenticate sends the auth message and reports the verdict through the
// session.
type Provider interface {
	Method() Method
	Authenticate(ctx context.Context, session protocol.Session) (bool, error)
	GetCredentials(ctx context.Context) (Credentials, error)
}

// NewProvider maps a method to its provider. Selecting MethodPublicKey
// yields a password provider with a warning, never a silent substitution.
func NewProvider(method Method, username string, store secret.Store, logger log.Log) (Provider, error) {
	if logger == nil {
		logger = log.Provide()
	}

	switch method {
	case MethodPassword:
		return NewPasswordProvider(username, store, logger), nil
	case MethodPsk:
		return NewPskProvider(store, logger), nil
	case MethodNative:
		return NewNativeProvider(logger).WithUsername(username), nil
	case MethodPublicKey:
		// Not implemented yet, fall back to password auth
		logger.Warn("Public key authentication not implemented yet, falling back to password")
		return NewPasswordProvider(username, store, logger), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedMethod, "%q", method)
	}
}

// lookupSecret runs one step of the credential cascade against the store.
// found=false means the caller should try the next source; any hard store
// fault stops the cascade.
func lookupSecret(ctx context.Context, store secret.Store, account string) (value string, found bool, err error) {
	if store == nil {
		return "", false, nil
	}

	value, err = store.Get(ctx, KeyringService, account)
	if err != nil {
		if errors.Is(err, secret.ErrNotFound) {
			return "", false, nil
		}
		return "", false, &StoreError{Err: err}
	}
	return value, true, nil
}

// saveSecret best-effort persists a freshly prompted secret. Auth proceeds
// even when saving fails.
func saveSecret(ctx context.Context, store secret.Store, account, value string, logger log.Log) {
	if store == nil {
		return
	}
	if err := store.Set(ctx, KeyringService, account, value); err != nil {
		logger.Warn("Failed to save credentials", log.Error(err))
	}
}

func rawJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
