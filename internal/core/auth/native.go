package auth

import (
	"context"
	"crypto/rand"
	"os"
	"os/user"
	"runtime"

	"github.com/pkg/errors"

	"github.com/rcpkit/rcpkit/internal/core/observability/log"
	"github.com/rcpkit/rcpkit/internal/core/protocol"
)

var _ Provider = (*NativeProvider)(nil)

// NativeProvider authenticates as the operating system user running the
// client. Each attempt carries a fresh random token; the server decides
// whether the named OS identity is acceptable.
type NativeProvider struct {
	username string
	logger   log.Log
}

// NewNativeProvider creates a native OS auth provider.
func NewNativeProvider(logger log.Log) *NativeProvider {
	if logger == nil {
		logger = log.Provide()
	}
	return &NativeProvider{logger: logger}
}

// WithUsername overrides the username detected from the environment.
func (p *NativeProvider) WithUsername(username string) *NativeProvider {
	p.username = username
	return p
}

// Method returns MethodNative.
func (p *NativeProvider) Method() Method {
	return MethodNative
}

// Authenticate sends the native auth message and reports the verdict.
func (p *NativeProvider) Authenticate(ctx context.Context, session protocol.Session) (bool, error) {
	credentials, err := p.GetCredentials(ctx)
	if err != nil {
		return false, err
	}

	nc, ok := credentials.(NativeCredentials)
	if !ok {
		return false, ErrInvalidCredentials
	}

	p.logger.Debug("Sending native auth request",
		log.String("username", nc.Username),
		log.String("os", runtime.GOOS))

	payload := rawJSON(protocol.AuthPayload{
		Username:    nc.Username,
		Credentials: rawJSON(protocol.ByteArray(nc.Token)),
		Method:      MethodNative.String(),
		OS:          runtime.GOOS,
	})
	msg := protocol.NewMessage(protocol.MessageTypeAuth, payload)

	if err = session.Send(ctx, msg); err != nil {
		return false, err
	}

	return session.ConfirmAuth(ctx, msg.ID)
}

// GetCredentials resolves the OS username and mints a one-time token.
func (p *NativeProvider) GetCredentials(_ context.Context) (Credentials, error) {
	username, err := p.osUsername()
	if err != nil {
		return nil, err
	}
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	return NativeCredentials{Username: username, Token: token}, nil
}

// osUsername reports the current OS user, preferring the conventional
// environment variables over a passwd lookup.
func (p *NativeProvider) osUsername() (string, error) {
	if p.username != "" {
		return p.username, nil
	}
	if name := os.Getenv("USER"); name != "" {
		return name, nil
	}
	if name := os.Getenv("USERNAME"); name != "" {
		return name, nil
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	return "", errors.Wrap(ErrOsAuthFailure, "could not determine OS username")
}

func generateToken() ([]byte, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return nil, errors.Wrap(ErrOsAuthFailure, "failed to generate auth token")
	}
	return token, nil
}
