package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rcpkit/rcpkit/internal/core/auth/secret"
	"github.com/rcpkit/rcpkit/internal/core/observability/log"
	"github.com/rcpkit/rcpkit/internal/core/protocol"
)

// fakeSession records the messages a provider sends and returns a canned
// verdict.
type fakeSession struct {
	sent    []*protocol.Message
	sendErr error
	ok      bool
	err     error
}

func (s *fakeSession) Send(_ context.Context, msg *protocol.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSession) ConfirmAuth(_ context.Context, _ string) (bool, error) {
	return s.ok, s.err
}

// faultyStore fails every operation with a hard fault, never a miss.
type faultyStore struct{}

func (faultyStore) Get(context.Context, string, string) (string, error) {
	return "", errors.New("keyring daemon unreachable")
}

func (faultyStore) Set(context.Context, string, string, string) error {
	return errors.New("keyring daemon unreachable")
}

func (faultyStore) Delete(context.Context, string, string) error {
	return errors.New("keyring daemon unreachable")
}

func TestNewProvider(t *testing.T) {
	store := secret.NewMemory()
	logger := log.New(log.LevelDebug)

	provider, err := NewProvider(MethodPassword, "alice", store, logger)
	require.NoError(t, err)
	assert.Equal(t, MethodPassword, provider.Method())
	assert.IsType(t, &PasswordProvider{}, provider)

	provider, err = NewProvider(MethodPsk, "", store, logger)
	require.NoError(t, err)
	assert.Equal(t, MethodPsk, provider.Method())
	assert.IsType(t, &PskProvider{}, provider)

	provider, err = NewProvider(MethodNative, "alice", store, logger)
	require.NoError(t, err)
	assert.Equal(t, MethodNative, provider.Method())
	assert.IsType(t, &NativeProvider{}, provider)

	_, err = NewProvider(Method("kerberos"), "alice", store, logger)
	require.Error(t, err, "hand-built values outside the method set should be refused")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestNewProvider_PublicKeyFallsBackToPassword(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	logger := log.FromZap(zap.New(core))

	provider, err := NewProvider(MethodPublicKey, "alice", secret.NewMemory(), logger)
	require.NoError(t, err, "publickey should fall back, not fail")

	assert.IsType(t, &PasswordProvider{}, provider, "the fallback goes to the password provider")
	assert.Equal(t, MethodPassword, provider.Method())
	assert.Equal(t, 1, recorded.FilterMessage("Public key authentication not implemented yet, falling back to password").Len(),
		"the substitution must be visible in the log")
}

func TestStoreError(t *testing.T) {
	cause := errors.New("dbus timeout")
	err := &StoreError{Err: cause}

	assert.ErrorIs(t, err, ErrSecretStore)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "dbus timeout")
}
