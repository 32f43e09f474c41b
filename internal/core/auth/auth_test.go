package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	for token, want := range map[string]Method{
		"password":   MethodPassword,
		"psk":        MethodPsk,
		"native":     MethodNative,
		"publickey":  MethodPublicKey,
		" Password ": MethodPassword,
		"PSK":        MethodPsk,
	} {
		parsed, err := ParseMethod(token)
		require.NoError(t, err, "token %q should parse", token)
		assert.Equal(t, want, parsed)
	}

	_, err := ParseMethod("kerberos")
	require.Error(t, err, "unknown methods should be rejected")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestCredentials_Method(t *testing.T) {
	assert.Equal(t, MethodPassword, PasswordCredentials{}.Method())
	assert.Equal(t, MethodPsk, PskCredentials{}.Method())
	assert.Equal(t, MethodNative, NativeCredentials{}.Method())
	assert.Equal(t, MethodPublicKey, PublicKeyCredentials{}.Method())
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("hunter2"))
	b := Fingerprint([]byte("hunter2"))
	c := Fingerprint([]byte("other"))

	assert.Equal(t, a, b, "fingerprint should be stable for the same input")
	assert.NotEqual(t, a, c)
	assert.NotContains(t, a, "hunter2", "fingerprint must not leak the input")
}
