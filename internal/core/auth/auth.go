// Package auth implements the provider-based authentication exchange: each
// provider produces method-specific credentials and drives one auth round
// over a protocol session.
package auth

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Method identifies an authentication method. The wire and config form is
// the lowercase token.
type Method string

const (
	MethodPassword  Method = "password"
	MethodPsk       Method = "psk"
	MethodNative    Method = "native"
	MethodPublicKey Method = "publickey"
)

// ParseMethod converts a token into a Method. Unknown tokens are an error,
// never a silent default; the caller chooses the fallback policy.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodPassword, MethodPsk, MethodNative, MethodPublicKey:
		return m, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedMethod, "%q", s)
	}
}

// String returns the lowercase token.
func (m Method) String() string {
	return string(m)
}

// Credentials is the method-specific secret material a provider produces.
// Credentials are built fresh for each attempt and never persisted by this
// package; persistence belongs to the secret store behind the provider.
type Credentials interface {
	Method() Method

	// sealed limits implementations to the closed set in this package.
	sealed()
}

// PasswordCredentials carries a username and password.
type PasswordCredentials struct {
	Username string
	Password string
}

func (PasswordCredentials) Method() Method { return MethodPassword }
func (PasswordCredentials) sealed()        {}

// PskCredentials carries a pre-shared key.
type PskCredentials struct {
	Key string
}

func (PskCredentials) Method() Method { return MethodPsk }
func (PskCredentials) sealed()        {}

// NativeCredentials carries a username and an opaque OS-issued token.
type NativeCredentials struct {
	Username string
	Token    []byte
}

func (NativeCredentials) Method() Method { return MethodNative }
func (NativeCredentials) sealed()        {}

// PublicKeyCredentials carries a username and a signature.
type PublicKeyCredentials struct {
	Username  string
	Signature []byte
}

func (PublicKeyCredentials) Method() Method { return MethodPublicKey }
func (PublicKeyCredentials) sealed()        {}

// Fingerprint returns a short stable hash of secret material. Log statements
// use it in place of the secret itself; raw secrets never reach the log
// stream.
func Fingerprint(secret []byte) string {
	return strconv.FormatUint(xxhash.Sum64(secret), 16)
}
