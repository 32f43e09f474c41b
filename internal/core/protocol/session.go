package protocol

import "context"

// Session is the narrow view of a client that an authentication provider
// works through: it can send messages and ask for the verdict on an auth
// request it just sent.
type Session interface {
	Send(ctx context.Context, msg *Message) error
	ConfirmAuth(ctx context.Context, requestID string) (bool, error)
}

// Authenticator drives one authentication exchange over a session.
type Authenticator interface {
	Authenticate(ctx context.Context, session Session) (bool, error)
}
