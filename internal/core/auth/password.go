package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rcpkit/rcpkit/internal/core/auth/secret"
	"github.com/rcpkit/rcpkit/internal/core/observability/log"
	"github.com/rcpkit/rcpkit/internal/core/protocol"
)

var _ Provider = (*PasswordProvider)(nil)

// PasswordProvider authenticates with a username and password. The password
// comes from the first source that has it: the injected override, the secret
// store, then the interactive prompt.
type PasswordProvider struct {
	username string
	password string
	store    secret.Store
	prompt   PromptFunc
	save     bool
	logger   log.Log
}

// NewPasswordProvider creates a password provider for the given username.
func NewPasswordProvider(username string, store secret.Store, logger log.Log) *PasswordProvider {
	if logger == nil {
		logger = log.Provide()
	}
	return &PasswordProvider{
		username: username,
		store:    store,
		logger:   logger,
	}
}

// WithPassword injects the password directly, bypassing the store and the
// prompt.
func (p *PasswordProvider) WithPassword(password string) *PasswordProvider {
	p.password = password
	return p
}

// WithPrompt installs the interactive fallback.
func (p *PasswordProvider) WithPrompt(prompt PromptFunc) *PasswordProvider {
	p.prompt = prompt
	return p
}

// WithSave persists a freshly prompted password back to the secret store.
func (p *PasswordProvider) WithSave(save bool) *PasswordProvider {
	p.save = save
	return p
}

// Method returns MethodPassword.
func (p *PasswordProvider) Method() Method {
	return MethodPassword
}

// Authenticate sends the password auth message and reports the verdict.
func (p *PasswordProvider) Authenticate(ctx context.Context, session protocol.Session) (bool, error) {
	credentials, err := p.GetCredentials(ctx)
	if err != nil {
		return false, err
	}

	pc, ok := credentials.(PasswordCredentials)
	if !ok {
		return false, ErrInvalidCredentials
	}

	p.logger.Debug("Sending password auth request",
		log.String("username", pc.Username),
		log.String("credentials_fp", Fingerprint([]byte(pc.Password))))

	payload := rawJSON(protocol.AuthPayload{
		Username:    pc.Username,
		Credentials: rawJSON(pc.Password),
		Method:      MethodPassword.String(),
	})
	msg := protocol.NewMessage(protocol.MessageTypeAuth, payload)

	if err = session.Send(ctx, msg); err != nil {
		return false, err
	}

	return session.ConfirmAuth(ctx, msg.ID)
}

// GetCredentials resolves the password through the source cascade. A store
// miss falls through to the prompt; a hard store fault stops the cascade.
func (p *PasswordProvider) GetCredentials(ctx context.Context) (Credentials, error) {
	if p.password != "" {
		return PasswordCredentials{Username: p.username, Password: p.password}, nil
	}

	password, found, err := lookupSecret(ctx, p.store, p.username)
	if err != nil {
		return nil, err
	}
	if found {
		return PasswordCredentials{Username: p.username, Password: password}, nil
	}

	password, err = p.promptForPassword(ctx)
	if err != nil {
		return nil, err
	}
	if p.save {
		saveSecret(ctx, p.store, p.username, password, p.logger)
	}

	return PasswordCredentials{Username: p.username, Password: password}, nil
}

func (p *PasswordProvider) promptForPassword(ctx context.Context) (string, error) {
	if p.prompt != nil {
		return p.prompt(ctx)
	}
	return "", errors.Wrap(ErrOther, "Password dialog not implemented")
}
