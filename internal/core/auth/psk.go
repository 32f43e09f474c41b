package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rcpkit/rcpkit/internal/core/auth/secret"
	"github.com/rcpkit/rcpkit/internal/core/observability/log"
	"github.com/rcpkit/rcpkit/internal/core/protocol"
)

var _ Provider = (*PskProvider)(nil)

// PskProvider authenticates with a pre-shared key. The key comes from the
// first source that has it: the injected override, the secret store, then
// the interactive prompt. PSK requests carry no username.
type PskProvider struct {
	key    string
	store  secret.Store
	prompt PromptFunc
	save   bool
	logger log.Log
}

// NewPskProvider creates a pre-shared key provider.
func NewPskProvider(store secret.Store, logger log.Log) *PskProvider {
	if logger == nil {
		logger = log.Provide()
	}
	return &PskProvider{
		store:  store,
		logger: logger,
	}
}

// WithKey injects the key directly, bypassing the store and the prompt.
func (p *PskProvider) WithKey(key string) *PskProvider {
	p.key = key
	return p
}

// WithPrompt installs the interactive fallback.
func (p *PskProvider) WithPrompt(prompt PromptFunc) *PskProvider {
	p.prompt = prompt
	return p
}

// WithSave persists a freshly prompted key back to the secret store.
func (p *PskProvider) WithSave(save bool) *PskProvider {
	p.save = save
	return p
}

// Method returns MethodPsk.
func (p *PskProvider) Method() Method {
	return MethodPsk
}

// Authenticate sends the psk auth message and reports the verdict.
func (p *PskProvider) Authenticate(ctx context.Context, session protocol.Session) (bool, error) {
	credentials, err := p.GetCredentials(ctx)
	if err != nil {
		return false, err
	}

	pc, ok := credentials.(PskCredentials)
	if !ok {
		return false, ErrInvalidCredentials
	}

	p.logger.Debug("Sending psk auth request",
		log.String("credentials_fp", Fingerprint([]byte(pc.Key))))

	payload := rawJSON(protocol.AuthPayload{
		Credentials: rawJSON(pc.Key),
		Method:      MethodPsk.String(),
	})
	msg := protocol.NewMessage(protocol.MessageTypeAuth, payload)

	if err = session.Send(ctx, msg); err != nil {
		return false, err
	}

	return session.ConfirmAuth(ctx, msg.ID)
}

// GetCredentials resolves the key through the source cascade. A store miss
// falls through to the prompt; a hard store fault stops the cascade.
func (p *PskProvider) GetCredentials(ctx context.Context) (Credentials, error) {
	if p.key != "" {
		return PskCredentials{Key: p.key}, nil
	}

	key, found, err := lookupSecret(ctx, p.store, PskAccount)
	if err != nil {
		return nil, err
	}
	if found {
		return PskCredentials{Key: key}, nil
	}

	key, err = p.promptForKey(ctx)
	if err != nil {
		return nil, err
	}
	if p.save {
		saveSecret(ctx, p.store, PskAccount, key, p.logger)
	}

	return PskCredentials{Key: key}, nil
}

func (p *PskProvider) promptForKey(ctx context.Context) (string, error) {
	if p.prompt != nil {
		return p.prompt(ctx)
	}
	return "", errors.Wrap(ErrOther, "PSK dialog not implemented")
}
