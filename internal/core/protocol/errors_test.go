package protocol

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolError_Is(t *testing.T) {
	err := NewProtocolError(ErrorCodeTimeout, "no response", nil)

	assert.ErrorIs(t, err, ErrTimeout, "a coded error should match its sentinel")
	assert.NotErrorIs(t, err, ErrConnectionClosed)
}

func TestProtocolError_UnwrapChain(t *testing.T) {
	cause := errors.New("socket reset")
	err := NewProtocolError(ErrorCodeTransportFailed, "failed to write frame", cause)

	assert.ErrorIs(t, err, ErrTransportFailed)
	assert.ErrorIs(t, err, cause, "the cause should stay reachable through the chain")
	assert.Contains(t, err.Error(), "socket reset")
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCodeConnectionClosed, GetErrorCode(ErrConnectionClosed))
	assert.Equal(t, ErrorCodeTimeout, GetErrorCode(pkgerrors.Wrap(ErrTimeout, "while waiting")))
	assert.Equal(t, ErrorCodeFrameTooLarge, GetErrorCode(NewProtocolError(ErrorCodeFrameTooLarge, "too big", nil)))
	assert.Equal(t, ErrorCodeUnknownError, GetErrorCode(errors.New("mystery")))
}

func TestProtocolError_Classification(t *testing.T) {
	assert.True(t, NewProtocolError(ErrorCodeTimeout, "", nil).IsTemporary())
	assert.True(t, NewProtocolError(ErrorCodeDialFailed, "", nil).IsRetryable())
	assert.False(t, NewProtocolError(ErrorCodeServerError, "", nil).IsTemporary())

	assert.True(t, NewProtocolError(ErrorCodeConnectionClosed, "", nil).IsFatal())
	assert.True(t, NewProtocolError(ErrorCodeMalformedPayload, "", nil).IsFatal())
	assert.False(t, NewProtocolError(ErrorCodeTimeout, "", nil).IsFatal())
}

func TestNewServerError(t *testing.T) {
	err := NewServerError(1008, "access denied")

	assert.ErrorIs(t, err, ErrServerError)
	assert.Contains(t, err.Error(), "access denied")

	code, ok := ServerCode(err)
	require.True(t, ok, "the server code should be extractable")
	assert.Equal(t, uint32(1008), code)

	_, ok = ServerCode(ErrTimeout)
	assert.False(t, ok, "a plain sentinel carries no server code")
}

func TestWrapError(t *testing.T) {
	err := WrapError(ErrChannelClosed, "send failed")

	assert.Equal(t, ErrorCodeChannelClosed, GetErrorCode(err))
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Contains(t, err.Error(), "send failed")
}
