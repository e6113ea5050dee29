package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewError("SendCmd", KindInvalidState, cause)

	assert.Contains(t, err.Error(), "SendCmd")
	assert.Contains(t, err.Error(), "invalid-state")
	assert.Contains(t, err.Error(), "boom")
}

func TestError_ErrorMessageWithoutCause(t *testing.T) {
	err := NewError("Reserve", KindNoMem, nil)
	assert.Equal(t, "Reserve: no-mem", err.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewError("op", KindInternal, cause)
	require.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindNotSupported, KindOf(NewError("op", KindNotSupported, nil)))
	assert.Equal(t, KindInternal, KindOf(errors.New("not a wire error")))
}

func TestKind_StringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "not-supported", KindNotSupported.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestIsNotSupported(t *testing.T) {
	assert.True(t, IsNotSupported(NotSupportedMarker))
	assert.False(t, IsNotSupported(nil))
	assert.False(t, IsNotSupported([]byte{0x0B, 0x00}))
}
