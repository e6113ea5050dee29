package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTrampoline(args []byte) ([]byte, error) {
	return args, nil
}

func TestOutTable_BindThenInvoke(t *testing.T) {
	tbl := NewOutTable(4)

	require.NoError(t, tbl.Bind(0, "echo", echoTrampoline))

	rsp, err := tbl.Invoke(0, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, rsp)
}

func TestOutTable_RebindSameHandlerIsNoop(t *testing.T) {
	tbl := NewOutTable(1)

	require.NoError(t, tbl.Bind(0, "echo", echoTrampoline))
	require.NoError(t, tbl.Bind(0, "echo", echoTrampoline))

	_, handlerID, ok := tbl.Get(0)
	require.True(t, ok)
	assert.Equal(t, "echo", handlerID)
}

func TestOutTable_RebindDifferentHandlerFails(t *testing.T) {
	tbl := NewOutTable(1)

	require.NoError(t, tbl.Bind(0, "echo", echoTrampoline))
	err := tbl.Bind(0, "double", echoTrampoline)
	require.Error(t, err)

	// the original binding must survive the failed rebind attempt
	_, handlerID, ok := tbl.Get(0)
	require.True(t, ok)
	assert.Equal(t, "echo", handlerID)
}

func TestOutTable_InvokeUnboundFails(t *testing.T) {
	tbl := NewOutTable(2)

	_, err := tbl.Invoke(1, nil)
	require.Error(t, err)
}

func TestOutTable_BindOutOfRange(t *testing.T) {
	tbl := NewOutTable(1)

	err := tbl.Bind(1, "echo", echoTrampoline)
	require.Error(t, err)

	err = tbl.Bind(-1, "echo", echoTrampoline)
	require.Error(t, err)
}

func TestOutTable_ZeroSizeTableAlwaysFails(t *testing.T) {
	tbl := NewOutTable(0)

	err := tbl.Bind(0, "echo", echoTrampoline)
	require.Error(t, err)

	_, err = tbl.Invoke(0, nil)
	require.Error(t, err)
}
