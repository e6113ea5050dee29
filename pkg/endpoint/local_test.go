package endpoint

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_PublishDeliversAndBlocksUntilDone(t *testing.T) {
	l := NewLocal(0)

	delivered := make(chan struct{})
	go func() {
		l.Publish([]byte{1, 2, 3})
		close(delivered)
	}()

	d := l.WaitInput()
	require.Equal(t, FilteredNone, d.Filtered)
	assert.Equal(t, []byte{1, 2, 3}, d.Buf)

	select {
	case <-delivered:
		t.Fatal("Publish returned before SignalDone was called")
	case <-time.After(20 * time.Millisecond):
	}

	l.SignalDone()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("Publish did not return after SignalDone")
	}
}

func TestLocal_PublishFilteredDoesNotBlockProducer(t *testing.T) {
	l := NewLocal(0)

	done := make(chan struct{})
	go func() {
		l.PublishFiltered(FilteredResponse)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishFiltered blocked waiting for Done")
	}

	d := l.WaitInput()
	assert.Equal(t, FilteredResponse, d.Filtered)
}

func TestLocal_CloseUnblocksWaitInput(t *testing.T) {
	l := NewLocal(0)

	result := make(chan Delivery, 1)
	go func() { result <- l.WaitInput() }()

	time.Sleep(10 * time.Millisecond)
	l.Close()

	select {
	case d := <-result:
		assert.Equal(t, FilteredClosed, d.Filtered)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock WaitInput")
	}

	// Close is safe to call more than once.
	l.Close()
}

func TestLocal_WaitingForAckSetAndRestore(t *testing.T) {
	l := NewLocal(0)

	require.False(t, l.WaitingForAck())

	prev := l.SetWaitingForAck(true)
	require.False(t, prev)
	require.True(t, l.WaitingForAck())

	prev = l.SetWaitingForAck(false)
	require.True(t, prev)
	require.False(t, l.WaitingForAck())
}

func TestLocal_InstallDecoderRoundTrip(t *testing.T) {
	l := NewLocal(0)
	require.Nil(t, l.Decoder())

	var got []byte
	prev := l.InstallDecoder(func(b []byte) { got = b })
	require.Nil(t, prev)

	l.Decoder()([]byte{9})
	require.Equal(t, []byte{9}, got)

	prev = l.InstallDecoder(nil)
	require.NotNil(t, prev)
	require.Nil(t, l.Decoder())
}

func TestLocal_SerializesSuccessivePublishes(t *testing.T) {
	l := NewLocal(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Publish([]byte{1})
		l.Publish([]byte{2})
	}()

	d1 := l.WaitInput()
	assert.Equal(t, []byte{1}, d1.Buf)
	l.SignalDone()

	d2 := l.WaitInput()
	assert.Equal(t, []byte{2}, d2.Buf)
	l.SignalDone()

	wg.Wait()
}
