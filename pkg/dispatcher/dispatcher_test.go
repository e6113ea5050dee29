package dispatcher

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/corerpc/pkg/callback"
	"github.com/marmos91/corerpc/pkg/transport"
	"github.com/marmos91/corerpc/pkg/wire"
)

// Demo registration namespace shared by the scenarios below, standing in for
// the static handler tables normally collected at init.
const (
	groupDemo Group = 1

	idEcho             ID = 0x01
	idOuter            ID = 0x10
	idInner            ID = 0x20
	idNotify           ID = 0x30
	idRegisterCallback ID = 0x40
	idInvokeCallback   ID = 0x41
	idUnknown          ID = 0xEE
)

func workerAddrs(n int) []byte {
	addrs := make([]byte, n)
	for i := range addrs {
		addrs[i] = byte(i)
	}
	return addrs
}

// newPair wires two Dispatchers together over a Loopback transport pair, the
// same way two real peers would sit either side of the shared-memory ring.
// Both sides' pool workers are started before the pair is handed back.
func newPair(t *testing.T, poolSize, extra int, ackEnabled bool, regA, regB *Registry) (a, b *Dispatcher, cleanup func()) {
	t.Helper()

	var dispA, dispB *Dispatcher
	handlerA := func(buf []byte, kind transport.EventKind, err error) { dispA.HandleFrame(buf, kind, err) }
	handlerB := func(buf []byte, kind transport.EventKind, err error) { dispB.HandleFrame(buf, kind, err) }
	transA, transB := transport.NewLoopbackPair(handlerA, handlerB)

	cfgA := Config{PoolSize: poolSize, ExtraEndpoints: extra, PeerAddrs: workerAddrs(poolSize), EventAckEnabled: ackEnabled, CallbackSlots: 8}
	cfgB := Config{PoolSize: poolSize, ExtraEndpoints: extra, PeerAddrs: workerAddrs(poolSize), EventAckEnabled: ackEnabled, CallbackSlots: 8}

	dispA = New(cfgA, transA, regA)
	dispB = New(cfgB, transB, regB)

	ctx := context.Background()
	require.NoError(t, dispA.Init(ctx))
	require.NoError(t, dispB.Init(ctx))

	for i := 0; i < poolSize; i++ {
		go dispA.Start(dispA.Worker(i))
		go dispB.Start(dispB.Worker(i))
	}

	cleanup = func() {
		_ = dispA.Shutdown()
		_ = dispB.Shutdown()
	}
	return dispA, dispB, cleanup
}

func noopDecode([]byte) {}

// Round-trip integer echo over a command/response pair.
func TestScenario1_RoundTripInteger(t *testing.T) {
	regB := NewRegistry()
	regB.RegisterCommand(groupDemo, idEcho, "echo", func(c *Call, payload []byte) error {
		x := binary.LittleEndian.Uint16(payload)
		rsp := make([]byte, 2)
		binary.LittleEndian.PutUint16(rsp, x+1)
		return c.SendRsp(rsp)
	})

	dispA, _, cleanup := newPair(t, 2, 2, false, NewRegistry(), regB)
	defer cleanup()

	callerA, err := dispA.Attach()
	require.NoError(t, err)

	var got uint16
	err = dispA.SendCmd(context.Background(), callerA, groupDemo, idEcho, []byte{0x0A, 0x00}, func(rsp []byte) {
		got = binary.LittleEndian.Uint16(rsp)
	})
	require.NoError(t, err)
	require.Equal(t, uint16(0x0B), got)
}

// A command handler on one side issues a nested command back to the
// caller before replying (nested reentrancy through the same pump).
func TestScenario2_NestedCall(t *testing.T) {
	regA := NewRegistry()
	regA.RegisterCommand(groupDemo, idInner, "inner", func(c *Call, payload []byte) error {
		return c.SendRsp([]byte{0x55})
	})

	regB := NewRegistry()
	regB.RegisterCommand(groupDemo, idOuter, "outer", func(c *Call, payload []byte) error {
		var inner byte
		if err := c.d.SendCmd(context.Background(), c.self, groupDemo, idInner, nil, func(rsp []byte) {
			inner = rsp[0]
		}); err != nil {
			return err
		}
		return c.SendRsp([]byte{inner ^ 0xFF})
	})

	dispA, _, cleanup := newPair(t, 2, 2, false, regA, regB)
	defer cleanup()

	callerA, err := dispA.Attach()
	require.NoError(t, err)

	var result byte
	err = dispA.SendCmd(context.Background(), callerA, groupDemo, idOuter, nil, func(rsp []byte) {
		result = rsp[0]
	})
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), result)
}

// An event sent without waiting for its ack still blocks the *next*
// send on the same endpoint until the ack arrives.
func TestScenario3_EventThenCommand(t *testing.T) {
	var notified atomic.Bool

	regB := NewRegistry()
	regB.RegisterEvent(groupDemo, idNotify, "notify", func(c *Call, payload []byte) error {
		time.Sleep(30 * time.Millisecond) // long enough that the next SendCmd would race ahead if unguarded
		notified.Store(true)
		return c.SendAck()
	})
	regB.RegisterCommand(groupDemo, idEcho, "echo", func(c *Call, payload []byte) error {
		x := binary.LittleEndian.Uint16(payload)
		rsp := make([]byte, 2)
		binary.LittleEndian.PutUint16(rsp, x+1)
		return c.SendRsp(rsp)
	})

	dispA, _, cleanup := newPair(t, 2, 2, true, NewRegistry(), regB)
	defer cleanup()

	callerA, err := dispA.Attach()
	require.NoError(t, err)

	require.NoError(t, dispA.SendEvt(context.Background(), callerA, groupDemo, idNotify, []byte("x")))

	start := time.Now()
	var got uint16
	err = dispA.SendCmd(context.Background(), callerA, groupDemo, idEcho, []byte{1, 0}, func(rsp []byte) {
		got = binary.LittleEndian.Uint16(rsp)
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, uint16(2), got)
	require.True(t, notified.Load(), "SendCmd returned before the prior event's handler ran")
	require.GreaterOrEqual(t, elapsed, 20*time.Millisecond, "SendCmd did not block on the pending ack")
}

// Backpressure: with a remote pool of size 2 and three concurrent
// callers, no more than 2 commands are ever in flight.
func TestScenario4_Backpressure(t *testing.T) {
	const poolSize = 2

	var inFlight, maxObserved int32
	var mu sync.Mutex

	regB := NewRegistry()
	regB.RegisterCommand(groupDemo, idEcho, "slow", func(c *Call, payload []byte) error {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > maxObserved {
			maxObserved = n
		}
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return c.SendRsp(nil)
	})

	dispA, _, cleanup := newPair(t, poolSize, 4, false, NewRegistry(), regB)
	defer cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := dispA.Attach()
			require.NoError(t, err)
			require.NoError(t, dispA.SendCmd(context.Background(), c, groupDemo, idEcho, nil, noopDecode))
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxObserved, int32(poolSize))
	require.Greater(t, maxObserved, int32(1), "expected concurrent delivery across the pool, not one frame processed at a time")
}

// Callback round trip through the proxy's in-table and out-table.
func TestScenario5_CallbackRoundTrip(t *testing.T) {
	regA := NewRegistry()
	regB := NewRegistry()

	dispA, dispB, cleanup := newPair(t, 2, 4, false, regA, regB)
	defer cleanup()

	double := func(args []byte) []byte {
		n := binary.LittleEndian.Uint32(args)
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, n*2)
		return out
	}
	key := callback.FuncKey(double)

	idx1 := dispA.RegisterCallback(key)
	idx2 := dispA.RegisterCallback(key)
	require.Equal(t, idx1, idx2, "registering the same callback key twice must return the same index")

	funcsByIndex := map[int]func([]byte) []byte{idx1: double}

	regA.RegisterCommand(groupDemo, idInvokeCallback, "invoke_callback", func(c *Call, payload []byte) error {
		idx := int(binary.LittleEndian.Uint16(payload[:2]))
		resolved, ok := dispA.ResolveCallback(idx)
		if !ok {
			return c.SendRsp(nil)
		}
		require.Equal(t, key, resolved, "resolving a registered index must recover the original key")
		return c.SendRsp(funcsByIndex[idx](payload[2:]))
	})

	regB.RegisterCommand(groupDemo, idRegisterCallback, "register_callback", func(c *Call, payload []byte) error {
		idx := int(binary.LittleEndian.Uint16(payload))
		idxBytes := append([]byte(nil), payload[:2]...)

		// A fresh endpoint owned solely by this trampoline, never the
		// handler's own worker endpoint: the trampoline may be invoked
		// long after this handler returns, by a different goroutine.
		outboundCaller, err := c.d.Attach()
		if err != nil {
			return err
		}
		trampoline := func(args []byte) ([]byte, error) {
			req := append(append([]byte(nil), idxBytes...), args...)
			return c.d.SendCmdRsp(context.Background(), outboundCaller, groupDemo, idInvokeCallback, req)
		}
		if err := c.d.BindTrampoline(idx, "double", trampoline); err != nil {
			return err
		}
		return c.SendRsp(nil)
	})

	callerA, err := dispA.Attach()
	require.NoError(t, err)

	idxBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(idxBytes, uint16(idx1))
	require.NoError(t, dispA.SendCmd(context.Background(), callerA, groupDemo, idRegisterCallback, idxBytes, noopDecode))

	args := make([]byte, 4)
	binary.LittleEndian.PutUint32(args, 21)
	rsp, err := dispB.InvokeTrampoline(idx1, args)
	require.NoError(t, err)
	require.Equal(t, uint32(42), binary.LittleEndian.Uint32(rsp))

	// Rebinding the same index to a different handler must fail.
	err = dispB.BindTrampoline(idx1, "triple", func([]byte) ([]byte, error) { return nil, nil })
	require.Error(t, err)

	// Rebinding to the *same* handler is an idempotent no-op.
	require.NoError(t, dispB.BindTrampoline(idx1, "double", func([]byte) ([]byte, error) { return nil, nil }))
}

// An unregistered command ID does not crash either side; the caller
// observes a KindNotSupported error instead of a decoded reply.
func TestScenario6_UnknownCommand(t *testing.T) {
	dispA, _, cleanup := newPair(t, 2, 2, false, NewRegistry(), NewRegistry())
	defer cleanup()

	callerA, err := dispA.Attach()
	require.NoError(t, err)

	decoderRan := false
	err = dispA.SendCmd(context.Background(), callerA, groupDemo, idUnknown, nil, func(rsp []byte) {
		decoderRan = true
	})
	require.Error(t, err)
	require.Equal(t, wire.KindNotSupported, wire.KindOf(err))
	require.False(t, decoderRan, "decode must not run for a not-supported reply")
}
