// Package dispatcher implements the RPC core: it turns a registered table of
// command/event handlers plus an endpoint layer into synchronous,
// nestable, bidirectional calls over an opaque transport.
package dispatcher

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/corerpc/internal/logger"
	"github.com/marmos91/corerpc/internal/telemetry"
	"github.com/marmos91/corerpc/pkg/bufpool"
	"github.com/marmos91/corerpc/pkg/callback"
	"github.com/marmos91/corerpc/pkg/endpoint"
	"github.com/marmos91/corerpc/pkg/transport"
	"github.com/marmos91/corerpc/pkg/wire"
)

// FatalHandler is invoked when the dispatcher detects a protocol violation
// it cannot recover from locally: a spurious RSP/ACK, an unknown tag, or a
// handler that returned without sending its mandatory reply. The default
// handler panics; applications that would rather tear down the connection
// and resynchronize should install their own.
type FatalHandler func(err error)

// Config configures a Dispatcher instance.
type Config struct {
	// PoolSize is the number of permanently-bound worker endpoints, each
	// run by its own goroutine via Start.
	PoolSize int
	// ExtraEndpoints is the number of lazily-assigned endpoints available
	// to foreign callers via Attach.
	ExtraEndpoints int
	// PeerAddrs lists the peer's local endpoint addresses, sizing this
	// side's remote pool to match.
	PeerAddrs []byte
	// EventAckEnabled turns on the backpressure discipline where every
	// SendEvt blocks subsequent sends on the same endpoint until the peer
	// acknowledges it finished decoding.
	EventAckEnabled bool
	// Metrics receives lifecycle observations. Defaults to a no-op.
	Metrics Metrics
	// Fatal is invoked on unrecoverable protocol violations. Defaults to a
	// handler that logs and panics.
	Fatal FatalHandler
	// CallbackSlots sizes the callee-side trampoline table (OutTable).
	// Zero disables inbound trampoline binding entirely; outbound
	// RegisterCallback/ResolveCallback bookkeeping is unaffected.
	CallbackSlots int
	// BufferPool sizes the tiered outbound transmit buffer pool. Nil uses
	// bufpool's built-in defaults.
	BufferPool *bufpool.Config
}

// Dispatcher binds a Registry of handlers to an endpoint.Layer over one
// Transport, and exposes the Send* operations applications use to drive
// RPCs across it.
type Dispatcher struct {
	cfg      Config
	layer    *endpoint.Layer
	registry *Registry
	metrics  Metrics
	fatal    FatalHandler

	// callbacksIn/callbacksOut back the callback proxy (RegisterCallback,
	// ResolveCallback, BindTrampoline, InvokeTrampoline). They are owned
	// here rather than per-endpoint since a callback's identity and its
	// wire index are process-wide, not endpoint-scoped.
	callbacksIn  *callback.InTable
	callbacksOut *callback.OutTable
}

// Caller is an explicit handle to one local endpoint: the Go equivalent of
// the "current endpoint" a native implementation tracks per OS thread.
// Every Send* call takes one, since nothing here assumes goroutine-local
// state.
type Caller struct {
	local *endpoint.Local

	// pendingAckGroup/pendingAckID/pendingAckSince describe the most
	// recently sent event still awaiting its ACK, so that whichever pump
	// call eventually drains it (this endpoint's own Start loop, or a later
	// Send* on the same endpoint) can report EventAcked with real context.
	pendingAckGroup Group
	pendingAckID    ID
	pendingAckSince time.Time
}

// New builds a Dispatcher over t, wiring the endpoint layer's filter to
// this dispatcher's response/ack short-circuit logic.
func New(cfg Config, t transport.Transport, registry *Registry) *Dispatcher {
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	d := &Dispatcher{
		cfg:          cfg,
		registry:     registry,
		metrics:      cfg.Metrics,
		callbacksIn:  callback.NewInTable(),
		callbacksOut: callback.NewOutTable(cfg.CallbackSlots),
	}
	d.fatal = cfg.Fatal
	if d.fatal == nil {
		d.fatal = d.defaultFatal
	}

	d.layer = endpoint.NewLayer(t, cfg.PoolSize, cfg.ExtraEndpoints, cfg.PeerAddrs, d.filter, bufpool.New(cfg.BufferPool))
	return d
}

func (d *Dispatcher) defaultFatal(err error) {
	logger.ErrorCtx(context.Background(), "fatal protocol violation", logger.Err(err))
	panic(err)
}

// Init starts the underlying transport.
func (d *Dispatcher) Init(ctx context.Context) error {
	return d.layer.Init(ctx)
}

// HandleFrame forwards to the underlying endpoint.Layer's Transport handler.
// It exists so a caller can construct a Transport whose handler closure
// references this Dispatcher before the Dispatcher itself exists yet — the
// two-sided wiring every concrete Transport (Loopback included) requires,
// since each side's Handler must already be set when the pair is built.
func (d *Dispatcher) HandleFrame(buf []byte, kind transport.EventKind, err error) {
	d.layer.HandleFrame(buf, kind, err)
}

// Worker returns the Caller bound to permanently-assigned pool worker i.
// Callers obtain this once at startup and pass it to Start.
func (d *Dispatcher) Worker(i int) *Caller {
	return &Caller{local: d.layer.PoolWorker(i)}
}

// Attach lazily assigns a foreign caller (a goroutine outside the fixed
// pool) one of the configured extra endpoints. Running out of extra
// endpoints is reported through the fatal handler; the error is also
// returned, for a fatal handler that does not panic.
func (d *Dispatcher) Attach() (*Caller, error) {
	local, err := d.layer.Attach()
	if err != nil {
		d.fatal(err)
		return nil, err
	}
	return &Caller{local: local}, nil
}

// Start runs pool worker i's permanent dispatch loop on the calling
// goroutine. It returns only when the fatal handler panics or the
// transport closes the underlying channel permanently; callers typically
// invoke it as `go d.Start(d.Worker(i))` for each pool slot at startup.
func (d *Dispatcher) Start(c *Caller) {
	for {
		code := d.pump(c)
		switch code {
		case endpoint.FilteredResponse:
			d.fatal(fmt.Errorf("dispatcher: spurious RSP at endpoint %d with no pending call", c.local.Index))
		case endpoint.FilteredClosed:
			return
		case endpoint.FilteredAck:
			// A prior SendEvt's ack arrived after this worker had already
			// returned to its top-level loop; the flag was already cleared
			// by pump, but the caller that sent it is long gone, so this is
			// the only place left to report the round-trip.
			d.metrics.EventAcked(c.pendingAckGroup, c.pendingAckID, time.Since(c.pendingAckSince))
		}
	}
}

// Shutdown closes the transport and every endpoint, unblocking any worker
// goroutine parked in Start so the pool can wind down.
func (d *Dispatcher) Shutdown() error {
	return d.layer.Shutdown()
}

// pump blocks until this Caller's endpoint produces a filtered delivery,
// dispatching any ordinary inbound CMD/EVT it sees along the way. This is
// the one primitive shared by the permanent worker loop, the response-wait
// loop inside SendCmd, and the ack-wait loop inside SendEvt: all three are
// "read this endpoint until something filtered shows up."
func (d *Dispatcher) pump(c *Caller) endpoint.FilterCode {
	for {
		del := c.local.WaitInput()
		if del.Filtered != endpoint.FilteredNone {
			if del.Filtered == endpoint.FilteredAck {
				c.local.SetWaitingForAck(false)
			}
			return del.Filtered
		}
		d.dispatchInbound(c, del.Buf)
	}
}

// filter is the endpoint.Filter installed on this dispatcher's Layer. It
// runs synchronously on the transport's delivery goroutine, before any
// buffer is ever published to a Local's input channel. A matching RSP is
// decoded right here — the installed decoder closure already has whatever
// context it needs, so there is nothing left to hand the caller but the
// filtered code itself.
func (d *Dispatcher) filter(f wire.Frame) endpoint.FilterCode {
	dst := d.layer.Local(int(f.Dst))
	if dst == nil {
		return endpoint.FilteredNone
	}

	switch f.Tag {
	case wire.TagRSP:
		if dec := dst.Decoder(); dec != nil {
			dec(f.Payload)
			return endpoint.FilteredResponse
		}
		return endpoint.FilteredNone // no one is waiting: dispatchInbound will treat this as spurious
	case wire.TagACK:
		if dst.WaitingForAck() {
			return endpoint.FilteredAck
		}
		return endpoint.FilteredNone
	default:
		return endpoint.FilteredNone
	}
}

// dispatchInbound handles one normally-delivered (non-filtered) frame: a
// CMD or EVT addressed to c's endpoint, or a spurious RSP/ACK that the
// filter could not match to anyone waiting.
func (d *Dispatcher) dispatchInbound(c *Caller, buf []byte) {
	f, err := wire.Decode(buf)
	if err != nil {
		d.fatal(fmt.Errorf("dispatcher: undecodable frame at endpoint %d: %w", c.local.Index, err))
		return
	}

	switch f.Tag {
	case wire.TagCMD:
		d.handleCommand(c, f)
	case wire.TagEVT:
		d.handleEvent(c, f)
	case wire.TagRSP:
		d.fatal(fmt.Errorf("dispatcher: spurious RSP at endpoint %d from %d", c.local.Index, f.Src))
	case wire.TagACK:
		d.fatal(fmt.Errorf("dispatcher: spurious ACK at endpoint %d from %d", c.local.Index, f.Src))
	default:
		d.fatal(fmt.Errorf("dispatcher: unknown tag 0x%02x at endpoint %d", byte(f.Tag), c.local.Index))
	}
}

func (d *Dispatcher) handleCommand(c *Caller, f wire.Frame) {
	group, id, payload, err := decodeHeader(f.Payload)
	if err != nil {
		d.fatal(fmt.Errorf("dispatcher: malformed command header from %d: %w", f.Src, err))
		return
	}

	entry, ok := d.registry.lookupCommand(group, id)
	if !ok {
		d.replyNotSupported(c, f.Src, group, id)
		c.local.SignalDone()
		return
	}

	// A nested send issued from inside this handler must not inherit
	// whatever ack-wait state this endpoint already had pending; that
	// state belongs to the call that is still unwinding above us, not to
	// the nested call the handler is about to make.
	prevWaitingForAck := c.local.SetWaitingForAck(false)

	start := time.Now()
	call := &Call{d: d, from: f.Src, self: c}
	err = entry.handler(call, payload)
	d.metrics.InboundHandled(group, id, time.Since(start), err)
	if err != nil {
		logger.ErrorCtx(d.inboundLogContext(c, group, id), "command handler failed",
			logger.Handler(entry.name), logger.Err(err))
	}

	c.local.SetWaitingForAck(prevWaitingForAck)

	// The handler is responsible for calling SendRsp and DecodingDone; if
	// it forgot DecodingDone, finish that here rather than leaving the
	// transport wedged on a buffer nobody will ever release. Forgetting
	// SendRsp itself is a protocol violation: the caller on the other side
	// is blocked in d.pump waiting for exactly one RSP that will now never
	// arrive, so it is fatal rather than silently tolerated.
	c.local.SignalDone()
	if !call.replied {
		d.fatal(fmt.Errorf("dispatcher: command handler %q for (%d,%d) returned without calling SendRsp", entry.name, group, id))
	}
}

func (d *Dispatcher) handleEvent(c *Caller, f wire.Frame) {
	group, id, payload, err := decodeHeader(f.Payload)
	if err != nil {
		d.fatal(fmt.Errorf("dispatcher: malformed event header from %d: %w", f.Src, err))
		return
	}

	entry, ok := d.registry.lookupEvent(group, id)
	if !ok {
		// No ack is sent for an unregistered event, even with the event-ack
		// discipline on: the caller's next send on this endpoint will block
		// waiting for an ACK that never arrives, surfacing the protocol
		// violation at the caller rather than papering over it here.
		logger.ErrorCtx(d.inboundLogContext(c, group, id), "unknown event", logger.Tag(wire.TagEVT.String()))
		c.local.SignalDone()
		return
	}

	prevWaitingForAck := c.local.SetWaitingForAck(false)

	start := time.Now()
	call := &Call{d: d, from: f.Src, self: c}
	err = entry.handler(call, payload)
	d.metrics.InboundHandled(group, id, time.Since(start), err)
	if err != nil {
		logger.ErrorCtx(d.inboundLogContext(c, group, id), "event handler failed",
			logger.Handler(entry.name), logger.Err(err))
	}

	c.local.SetWaitingForAck(prevWaitingForAck)
	c.local.SignalDone()

	// Mirrors the SendRsp check above: when the event-ack discipline is on,
	// the peer that sent this EVT is already armed to wait on the ACK that
	// will now never come.
	if d.cfg.EventAckEnabled && !call.acked {
		d.fatal(fmt.Errorf("dispatcher: event handler %q for (%d,%d) returned without calling SendAck", entry.name, group, id))
	}
}

// inboundLogContext builds the LogContext for one inbound dispatch, so
// handler-failure logs carry the receiving endpoint and the (group, id) the
// frame was addressed to.
func (d *Dispatcher) inboundLogContext(c *Caller, group Group, id ID) context.Context {
	lc := logger.NewLogContext(c.local.Index).WithOperation(uint16(group), uint16(id))
	return logger.WithContext(context.Background(), lc)
}

// SendCmd issues a synchronous command from c and blocks until the peer's
// RSP arrives, decoding it with decode. Nested CMD/EVT frames that arrive
// on c's own endpoint while waiting are dispatched re-entrantly on the same
// goroutine before the wait resumes.
func (d *Dispatcher) SendCmd(ctx context.Context, c *Caller, group Group, id ID, payload []byte, decode func(rsp []byte)) (err error) {
	ctx, span := telemetry.StartCall(ctx, "CMD", uint16(group), uint16(id))
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()
	ctx = d.outboundLogContext(ctx, c, group, id)

	if decode == nil {
		return wire.NewError("dispatcher.SendCmd", wire.KindInvalidParam, fmt.Errorf("nil decoder"))
	}

	if c.local.WaitingForAck() {
		if code := d.pump(c); code != endpoint.FilteredAck {
			return wire.NewError("dispatcher.SendCmd", wire.KindInternal,
				fmt.Errorf("expected pending ack to clear, got filter code %d", code))
		}
		d.metrics.EventAcked(c.pendingAckGroup, c.pendingAckID, time.Since(c.pendingAckSince))
	}

	// notSupported is set by the wrapped decoder below if the peer's RSP
	// carries wire.NotSupportedMarker instead of an application payload;
	// decode itself is never invoked for that case.
	var notSupported bool
	prev := c.local.InstallDecoder(func(rsp []byte) {
		if wire.IsNotSupported(rsp) {
			notSupported = true
			return
		}
		decode(rsp)
	})
	defer c.local.InstallDecoder(prev)

	start := time.Now()
	remoteWaitStart := time.Now()
	remote, err := d.layer.ReserveRemote(ctx)
	if err != nil {
		return wire.NewError("dispatcher.SendCmd", wire.KindNoMem, err)
	}
	d.metrics.RemotePoolWait(time.Since(remoteWaitStart))
	defer d.layer.ReleaseRemote(remote)

	frame := encodeHeader(group, id, payload)
	logger.DebugCtx(ctx, "sending command", logger.Remote(byte(remote.Index)), logger.Tag(wire.TagCMD.String()))
	if err := d.layer.Send(byte(c.local.Index), remote, wire.TagCMD, frame); err != nil {
		d.metrics.CommandCompleted(group, id, time.Since(start), err)
		return err
	}

	code := d.pump(c)
	if code != endpoint.FilteredResponse {
		err := wire.NewError("dispatcher.SendCmd", wire.KindInternal,
			fmt.Errorf("expected RSP, got filter code %d", code))
		d.metrics.CommandCompleted(group, id, time.Since(start), err)
		return err
	}

	if notSupported {
		err := wire.NewError("dispatcher.SendCmd", wire.KindNotSupported,
			fmt.Errorf("peer has no handler registered for (%d,%d)", group, id))
		d.metrics.CommandCompleted(group, id, time.Since(start), err)
		return err
	}

	logger.DebugCtx(ctx, "command completed", logger.DurationMs(float64(time.Since(start).Microseconds())/1000.0))
	d.metrics.CommandCompleted(group, id, time.Since(start), nil)
	return nil
}

// outboundLogContext attaches a LogContext carrying c's endpoint index, the
// (group, id) being sent, and the active span's trace/span IDs (if tracing
// is enabled) to ctx, for the DebugCtx/ErrorCtx calls along the send path.
func (d *Dispatcher) outboundLogContext(ctx context.Context, c *Caller, group Group, id ID) context.Context {
	lc := logger.NewLogContext(c.local.Index).
		WithOperation(uint16(group), uint16(id)).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	return logger.WithContext(ctx, lc)
}

// SendCmdRsp is a convenience variant of SendCmd for callers that want the
// raw response bytes back inline instead of supplying their own decoder.
// The returned slice is a private copy, safe to keep past the call.
func (d *Dispatcher) SendCmdRsp(ctx context.Context, c *Caller, group Group, id ID, payload []byte) ([]byte, error) {
	var rsp []byte
	decode := func(buf []byte) {
		rsp = append([]byte(nil), buf...)
	}
	if err := d.SendCmd(ctx, c, group, id, payload, decode); err != nil {
		return nil, err
	}
	return rsp, nil
}

// SendEvt issues a fire-and-forget event from c. If the event-ack
// discipline is enabled, the call installs the waiting-for-ack flag before
// returning; the corresponding ACK is consumed by a later pump (the next
// Send* on this same endpoint, or this endpoint's own top-level loop) and
// is never waited for inline.
func (d *Dispatcher) SendEvt(ctx context.Context, c *Caller, group Group, id ID, payload []byte) (err error) {
	ctx, span := telemetry.StartCall(ctx, "EVT", uint16(group), uint16(id))
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()
	ctx = d.outboundLogContext(ctx, c, group, id)

	if c.local.WaitingForAck() {
		if code := d.pump(c); code != endpoint.FilteredAck {
			return wire.NewError("dispatcher.SendEvt", wire.KindInternal,
				fmt.Errorf("expected pending ack to clear, got filter code %d", code))
		}
		d.metrics.EventAcked(c.pendingAckGroup, c.pendingAckID, time.Since(c.pendingAckSince))
	}

	remote, err := d.layer.ReserveRemote(ctx)
	if err != nil {
		return wire.NewError("dispatcher.SendEvt", wire.KindNoMem, err)
	}
	defer d.layer.ReleaseRemote(remote)

	if d.cfg.EventAckEnabled {
		c.local.SetWaitingForAck(true)
		c.pendingAckGroup, c.pendingAckID, c.pendingAckSince = group, id, time.Now()
	}

	frame := encodeHeader(group, id, payload)
	logger.DebugCtx(ctx, "sending event", logger.Remote(byte(remote.Index)), logger.Tag(wire.TagEVT.String()))
	if err := d.layer.Send(byte(c.local.Index), remote, wire.TagEVT, frame); err != nil {
		c.local.SetWaitingForAck(false)
		return err
	}

	d.metrics.EventSent(group, id)
	return nil
}

// SendRsp replies to the CMD currently being handled by call. It must be
// called exactly once per inbound CMD; a handler that returns without
// calling it trips the dispatcher's fatal handler.
func (c *Call) SendRsp(payload []byte) error {
	if c.replied {
		return wire.NewError("dispatcher.SendRsp", wire.KindInvalidState,
			fmt.Errorf("RSP already sent for this command"))
	}
	c.replied = true
	remote := endpoint.Remote{Index: c.from}
	return c.d.layer.Send(byte(c.self.local.Index), remote, wire.TagRSP, payload)
}

// SendAck acknowledges the EVT currently being handled by call. It is only
// meaningful when the event-ack discipline is enabled on the peer, but is
// required in that case: a handler that returns without calling it trips
// the dispatcher's fatal handler.
func (c *Call) SendAck() error {
	c.acked = true
	return c.d.sendAckTo(c.self, c.from)
}

// SendCmd issues a nested synchronous command from the endpoint currently
// handling call, reentrant through the same pump that is already unwinding
// above it. Handlers outside this package use this instead of reaching
// into call's own endpoint directly.
func (c *Call) SendCmd(ctx context.Context, group Group, id ID, payload []byte, decode func(rsp []byte)) error {
	return c.d.SendCmd(ctx, c.self, group, id, payload, decode)
}

// SendCmdRsp is the raw-bytes convenience variant of SendCmd.
func (c *Call) SendCmdRsp(ctx context.Context, group Group, id ID, payload []byte) ([]byte, error) {
	return c.d.SendCmdRsp(ctx, c.self, group, id, payload)
}

// SendEvt issues a nested fire-and-forget event from the endpoint currently
// handling call.
func (c *Call) SendEvt(ctx context.Context, group Group, id ID, payload []byte) error {
	return c.d.SendEvt(ctx, c.self, group, id, payload)
}

// Attach lazily assigns a fresh foreign-caller endpoint from call's
// dispatcher. A handler that binds a trampoline to be invoked later, by some
// other goroutine, should attach one of these for that trampoline's
// exclusive use rather than reusing call's own worker endpoint.
func (c *Call) Attach() (*Caller, error) {
	return c.d.Attach()
}

// Dispatcher returns the Dispatcher currently handling call, for handlers
// that need to hold onto it past the handler's own return (e.g. a bound
// trampoline capturing it for later invocation via a different Caller).
func (c *Call) Dispatcher() *Dispatcher {
	return c.d
}

func (d *Dispatcher) sendAckTo(c *Caller, peerSrc byte) error {
	remote := endpoint.Remote{Index: peerSrc}
	return d.layer.Send(byte(c.local.Index), remote, wire.TagACK, nil)
}

// DecodingDone releases the inbound buffer early, as soon as the handler
// has finished copying whatever it needs out of payload. Calling it is
// optional — the dispatcher releases the buffer automatically once the
// handler returns — but a handler that does expensive work after decoding
// should call it promptly so the transport is not held up unnecessarily.
func (c *Call) DecodingDone() {
	c.self.local.SignalDone()
}

// NewTransactionID returns a fresh identifier suitable for correlating one
// outbound call across logs, metrics, and trace spans.
func NewTransactionID() string {
	return uuid.NewString()
}

// encodeHeader prepends a 4-byte (group uint16, id uint16) header to
// payload, matching CommandDecoder/EventDecoder table keys.
func encodeHeader(group Group, id ID, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(group))
	binary.BigEndian.PutUint16(buf[2:4], uint16(id))
	copy(buf[4:], payload)
	return buf
}

func decodeHeader(buf []byte) (Group, ID, []byte, error) {
	if len(buf) < 4 {
		return 0, 0, nil, fmt.Errorf("dispatcher: header too short (%d bytes)", len(buf))
	}
	group := Group(binary.BigEndian.Uint16(buf[0:2]))
	id := ID(binary.BigEndian.Uint16(buf[2:4]))
	return group, id, buf[4:], nil
}

func (d *Dispatcher) replyNotSupported(c *Caller, peerSrc byte, group Group, id ID) {
	remote := endpoint.Remote{Index: peerSrc}
	if err := d.layer.Send(byte(c.local.Index), remote, wire.TagRSP, wire.NotSupportedMarker); err != nil {
		logger.ErrorCtx(d.inboundLogContext(c, group, id), "failed to send not-supported reply",
			logger.Remote(peerSrc), logger.Err(err))
	}
}
