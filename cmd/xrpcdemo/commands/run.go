package commands

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/corerpc/internal/logger"
	"github.com/marmos91/corerpc/internal/telemetry"
	"github.com/marmos91/corerpc/pkg/bufpool"
	"github.com/marmos91/corerpc/pkg/callback"
	"github.com/marmos91/corerpc/pkg/config"
	"github.com/marmos91/corerpc/pkg/dispatcher"
	promcorerpc "github.com/marmos91/corerpc/pkg/metrics/prometheus"
	"github.com/marmos91/corerpc/pkg/transport"
	"github.com/marmos91/corerpc/pkg/wire"
)

const (
	groupDemo dispatcher.Group = 1

	idEcho             dispatcher.ID = 0x01
	idOuter            dispatcher.ID = 0x10
	idInner            dispatcher.ID = 0x20
	idNotify           dispatcher.ID = 0x30
	idSlow             dispatcher.ID = 0x31
	idRegisterCallback dispatcher.ID = 0x40
	idInvokeCallback   dispatcher.ID = 0x41
	idUnknown          dispatcher.ID = 0xEE
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo scenario sequence against two in-process dispatchers",
	RunE:  runDemo,
}

func workerAddrs(n int) []byte {
	addrs := make([]byte, n)
	for i := range addrs {
		addrs[i] = byte(i)
	}
	return addrs
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "xrpcdemo",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	var metrics dispatcher.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		m := promcorerpc.New(reg)
		metrics = m
		metricsShutdown, err := promcorerpc.Serve(ctx, reg, fmt.Sprintf(":%d", cfg.Metrics.Port))
		if err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
		defer func() {
			if err := metricsShutdown(context.Background()); err != nil {
				logger.Error("metrics server shutdown failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint listening", "port", cfg.Metrics.Port)
	}

	alice, bob, cancelPools, wait, err := buildDemoPair(cfg, metrics)
	if err != nil {
		return err
	}
	defer func() {
		cancelPools()
		wait()
	}()

	logger.Info("dispatcher pair ready", "pool_size", cfg.PoolSize, "extra_endpoints", cfg.ExtraEndpoints, "event_ack_enabled", cfg.EventAckEnabled)

	if err := scenarioRoundTrip(ctx, alice); err != nil {
		return fmt.Errorf("round-trip scenario: %w", err)
	}
	if err := scenarioNestedCall(ctx, alice); err != nil {
		return fmt.Errorf("nested-call scenario: %w", err)
	}
	if cfg.EventAckEnabled {
		if err := scenarioEventThenCommand(ctx, alice); err != nil {
			return fmt.Errorf("event-ack scenario: %w", err)
		}
	}
	if err := scenarioBackpressure(ctx, alice); err != nil {
		return fmt.Errorf("backpressure scenario: %w", err)
	}
	if err := scenarioCallbackRoundTrip(ctx, alice, bob); err != nil {
		return fmt.Errorf("callback scenario: %w", err)
	}
	if err := scenarioUnknownCommand(ctx, alice); err != nil {
		return fmt.Errorf("unknown-command scenario: %w", err)
	}

	logger.Info("all scenarios completed")
	return nil
}

// buildDemoPair wires two Dispatchers ("alice" and "bob") together over a
// Loopback pair and registers bob's side of every demo scenario, starting
// both pools' permanent worker goroutines. The returned cancel/wait pair
// shuts the pools down cleanly.
func buildDemoPair(cfg *config.Config, metrics dispatcher.Metrics) (alice, bob *dispatcher.Dispatcher, cancel context.CancelFunc, wait func(), err error) {
	regAlice := dispatcher.NewRegistry()
	regBob := dispatcher.NewRegistry()
	registerEcho(regBob)
	registerOuterInner(regAlice, regBob)
	registerNotify(regBob)
	registerSlow(regBob)
	registerCallbackCommands(regAlice, regBob)

	var dispA, dispB *dispatcher.Dispatcher
	handlerA := func(buf []byte, kind transport.EventKind, err error) { dispA.HandleFrame(buf, kind, err) }
	handlerB := func(buf []byte, kind transport.EventKind, err error) { dispB.HandleFrame(buf, kind, err) }
	transA, transB := transport.NewLoopbackPair(handlerA, handlerB)

	// This demo is symmetric: both sides share dispCfg, so the peer's
	// addressable worker range is exactly [0, cfg.PoolSize).
	peerAddrs := workerAddrs(cfg.PoolSize)
	bufCfg := &bufpool.Config{SmallSize: cfg.BufferPool.SmallSize, LargeSize: cfg.BufferPool.LargeSize}

	dispCfg := dispatcher.Config{
		PoolSize:        cfg.PoolSize,
		ExtraEndpoints:  cfg.ExtraEndpoints,
		PeerAddrs:       peerAddrs,
		EventAckEnabled: cfg.EventAckEnabled,
		Metrics:         metrics,
		CallbackSlots:   cfg.CallbackSlots,
		BufferPool:      bufCfg,
	}

	dispA = dispatcher.New(dispCfg, transA, regAlice)
	dispB = dispatcher.New(dispCfg, transB, regBob)

	bgCtx := context.Background()
	if err := dispA.Init(bgCtx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init alice: %w", err)
	}
	if err := dispB.Init(bgCtx); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init bob: %w", err)
	}

	poolA := dispatcher.NewThreadPool(dispA, cfg.PoolSize)
	poolB := dispatcher.NewThreadPool(dispB, cfg.PoolSize)

	ctx, cancel := context.WithCancel(bgCtx)
	go poolA.Run(ctx)
	go poolB.Run(ctx)

	wait = func() {
		poolA.Wait()
		poolB.Wait()
	}
	return dispA, dispB, cancel, wait, nil
}

func registerEcho(reg *dispatcher.Registry) {
	reg.RegisterCommand(groupDemo, idEcho, "echo", func(c *dispatcher.Call, payload []byte) error {
		x := binary.LittleEndian.Uint16(payload)
		rsp := make([]byte, 2)
		binary.LittleEndian.PutUint16(rsp, x+1)
		return c.SendRsp(rsp)
	})
}

func registerOuterInner(regCaller, regCallee *dispatcher.Registry) {
	regCaller.RegisterCommand(groupDemo, idInner, "inner", func(c *dispatcher.Call, payload []byte) error {
		return c.SendRsp([]byte{0x55})
	})

	regCallee.RegisterCommand(groupDemo, idOuter, "outer", func(c *dispatcher.Call, payload []byte) error {
		var inner byte
		if err := c.SendCmd(context.Background(), groupDemo, idInner, nil, func(rsp []byte) {
			inner = rsp[0]
		}); err != nil {
			return err
		}
		return c.SendRsp([]byte{inner ^ 0xFF})
	})
}

func registerNotify(reg *dispatcher.Registry) {
	reg.RegisterEvent(groupDemo, idNotify, "notify", func(c *dispatcher.Call, payload []byte) error {
		logger.Info("bob: received notify event", "payload", string(payload))
		return c.SendAck()
	})
}

func registerSlow(reg *dispatcher.Registry) {
	reg.RegisterCommand(groupDemo, idSlow, "slow", func(c *dispatcher.Call, payload []byte) error {
		time.Sleep(20 * time.Millisecond)
		return c.SendRsp(nil)
	})
}

func registerCallbackCommands(regCaller, regCallee *dispatcher.Registry) {
	regCaller.RegisterCommand(groupDemo, idInvokeCallback, "invoke_callback", func(c *dispatcher.Call, payload []byte) error {
		idx := int(binary.LittleEndian.Uint16(payload[:2]))
		if _, ok := c.ResolveCallback(idx); !ok {
			return c.SendRsp(nil)
		}
		n := binary.LittleEndian.Uint32(payload[2:])
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, n*2)
		return c.SendRsp(out)
	})

	regCallee.RegisterCommand(groupDemo, idRegisterCallback, "register_callback", func(c *dispatcher.Call, payload []byte) error {
		idx := int(binary.LittleEndian.Uint16(payload))
		idxBytes := append([]byte(nil), payload[:2]...)

		// A fresh endpoint owned solely by this trampoline, never call's
		// own worker endpoint: the trampoline may be invoked long after
		// this handler returns, by a different goroutine.
		outboundCaller, err := c.Attach()
		if err != nil {
			return err
		}
		d := c.Dispatcher()
		trampoline := func(args []byte) ([]byte, error) {
			req := append(append([]byte(nil), idxBytes...), args...)
			return d.SendCmdRsp(context.Background(), outboundCaller, groupDemo, idInvokeCallback, req)
		}
		if err := c.BindTrampoline(idx, "double", trampoline); err != nil {
			return err
		}
		return c.SendRsp(nil)
	})
}

func scenarioRoundTrip(ctx context.Context, alice *dispatcher.Dispatcher) error {
	caller, err := alice.Attach()
	if err != nil {
		return err
	}
	var got uint16
	if err := alice.SendCmd(ctx, caller, groupDemo, idEcho, []byte{0x0A, 0x00}, func(rsp []byte) {
		got = binary.LittleEndian.Uint16(rsp)
	}); err != nil {
		return err
	}
	logger.Info("scenario: round-trip integer", "sent", 10, "got", got)
	return nil
}

func scenarioNestedCall(ctx context.Context, alice *dispatcher.Dispatcher) error {
	caller, err := alice.Attach()
	if err != nil {
		return err
	}
	var result byte
	if err := alice.SendCmd(ctx, caller, groupDemo, idOuter, nil, func(rsp []byte) {
		result = rsp[0]
	}); err != nil {
		return err
	}
	logger.Info("scenario: nested call", "result", result)
	return nil
}

func scenarioEventThenCommand(ctx context.Context, alice *dispatcher.Dispatcher) error {
	caller, err := alice.Attach()
	if err != nil {
		return err
	}
	if err := alice.SendEvt(ctx, caller, groupDemo, idNotify, []byte("hello")); err != nil {
		return err
	}
	var got uint16
	if err := alice.SendCmd(ctx, caller, groupDemo, idEcho, []byte{1, 0}, func(rsp []byte) {
		got = binary.LittleEndian.Uint16(rsp)
	}); err != nil {
		return err
	}
	logger.Info("scenario: event then command", "echo_result", got)
	return nil
}

func scenarioBackpressure(ctx context.Context, alice *dispatcher.Dispatcher) error {
	const concurrent = 3
	errs := make(chan error, concurrent)
	for i := 0; i < concurrent; i++ {
		go func() {
			c, err := alice.Attach()
			if err != nil {
				errs <- err
				return
			}
			errs <- alice.SendCmd(ctx, c, groupDemo, idSlow, nil, func([]byte) {})
		}()
	}
	for i := 0; i < concurrent; i++ {
		if err := <-errs; err != nil {
			return err
		}
	}
	logger.Info("scenario: backpressure", "concurrent_callers", concurrent)
	return nil
}

func scenarioCallbackRoundTrip(ctx context.Context, alice, bob *dispatcher.Dispatcher) error {
	double := func(args []byte) []byte {
		n := binary.LittleEndian.Uint32(args)
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, n*2)
		return out
	}
	idx := alice.RegisterCallback(callback.FuncKey(double))

	caller, err := alice.Attach()
	if err != nil {
		return err
	}
	idxBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(idxBytes, uint16(idx))
	if err := alice.SendCmd(ctx, caller, groupDemo, idRegisterCallback, idxBytes, func([]byte) {}); err != nil {
		return err
	}

	args := make([]byte, 4)
	binary.LittleEndian.PutUint32(args, 21)
	rsp, err := bob.InvokeTrampoline(idx, args)
	if err != nil {
		return err
	}
	logger.Info("scenario: callback round trip", "result", binary.LittleEndian.Uint32(rsp))
	return nil
}

func scenarioUnknownCommand(ctx context.Context, alice *dispatcher.Dispatcher) error {
	caller, err := alice.Attach()
	if err != nil {
		return err
	}
	err = alice.SendCmd(ctx, caller, groupDemo, idUnknown, nil, func(rsp []byte) {
		panic("decode must not run for a not-supported reply")
	})
	if wire.KindOf(err) != wire.KindNotSupported {
		if err == nil {
			return fmt.Errorf("expected a not-supported error, got none")
		}
		return err
	}
	logger.Info("scenario: unknown command", "kind", wire.KindNotSupported.String())
	return nil
}
