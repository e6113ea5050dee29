package dispatcher

import "time"

// Metrics receives lifecycle observations from the dispatcher. It is
// optional: a nil Config.Metrics is valid, since New substitutes
// noopMetrics, so embedding a concrete implementation (e.g. a Prometheus
// collector) never changes dispatcher behavior, only its observability.
type Metrics interface {
	// CommandCompleted records one finished outbound SendCmd round trip.
	CommandCompleted(group Group, id ID, d time.Duration, err error)
	// EventSent records one outbound SendEvt.
	EventSent(group Group, id ID)
	// EventAcked records the ack latency for an EVT sent with the
	// event-ack discipline enabled.
	EventAcked(group Group, id ID, d time.Duration)
	// InboundHandled records one inbound CMD or EVT dispatch.
	InboundHandled(group Group, id ID, d time.Duration, err error)
	// CallbackInvoked records one OutTable trampoline invocation.
	CallbackInvoked(handlerID string, err error)
	// RemotePoolWait records how long a caller blocked in ReserveRemote.
	RemotePoolWait(d time.Duration)
}

// noopMetrics implements Metrics with no observable effect; it is the
// default when a Dispatcher is built without one.
type noopMetrics struct{}

func (noopMetrics) CommandCompleted(Group, ID, time.Duration, error) {}
func (noopMetrics) EventSent(Group, ID)                              {}
func (noopMetrics) EventAcked(Group, ID, time.Duration)              {}
func (noopMetrics) InboundHandled(Group, ID, time.Duration, error)   {}
func (noopMetrics) CallbackInvoked(string, error)                    {}
func (noopMetrics) RemotePoolWait(time.Duration)                     {}
