package dispatcher

import "github.com/marmos91/corerpc/pkg/callback"

// RegisterCallback assigns (or finds) a stable wire index for a local
// callback identity, via this dispatcher's process-wide InTable. Two calls
// with the same key return the same index.
func (d *Dispatcher) RegisterCallback(key callback.Key) int {
	return d.callbacksIn.Set(key)
}

// ResolveCallback recovers the local callback identity serialized at index,
// for the side that originally registered it.
func (d *Dispatcher) ResolveCallback(index int) (callback.Key, bool) {
	return d.callbacksIn.Get(index)
}

// BindTrampoline installs fn as the callee-side trampoline for index, under
// handlerID. Rebinding the same index to the same handlerID is a no-op;
// rebinding to a different handlerID fails.
func (d *Dispatcher) BindTrampoline(index int, handlerID string, fn callback.Trampoline) error {
	return d.callbacksOut.Bind(index, handlerID, fn)
}

// InvokeTrampoline calls the trampoline bound at index with args, recording
// the outcome via Metrics.CallbackInvoked.
func (d *Dispatcher) InvokeTrampoline(index int, args []byte) ([]byte, error) {
	_, handlerID, ok := d.callbacksOut.Get(index)
	if !ok {
		handlerID = "unbound"
	}
	rsp, err := d.callbacksOut.Invoke(index, args)
	d.metrics.CallbackInvoked(handlerID, err)
	return rsp, err
}

// ResolveCallback is the Call-scoped convenience wrapper for
// Dispatcher.ResolveCallback, for handlers outside this package.
func (c *Call) ResolveCallback(index int) (callback.Key, bool) {
	return c.d.ResolveCallback(index)
}

// BindTrampoline is the Call-scoped convenience wrapper for
// Dispatcher.BindTrampoline, for handlers outside this package.
func (c *Call) BindTrampoline(index int, handlerID string, fn callback.Trampoline) error {
	return c.d.BindTrampoline(index, handlerID, fn)
}
