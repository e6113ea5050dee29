package callback

import (
	"fmt"
	"sync"
)

// Trampoline is the locally-callable stand-in for a remote callback. A real
// embedded implementation pre-generates one machine-code stub per slot; Go
// has no equivalent need for generated code, so each slot instead holds a
// closure captured at bind time.
type Trampoline func(args []byte) ([]byte, error)

type outSlot struct {
	bound     bool
	handlerID string
	fn        Trampoline
}

// OutTable is the callee-side fixed-size array of trampoline slots. The
// wire form of a callback is (index, canonical_handler_id); Bind enforces
// that an index, once bound, never silently rebinds to a different
// handler.
type OutTable struct {
	mu    sync.Mutex
	slots []outSlot
}

// NewOutTable constructs an OutTable with a fixed number of slots. A build
// with no trampoline support at all is simply an OutTable of size 0 —
// Bind/Invoke then always fail, leaving only InTable's set/get bookkeeping
// usable.
func NewOutTable(size int) *OutTable {
	return &OutTable{slots: make([]outSlot, size)}
}

// Bind assigns fn as the trampoline for index under handlerID. If index is
// unbound, the binding succeeds. If index is already bound to the same
// handlerID, Bind is a no-op success (idempotent rebind). If index is bound
// to a different handlerID, Bind fails.
func (t *OutTable) Bind(index int, handlerID string, fn Trampoline) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.slots) {
		return fmt.Errorf("callback: out-table index %d out of range [0,%d)", index, len(t.slots))
	}

	s := &t.slots[index]
	if s.bound {
		if s.handlerID != handlerID {
			return fmt.Errorf("callback: index %d already bound to handler %q, cannot rebind to %q", index, s.handlerID, handlerID)
		}
		return nil
	}
	s.bound = true
	s.handlerID = handlerID
	s.fn = fn
	return nil
}

// Get returns the trampoline bound at index along with its handler ID, for
// identity comparisons: it is stable across repeated calls.
func (t *OutTable) Get(index int) (fn Trampoline, handlerID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.slots) || !t.slots[index].bound {
		return nil, "", false
	}
	s := t.slots[index]
	return s.fn, s.handlerID, true
}

// Invoke calls the trampoline bound at index with args, tail-calling into
// the stored handler exactly as a generated stub would.
func (t *OutTable) Invoke(index int, args []byte) ([]byte, error) {
	fn, _, ok := t.Get(index)
	if !ok {
		return nil, fmt.Errorf("callback: no trampoline bound at index %d", index)
	}
	return fn(args)
}
