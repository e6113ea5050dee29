package dispatcher

import (
	"fmt"
	"sync"
)

// ID identifies one registered command or event within a Group.
type ID uint16

// Group partitions the (group, id) namespace the way a real deployment
// would split procedures across subsystems (mirroring how portmap, mount,
// and NFS each get their own procedure table over one RPC transport).
type Group uint16

type key struct {
	group Group
	id    ID
}

// Call is handed to a CommandHandler or EventHandler for the duration of
// one inbound dispatch. It identifies which caller endpoint sent the frame
// and lets the handler reply.
type Call struct {
	d    *Dispatcher
	from byte // peer-side endpoint address the frame arrived from
	self *Caller

	// replied/acked record whether SendRsp/SendAck fired during this
	// dispatch, so handleCommand/handleEvent can detect a handler that
	// returned without sending its mandatory reply.
	replied bool
	acked   bool
}

// CommandHandler processes one inbound CMD. It must call c.SendRsp exactly
// once before returning; the dispatcher treats a handler that returns
// without having replied as a fatal protocol violation, since the caller
// on the other side is blocked waiting for exactly one RSP.
type CommandHandler func(c *Call, payload []byte) error

// EventHandler processes one inbound EVT. If the event-ack discipline is
// enabled it must call c.SendAck exactly once.
type EventHandler func(c *Call, payload []byte) error

// commandEntry and eventEntry carry a name alongside the handler purely for
// logging and metrics labels.
type commandEntry struct {
	name    string
	handler CommandHandler
}

type eventEntry struct {
	name    string
	handler EventHandler
}

// Registry is the dispatch table mapping (group, id) to the handler that
// decodes and executes it. It is built once at startup and read concurrently
// by every pool worker thereafter.
type Registry struct {
	mu   sync.RWMutex
	cmds map[key]commandEntry
	evts map[key]eventEntry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		cmds: make(map[key]commandEntry),
		evts: make(map[key]eventEntry),
	}
}

// RegisterCommand binds a CommandHandler to (group, id). Registering the
// same (group, id) twice is a programmer error and panics immediately,
// matching how a fixed compile-time dispatch table would fail to build.
func (r *Registry) RegisterCommand(group Group, id ID, name string, h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{group, id}
	if _, exists := r.cmds[k]; exists {
		panic(fmt.Sprintf("dispatcher: command (%d,%d) already registered", group, id))
	}
	r.cmds[k] = commandEntry{name: name, handler: h}
}

// RegisterEvent binds an EventHandler to (group, id).
func (r *Registry) RegisterEvent(group Group, id ID, name string, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{group, id}
	if _, exists := r.evts[k]; exists {
		panic(fmt.Sprintf("dispatcher: event (%d,%d) already registered", group, id))
	}
	r.evts[k] = eventEntry{name: name, handler: h}
}

func (r *Registry) lookupCommand(group Group, id ID) (commandEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cmds[key{group, id}]
	return e, ok
}

func (r *Registry) lookupEvent(group Group, id ID) (eventEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evts[key{group, id}]
	return e, ok
}
