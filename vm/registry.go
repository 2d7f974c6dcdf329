package vm

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tolelom/battlechain/core"
)

// ErrUnknownTxType is returned for a transaction no module handles.
var ErrUnknownTxType = errors.New("vm: unknown tx type")

// Handler executes one transaction type. It returns an error to have the
// transaction reverted; events emitted through ctx are then discarded.
type Handler func(ctx *Context, payload json.RawMessage) error

// Registry maps tx types to handlers. Modules fill the package registry
// from init, so registration is done before any block executes.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.TxType]Handler)}
}

// Register panics when typ already has a handler or h is nil.
func (r *Registry) Register(typ core.TxType, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("vm: nil handler for %q", typ))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[typ]; dup {
		panic(fmt.Sprintf("vm: duplicate handler for %q", typ))
	}
	r.handlers[typ] = h
}

func (r *Registry) Execute(typ core.TxType, ctx *Context, payload json.RawMessage) error {
	r.mu.RLock()
	h := r.handlers[typ]
	r.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("%w %q", ErrUnknownTxType, typ)
	}
	return h(ctx, payload)
}

// Types lists the registered tx types in lexical order.
func (r *Registry) Types() []core.TxType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.TxType, 0, len(r.handlers))
	for typ := range r.handlers {
		out = append(out, typ)
	}
	slices.Sort(out)
	return out
}

var globalRegistry = NewRegistry()

// Register adds h to the package registry. Modules call it from init.
func Register(typ core.TxType, h Handler) { globalRegistry.Register(typ, h) }

// Types lists the tx types the linked-in modules handle.
func Types() []core.TxType { return globalRegistry.Types() }
