// Package bus implements the command and query dispatchers: each is a
// map from message type to exactly one handler, resolved statically at
// wiring time. Event dispatch (many handlers, ordered, errors swallowed)
// lives in pkg/infrastructure/eventbus instead — it has different fan-out
// semantics from these two.
package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// CommandHandler executes one command type and returns a scalar result
// (typically the affected aggregate's id).
type CommandHandler func(ctx context.Context, cmd any) (any, error)

// CommandBus maps a command's concrete Go type to its single handler.
type CommandBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]CommandHandler
}

func NewCommandBus() *CommandBus {
	return &CommandBus{handlers: make(map[reflect.Type]CommandHandler)}
}

// Register binds cmd's type to handler. Registering a second handler
// for the same type replaces the first — handler registration happens
// once at wiring time, so this is a configuration error if it happens
// twice in practice, but the bus doesn't police that itself.
func (b *CommandBus) Register(cmd any, handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[reflect.TypeOf(cmd)] = handler
}

// Execute resolves cmd's handler by its concrete type and invokes it.
func (b *CommandBus) Execute(ctx context.Context, cmd any) (any, error) {
	b.mu.RLock()
	h, ok := b.handlers[reflect.TypeOf(cmd)]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bus: no command handler registered for %T", cmd)
	}
	return h(ctx, cmd)
}
