package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// QueryHandler answers one query type. Queries must not mutate state.
type QueryHandler func(ctx context.Context, query any) (any, error)

// QueryBus maps a query's concrete Go type to its single handler.
type QueryBus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]QueryHandler
}

func NewQueryBus() *QueryBus {
	return &QueryBus{handlers: make(map[reflect.Type]QueryHandler)}
}

func (b *QueryBus) Register(query any, handler QueryHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[reflect.TypeOf(query)] = handler
}

func (b *QueryBus) Execute(ctx context.Context, query any) (any, error) {
	b.mu.RLock()
	h, ok := b.handlers[reflect.TypeOf(query)]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bus: no query handler registered for %T", query)
	}
	return h(ctx, query)
}
