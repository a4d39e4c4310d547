// Package di implements a dependency-injection container: three scopes
// (singleton, transient, scoped), constructor injection via reflection
// over parameter types, circular-dependency detection, and separate
// registries for CQRS handlers so they don't collide with plain
// services.
//
// No IoC/DI library appears anywhere in the retrieval pack (see
// DESIGN.md); this is built directly on reflect.
package di

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Scope controls how many times a factory is invoked.
type Scope int

const (
	// Singleton: constructed once, cached forever.
	Singleton Scope = iota
	// Transient: constructed fresh on every Get.
	Transient
	// Scoped: constructed once per explicit Scope (see Container.BeginScope).
	Scoped
)

type registration struct {
	scope   Scope
	factory func(*Container) (any, error)
	typ     reflect.Type
}

// CircularDependencyError names the full cycle detected during
// resolution.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return "circular dependency detected: " + strings.Join(e.Chain, " -> ")
}

// Container is the DI container. The zero value is not usable; use New.
type Container struct {
	mu          sync.Mutex
	registry    map[reflect.Type]*registration
	singletons  map[reflect.Type]any
	scopedInsts map[reflect.Type]any // per-Container scope cache; a child scope gets its own Container

	// handler registries are kept separate from the plain-service registry
	// so a command handler and a same-typed service never collide.
	commandHandlers map[reflect.Type]any
	queryHandlers   map[reflect.Type]any
	eventHandlers   map[reflect.Type]any

	resolving []reflect.Type // in-flight resolution chain, for cycle detection
}

func New() *Container {
	return &Container{
		registry:        make(map[reflect.Type]*registration),
		singletons:      make(map[reflect.Type]any),
		scopedInsts:     make(map[reflect.Type]any),
		commandHandlers: make(map[reflect.Type]any),
		queryHandlers:   make(map[reflect.Type]any),
		eventHandlers:   make(map[reflect.Type]any),
	}
}

func typeOf[T any]() reflect.Type {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	return t
}

// RegisterInstance registers an already-constructed instance as a
// singleton.
func RegisterInstance[T any](c *Container, instance T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := typeOf[T]()
	c.singletons[t] = instance
	c.registry[t] = &registration{scope: Singleton, typ: t}
}

// RegisterFactory registers a factory function for T with the given
// scope.
func RegisterFactory[T any](c *Container, scope Scope, factory func(*Container) (T, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := typeOf[T]()
	c.registry[t] = &registration{
		scope: scope,
		typ:   t,
		factory: func(c *Container) (any, error) {
			return factory(c)
		},
	}
}

// RegisterType registers a concrete constructor function for T. At
// resolve time each constructor parameter is looked up in the container
// by its reflect.Type and the constructor is invoked through reflection;
// bare interface{} parameters are rejected because the container can't
// identify them by type.
func RegisterType[T any](c *Container, scope Scope, ctor any) error {
	ctorVal := reflect.ValueOf(ctor)
	ctorType := ctorVal.Type()
	if ctorType.Kind() != reflect.Func {
		return fmt.Errorf("di: constructor for %s must be a function", typeOf[T]())
	}
	for i := 0; i < ctorType.NumIn(); i++ {
		if ctorType.In(i).Kind() == reflect.Interface && ctorType.In(i).NumMethod() == 0 {
			return fmt.Errorf("di: constructor parameter %d of %s has no type information (bare interface{})", i, typeOf[T]())
		}
	}
	c.mu.Lock()
	t := typeOf[T]()
	c.registry[t] = &registration{
		scope: scope,
		typ:   t,
		factory: func(c *Container) (any, error) {
			args := make([]reflect.Value, ctorType.NumIn())
			for i := range args {
				paramType := ctorType.In(i)
				resolved, err := c.resolveByReflectType(paramType)
				if err != nil {
					return nil, err
				}
				args[i] = reflect.ValueOf(resolved)
			}
			out := ctorVal.Call(args)
			if len(out) == 2 {
				if errVal := out[1]; !errVal.IsNil() {
					return nil, errVal.Interface().(error)
				}
			}
			return out[0].Interface(), nil
		},
	}
	c.mu.Unlock()
	return nil
}

// Get resolves T, constructing it (and its dependency graph) if
// necessary, and caching per its registered scope.
func Get[T any](c *Container) (T, error) {
	var zero T
	t := typeOf[T]()
	v, err := c.resolveByReflectType(t)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("di: resolved value for %s is not assignable to requested type", t)
	}
	return typed, nil
}

// GetOptional returns the zero value instead of an error when T isn't
// registered.
func GetOptional[T any](c *Container) T {
	v, err := Get[T](c)
	if err != nil {
		var zero T
		return zero
	}
	return v
}

func (c *Container) resolveByReflectType(t reflect.Type) (any, error) {
	c.mu.Lock()
	for _, inFlight := range c.resolving {
		if inFlight == t {
			chain := make([]string, 0, len(c.resolving)+1)
			for _, r := range c.resolving {
				chain = append(chain, r.String())
			}
			chain = append(chain, t.String())
			c.mu.Unlock()
			return nil, &CircularDependencyError{Chain: chain}
		}
	}
	if v, ok := c.singletons[t]; ok {
		c.mu.Unlock()
		return v, nil
	}
	if v, ok := c.scopedInsts[t]; ok {
		c.mu.Unlock()
		return v, nil
	}
	reg, ok := c.registry[t]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("di: no registration for type %s", t)
	}
	c.resolving = append(c.resolving, t)
	c.mu.Unlock()

	v, err := reg.factory(c)

	c.mu.Lock()
	c.resolving = c.resolving[:len(c.resolving)-1]
	if err == nil {
		switch reg.scope {
		case Singleton:
			c.singletons[t] = v
		case Scoped:
			c.scopedInsts[t] = v
		}
	}
	c.mu.Unlock()
	return v, err
}

// BeginScope returns a child container that shares the parent's
// registry and singletons but has its own Scoped-instance cache.
func (c *Container) BeginScope() *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Container{
		registry:        c.registry,
		singletons:      c.singletons,
		scopedInsts:     make(map[reflect.Type]any),
		commandHandlers: c.commandHandlers,
		queryHandlers:   c.queryHandlers,
		eventHandlers:   c.eventHandlers,
	}
}

// RegisterCommandHandler/RegisterQueryHandler/RegisterEventHandler keep
// CQRS handler registrations in their own map so a handler and a
// same-typed plain service never collide, and so the same Go type can
// be registered as a command handler and a query handler without one
// clobbering the other.

func RegisterCommandHandler[T any](c *Container, instance T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commandHandlers[typeOf[T]()] = instance
}

func RegisterQueryHandler[T any](c *Container, instance T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryHandlers[typeOf[T]()] = instance
}

func RegisterEventHandler[T any](c *Container, instance T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandlers[typeOf[T]()] = instance
}

// GetCommandHandler/GetQueryHandler/GetEventHandler retrieve a handler
// registered under its own role-scoped map; ok is false if T was never
// registered in that role.
func GetCommandHandler[T any](c *Container) (T, bool) {
	return lookupHandler[T](c, c.commandHandlers)
}

func GetQueryHandler[T any](c *Container) (T, bool) {
	return lookupHandler[T](c, c.queryHandlers)
}

func GetEventHandler[T any](c *Container) (T, bool) {
	return lookupHandler[T](c, c.eventHandlers)
}

func lookupHandler[T any](c *Container, m map[reflect.Type]any) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	v, ok := m[typeOf[T]()]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
