package di

import (
	"errors"
	"testing"
)

type Engine interface{ Start() string }

type v8Engine struct{ id int }

func (e *v8Engine) Start() string { return "v8 running" }

type Car struct {
	Engine Engine
}

func TestRegisterInstanceAndGetReturnsTheSameValue(t *testing.T) {
	c := New()
	RegisterInstance[Engine](c, &v8Engine{id: 1})
	got, err := Get[Engine](c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Start() != "v8 running" {
		t.Fatalf("got %q", got.Start())
	}
}

func TestRegisterFactorySingletonIsConstructedOnce(t *testing.T) {
	c := New()
	var builds int
	RegisterFactory(c, Singleton, func(*Container) (*v8Engine, error) {
		builds++
		return &v8Engine{id: builds}, nil
	})
	first, err := Get[*v8Engine](c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Get[*v8Engine](c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if builds != 1 {
		t.Fatalf("got %d builds, want 1 for a singleton", builds)
	}
	if first != second {
		t.Fatal("expected the same pointer back for a singleton")
	}
}

func TestRegisterFactoryTransientIsConstructedEveryCall(t *testing.T) {
	c := New()
	var builds int
	RegisterFactory(c, Transient, func(*Container) (*v8Engine, error) {
		builds++
		return &v8Engine{id: builds}, nil
	})
	first, _ := Get[*v8Engine](c)
	second, _ := Get[*v8Engine](c)
	if builds != 2 {
		t.Fatalf("got %d builds, want 2 for a transient", builds)
	}
	if first == second {
		t.Fatal("expected distinct pointers for a transient")
	}
}

func TestRegisterFactoryPropagatesError(t *testing.T) {
	c := New()
	wantErr := errors.New("construction failed")
	RegisterFactory(c, Singleton, func(*Container) (*v8Engine, error) {
		return nil, wantErr
	})
	_, err := Get[*v8Engine](c)
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestGetUnregisteredTypeReturnsError(t *testing.T) {
	c := New()
	if _, err := Get[*v8Engine](c); err == nil {
		t.Fatal("expected an error for an unregistered type")
	}
}

func TestGetOptionalReturnsZeroValueWhenUnregistered(t *testing.T) {
	c := New()
	got := GetOptional[*v8Engine](c)
	if got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestRegisterTypeInjectsConstructorDependencies(t *testing.T) {
	c := New()
	RegisterInstance[Engine](c, &v8Engine{id: 7})
	if err := RegisterType[*Car](c, Singleton, func(e Engine) (*Car, error) {
		return &Car{Engine: e}, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	car, err := Get[*Car](c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if car.Engine.Start() != "v8 running" {
		t.Fatalf("got %q", car.Engine.Start())
	}
}

func TestRegisterTypeRejectsBareInterfaceParameters(t *testing.T) {
	c := New()
	err := RegisterType[*Car](c, Singleton, func(x any) (*Car, error) {
		return &Car{}, nil
	})
	if err == nil {
		t.Fatal("expected a bare interface{} constructor parameter to be rejected")
	}
}

type selfReferencing struct{ Other *selfReferencing }

func TestCircularDependencyIsDetected(t *testing.T) {
	c := New()
	if err := RegisterType[*selfReferencing](c, Singleton, func(s *selfReferencing) (*selfReferencing, error) {
		return &selfReferencing{Other: s}, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := Get[*selfReferencing](c)
	var cycleErr *CircularDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("got %v, want *CircularDependencyError", err)
	}
}

func TestBeginScopeGivesEachScopeItsOwnScopedInstance(t *testing.T) {
	c := New()
	var builds int
	RegisterFactory(c, Scoped, func(*Container) (*v8Engine, error) {
		builds++
		return &v8Engine{id: builds}, nil
	})

	scopeA := c.BeginScope()
	scopeB := c.BeginScope()

	a1, _ := Get[*v8Engine](scopeA)
	a2, _ := Get[*v8Engine](scopeA)
	b1, _ := Get[*v8Engine](scopeB)

	if a1 != a2 {
		t.Fatal("expected the same scoped instance within one scope")
	}
	if a1 == b1 {
		t.Fatal("expected distinct scoped instances across different scopes")
	}
	if builds != 2 {
		t.Fatalf("got %d builds, want 2 (one per scope)", builds)
	}
}

type fakeCommandHandler struct{ name string }
type fakeQueryHandler struct{ name string }

func TestCommandAndQueryHandlerRegistriesAreKeptSeparate(t *testing.T) {
	c := New()
	RegisterCommandHandler[*fakeCommandHandler](c, &fakeCommandHandler{name: "cmd"})
	RegisterQueryHandler[*fakeQueryHandler](c, &fakeQueryHandler{name: "query"})

	cmd, ok := GetCommandHandler[*fakeCommandHandler](c)
	if !ok || cmd.name != "cmd" {
		t.Fatalf("got %+v, ok=%v", cmd, ok)
	}
	query, ok := GetQueryHandler[*fakeQueryHandler](c)
	if !ok || query.name != "query" {
		t.Fatalf("got %+v, ok=%v", query, ok)
	}

	if _, ok := GetQueryHandler[*fakeCommandHandler](c); ok {
		t.Fatal("expected a command handler to not be visible through the query handler registry")
	}
}

func TestGetCommandHandlerUnregisteredReturnsNotOK(t *testing.T) {
	c := New()
	if _, ok := GetCommandHandler[*fakeCommandHandler](c); ok {
		t.Fatal("expected ok=false for an unregistered command handler")
	}
}
