package bus

import (
	"context"
	"testing"
)

type fakeCommand struct{ Value string }
type fakeQuery struct{ ID string }

func TestCommandBusDispatchesByType(t *testing.T) {
	b := NewCommandBus()
	var got string
	b.Register(fakeCommand{}, func(_ context.Context, cmd any) (any, error) {
		got = cmd.(fakeCommand).Value
		return "ok", nil
	})

	result, err := b.Execute(context.Background(), fakeCommand{Value: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %v", result)
	}
	if got != "hello" {
		t.Fatalf("handler did not receive command, got %q", got)
	}
}

func TestCommandBusUnregisteredTypeErrors(t *testing.T) {
	b := NewCommandBus()
	if _, err := b.Execute(context.Background(), fakeCommand{}); err == nil {
		t.Fatal("expected error for unregistered command type")
	}
}

func TestQueryBusDispatchesByType(t *testing.T) {
	b := NewQueryBus()
	b.Register(fakeQuery{}, func(_ context.Context, q any) (any, error) {
		return q.(fakeQuery).ID + "-result", nil
	})

	result, err := b.Execute(context.Background(), fakeQuery{ID: "req-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "req-1-result" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestQueryBusUnregisteredTypeErrors(t *testing.T) {
	b := NewQueryBus()
	if _, err := b.Execute(context.Background(), fakeQuery{}); err == nil {
		t.Fatal("expected error for unregistered query type")
	}
}
