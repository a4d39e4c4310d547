package uow

import (
	"testing"
	"time"

	"github.com/hostfactory/aws-provider/pkg/domain/events"
	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/eventbus"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"

	_ "github.com/hostfactory/aws-provider/pkg/infrastructure/storage/file"
)

func newTestUoW(t *testing.T) (*UnitOfWork, *storage.Registry) {
	t.Helper()
	reg, err := storage.Build("file", map[string]any{"base_dir": t.TempDir()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return New(reg, eventbus.New(nil), nil), reg
}

func newAcquisitionRequest(t *testing.T) (*request.Request, error) {
	t.Helper()
	return request.NewAcquisitionRequest("tmpl-1", 1, "user-1", 1, nil, nil, 0, 0, time.Now())
}

func TestCommitPersistsRequestAndPublishesItsEvents(t *testing.T) {
	u, reg := newTestUoW(t)

	var published []string
	bus := eventbus.New(nil)
	bus.Subscribe("RequestCreated", func(e events.Event) error {
		published = append(published, e.EventType())
		return nil
	})
	u = New(reg, bus, nil)

	r, err := newAcquisitionRequest(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx := u.Begin(r.RequestID)
	tx.SaveRequest(r)
	if err := tx.Commit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok, err := reg.Requests.GetByID(r.RequestID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the request to have been persisted")
	}
	if rec.Status != "pending" {
		t.Fatalf("got status %q, want pending", rec.Status)
	}
	if len(published) != 1 || published[0] != "RequestCreated" {
		t.Fatalf("expected exactly one RequestCreated publication, got %v", published)
	}
}

func TestCommitDrainsPendingEventsFromTheAggregate(t *testing.T) {
	u, _ := newTestUoW(t)
	r, err := newAcquisitionRequest(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := u.Begin(r.RequestID)
	tx.SaveRequest(r)
	if err := tx.Commit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.PullEvents(); len(got) != 0 {
		t.Fatalf("expected SaveRequest to have already drained pending events, got %v", got)
	}
}

func TestRollbackDiscardsStagedWritesAndEvents(t *testing.T) {
	u, reg := newTestUoW(t)
	r, err := newAcquisitionRequest(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := u.Begin(r.RequestID)
	tx.SaveRequest(r)
	tx.Rollback()

	_, ok, err := reg.Requests.GetByID(r.RequestID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a rolled-back transaction to persist nothing")
	}
}

func TestCommitTwiceReturnsAlreadyClosedError(t *testing.T) {
	u, _ := newTestUoW(t)
	r, err := newAcquisitionRequest(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := u.Begin(r.RequestID)
	tx.SaveRequest(r)
	if err := tx.Commit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatal("expected committing an already-closed transaction to error")
	}
}

func TestBeginDeduplicatesRequestIDs(t *testing.T) {
	u, _ := newTestUoW(t)
	tx := u.Begin("req-1", "req-1", "req-1")
	if len(tx.heldLocks) != 1 {
		t.Fatalf("got %d held locks, want 1 for a deduplicated id list", len(tx.heldLocks))
	}
	tx.Rollback()
}

func TestBeginSkipsEmptyRequestIDs(t *testing.T) {
	u, _ := newTestUoW(t)
	tx := u.Begin("", "req-1", "")
	if len(tx.heldLocks) != 1 {
		t.Fatalf("got %d held locks, want 1", len(tx.heldLocks))
	}
	tx.Rollback()
}

func TestSaveMachinePersistsOnCommit(t *testing.T) {
	u, reg := newTestUoW(t)
	tx := u.Begin()
	tx.SaveMachine(machine.Machine{MachineID: "m-1", InstanceID: "i-1", Status: "running"})
	if err := tx.Commit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, ok, err := reg.Machines.GetByID("m-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || rec.Status != "running" {
		t.Fatalf("got %+v, ok=%v", rec, ok)
	}
}

func TestBeginSerializesConcurrentTransactionsOnTheSameRequestID(t *testing.T) {
	u, _ := newTestUoW(t)
	tx1 := u.Begin("req-1")

	acquired := make(chan struct{})
	go func() {
		tx2 := u.Begin("req-1")
		close(acquired)
		tx2.Rollback()
	}()

	select {
	case <-acquired:
		t.Fatal("expected the second Begin on the same request id to block while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	tx1.Rollback()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expected the second Begin to proceed once the first released its lock")
	}
}
