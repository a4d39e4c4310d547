// Package uow implements the Unit-of-Work: a scoped context exposing
// per-aggregate repositories, staging writes in memory until Commit
// writes them to storage one record at a time and — only after every
// write has succeeded — drains and publishes each touched aggregate's
// domain events in emission order. The writes are not atomic as a
// group: if one fails part way, the records already written stay
// written, and no event is published. Rollback discards staged writes
// and buffered events together.
package uow

import (
	"fmt"
	"sync"

	"github.com/hostfactory/aws-provider/pkg/domain/events"
	"github.com/hostfactory/aws-provider/pkg/domain/machine"
	"github.com/hostfactory/aws-provider/pkg/domain/request"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/eventbus"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/repository"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/storage"
)

// UnitOfWork constructs scoped Tx values over a fixed storage Registry
// and event Bus. One UnitOfWork is shared by every command handler;
// Begin is cheap and safe to call concurrently.
type UnitOfWork struct {
	registry *storage.Registry
	bus      *eventbus.Bus
	logger   logging.Port

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per request_id aggregate lock
}

func New(registry *storage.Registry, bus *eventbus.Bus, logger logging.Port) *UnitOfWork {
	if logger == nil {
		logger = logging.NoOpLogger()
	}
	return &UnitOfWork{registry: registry, bus: bus, logger: logger, locks: make(map[string]*sync.Mutex)}
}

func (u *UnitOfWork) lockFor(id string) *sync.Mutex {
	u.locksMu.Lock()
	defer u.locksMu.Unlock()
	l, ok := u.locks[id]
	if !ok {
		l = &sync.Mutex{}
		u.locks[id] = l
	}
	return l
}

// Tx is a single Unit-of-Work scope: staged writes and buffered events
// accumulate here until Commit or Rollback. A Tx is not safe for
// concurrent use by multiple goroutines; each request-handling flow
// gets its own.
type Tx struct {
	uow *UnitOfWork

	heldLocks    []*sync.Mutex
	pendingReqs  []repository.RequestRecord
	pendingMachs []repository.MachineRecord
	pendingTmpls []repository.TemplateRecord
	pendingEvts  []events.Event

	done bool
}

// Begin acquires the per-aggregate locks implied by the request ids the
// caller intends to touch, serializing concurrent transitions on the
// same request_id. Pass no ids for operations (like machine upserts
// from a status poll) that don't mutate a specific Request aggregate.
func (u *UnitOfWork) Begin(requestIDs ...string) *Tx {
	tx := &Tx{uow: u}
	seen := make(map[string]bool, len(requestIDs))
	for _, id := range requestIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		l := u.lockFor(id)
		l.Lock()
		tx.heldLocks = append(tx.heldLocks, l)
	}
	return tx
}

// SaveRequest stages the request's record and drains its pending
// domain events for publication on Commit.
func (tx *Tx) SaveRequest(r *request.Request) {
	tx.pendingReqs = append(tx.pendingReqs, RequestToRecord(r))
	tx.pendingEvts = append(tx.pendingEvts, r.PullEvents()...)
}

// SaveMachine stages a machine record.
func (tx *Tx) SaveMachine(m machine.Machine) {
	tx.pendingMachs = append(tx.pendingMachs, MachineToRecord(m))
}

// Requests/Machines/Templates give read access to the underlying
// repositories directly — reads don't need to go through the staging
// buffer since they observe already-committed state.
func (tx *Tx) Requests() repository.Repository[repository.RequestRecord]   { return tx.uow.registry.Requests }
func (tx *Tx) Machines() repository.Repository[repository.MachineRecord]   { return tx.uow.registry.Machines }
func (tx *Tx) Templates() repository.Repository[repository.TemplateRecord] { return tx.uow.registry.Templates }

// Commit flushes every staged write, then — only once every write has
// succeeded — publishes buffered events in the order they were staged.
// A write failure aborts before any event is published and releases
// locks exactly as Rollback would.
func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("uow: transaction already closed")
	}
	defer tx.release()

	for _, rec := range tx.pendingReqs {
		if err := tx.uow.registry.Requests.Save(rec); err != nil {
			return fmt.Errorf("uow: saving request %s: %w", rec.RequestID, err)
		}
	}
	for _, rec := range tx.pendingMachs {
		if err := tx.uow.registry.Machines.Save(rec); err != nil {
			return fmt.Errorf("uow: saving machine %s: %w", rec.MachineID, err)
		}
	}
	for _, rec := range tx.pendingTmpls {
		if err := tx.uow.registry.Templates.Save(rec); err != nil {
			return fmt.Errorf("uow: saving template %s: %w", rec.TemplateID, err)
		}
	}

	tx.uow.bus.PublishAll(tx.pendingEvts)
	return nil
}

// Rollback discards all staged writes and buffered events and releases
// held locks. Safe to call after a failed Commit has already released
// locks (becomes a no-op).
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.pendingReqs = nil
	tx.pendingMachs = nil
	tx.pendingTmpls = nil
	tx.pendingEvts = nil
	tx.release()
}

func (tx *Tx) release() {
	if tx.done {
		return
	}
	tx.done = true
	for _, l := range tx.heldLocks {
		l.Unlock()
	}
	tx.heldLocks = nil
}
