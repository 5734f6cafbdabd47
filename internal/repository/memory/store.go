// Package memory is a process-local implementation of the repository
// contracts. It enforces the same invariants as the PostgreSQL schema
// (single active session, unique names, compare-and-set demotion) and backs
// the test suite and STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"devmemory-be/internal/entity"
	"devmemory-be/internal/repository/contract"
	"devmemory-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// dataset maps are copy-on-write at the value level: a stored pointer is
// never mutated, updates replace it. That makes a shallow map copy a valid
// snapshot.
type dataset struct {
	sessions  map[uuid.UUID]*entity.Session
	contexts  map[uuid.UUID]*entity.ContextEntry
	decisions map[uuid.UUID]*entity.Decision
	tasks     map[uuid.UUID]*entity.Task
	naming    map[uuid.UUID]*entity.NamingEntry
	projects  map[uuid.UUID]*entity.Project
}

func newDataset() *dataset {
	return &dataset{
		sessions:  map[uuid.UUID]*entity.Session{},
		contexts:  map[uuid.UUID]*entity.ContextEntry{},
		decisions: map[uuid.UUID]*entity.Decision{},
		tasks:     map[uuid.UUID]*entity.Task{},
		naming:    map[uuid.UUID]*entity.NamingEntry{},
		projects:  map[uuid.UUID]*entity.Project{},
	}
}

func (d *dataset) snapshot() *dataset {
	return &dataset{
		sessions:  copyMap(d.sessions),
		contexts:  copyMap(d.contexts),
		decisions: copyMap(d.decisions),
		tasks:     copyMap(d.tasks),
		naming:    copyMap(d.naming),
		projects:  copyMap(d.projects),
	}
}

func copyMap[V any](src map[uuid.UUID]*V) map[uuid.UUID]*V {
	dst := make(map[uuid.UUID]*V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Store serializes every access behind one mutex. A unit of work holds the
// mutex from Begin until Commit or Rollback.
type Store struct {
	mu   sync.Mutex
	data *dataset

	// Sequences are not transactional, like a PostgreSQL sequence.
	seqMu sync.Mutex
	seq   int64
}

func NewStore() *Store {
	return &Store{data: newDataset()}
}

func (s *Store) nextSeq() int64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq++
	return s.seq
}

// access runs fn against the live dataset, taking the lock unless the
// caller's unit of work already holds it.
type access struct {
	store  *Store
	locked bool
}

func (a access) run(fn func(d *dataset) error) error {
	if !a.locked {
		a.store.mu.Lock()
		defer a.store.mu.Unlock()
	}
	return fn(a.store.data)
}

type RepositoryFactory struct {
	store *Store
}

func NewRepositoryFactory(store *Store) unitofwork.RepositoryFactory {
	return &RepositoryFactory{store: store}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &UnitOfWork{store: f.store}
}

type UnitOfWork struct {
	store    *Store
	inTx     bool
	snapshot *dataset
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.inTx {
		return fmt.Errorf("transaction already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	u.store.mu.Lock()
	u.snapshot = u.store.data.snapshot()
	u.inTx = true
	return nil
}

func (u *UnitOfWork) Commit() error {
	if !u.inTx {
		return fmt.Errorf("no transaction to commit")
	}
	u.snapshot = nil
	u.inTx = false
	u.store.mu.Unlock()
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if !u.inTx {
		return fmt.Errorf("no transaction to rollback")
	}
	u.store.data = u.snapshot
	u.snapshot = nil
	u.inTx = false
	u.store.mu.Unlock()
	return nil
}

func (u *UnitOfWork) access() access {
	return access{store: u.store, locked: u.inTx}
}

func (u *UnitOfWork) SessionRepository() contract.SessionRepository {
	return &SessionRepository{access: u.access()}
}

func (u *UnitOfWork) ContextRepository() contract.ContextRepository {
	return &ContextRepository{access: u.access()}
}

func (u *UnitOfWork) DecisionRepository() contract.DecisionRepository {
	return &DecisionRepository{access: u.access()}
}

func (u *UnitOfWork) TaskRepository() contract.TaskRepository {
	return &TaskRepository{access: u.access()}
}

func (u *UnitOfWork) NamingRepository() contract.NamingRepository {
	return &NamingRepository{access: u.access()}
}

func (u *UnitOfWork) ProjectRepository() contract.ProjectRepository {
	return &ProjectRepository{access: u.access()}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
