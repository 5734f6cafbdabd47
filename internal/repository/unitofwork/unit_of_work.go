package unitofwork

import (
	"context"

	"devmemory-be/internal/repository/contract"
)

// UnitOfWork scopes repositories to one transaction. Repositories obtained
// before Begin run outside of it.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SessionRepository() contract.SessionRepository
	ContextRepository() contract.ContextRepository
	DecisionRepository() contract.DecisionRepository
	TaskRepository() contract.TaskRepository
	NamingRepository() contract.NamingRepository
	ProjectRepository() contract.ProjectRepository
}
