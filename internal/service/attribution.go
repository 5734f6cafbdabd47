package service

import (
	"context"
	"errors"
	"strings"

	"devmemory-be/internal/apperr"
	"devmemory-be/internal/entity"
	"devmemory-be/internal/repository/unitofwork"
)

func inTx(ctx context.Context, uowFactory unitofwork.RepositoryFactory, fn func(uow unitofwork.UnitOfWork) error) error {
	uow := uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}

// attributedWrite persists an artifact and records it against session.
// requireActive is set when the session was resolved implicitly.
type attributedWrite func(uow unitofwork.UnitOfWork, session *entity.Session, requireActive bool) error

// writeAttributed resolves the owning session (explicit ref or the active
// session) and runs write in one transaction. An explicit session idle past
// the timeout is demoted first, so the write lands as a late attribution
// without moving its last activity. When the implicitly resolved
// session is demoted before the write lands, resolution and write are
// retried once.
func writeAttributed(
	ctx context.Context,
	uowFactory unitofwork.RepositoryFactory,
	sessions ISessionService,
	ref string,
	write attributedWrite,
) (*entity.Session, error) {
	implicit := strings.TrimSpace(ref) == ""

	for attempt := 0; ; attempt++ {
		var (
			session *entity.Session
			err     error
		)
		if implicit {
			session, err = sessions.CurrentSession(ctx)
		} else {
			session, err = sessions.LookupSession(ctx, ref)
			if err == nil {
				session, err = sessions.SettleStale(ctx, session)
			}
		}
		if err != nil {
			return nil, err
		}

		err = inTx(ctx, uowFactory, func(uow unitofwork.UnitOfWork) error {
			return write(uow, session, implicit)
		})
		if errors.Is(err, apperr.ErrTimeoutRace) && implicit && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}
