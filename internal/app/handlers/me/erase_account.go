package me

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tripnest/internal/app/commands"
	"tripnest/internal/app/uow"
	"tripnest/internal/apperr"
	domainauth "tripnest/internal/domain/auth"
	domainuser "tripnest/internal/domain/user"
)

const eraseAccountKey = "me.account.erase"

var ErrUnitOfWorkRequired = errors.New("me: unit of work factory required")

type EraseAccountCommand struct {
	UserID string
}

func (c EraseAccountCommand) Key() string { return eraseAccountKey }

type EraseAccountResult struct {
	Erased bool `json:"erased"`
}

// EraseAccountHandler scrubs an account and detaches it from booking history.
// The user row survives for referential integrity; historical bookings keep
// their dates and money figures under an anonymized guest reference. The
// operation is one-way and idempotent.
type EraseAccountHandler struct {
	UoWFactory uow.UoWFactory
	Sessions   domainauth.SessionStore
	Logger     *slog.Logger
}

func (h *EraseAccountHandler) Handle(ctx context.Context, cmd EraseAccountCommand) (*EraseAccountResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	unit, ok := uow.FromContext(ctx)
	managed := false
	committed := false
	if !ok {
		if h.UoWFactory == nil {
			return nil, ErrUnitOfWorkRequired
		}
		var err error
		unit, err = h.UoWFactory.Begin(ctx, uow.TxOptions{})
		if err != nil {
			return nil, err
		}
		ctx = uow.ContextWithUnitOfWork(ctx, unit)
		managed = true
		defer func() {
			if !committed {
				_ = unit.Rollback(ctx)
			}
		}()
	}

	u, err := unit.Users().ByID(ctx, domainuser.ID(userID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	if !u.Erased {
		u.Erase(time.Now())
		if err := unit.Users().Save(ctx, u); err != nil {
			return nil, err
		}
		if err := unit.Booking().AnonymizeGuest(ctx, userID); err != nil {
			return nil, err
		}
	}
	if managed {
		if err := unit.Commit(ctx); err != nil {
			return nil, err
		}
		committed = true
	}

	// Live sessions die with the account; token resolution also rejects
	// erased accounts, so this cleanup is best effort.
	if h.Sessions != nil {
		if err := h.Sessions.DeleteByUser(ctx, u.ID); err != nil && h.Logger != nil {
			h.Logger.WarnContext(ctx, "session cleanup after erasure failed", "user_id", u.ID, "err", err)
		}
	}
	return &EraseAccountResult{Erased: true}, nil
}

var _ commands.Handler[EraseAccountCommand, *EraseAccountResult] = (*EraseAccountHandler)(nil)
