package me

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/apperr"
	domainauth "tripnest/internal/domain/auth"
	domainbooking "tripnest/internal/domain/booking"
	"tripnest/internal/domain/pricing"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
	domainuser "tripnest/internal/domain/user"
	"tripnest/internal/infra/storage/memory"
)

func seedGuestWithBooking(t *testing.T, factory memory.Factory) {
	t.Helper()
	u, err := domainuser.NewUser(domainuser.CreateParams{
		ID:           "guest-1",
		Email:        "guest@example.com",
		Name:         "Guest One",
		PasswordHash: "hash",
		Roles:        []domainuser.Role{domainuser.RoleGuest},
	})
	require.NoError(t, err)
	require.NoError(t, factory.UsersRepo.Save(context.Background(), u))

	start := time.Now().UTC().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	dr, err := daterange.New(start, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	price, err := pricing.Quote(pricing.QuoteParams{
		Nights:      2,
		NightlyRate: money.Must(100_00, "USD"),
	})
	require.NoError(t, err)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:              "bkg-1",
		ListingID:       "lst-1",
		GuestID:         "guest-1",
		Range:           dr,
		Guests:          1,
		Price:           price,
		SpecialRequests: "late arrival",
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	b.ClearEvents()
	require.NoError(t, factory.BookingRepo.Save(context.Background(), b))
}

func TestEraseAccountScrubsUserAndBookings(t *testing.T) {
	factory := memory.NewFactory()
	seedGuestWithBooking(t, factory)
	sessions := memory.NewSessionStore()
	session, err := domainauth.NewSession(domainauth.CreateSessionParams{
		Token:  "tok-1",
		UserID: "guest-1",
		Roles:  []domainuser.Role{domainuser.RoleGuest},
		TTL:    time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, sessions.Save(context.Background(), session))

	h := &EraseAccountHandler{UoWFactory: factory, Sessions: sessions}
	res, err := h.Handle(context.Background(), EraseAccountCommand{UserID: "guest-1"})
	require.NoError(t, err)
	assert.True(t, res.Erased)

	u, err := factory.UsersRepo.ByID(context.Background(), "guest-1")
	require.NoError(t, err)
	assert.True(t, u.Erased)
	assert.NotEqual(t, "guest@example.com", u.Email)
	assert.NotEqual(t, "Guest One", u.Name)

	b, err := factory.BookingRepo.ByID(context.Background(), "bkg-1")
	require.NoError(t, err)
	assert.Equal(t, domainbooking.AnonymizedGuestID, b.GuestID)
	assert.Empty(t, b.SpecialRequests)

	_, err = sessions.Get(context.Background(), "tok-1")
	assert.ErrorIs(t, err, domainauth.ErrSessionNotFound)
}

func TestEraseAccountIdempotent(t *testing.T) {
	factory := memory.NewFactory()
	seedGuestWithBooking(t, factory)
	h := &EraseAccountHandler{UoWFactory: factory}

	_, err := h.Handle(context.Background(), EraseAccountCommand{UserID: "guest-1"})
	require.NoError(t, err)
	res, err := h.Handle(context.Background(), EraseAccountCommand{UserID: "guest-1"})
	require.NoError(t, err)
	assert.True(t, res.Erased)
}

func TestEraseAccountUnknownUser(t *testing.T) {
	h := &EraseAccountHandler{UoWFactory: memory.NewFactory()}
	_, err := h.Handle(context.Background(), EraseAccountCommand{UserID: "nobody"})
	assert.True(t, apperr.IsNotFound(err))
}
