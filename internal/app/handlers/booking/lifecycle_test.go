package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/apperr"
	"tripnest/internal/infra/storage/memory"
)

func newLifecycleHandler(factory memory.Factory) *LifecycleHandler {
	return &LifecycleHandler{
		UoWFactory: factory,
		Payments:   &stubPayments{},
		Outbox:     memory.NewOutbox(),
	}
}

func requestPending(t *testing.T, factory memory.Factory, guestID string) string {
	t.Helper()
	in, out := futureRange(3)
	res, err := newRequestHandler(factory).Handle(context.Background(), RequestBookingCommand{
		ListingID: "lst-1",
		GuestID:   guestID,
		CheckIn:   in,
		CheckOut:  out,
		Guests:    2,
	})
	require.NoError(t, err)
	return res.BookingID
}

func TestCancelByGuest(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 0, 0, false)
	bookingID := requestPending(t, factory, "guest-1")

	res, err := newLifecycleHandler(factory).HandleCancel(context.Background(), CancelBookingCommand{
		BookingID: bookingID,
		Reason:    "change of plans",
		Actor:     Actor{UserID: "guest-1", Roles: []string{"guest"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", res.State)
}

func TestCancelByListingHost(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 0, 0, false)
	bookingID := requestPending(t, factory, "guest-1")

	res, err := newLifecycleHandler(factory).HandleCancel(context.Background(), CancelBookingCommand{
		BookingID: bookingID,
		Reason:    "maintenance work",
		Actor:     Actor{UserID: "host-1", Roles: []string{"host"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", res.State)
}

func TestCancelByStrangerRejected(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 100_00, 0, 0, false)
	bookingID := requestPending(t, factory, "guest-1")

	_, err := newLifecycleHandler(factory).HandleCancel(context.Background(), CancelBookingCommand{
		BookingID: bookingID,
		Actor:     Actor{UserID: "guest-2", Roles: []string{"guest"}},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsAuthentication(err))
}

func TestApproveRequiresHost(t *testing.T) {
	factory := memory.NewFactory()
	seedListing(t, factory, "lst-1", 0, 0, 0, false)
	bookingID := requestPending(t, factory, "guest-1")

	h := newLifecycleHandler(factory)
	_, err := h.HandleApprove(context.Background(), ApproveBookingCommand{
		BookingID: bookingID,
		Actor:     Actor{UserID: "guest-1", Roles: []string{"guest"}},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsAuthentication(err))

	res, err := h.HandleApprove(context.Background(), ApproveBookingCommand{
		BookingID: bookingID,
		Actor:     Actor{UserID: "host-1", Roles: []string{"host"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", res.State)
}
