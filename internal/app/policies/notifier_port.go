package policies

import (
	"context"

	domainbooking "tripnest/internal/domain/booking"
)

// Notifier delivers guest/host notifications. Deliveries are best effort:
// callers log failures and move on, they never roll back business state over
// a notification.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b *domainbooking.Booking) error
	BookingCancelled(ctx context.Context, b *domainbooking.Booking) error
	PaymentFailed(ctx context.Context, b *domainbooking.Booking, detail string) error
}

// NopNotifier ignores all notifications.
type NopNotifier struct{}

func (NopNotifier) BookingConfirmed(context.Context, *domainbooking.Booking) error { return nil }
func (NopNotifier) BookingCancelled(context.Context, *domainbooking.Booking) error { return nil }
func (NopNotifier) PaymentFailed(context.Context, *domainbooking.Booking, string) error {
	return nil
}
