package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	"tripnest/internal/domain/shared/daterange"
)

// ListingRepository is an in-memory implementation for tests and local runs.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{
		items: make(map[domainlistings.ListingID]*domainlistings.Listing),
	}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrListingNotFound
	}
	clone := *listing
	return &clone, nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing.Version++
	clone := *listing
	r.items[listing.ID] = &clone
	return nil
}

// BookingRepository stores bookings in memory.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// Save enforces the optimistic version check: the caller must hold the
// version it loaded or the write is rejected as a lost race.
func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[b.ID]; ok && existing.Version != b.Version {
		return domainbooking.ErrConcurrentUpdate
	}
	b.Version++
	r.items[b.ID] = cloneBooking(b)
	return nil
}

func (r *BookingRepository) ListByGuest(ctx context.Context, guestID string) ([]*domainbooking.Booking, error) {
	id := strings.TrimSpace(guestID)
	if id == "" {
		return nil, errors.New("memory: guest id required")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if b.GuestID == id {
			matches = append(matches, cloneBooking(b))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

func (r *BookingRepository) ListByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if b.ListingID == listingID {
			matches = append(matches, cloneBooking(b))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Range.CheckIn.Before(matches[j].Range.CheckIn)
	})
	return matches, nil
}

func (r *BookingRepository) FindOverlapping(ctx context.Context, listingID domainlistings.ListingID, dr daterange.DateRange, states []domainbooking.BookingState) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stateSet := make(map[domainbooking.BookingState]struct{}, len(states))
	for _, s := range states {
		stateSet[s] = struct{}{}
	}
	matches := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if b.ListingID != listingID {
			continue
		}
		if _, ok := stateSet[b.State]; !ok {
			continue
		}
		if b.Range.Overlaps(dr) {
			matches = append(matches, cloneBooking(b))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Range.CheckIn.Before(matches[j].Range.CheckIn)
	})
	return matches, nil
}

func (r *BookingRepository) ByPaymentIntent(ctx context.Context, intentID string) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.items {
		if b.PaymentIntentID != "" && b.PaymentIntentID == intentID {
			return cloneBooking(b), nil
		}
	}
	return nil, domainbooking.ErrBookingNotFound
}

func (r *BookingRepository) AnonymizeGuest(ctx context.Context, guestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.items {
		if b.GuestID == guestID {
			b.GuestID = domainbooking.AnonymizedGuestID
			b.SpecialRequests = ""
		}
	}
	return nil
}

func cloneBooking(b *domainbooking.Booking) *domainbooking.Booking {
	clone := *b
	clone.Price = b.Price.Copy()
	return &clone
}

var _ domainlistings.ListingRepository = (*ListingRepository)(nil)
var _ domainbooking.Repository = (*BookingRepository)(nil)
