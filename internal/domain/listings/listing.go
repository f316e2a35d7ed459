package listings

import (
	"context"
	"errors"
	"strings"
	"time"

	"tripnest/internal/domain/shared/events"
	"tripnest/internal/domain/shared/money"
)

var (
	ErrGuestsLimit     = errors.New("listings: guests limit must be at least 1")
	ErrNightsRange     = errors.New("listings: min nights must be <= max nights")
	ErrInvalidState    = errors.New("listings: invalid state transition")
	ErrTitleRequired   = errors.New("listings: title is required")
	ErrNightlyRate     = errors.New("listings: nightly rate must be non-negative")
	ErrListingNotFound = errors.New("listings: not found")
)

type ListingID string
type HostID string

type ListingState string

const (
	ListingDraft     ListingState = "DRAFT"
	ListingActive    ListingState = "ACTIVE"
	ListingSuspended ListingState = "SUSPENDED"
)

type Address struct {
	Line1   string
	Line2   string
	City    string
	Country string
}

type Listing struct {
	ID                   ListingID
	Host                 HostID
	Title                string
	Description          string
	Address              Address
	GuestsLimit          int
	MinNights            int
	MaxNights            int
	CancellationPolicyID string
	State                ListingState
	// InstantBook listings skip host approval: a reservation is created
	// directly in the confirmed state.
	InstantBook      bool
	Currency         string
	NightlyRateCents int64
	CleaningFeeCents int64
	ServiceFeeCents  int64
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	events.EventRecorder
}

type ListingRepository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
}

type CreateListingParams struct {
	ID                   ListingID
	Host                 HostID
	Title                string
	Description          string
	Address              Address
	GuestsLimit          int
	MinNights            int
	MaxNights            int
	CancellationPolicyID string
	InstantBook          bool
	Currency             string
	NightlyRateCents     int64
	CleaningFeeCents     int64
	ServiceFeeCents      int64
	Now                  time.Time
}

func NewListing(params CreateListingParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("listings: id is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, ErrTitleRequired
	}
	if params.GuestsLimit < 1 {
		return nil, ErrGuestsLimit
	}
	if params.MinNights > 0 && params.MaxNights > 0 && params.MinNights > params.MaxNights {
		return nil, ErrNightsRange
	}
	if params.NightlyRateCents < 0 || params.CleaningFeeCents < 0 || params.ServiceFeeCents < 0 {
		return nil, ErrNightlyRate
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if len(currency) != 3 {
		return nil, money.ErrInvalidCurrency
	}
	now := params.Now.UTC()
	return &Listing{
		ID:                   params.ID,
		Host:                 params.Host,
		Title:                strings.TrimSpace(params.Title),
		Description:          params.Description,
		Address:              params.Address,
		GuestsLimit:          params.GuestsLimit,
		MinNights:            params.MinNights,
		MaxNights:            params.MaxNights,
		CancellationPolicyID: params.CancellationPolicyID,
		InstantBook:          params.InstantBook,
		Currency:             currency,
		NightlyRateCents:     params.NightlyRateCents,
		CleaningFeeCents:     params.CleaningFeeCents,
		ServiceFeeCents:      params.ServiceFeeCents,
		State:                ListingDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func (l *Listing) Activate(now time.Time) error {
	if l.State == ListingActive {
		return nil
	}
	if l.State != ListingDraft && l.State != ListingSuspended {
		return ErrInvalidState
	}
	l.State = ListingActive
	l.UpdatedAt = now.UTC()
	return nil
}

func (l *Listing) Suspend(now time.Time) error {
	if l.State != ListingActive {
		return ErrInvalidState
	}
	l.State = ListingSuspended
	l.UpdatedAt = now.UTC()
	return nil
}

// NightlyRate returns the rate as a money value.
func (l *Listing) NightlyRate() money.Money {
	return money.Money{Amount: l.NightlyRateCents, Currency: l.Currency}
}

func (l *Listing) CleaningFee() money.Money {
	return money.Money{Amount: l.CleaningFeeCents, Currency: l.Currency}
}

func (l *Listing) ServiceFee() money.Money {
	return money.Money{Amount: l.ServiceFeeCents, Currency: l.Currency}
}

// AcceptsStay validates guests count and stay length against listing limits.
func (l *Listing) AcceptsStay(guests, nights int) error {
	if l.State != ListingActive {
		return ErrInvalidState
	}
	if guests < 1 || guests > l.GuestsLimit {
		return ErrGuestsLimit
	}
	if l.MinNights > 0 && nights < l.MinNights {
		return ErrNightsRange
	}
	if l.MaxNights > 0 && nights > l.MaxNights {
		return ErrNightsRange
	}
	return nil
}
