package postgres

import (
	"encoding/json"
	"time"

	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	domainpayments "tripnest/internal/domain/payments"
	domainpricing "tripnest/internal/domain/pricing"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
	domainuser "tripnest/internal/domain/user"
)

type listingRow struct {
	ID                   string `gorm:"primaryKey;size:64"`
	HostID               string `gorm:"index;size:64"`
	Title                string
	Description          string
	AddressLine1         string
	AddressLine2         string
	City                 string `gorm:"size:128"`
	Country              string `gorm:"size:128"`
	GuestsLimit          int
	MinNights            int
	MaxNights            int
	CancellationPolicyID string `gorm:"size:32"`
	State                string `gorm:"size:16;index"`
	InstantBook          bool
	Currency             string `gorm:"size:3"`
	NightlyRateCents     int64
	CleaningFeeCents     int64
	ServiceFeeCents      int64
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (listingRow) TableName() string { return "listings" }

func listingToRow(l *domainlistings.Listing) listingRow {
	return listingRow{
		ID:                   string(l.ID),
		HostID:               string(l.Host),
		Title:                l.Title,
		Description:          l.Description,
		AddressLine1:         l.Address.Line1,
		AddressLine2:         l.Address.Line2,
		City:                 l.Address.City,
		Country:              l.Address.Country,
		GuestsLimit:          l.GuestsLimit,
		MinNights:            l.MinNights,
		MaxNights:            l.MaxNights,
		CancellationPolicyID: l.CancellationPolicyID,
		State:                string(l.State),
		InstantBook:          l.InstantBook,
		Currency:             l.Currency,
		NightlyRateCents:     l.NightlyRateCents,
		CleaningFeeCents:     l.CleaningFeeCents,
		ServiceFeeCents:      l.ServiceFeeCents,
		Version:              l.Version,
		CreatedAt:            l.CreatedAt,
		UpdatedAt:            l.UpdatedAt,
	}
}

func rowToListing(r listingRow) *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:          domainlistings.ListingID(r.ID),
		Host:        domainlistings.HostID(r.HostID),
		Title:       r.Title,
		Description: r.Description,
		Address: domainlistings.Address{
			Line1:   r.AddressLine1,
			Line2:   r.AddressLine2,
			City:    r.City,
			Country: r.Country,
		},
		GuestsLimit:          r.GuestsLimit,
		MinNights:            r.MinNights,
		MaxNights:            r.MaxNights,
		CancellationPolicyID: r.CancellationPolicyID,
		State:                domainlistings.ListingState(r.State),
		InstantBook:          r.InstantBook,
		Currency:             r.Currency,
		NightlyRateCents:     r.NightlyRateCents,
		CleaningFeeCents:     r.CleaningFeeCents,
		ServiceFeeCents:      r.ServiceFeeCents,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type bookingRow struct {
	ID              string `gorm:"primaryKey;size:64"`
	ListingID       string `gorm:"index:idx_bookings_listing_dates;size:64"`
	GuestID         string `gorm:"index;size:64"`
	CheckIn         time.Time `gorm:"index:idx_bookings_listing_dates"`
	CheckOut        time.Time
	Guests          int
	State           string `gorm:"size:16;index"`
	PaymentStatus   string `gorm:"size:16"`
	PaymentIntentID string `gorm:"index;size:128"`
	FailureDetail   string
	SpecialRequests string
	Price           []byte `gorm:"type:jsonb"`
	Policy          []byte `gorm:"type:jsonb"`
	CancelReason    string
	CancelledAt     *time.Time
	RefundCents     int64
	RefundCurrency  string `gorm:"size:3"`
	DisputeOpen     bool
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (bookingRow) TableName() string { return "bookings" }

func bookingToRow(b *domainbooking.Booking) (bookingRow, error) {
	price, err := json.Marshal(b.Price)
	if err != nil {
		return bookingRow{}, err
	}
	policy, err := json.Marshal(b.Policy)
	if err != nil {
		return bookingRow{}, err
	}
	row := bookingRow{
		ID:              string(b.ID),
		ListingID:       string(b.ListingID),
		GuestID:         b.GuestID,
		CheckIn:         b.Range.CheckIn,
		CheckOut:        b.Range.CheckOut,
		Guests:          b.Guests,
		State:           string(b.State),
		PaymentStatus:   string(b.PaymentStatus),
		PaymentIntentID: b.PaymentIntentID,
		FailureDetail:   b.FailureDetail,
		SpecialRequests: b.SpecialRequests,
		Price:           price,
		Policy:          policy,
		CancelReason:    b.CancelReason,
		RefundCents:     b.RefundAmount.Amount,
		RefundCurrency:  b.RefundAmount.Currency,
		DisputeOpen:     b.DisputeOpen,
		Version:         b.Version,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	if !b.CancelledAt.IsZero() {
		cancelled := b.CancelledAt
		row.CancelledAt = &cancelled
	}
	return row, nil
}

func rowToBooking(r bookingRow) (*domainbooking.Booking, error) {
	var price domainpricing.PriceBreakdown
	if len(r.Price) > 0 {
		if err := json.Unmarshal(r.Price, &price); err != nil {
			return nil, err
		}
	}
	var policy domainbooking.CancellationPolicySnapshot
	if len(r.Policy) > 0 {
		if err := json.Unmarshal(r.Policy, &policy); err != nil {
			return nil, err
		}
	}
	b := &domainbooking.Booking{
		ID:              domainbooking.BookingID(r.ID),
		ListingID:       domainlistings.ListingID(r.ListingID),
		GuestID:         r.GuestID,
		Range:           daterange.DateRange{CheckIn: r.CheckIn.UTC(), CheckOut: r.CheckOut.UTC()},
		Guests:          r.Guests,
		State:           domainbooking.BookingState(r.State),
		PaymentStatus:   domainbooking.PaymentStatus(r.PaymentStatus),
		PaymentIntentID: r.PaymentIntentID,
		FailureDetail:   r.FailureDetail,
		SpecialRequests: r.SpecialRequests,
		Price:           price,
		Policy:          policy,
		CancelReason:    r.CancelReason,
		RefundAmount:    money.Money{Amount: r.RefundCents, Currency: r.RefundCurrency},
		DisputeOpen:     r.DisputeOpen,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.CancelledAt != nil {
		b.CancelledAt = *r.CancelledAt
	}
	return b, nil
}

type paymentRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	IntentID       string `gorm:"uniqueIndex;size:128"`
	BookingID      string `gorm:"index;size:64"`
	AmountCents    int64
	RefundedCents  int64
	Currency       string `gorm:"size:3"`
	Status         string `gorm:"size:24"`
	Processor      string `gorm:"size:32"`
	ProcessorRef   string `gorm:"size:128"`
	FailureDetail  string
	CapturedAt     *time.Time
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (paymentRow) TableName() string { return "payments" }

func paymentToRow(p *domainpayments.Payment) paymentRow {
	row := paymentRow{
		ID:            string(p.ID),
		IntentID:      p.IntentID,
		BookingID:     string(p.BookingID),
		AmountCents:   p.Amount.Amount,
		RefundedCents: p.RefundedAmount.Amount,
		Currency:      p.Amount.Currency,
		Status:        string(p.Status),
		Processor:     p.Processor,
		ProcessorRef:  p.ProcessorRef,
		FailureDetail: p.FailureDetail,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if !p.CapturedAt.IsZero() {
		captured := p.CapturedAt
		row.CapturedAt = &captured
	}
	return row
}

func rowToPayment(r paymentRow) *domainpayments.Payment {
	p := &domainpayments.Payment{
		ID:             domainpayments.PaymentID(r.ID),
		IntentID:       r.IntentID,
		BookingID:      domainbooking.BookingID(r.BookingID),
		Amount:         money.Money{Amount: r.AmountCents, Currency: r.Currency},
		RefundedAmount: money.Money{Amount: r.RefundedCents, Currency: r.Currency},
		Status:         domainpayments.PaymentStatus(r.Status),
		Processor:      r.Processor,
		ProcessorRef:   r.ProcessorRef,
		FailureDetail:  r.FailureDetail,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.CapturedAt != nil {
		p.CapturedAt = *r.CapturedAt
	}
	return p
}

// webhookEventRow uses the processor's event id as primary key; the dedup
// guarantee comes from that key.
type webhookEventRow struct {
	ID         string `gorm:"primaryKey;size:128"`
	Type       string `gorm:"size:64"`
	Source     string `gorm:"size:32"`
	Payload    []byte `gorm:"type:jsonb"`
	Status     string `gorm:"size:16;index"`
	Error      string
	ReceivedAt time.Time
	UpdatedAt  time.Time
}

func (webhookEventRow) TableName() string { return "webhook_events" }

func webhookEventToRow(e *domainpayments.WebhookEvent) webhookEventRow {
	return webhookEventRow{
		ID:         e.ID,
		Type:       e.Type,
		Source:     e.Source,
		Payload:    e.Payload,
		Status:     string(e.Status),
		Error:      e.Error,
		ReceivedAt: e.ReceivedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func rowToWebhookEvent(r webhookEventRow) *domainpayments.WebhookEvent {
	return &domainpayments.WebhookEvent{
		ID:         r.ID,
		Type:       r.Type,
		Source:     r.Source,
		Payload:    r.Payload,
		Status:     domainpayments.WebhookEventStatus(r.Status),
		Error:      r.Error,
		ReceivedAt: r.ReceivedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type outboxRow struct {
	ID            string `gorm:"primaryKey;size:64"`
	Name          string `gorm:"size:64"`
	Payload       []byte `gorm:"type:jsonb"`
	OccurredAt    time.Time
	Aggregate     string `gorm:"size:64"`
	Headers       []byte `gorm:"type:jsonb"`
	State         string `gorm:"size:16;index:idx_outbox_state_next"`
	Attempts      int
	NextAttemptAt time.Time `gorm:"index:idx_outbox_state_next"`
	ClaimedBy     string    `gorm:"size:64"`
	ClaimedAt     *time.Time
	SentAt        *time.Time
	LastError     string
	CreatedAt     time.Time
}

func (outboxRow) TableName() string { return "app_outbox" }

type idempotencyRow struct {
	Key        string `gorm:"primaryKey;size:128"`
	Payload    []byte `gorm:"type:jsonb"`
	Error      string
	OccurredAt time.Time
}

func (idempotencyRow) TableName() string { return "idempotency_records" }

type userRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"uniqueIndex;size:255"`
	Name         string
	PasswordHash string
	Roles        string `gorm:"size:128"`
	Erased       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func userToRow(u *domainuser.User) userRow {
	roles := ""
	for i, role := range u.Roles {
		if i > 0 {
			roles += ","
		}
		roles += string(role)
	}
	return userRow{
		ID:           string(u.ID),
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Roles:        roles,
		Erased:       u.Erased,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
