package dto

import (
	"time"

	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
	"tripnest/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type BookingListingSnapshot struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	AddressLine1 string `json:"address_line1"`
	City         string `json:"city"`
	Country      string `json:"country"`
}

type PriceLine struct {
	Name   string   `json:"name"`
	Amount MoneyDTO `json:"amount"`
}

type PriceView struct {
	Nights    int         `json:"nights"`
	Nightly   MoneyDTO    `json:"nightly"`
	Fees      []PriceLine `json:"fees,omitempty"`
	Discounts []PriceLine `json:"discounts,omitempty"`
	Total     MoneyDTO    `json:"total"`
}

type BookingView struct {
	ID              string                 `json:"id"`
	Listing         BookingListingSnapshot `json:"listing"`
	GuestID         string                 `json:"guest_id"`
	CheckIn         time.Time              `json:"check_in"`
	CheckOut        time.Time              `json:"check_out"`
	Guests          int                    `json:"guests"`
	Status          string                 `json:"status"`
	PaymentStatus   string                 `json:"payment_status"`
	PaymentIntentID string                 `json:"payment_intent_id,omitempty"`
	SpecialRequests string                 `json:"special_requests,omitempty"`
	Price           PriceView              `json:"price"`
	CancelReason    string                 `json:"cancel_reason,omitempty"`
	RefundAmount    *MoneyDTO              `json:"refund_amount,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

type BookingCollection struct {
	Items []BookingView `json:"items"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{
		Amount:   value.Amount,
		Currency: value.Currency,
	}
}

func MapBookingView(booking *domainbooking.Booking, listing *domainlistings.Listing) BookingView {
	snapshot := BookingListingSnapshot{ID: string(booking.ListingID)}
	if listing != nil {
		snapshot.Title = listing.Title
		snapshot.AddressLine1 = listing.Address.Line1
		snapshot.City = listing.Address.City
		snapshot.Country = listing.Address.Country
	}
	price := PriceView{
		Nights:  booking.Price.Nights,
		Nightly: MapMoney(booking.Price.Nightly),
		Total:   MapMoney(booking.Price.Total),
	}
	for _, fee := range booking.Price.Fees {
		price.Fees = append(price.Fees, PriceLine{Name: fee.Name, Amount: MapMoney(fee.Amount)})
	}
	for _, discount := range booking.Price.Discounts {
		price.Discounts = append(price.Discounts, PriceLine{Name: discount.Name, Amount: MapMoney(discount.Amount)})
	}
	view := BookingView{
		ID:              string(booking.ID),
		Listing:         snapshot,
		GuestID:         booking.GuestID,
		CheckIn:         booking.Range.CheckIn,
		CheckOut:        booking.Range.CheckOut,
		Guests:          booking.Guests,
		Status:          string(booking.State),
		PaymentStatus:   string(booking.PaymentStatus),
		PaymentIntentID: booking.PaymentIntentID,
		SpecialRequests: booking.SpecialRequests,
		Price:           price,
		CancelReason:    booking.CancelReason,
		CreatedAt:       booking.CreatedAt,
		UpdatedAt:       booking.UpdatedAt,
	}
	if booking.RefundAmount.Currency != "" {
		refund := MapMoney(booking.RefundAmount)
		view.RefundAmount = &refund
	}
	return view
}
