package pricing

import (
	"errors"

	"tripnest/internal/domain/listings"
	"tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
)

var (
	ErrNegativeComponent = errors.New("pricing: components cannot be negative unless modeled as discount")
	ErrCurrencyUnset     = errors.New("pricing: currency must be defined")
)

type Fee struct {
	Name   string
	Amount money.Money
}

type Discount struct {
	Name   string
	Amount money.Money
}

// PriceBreakdown is the itemized quote stored on a booking. All arithmetic is
// on integer minor units; totals are exact.
type PriceBreakdown struct {
	Nights    int
	Nightly   money.Money
	Fees      []Fee
	Discounts []Discount
	Total     money.Money
}

func (p *PriceBreakdown) Validate() error {
	if p.Nightly.Currency == "" {
		return ErrCurrencyUnset
	}
	if p.Nights <= 0 {
		return errors.New("pricing: nights must be positive")
	}
	return nil
}

// RecalculateTotal computes nightly*nights plus fees minus discounts. A total
// that would go negative is clamped to zero.
func (p *PriceBreakdown) RecalculateTotal() error {
	if err := p.Validate(); err != nil {
		return err
	}
	total := p.Nightly.Multiply(int64(p.Nights))
	addMoney := func(m money.Money) error {
		res, err := total.Add(m)
		if err != nil {
			return err
		}
		total = res
		return nil
	}
	for _, fee := range p.Fees {
		if fee.Amount.Amount < 0 {
			return ErrNegativeComponent
		}
		if err := addMoney(fee.Amount); err != nil {
			return err
		}
	}
	for _, discount := range p.Discounts {
		amount := discount.Amount
		if amount.Amount > 0 {
			amount = amount.Neg()
		}
		if err := addMoney(amount); err != nil {
			return err
		}
	}
	if total.Amount < 0 {
		total = money.Money{Amount: 0, Currency: total.Currency}
	}
	p.Total = total
	return nil
}

func (p PriceBreakdown) Copy() PriceBreakdown {
	clone := p
	clone.Fees = append([]Fee(nil), p.Fees...)
	clone.Discounts = append([]Discount(nil), p.Discounts...)
	return clone
}

type QuoteParams struct {
	Nights      int
	NightlyRate money.Money
	CleaningFee money.Money
	ServiceFee  money.Money
	Discount    money.Money
}

// Quote is a pure calculation: same inputs always produce the same breakdown
// and it touches no clock, storage or randomness.
func Quote(params QuoteParams) (PriceBreakdown, error) {
	breakdown := PriceBreakdown{
		Nights:  params.Nights,
		Nightly: params.NightlyRate,
	}
	if !params.CleaningFee.IsZero() {
		breakdown.Fees = append(breakdown.Fees, Fee{Name: "cleaning", Amount: params.CleaningFee})
	}
	if !params.ServiceFee.IsZero() {
		breakdown.Fees = append(breakdown.Fees, Fee{Name: "service", Amount: params.ServiceFee})
	}
	if !params.Discount.IsZero() {
		breakdown.Discounts = append(breakdown.Discounts, Discount{Name: "discount", Amount: params.Discount})
	}
	if err := breakdown.RecalculateTotal(); err != nil {
		return PriceBreakdown{}, err
	}
	return breakdown, nil
}

// QuoteStay builds a quote from the listing's published rates for the given
// date range.
func QuoteStay(l *listings.Listing, r daterange.DateRange, discount money.Money) (PriceBreakdown, error) {
	return Quote(QuoteParams{
		Nights:      r.Nights(),
		NightlyRate: l.NightlyRate(),
		CleaningFee: l.CleaningFee(),
		ServiceFee:  l.ServiceFee(),
		Discount:    discount,
	})
}
