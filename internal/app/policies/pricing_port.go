package policies

import (
	"context"

	domainlistings "tripnest/internal/domain/listings"
	domainpricing "tripnest/internal/domain/pricing"
	domainrange "tripnest/internal/domain/shared/daterange"
	"tripnest/internal/domain/shared/money"
)

// PricingPort quotes a stay. The default implementation delegates to the pure
// calculator; alternates may layer promotional discounts on top.
type PricingPort interface {
	Quote(ctx context.Context, listing *domainlistings.Listing, dr domainrange.DateRange, guests int) (domainpricing.PriceBreakdown, error)
}

// StandardPricing quotes straight from the listing's published rates.
type StandardPricing struct{}

func (StandardPricing) Quote(_ context.Context, listing *domainlistings.Listing, dr domainrange.DateRange, _ int) (domainpricing.PriceBreakdown, error) {
	return domainpricing.QuoteStay(listing, dr, money.Money{})
}
