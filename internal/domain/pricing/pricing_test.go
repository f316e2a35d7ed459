package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripnest/internal/domain/shared/money"
)

func TestQuoteExactTotal(t *testing.T) {
	// 3 nights at $100.00 + $50.00 cleaning + $30.00 service = $380.00, exact.
	got, err := Quote(QuoteParams{
		Nights:      3,
		NightlyRate: money.Must(100_00, "USD"),
		CleaningFee: money.Must(50_00, "USD"),
		ServiceFee:  money.Must(30_00, "USD"),
	})
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(money.Must(380_00, "USD")), "total = %s", got.Total)
}

func TestQuoteIsPure(t *testing.T) {
	params := QuoteParams{
		Nights:      5,
		NightlyRate: money.Must(123_45, "USD"),
		CleaningFee: money.Must(10_00, "USD"),
		Discount:    money.Must(7_77, "USD"),
	}
	first, err := Quote(params)
	require.NoError(t, err)
	second, err := Quote(params)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQuoteAppliesDiscount(t *testing.T) {
	got, err := Quote(QuoteParams{
		Nights:      2,
		NightlyRate: money.Must(100_00, "USD"),
		Discount:    money.Must(25_00, "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(175_00), got.Total.Amount)
}

func TestQuoteClampsNegativeTotal(t *testing.T) {
	got, err := Quote(QuoteParams{
		Nights:      1,
		NightlyRate: money.Must(10_00, "USD"),
		Discount:    money.Must(99_00, "USD"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Total.Amount)
	assert.Equal(t, "USD", got.Total.Currency)
}

func TestQuoteRejectsNonPositiveNights(t *testing.T) {
	_, err := Quote(QuoteParams{Nights: 0, NightlyRate: money.Must(100_00, "USD")})
	assert.Error(t, err)
}

func TestRecalculateTotalRejectsNegativeFee(t *testing.T) {
	p := PriceBreakdown{
		Nights:  1,
		Nightly: money.Must(100_00, "USD"),
		Fees:    []Fee{{Name: "cleaning", Amount: money.Must(-1, "USD")}},
	}
	assert.ErrorIs(t, p.RecalculateTotal(), ErrNegativeComponent)
}
