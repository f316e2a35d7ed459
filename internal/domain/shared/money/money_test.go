package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesCurrency(t *testing.T) {
	m, err := New(100_00, "usd")
	require.NoError(t, err)
	assert.Equal(t, "USD", m.Currency)

	_, err = New(100, "us")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestArithmetic(t *testing.T) {
	a := Must(350_00, "USD")
	b := Must(50_00, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(400_00), sum.Amount)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(300_00), diff.Amount)

	assert.Equal(t, int64(300_00), Must(100_00, "USD").Multiply(3).Amount)

	_, err = a.Add(Must(1, "EUR"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestEqualIsExact(t *testing.T) {
	assert.True(t, Must(350_00, "USD").Equal(Must(350_00, "USD")))
	assert.False(t, Must(350_00, "USD").Equal(Must(350_01, "USD")))
	assert.False(t, Must(350_00, "USD").Equal(Must(350_00, "EUR")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "350.00 USD", Must(350_00, "USD").String())
	assert.Equal(t, "3.05 USD", Must(305, "USD").String())
	assert.Equal(t, "-1.50 EUR", Must(-150, "EUR").String())
}
