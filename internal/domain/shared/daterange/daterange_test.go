package daterange

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewRejectsInvertedRange(t *testing.T) {
	_, err := New(date(2024, 6, 5), date(2024, 6, 5))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = New(date(2024, 6, 5), date(2024, 6, 4))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestNights(t *testing.T) {
	dr, err := New(date(2024, 6, 1), date(2024, 6, 4))
	require.NoError(t, err)
	assert.Equal(t, 3, dr.Nights())
}

func TestOverlapsHalfOpen(t *testing.T) {
	a, _ := New(date(2024, 6, 1), date(2024, 6, 4))

	// Shared interior night.
	b, _ := New(date(2024, 6, 3), date(2024, 6, 6))
	assert.True(t, a.Overlaps(b))
	assert.True(t, b.Overlaps(a))

	// Back-to-back: checkout day equals the next check-in day.
	c, _ := New(date(2024, 6, 4), date(2024, 6, 7))
	assert.False(t, a.Overlaps(c))
	assert.False(t, c.Overlaps(a))

	// Fully contained.
	d, _ := New(date(2024, 6, 2), date(2024, 6, 3))
	assert.True(t, a.Overlaps(d))
	assert.True(t, d.Overlaps(a))

	// Disjoint.
	e, _ := New(date(2024, 7, 1), date(2024, 7, 2))
	assert.False(t, a.Overlaps(e))
}

// TestOverlapsRandomized checks the overlap predicate against an independent
// oracle: two stays overlap exactly when they share at least one night.
func TestOverlapsRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := date(2025, 1, 1)

	for i := 0; i < 1000; i++ {
		aStart, aLen := rng.Intn(60), 1+rng.Intn(14)
		bStart, bLen := rng.Intn(60), 1+rng.Intn(14)

		a, err := New(base.AddDate(0, 0, aStart), base.AddDate(0, 0, aStart+aLen))
		require.NoError(t, err)
		b, err := New(base.AddDate(0, 0, bStart), base.AddDate(0, 0, bStart+bLen))
		require.NoError(t, err)

		sharedNight := false
		for night := aStart; night < aStart+aLen; night++ {
			if night >= bStart && night < bStart+bLen {
				sharedNight = true
				break
			}
		}

		assert.Equal(t, sharedNight, a.Overlaps(b), "a=[%d,%d) b=[%d,%d)", aStart, aStart+aLen, bStart, bStart+bLen)
		assert.Equal(t, sharedNight, b.Overlaps(a), "overlap must be symmetric")
	}
}

func TestContainsDate(t *testing.T) {
	dr, _ := New(date(2024, 6, 1), date(2024, 6, 4))
	assert.True(t, dr.ContainsDate(date(2024, 6, 1)))
	assert.True(t, dr.ContainsDate(date(2024, 6, 3)))
	assert.False(t, dr.ContainsDate(date(2024, 6, 4)))
}
