package booking

import (
	"errors"
	"time"

	"tripnest/internal/domain/shared/daterange"
)

var ErrCheckInInPast = errors.New("booking: check-in date is in the past")

func ValidateDateRange(dr daterange.DateRange, now time.Time) error {
	if err := dr.Validate(); err != nil {
		return err
	}
	if dayOf(dr.CheckIn).Before(dayOf(now)) {
		return ErrCheckInInPast
	}
	return nil
}
