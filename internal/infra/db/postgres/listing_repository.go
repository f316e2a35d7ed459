package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domainlistings "tripnest/internal/domain/listings"
)

type ListingRepository struct {
	tx *gorm.DB
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var row listingRow
	err := r.tx.WithContext(ctx).Where("id = ?", string(id)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainlistings.ErrListingNotFound
		}
		return nil, err
	}
	return rowToListing(row), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	listing.Version++
	row := listingToRow(listing)
	return r.tx.WithContext(ctx).Save(&row).Error
}

var _ domainlistings.ListingRepository = (*ListingRepository)(nil)
