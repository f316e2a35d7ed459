package dto

import "time"

type BookedRange struct {
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// Availability answers "can these dates be booked" for a listing, along with
// the occupied ranges inside the queried window.
type Availability struct {
	ListingID string        `json:"listing_id"`
	From      time.Time     `json:"from"`
	To        time.Time     `json:"to"`
	Available bool          `json:"available"`
	Booked    []BookedRange `json:"booked"`
}
