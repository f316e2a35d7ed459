package ginserver

import (
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"tripnest/internal/app/dto"
	availabilityapp "tripnest/internal/app/handlers/availability"
	"tripnest/internal/app/queries"
)

type AvailabilityHandler struct {
	Queries queries.Bus
}

// Check answers whether a window on a listing is free, with the overlapping
// stays that block it. Public: no principal required.
func (h AvailabilityHandler) Check(c *gin.Context) {
	if h.Queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queries unavailable"})
		return
	}
	from, err := time.Parse(time.DateOnly, c.Query("check_in"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "check_in must be YYYY-MM-DD"})
		return
	}
	to, err := time.Parse(time.DateOnly, c.Query("check_out"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "check_out must be YYYY-MM-DD"})
		return
	}
	query := availabilityapp.CheckAvailabilityQuery{
		ListingID: c.Param("id"),
		From:      from,
		To:        to,
	}
	result, err := queries.Ask[availabilityapp.CheckAvailabilityQuery, dto.Availability](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ AvailabilityHTTP = AvailabilityHandler{}
