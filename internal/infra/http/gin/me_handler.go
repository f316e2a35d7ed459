package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"tripnest/internal/app/commands"
	"tripnest/internal/app/dto"
	meapp "tripnest/internal/app/handlers/me"
	"tripnest/internal/app/queries"
)

type MeHTTP interface {
	ListBookings(c *gin.Context)
	EraseAccount(c *gin.Context)
}

type MeHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h MeHandler) ListBookings(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queries unavailable"})
		return
	}
	query := meapp.ListGuestBookingsQuery{GuestID: user.ID}
	result, err := queries.Ask[meapp.ListGuestBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("me bookings query failed", "error", err, "user_id", user.ID)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// EraseAccount scrubs the authenticated account and anonymizes its booking
// history. The bearer session stops working immediately.
func (h MeHandler) EraseAccount(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Commands == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "commands unavailable"})
		return
	}
	cmd := meapp.EraseAccountCommand{UserID: user.ID}
	result, err := commands.Dispatch[meapp.EraseAccountCommand, *meapp.EraseAccountResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("account erasure failed", "error", err, "user_id", user.ID)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ MeHTTP = (*MeHandler)(nil)
