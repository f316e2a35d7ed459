package ginserver

import (
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tripnest/internal/app/commands"
	"tripnest/internal/app/dto"
	bookingapp "tripnest/internal/app/handlers/booking"
	"tripnest/internal/app/queries"
)

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
}

type createBookingRequest struct {
	ListingID       string    `json:"listing_id"`
	CheckIn         time.Time `json:"check_in"`
	CheckOut        time.Time `json:"check_out"`
	Guests          int       `json:"guests"`
	SpecialRequests string    `json:"special_requests"`
}

func (h BookingHandler) Create(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Commands == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "commands unavailable"})
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := bookingapp.RequestBookingCommand{
		CommandID:       uuid.NewString(),
		ListingID:       req.ListingID,
		GuestID:         user.ID,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Guests:          req.Guests,
		SpecialRequests: req.SpecialRequests,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.RequestBookingCommand, *bookingapp.RequestBookingResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Get(c *gin.Context) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Queries == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queries unavailable"})
		return
	}
	query := bookingapp.GetBookingQuery{
		BookingID: c.Param("id"),
		Actor:     actorFromPrincipal(user),
	}
	view, err := queries.Ask[bookingapp.GetBookingQuery, dto.BookingView](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h BookingHandler) Approve(c *gin.Context) {
	h.transition(c, func(id string, actor bookingapp.Actor, _ string) commands.Command {
		return bookingapp.ApproveBookingCommand{BookingID: id, Actor: actor}
	})
}

func (h BookingHandler) Reject(c *gin.Context) {
	h.transition(c, func(id string, actor bookingapp.Actor, reason string) commands.Command {
		return bookingapp.RejectBookingCommand{BookingID: id, Reason: reason, Actor: actor}
	})
}

func (h BookingHandler) Cancel(c *gin.Context) {
	h.transition(c, func(id string, actor bookingapp.Actor, reason string) commands.Command {
		return bookingapp.CancelBookingCommand{BookingID: id, Reason: reason, Actor: actor}
	})
}

func (h BookingHandler) CheckIn(c *gin.Context) {
	h.transition(c, func(id string, actor bookingapp.Actor, _ string) commands.Command {
		return bookingapp.CheckInCommand{BookingID: id, Actor: actor}
	})
}

func (h BookingHandler) CheckOut(c *gin.Context) {
	h.transition(c, func(id string, actor bookingapp.Actor, _ string) commands.Command {
		return bookingapp.CheckOutCommand{BookingID: id, Actor: actor}
	})
}

func (h BookingHandler) Complete(c *gin.Context) {
	h.transition(c, func(id string, actor bookingapp.Actor, _ string) commands.Command {
		return bookingapp.CompleteBookingCommand{BookingID: id, Actor: actor}
	})
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (h BookingHandler) transition(c *gin.Context, build func(id string, actor bookingapp.Actor, reason string) commands.Command) {
	user, ok := requireRole(c, "")
	if !ok {
		return
	}
	if h.Commands == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "commands unavailable"})
		return
	}
	var req transitionRequest
	// Body is optional for transitions without a reason.
	_ = c.ShouldBindJSON(&req)

	cmd := build(c.Param("id"), actorFromPrincipal(user), req.Reason)
	result, err := commands.Dispatch[commands.Command, *bookingapp.LifecycleResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func actorFromPrincipal(p principal) bookingapp.Actor {
	return bookingapp.Actor{
		UserID: p.ID,
		Roles:  append([]string(nil), p.Roles...),
	}
}

var _ BookingHTTP = BookingHandler{}
