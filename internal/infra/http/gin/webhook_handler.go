package ginserver

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"tripnest/internal/app/commands"
	paymentsapp "tripnest/internal/app/handlers/payments"
	"tripnest/internal/apperr"
	infrapayments "tripnest/internal/infra/payments"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives payment processor deliveries. Signature verification
// happens before the body is parsed; a processing failure answers 5xx so the
// processor redelivers, while authentication and validation failures are
// permanent rejections.
type WebhookHandler struct {
	Commands commands.Bus
	Verifier infrapayments.SignatureVerifier
	Logger   *slog.Logger
}

func (h WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	now := time.Now()

	if err := h.Verifier.Verify(c.GetHeader(infrapayments.SignatureHeader), body, now); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("webhook signature rejected", "remote", c.ClientIP(), "err", err)
		}
		respondError(c, err)
		return
	}

	cmd, err := infrapayments.ParseEvent(body, now)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := commands.Dispatch[paymentsapp.ProcessPaymentEventCommand, *paymentsapp.ProcessResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		if apperr.IsTransient(err) && h.Logger != nil {
			h.Logger.Info("webhook deferred", "event_id", cmd.EventID, "err", err)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  result.Outcome,
	})
}
