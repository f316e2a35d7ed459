package ginserver

import (
	"net/http"

	gin "github.com/gin-gonic/gin"

	"tripnest/internal/apperr"
)

// respondError maps a classified application error to its HTTP status; the
// stable code travels in the body so clients can branch without parsing
// messages.
func respondError(c *gin.Context, err error) {
	status := apperr.StatusOf(err)
	body := gin.H{"error": err.Error()}
	if code := apperr.CodeOf(err); code != "" {
		body["code"] = code
	} else {
		// Unclassified errors stay opaque.
		body = gin.H{"error": "internal error"}
		status = http.StatusInternalServerError
	}
	c.JSON(status, body)
}
