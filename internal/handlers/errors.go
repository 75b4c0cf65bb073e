package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrStatusConflict),
		errors.Is(err, service.ErrAlreadyAssigned):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respond writes body with status unless err is set. A PublishError means
// the change was persisted, so the body is still returned with a warning.
func respond(c *gin.Context, status int, body any, err error) {
	var pubErr *service.PublishError
	if errors.As(err, &pubErr) {
		slog.Warn("⚠️ Failed to publish event", "path", c.FullPath(), "err", pubErr.Err)
		c.Header("Warning", `199 - "event not published"`)
		c.JSON(status, body)
		return
	}
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.Error("❌ Request failed", "path", c.FullPath(), "err", err)
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(status, body)
}

// bindOptionalJSON binds a body the route does not require. An empty body
// leaves obj untouched; a malformed one is rejected with 400.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return 0, false
	}
	return id, true
}
