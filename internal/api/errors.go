package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/gastank"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

var errBadRequest = errors.New("bad request")

// statusFor maps tank sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, gastank.ErrInvalidAmount),
		errors.Is(err, gastank.ErrInvalidOwner),
		errors.Is(err, gastank.ErrInvalidSigner),
		errors.Is(err, relayop.ErrMissingNonce),
		errors.Is(err, relayop.ErrNegativeNonce):
		return http.StatusBadRequest
	case errors.Is(err, gastank.ErrWrongSignature):
		return http.StatusUnauthorized
	case errors.Is(err, gastank.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, gastank.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, gastank.ErrUnknownInstance):
		return http.StatusNotFound
	case errors.Is(err, gastank.ErrNonceMismatch),
		errors.Is(err, gastank.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, gastank.ErrOverflow),
		errors.Is(err, gastank.ErrCallFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("instance", c.Param("instance")),
			zap.Error(err),
		)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}
