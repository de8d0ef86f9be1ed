package http

import (
	"errors"
	"net/http"

	"card-order-service/internal/domain"
	"card-order-service/internal/logging"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain sentinels to HTTP codes. Order matters: a failed
// reservation wraps both ErrOrderCreationFailed and ErrInsufficientStock and
// must surface as the business rule.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrItemUnavailable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidStatusValue):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPaymentConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err for the client. Server side failures get a fixed
// message; the cause goes to the request log only.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	switch {
	case status == http.StatusBadGateway:
		msg = domain.ErrGatewayUnavailable.Error()
	case status >= http.StatusInternalServerError && errors.Is(err, domain.ErrOrderCreationFailed):
		msg = "order creation failed, please retry"
	case status >= http.StatusInternalServerError:
		msg = "internal error"
	}
	if status >= http.StatusInternalServerError {
		logging.From(c).Error("request failed", "err", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
