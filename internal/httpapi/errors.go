package httpapi

import (
	"errors"
	"net/http"

	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/pkg/logging"
)

// writeError maps service errors to responses. Persistence failures and
// anything unexpected get a fixed message; the cause is only logged.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := http.StatusInternalServerError
	msg := fallback
	switch {
	case errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrUnknownPaymentMethod),
		errors.Is(err, domain.ErrInvalidQuantity):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrPaymentDeclined):
		code, msg = http.StatusPaymentRequired, domain.ErrPaymentDeclined.Error()
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrCartItemNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		code, msg = http.StatusNotFound, err.Error()
	}
	status := "rejected"
	if code == http.StatusInternalServerError {
		status = "error"
	}
	logging.Log(logging.Fields{
		Service:   serviceName,
		RequestID: requestID(r),
		UserID:    userID(r.Context()),
		Step:      r.Method + " " + r.URL.Path,
		Status:    status,
		Error:     err.Error(),
	})
	writeMessage(w, code, msg)
}
