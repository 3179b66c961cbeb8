package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-signup-verify/internal/domain"
)

const serverError = "Server error"

// errorMessages holds the client-facing text an endpoint uses per failure.
type errorMessages struct {
	notFound        string
	userNotFound    string
	expired         string
	conflict        string
	alreadyVerified string
	rateLimited     string
}

// classify maps a service error to a status code and client-safe message.
// Internal failures are logged here; their text never reaches the client.
func classify(r *http.Request, logger *slog.Logger, err error, msgs errorMessages) (status int, msg string) {
	status = http.StatusBadRequest
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return status, ve.Msg
	case errors.Is(err, domain.ErrValidation):
		msg = "invalid request"
	case errors.Is(err, domain.ErrUserNotFound):
		msg = msgs.userNotFound
	case errors.Is(err, domain.ErrNotFound):
		msg = msgs.notFound
	case errors.Is(err, domain.ErrExpired):
		msg = msgs.expired
	case errors.Is(err, domain.ErrConflict):
		msg = msgs.conflict
	case errors.Is(err, domain.ErrAlreadyVerified):
		msg = msgs.alreadyVerified
	case errors.Is(err, domain.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, msgs.rateLimited
	case errors.Is(err, domain.ErrDelivery):
		logger.Error("verification delivery failed",
			slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("err", err))
		return http.StatusInternalServerError, serverError
	default:
		logger.Error("request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())), slog.Any("err", err))
		return http.StatusInternalServerError, serverError
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return status, msg
}

// httpError writes err as a JSON envelope, adding Retry-After when the
// caller hit the resend limit.
func httpError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, msgs errorMessages) {
	setRetryAfter(w, err)
	status, msg := classify(r, logger, err, msgs)
	writeError(w, status, msg)
}

func setRetryAfter(w http.ResponseWriter, err error) {
	var rle *domain.RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		secs := int(math.Ceil(rle.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}
