package handler

import (
	"encoding/json"
	"html"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-signup-verify/internal/application/verification"
)

const maxBodyBytes = 1 << 20

var (
	signupMessages = errorMessages{
		conflict: "User already exists",
	}
	linkMessages = errorMessages{
		notFound:     "Invalid or already used token.",
		userNotFound: "User not found",
		expired:      "Token expired. Please request a new verification email.",
	}
	otpMessages = errorMessages{
		notFound:     "Invalid or already used OTP",
		userNotFound: "User not found",
		expired:      "OTP expired",
	}
	resendMessages = errorMessages{
		userNotFound:    "No account with this email",
		alreadyVerified: "Account already verified",
		rateLimited:     "Too many resend requests. Try later.",
	}
)

// VerificationHandler serves signup, token consumption and resend.
type VerificationHandler struct {
	svc    verification.Service
	logger *slog.Logger
}

func NewVerificationHandler(svc verification.Service, logger *slog.Logger) *VerificationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationHandler{svc: svc, logger: logger}
}

func (h *VerificationHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req verification.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Signup(r.Context(), req); err != nil {
		httpError(w, r, h.logger, err, signupMessages)
		return
	}
	writeJSON(w, http.StatusCreated, MessageEnvelope{Message: "User created. Verification email sent."})
}

// VerifyLink is opened straight from the email, so it answers with an HTML
// fragment rather than JSON.
func (h *VerificationHandler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.VerifyLink(r.Context(), chi.URLParam(r, "token")); err != nil {
		status, msg := classify(r, h.logger, err, linkMessages)
		writeHTML(w, status, msg)
		return
	}
	writeHTML(w, http.StatusOK, "Email verified successfully. You can close this window and login.")
}

func (h *VerificationHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verification.VerifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyOTP(r.Context(), req); err != nil {
		httpError(w, r, h.logger, err, otpMessages)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Email verified successfully"})
}

func (h *VerificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req verification.ResendRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Resend(r.Context(), req); err != nil {
		httpError(w, r, h.logger, err, resendMessages)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Verification email resent"})
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeHTML(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<h3>" + html.EscapeString(msg) + "</h3>"))
}
