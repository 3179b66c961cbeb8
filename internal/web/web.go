// Package web serves the signup, link landing and OTP entry pages. Each page
// is a thin client of the JSON API mounted under the configured prefix.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = map[string]*template.Template{
	"signup":     parsePage("templates/signup.html"),
	"verify":     parsePage("templates/verify.html"),
	"verify_otp": parsePage("templates/verify_otp.html"),
}

func parsePage(file string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", file))
}

type pageData struct {
	Title     string
	APIPrefix string
	OTPLength int
	Token     string
	Email     string
}

// Handler renders the client flow views.
type Handler struct {
	apiPrefix string
	otpLength int
	logger    *slog.Logger
}

func NewHandler(apiPrefix string, otpLength int, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{apiPrefix: apiPrefix, otpLength: otpLength, logger: logger}
}

// Signup serves the registration form with the inline OTP box.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	h.render(w, "signup", h.data("Signup"))
}

// Verify is the landing page for emailed links; it consumes ?token= via the API.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	d := h.data("Email Verification")
	d.Token = r.URL.Query().Get("token")
	h.render(w, "verify", d)
}

// VerifyOTP serves code entry plus the resend actions.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	d := h.data("Email Verification (OTP)")
	d.Email = r.URL.Query().Get("email")
	h.render(w, "verify_otp", d)
}

func (h *Handler) data(title string) pageData {
	return pageData{Title: title, APIPrefix: h.apiPrefix, OTPLength: h.otpLength}
}

func (h *Handler) render(w http.ResponseWriter, page string, d pageData) {
	var buf bytes.Buffer
	if err := pages[page].ExecuteTemplate(&buf, "layout", d); err != nil {
		h.logger.Error("render page", slog.String("page", page), slog.Any("err", err))
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
