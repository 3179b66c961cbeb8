package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-signup-verify/internal/application/verification"
	"github.com/go-signup-verify/internal/config"
	"github.com/go-signup-verify/internal/pkg/password"
	"github.com/go-signup-verify/internal/pkg/token"
	"github.com/go-signup-verify/internal/transport/http/handler"
	appmiddleware "github.com/go-signup-verify/internal/transport/http/middleware"
	"github.com/go-signup-verify/internal/web"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background cleanup of the per-IP throttle.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = password.NewBcryptHasher()
	}

	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, on the public POST endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	verifySvc := verification.NewService(verification.ServiceDeps{
		UserRepo:    deps.UserRepo,
		TokenRepo:   deps.TokenRepo,
		Sender:      deps.Sender,
		Limiter:     deps.Limiter,
		Publisher:   deps.Publisher,
		Hasher:      hasher,
		Generator:   token.NewGenerator(),
		FrontendURL: cfg.FrontendURL,
		TokenTTL:    cfg.Verification.TokenTTL,
		OTPLength:   cfg.Verification.OTPLength,
		SendTimeout: cfg.SendTimeout,
		Logger:      logger,
	})

	healthH := handler.NewHealthHandler()
	verifyH := handler.NewVerificationHandler(verifySvc, logger)
	pages := web.NewHandler(cfg.APIPrefix, cfg.Verification.OTPLength, logger)

	r.Get("/health-check/{action}", healthH.Ping)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.With(sensitiveRL.Limit).Post("/signup", verifyH.Signup)
		r.Get("/verify/{token}", verifyH.VerifyLink)
		r.With(sensitiveRL.Limit).Post("/verify-otp", verifyH.VerifyOTP)
		r.With(sensitiveRL.Limit).Post("/resend", verifyH.Resend)
	})

	r.Get("/", pages.Signup)
	r.Get("/verify", pages.Verify)
	r.Get("/verify-otp", pages.VerifyOTP)

	return r
}
