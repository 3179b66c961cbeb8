package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-signup-verify/internal/domain"
	"github.com/go-signup-verify/internal/pkg/id"
	"github.com/go-signup-verify/internal/pkg/metrics"
	"github.com/go-signup-verify/internal/pkg/validate"
)

const (
	defaultTokenTTL    = 45 * time.Minute
	defaultOTPLength   = 6
	defaultSendTimeout = 10 * time.Second
)

type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Method   string `json:"method"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type ResendRequest struct {
	Email  string `json:"email"`
	Method string `json:"method"`
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest) error
	VerifyLink(ctx context.Context, token string) error
	VerifyOTP(ctx context.Context, req VerifyOTPRequest) error
	Resend(ctx context.Context, req ResendRequest) error
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	MarkVerified(ctx context.Context, userID string, at time.Time) error
}

type tokenStore interface {
	Put(ctx context.Context, t *domain.VerificationToken) error
	GetByLinkToken(ctx context.Context, token string) (*domain.VerificationToken, error)
	GetOTP(ctx context.Context, userID, code string) (*domain.VerificationToken, error)
	Delete(ctx context.Context, userID, tokenID string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type sender interface {
	SendVerification(ctx context.Context, to, name, payload string, method domain.Method) error
}

// resendLimiter hands out resend slots per email. Reserve must be atomic and
// return an error satisfying errors.Is(err, domain.ErrRateLimited) when full.
type resendLimiter interface {
	Reserve(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

type publisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

type passwordHasher interface {
	Hash(plain string) (string, error)
}

type codeGenerator interface {
	LinkToken() (string, error)
	OTP(n int) (string, error)
}

type service struct {
	users       userStore
	tokens      tokenStore
	sender      sender
	limiter     resendLimiter
	events      publisher
	hasher      passwordHasher
	gen         codeGenerator
	frontendURL string
	tokenTTL    time.Duration
	otpLength   int
	sendTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

type ServiceDeps struct {
	UserRepo    userStore
	TokenRepo   tokenStore
	Sender      sender
	Limiter     resendLimiter
	Publisher   publisher
	Hasher      passwordHasher
	Generator   codeGenerator
	FrontendURL string
	TokenTTL    time.Duration
	OTPLength   int
	SendTimeout time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:       deps.UserRepo,
		tokens:      deps.TokenRepo,
		sender:      deps.Sender,
		limiter:     deps.Limiter,
		events:      deps.Publisher,
		hasher:      deps.Hasher,
		gen:         deps.Generator,
		frontendURL: strings.TrimRight(deps.FrontendURL, "/"),
		tokenTTL:    deps.TokenTTL,
		otpLength:   deps.OTPLength,
		sendTimeout: deps.SendTimeout,
		now:         deps.Now,
		logger:      deps.Logger,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = defaultTokenTTL
	}
	if s.otpLength <= 0 {
		s.otpLength = defaultOTPLength
	}
	if s.sendTimeout <= 0 {
		s.sendTimeout = defaultSendTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *service) Signup(ctx context.Context, req SignupRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = domain.NormalizeEmail(req.Email)
	method := domain.ParseMethod(req.Method)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return &domain.ValidationError{Msg: "Missing fields"}
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		metrics.SignupsTotal.WithLabelValues(string(method), metrics.OutcomeConflict).Inc()
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.NewAt(now),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.SignupsTotal.WithLabelValues(string(method), metrics.OutcomeConflict).Inc()
		}
		return fmt.Errorf("create user: %w", err)
	}
	s.publish(ctx, domain.EventUserRegistered, u, method)

	if err := s.issue(ctx, u, method); err != nil {
		// The account exists unverified; a resend recovers it.
		s.logger.Warn("user created without a delivered verification",
			slog.String("user_id", u.UserID), slog.String("method", string(method)), slog.Any("err", err))
		metrics.SignupsTotal.WithLabelValues(string(method), metrics.OutcomeError).Inc()
		return err
	}
	metrics.SignupsTotal.WithLabelValues(string(method), metrics.OutcomeOK).Inc()
	return nil
}

func (s *service) VerifyLink(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty link token: %w", domain.ErrNotFound)
	}
	t, err := s.tokens.GetByLinkToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.VerificationsTotal.WithLabelValues(string(domain.MethodLink), metrics.OutcomeInvalid).Inc()
		}
		return fmt.Errorf("lookup link token: %w", err)
	}
	return s.consume(ctx, t)
}

func (s *service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) error {
	email := domain.NormalizeEmail(req.Email)
	code := strings.TrimSpace(req.OTP)
	if email == "" || code == "" {
		return &domain.ValidationError{Msg: "Email and OTP required"}
	}
	u, err := s.lookupUser(ctx, email)
	if err != nil {
		return err
	}
	t, err := s.tokens.GetOTP(ctx, u.UserID, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.VerificationsTotal.WithLabelValues(string(domain.MethodOTP), metrics.OutcomeInvalid).Inc()
		}
		return fmt.Errorf("lookup otp: %w", err)
	}
	return s.consume(ctx, t)
}

// consume marks the token's owner verified and deletes the token.
func (s *service) consume(ctx context.Context, t *domain.VerificationToken) error {
	if t.Expired(s.now()) {
		metrics.VerificationsTotal.WithLabelValues(string(t.Type), metrics.OutcomeExpired).Inc()
		return fmt.Errorf("%s token %s: %w", t.Type, t.TokenID, domain.ErrExpired)
	}
	u, err := s.users.Get(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("token owner %s: %w", t.UserID, domain.ErrUserNotFound)
		}
		return fmt.Errorf("lookup token owner: %w", err)
	}
	if err := s.users.MarkVerified(ctx, u.UserID, s.now().UTC()); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	if err := s.tokens.Delete(ctx, t.UserID, t.TokenID); err != nil {
		s.logger.Warn("failed to delete consumed verification token",
			slog.String("user_id", t.UserID), slog.String("token_id", t.TokenID), slog.Any("err", err))
	}
	metrics.VerificationsTotal.WithLabelValues(string(t.Type), metrics.OutcomeOK).Inc()
	s.publish(ctx, domain.EventUserVerified, u, t.Type)
	return nil
}

func (s *service) Resend(ctx context.Context, req ResendRequest) (err error) {
	email := domain.NormalizeEmail(req.Email)
	method := domain.ParseMethod(req.Method)
	if email == "" {
		return &domain.ValidationError{Msg: "Email required"}
	}

	if err := s.limiter.Reserve(ctx, email); err != nil {
		if !errors.Is(err, domain.ErrRateLimited) {
			return fmt.Errorf("reserve resend slot: %w", err)
		}
		// A verified account is reported as such whatever the limiter says.
		if u, uerr := s.users.GetByEmail(ctx, email); uerr == nil && u.IsVerified {
			return fmt.Errorf("resend for %s: %w", u.UserID, domain.ErrAlreadyVerified)
		}
		metrics.ResendsTotal.WithLabelValues(string(method), metrics.OutcomeRateLimited).Inc()
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		// Only a delivered resend keeps its slot.
		if rerr := s.limiter.Release(context.WithoutCancel(ctx), email); rerr != nil {
			s.logger.Warn("failed to release resend slot", slog.Any("err", rerr))
		}
	}()

	u, err := s.lookupUser(ctx, email)
	if err != nil {
		return err
	}
	if u.IsVerified {
		return fmt.Errorf("resend for %s: %w", u.UserID, domain.ErrAlreadyVerified)
	}
	if err := s.issue(ctx, u, method); err != nil {
		metrics.ResendsTotal.WithLabelValues(string(method), metrics.OutcomeError).Inc()
		return err
	}
	metrics.ResendsTotal.WithLabelValues(string(method), metrics.OutcomeOK).Inc()
	return nil
}

func (s *service) lookupUser(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup %q: %w", email, domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

// issue replaces every token held by u with a fresh one and delivers it.
func (s *service) issue(ctx context.Context, u *domain.User, method domain.Method) error {
	if err := s.tokens.DeleteByUser(ctx, u.UserID); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	now := s.now().UTC()
	t := &domain.VerificationToken{
		TokenID:   id.NewAt(now),
		UserID:    u.UserID,
		Type:      method,
		ExpiresAt: now.Add(s.tokenTTL),
		PurgeAt:   now.Add(s.tokenTTL + domain.PurgeGrace),
		CreatedAt: now,
	}
	var payload string
	switch method {
	case domain.MethodOTP:
		code, err := s.gen.OTP(s.otpLength)
		if err != nil {
			return err
		}
		t.OTP = code
		payload = code
	default:
		tok, err := s.gen.LinkToken()
		if err != nil {
			return err
		}
		t.Token = tok
		payload = s.frontendURL + "/verify?token=" + tok
	}
	if err := s.tokens.Put(ctx, t); err != nil {
		return fmt.Errorf("store %s token: %w", method, err)
	}
	return s.deliver(ctx, u, payload, method)
}

func (s *service) deliver(ctx context.Context, u *domain.User, payload string, method domain.Method) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := time.Now()
	err := s.sender.SendVerification(sendCtx, u.Email, u.Name, payload, method)
	metrics.SendDuration.WithLabelValues(string(method)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SendFailuresTotal.WithLabelValues(string(method)).Inc()
		return fmt.Errorf("send %s verification: %w: %w", method, domain.ErrDelivery, err)
	}
	return nil
}

// publish announces e best-effort; a failed publish never fails the request.
func (s *service) publish(ctx context.Context, typ domain.EventType, u *domain.User, method domain.Method) {
	if s.events == nil {
		return
	}
	e := domain.Event{Type: typ, UserID: u.UserID, Email: u.Email, Method: method, OccurredAt: s.now().UTC()}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", slog.String("type", string(typ)), slog.Any("err", err))
	}
}
