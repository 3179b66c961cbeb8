package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-signup-verify/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	MarkVerified(ctx context.Context, userID string, at time.Time) error
}

// TokenRepository is the minimal interface the router requires from a verification token store.
type TokenRepository interface {
	Put(ctx context.Context, t *domain.VerificationToken) error
	GetByLinkToken(ctx context.Context, token string) (*domain.VerificationToken, error)
	GetOTP(ctx context.Context, userID, code string) (*domain.VerificationToken, error)
	Delete(ctx context.Context, userID, tokenID string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// ResendLimiter caps resends per email address.
type ResendLimiter interface {
	Reserve(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Sender delivers a verification link or code.
type Sender interface {
	SendVerification(ctx context.Context, to, name, payload string, method domain.Method) error
}

// EventPublisher announces verification lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, e domain.Event) error
}

// PasswordHasher hashes signup passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo  UserRepository
	TokenRepo TokenRepository
	Limiter   ResendLimiter
	Sender    Sender
	Publisher EventPublisher
	Hasher    PasswordHasher
	Logger    *slog.Logger
}
