package domain

import "time"

// Method selects how a verification credential is delivered.
type Method string

const (
	MethodLink Method = "link"
	MethodOTP  Method = "otp"
)

// ParseMethod maps a client-supplied value to a Method. Anything other
// than "otp" falls back to link delivery.
func ParseMethod(s string) Method {
	if Method(s) == MethodOTP {
		return MethodOTP
	}
	return MethodLink
}

// PurgeGrace is how long an expired token is kept so a late attempt is
// still answered with ErrExpired rather than ErrNotFound.
const PurgeGrace = 24 * time.Hour

// VerificationToken is a pending proof of email control.
// PK: user_id, SK: token_id. Token is set for link tokens, OTP for otp tokens.
// PurgeAt is stored as epoch seconds and drives DynamoDB TTL.
type VerificationToken struct {
	TokenID   string    `json:"id" dynamodbav:"token_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Type      Method    `json:"type" dynamodbav:"type"`
	Token     string    `json:"-" dynamodbav:"token,omitempty"`
	OTP       string    `json:"-" dynamodbav:"otp,omitempty"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"expires_at,unixtime"`
	PurgeAt   time.Time `json:"-" dynamodbav:"purge_at,unixtime"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}

// Expired reports whether the token's deadline has passed at now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// Purgeable reports whether the token may be dropped from storage at now.
// Tokens without a PurgeAt fall back to ExpiresAt plus PurgeGrace.
func (t *VerificationToken) Purgeable(now time.Time) bool {
	at := t.PurgeAt
	if at.IsZero() {
		at = t.ExpiresAt.Add(PurgeGrace)
	}
	return at.Before(now)
}
