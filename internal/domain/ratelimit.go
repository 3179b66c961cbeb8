package domain

import (
	"fmt"
	"time"
)

// RateLimitError is returned when a key has used its allowance for the
// current window. errors.Is(err, ErrRateLimited) holds for it.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("limit of %d reached, retry in %s", e.Limit, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
