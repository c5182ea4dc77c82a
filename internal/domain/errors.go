package domain

import "github.com/pkg/errors"

// Failure taxonomy shared by the MAL and publishing clients. Clients wrap
// these sentinels with context; callers classify with errors.Is. Anything
// that does not match a sentinel is transient and naturally retried on the
// next cycle.
var (
	// ErrAuthFailed means the remote API rejected our credentials (401).
	// A configuration-level problem; never retried within a cycle.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrAccessDenied means the remote API refused the operation (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrRateLimited means the publishing API returned 429. The publisher
	// waits a fixed backoff and retries exactly once.
	ErrRateLimited = errors.New("rate limited")
)
