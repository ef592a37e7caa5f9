package config

import "git.home.luguber.info/inful/blogsync/internal/foundation/normalization"

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var (
	retryBackoffs = normalization.NewEnum("retry backoff",
		RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential)
	collisionPolicies = normalization.NewEnum("collision policy",
		CollisionIncrement, CollisionFail)
	crossSitePolicies = normalization.NewEnum("cross-site policy",
		CrossSiteAbsolute, CrossSiteBlock)
)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	mode, _ := retryBackoffs.Lookup(raw)
	return mode
}
