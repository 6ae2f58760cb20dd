package idempotency

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultTTL is how long submitted transaction hashes are remembered
const DefaultTTL = 24 * time.Hour

type config struct {
	ttl          time.Duration
	store        SubmissionStore
	keyGenerator KeyGenerator
	payload      PayloadFunc
	logger       log.Logger
}

// Option configures an IdempotentSubmitter.
type Option func(*config)

// WithTTL sets the cache TTL for successful submissions.
// Ignored when WithStore is also given.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithStore sets a custom SubmissionStore implementation.
func WithStore(store SubmissionStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithKeyGenerator sets a custom key generation function.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(c *config) {
		c.keyGenerator = gen
	}
}

// WithKeyPayload sets which mandate bytes are keyed. The default is SigningPayload.
func WithKeyPayload(payload PayloadFunc) Option {
	return func(c *config) {
		c.payload = payload
	}
}

// WithLogger sets the logger used to report deduplicated submissions.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
