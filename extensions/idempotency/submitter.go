package idempotency

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// Submitter executes a payout for a signed mandate and returns the transaction id
type Submitter interface {
	Submit(ctx context.Context, m *mandate.Mandate) (string, error)
}

// IdempotentSubmitter wraps a Submitter so each mandate is submitted at most once
// per TTL window.
type IdempotentSubmitter struct {
	inner        Submitter
	store        SubmissionStore
	keyGenerator KeyGenerator
	payload      PayloadFunc
	logger       log.Logger
}

// Wrap creates an IdempotentSubmitter around submitter.
//
// Default configuration:
//   - InMemoryStore with DefaultTTL
//   - SHA256 key generator over SigningPayload
func Wrap(submitter Submitter, opts ...Option) *IdempotentSubmitter {
	cfg := &config{
		ttl:          DefaultTTL,
		keyGenerator: DefaultKeyGenerator,
		payload:      SigningPayload,
		logger:       log.Root(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := cfg.store
	if store == nil {
		store = NewInMemoryStore(cfg.ttl)
	}

	return &IdempotentSubmitter{
		inner:        submitter,
		store:        store,
		keyGenerator: cfg.keyGenerator,
		payload:      cfg.payload,
		logger:       cfg.logger,
	}
}

// Submit submits m unless a mandate with the same key was already submitted or is
// being submitted. Failed submissions are not cached.
func (s *IdempotentSubmitter) Submit(ctx context.Context, m *mandate.Mandate) (string, error) {
	payload, err := s.payload(m)
	if err != nil {
		return "", err
	}
	key := s.keyGenerator(payload)

	for {
		status, txHash, done := s.store.CheckAndMark(key)

		switch status {
		case StatusCached:
			s.logger.Info("Payout already submitted", "mandate", m.CredentialSubject.ID, "tx", txHash)
			return txHash, nil

		case StatusInFlight:
			txHash, err := s.store.WaitForResult(ctx, key, done)
			if err != nil {
				return "", err
			}
			if txHash != "" {
				return txHash, nil
			}
			// in-flight submission failed, take the slot
			continue
		}

		txHash, err = s.inner.Submit(ctx, m)
		if err != nil {
			s.store.Fail(key, done)
			return "", err
		}
		s.store.Complete(key, txHash, done)
		return txHash, nil
	}
}

// Inner returns the wrapped submitter
func (s *IdempotentSubmitter) Inner() Submitter {
	return s.inner
}
