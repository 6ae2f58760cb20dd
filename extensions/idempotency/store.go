package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// SubmissionStatus represents the result of checking the store.
type SubmissionStatus int

const (
	// StatusNotFound means no cached result and no in-flight submission.
	StatusNotFound SubmissionStatus = iota
	// StatusCached means a cached transaction hash was found.
	StatusCached
	// StatusInFlight means another caller is currently submitting this mandate.
	StatusInFlight
)

func (s SubmissionStatus) String() string {
	switch s {
	case StatusCached:
		return "cached"
	case StatusInFlight:
		return "in_flight"
	default:
		return "not_found"
	}
}

// SubmissionStore defines the storage behind submission idempotency.
// Implementations must be safe for concurrent use.
type SubmissionStore interface {
	// CheckAndMark atomically checks the store and marks the key as in-flight if needed.
	//
	// Returns:
	//   - StatusCached + txHash + nil: a cached result exists, return it immediately
	//   - StatusInFlight + "" + done: another caller is submitting, wait on done
	//   - StatusNotFound + "" + done: this caller should submit (now marked in-flight)
	CheckAndMark(key string) (SubmissionStatus, string, chan struct{})

	// WaitForResult waits for an in-flight submission, respecting context cancellation.
	// An empty hash means the in-flight submission failed and the caller should retry.
	WaitForResult(ctx context.Context, key string, done chan struct{}) (string, error)

	// Complete caches txHash and signals waiters. done must come from CheckAndMark.
	Complete(key string, txHash string, done chan struct{})

	// Fail removes the in-flight marker without caching and signals waiters.
	Fail(key string, done chan struct{})
}

// KeyGenerator derives a deduplication key from a mandate signing payload
type KeyGenerator func(payload []byte) string

// DefaultKeyGenerator is the hex SHA256 of the payload
func DefaultKeyGenerator(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// PayloadFunc selects the mandate bytes a key is generated from
type PayloadFunc func(m *mandate.Mandate) ([]byte, error)

// SigningPayload keys on the whole unsigned mandate. Two mandates issued for the
// same claim differ in id and issuance time, so each is submitted.
func SigningPayload(m *mandate.Mandate) ([]byte, error) {
	return m.SigningPayload()
}

type terms struct {
	Payee     string `json:"payee"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Condition string `json:"condition"`
	Issuer    string `json:"issuer"`
}

// TermsPayload keys on what the payout pays: payee, amount, currency, condition and issuer.
// A mandate re-issued with the same terms inside the TTL window is not submitted again.
func TermsPayload(m *mandate.Mandate) ([]byte, error) {
	subject := m.CredentialSubject
	return json.Marshal(terms{
		Payee:     subject.Payee,
		Amount:    subject.Amount.Value,
		Currency:  subject.Amount.Currency,
		Condition: subject.Condition,
		Issuer:    m.Issuer,
	})
}
