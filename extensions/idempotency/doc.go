// Package idempotency de-duplicates payout submissions.
//
// A claim agent produces exactly one signed mandate per run, but the process may be
// restarted or the submission retried while the first transaction is still pending.
// Wrapping the ledger submitter keys every submission by a hash of the mandate's
// signing payload, so a repeated submission of the same mandate returns the first
// transaction hash instead of paying out twice. A restarted agent issues a fresh
// mandate id, so binaries key on TermsPayload to also catch re-issued mandates.
//
// # Usage
//
//	submitter := idempotency.Wrap(payoutSubmitter)
//
//	// Deduplicate re-issued mandates with the same payout terms
//	submitter := idempotency.Wrap(payoutSubmitter,
//	    idempotency.WithKeyPayload(idempotency.TermsPayload),
//	)
//
//	// Custom TTL
//	submitter := idempotency.Wrap(payoutSubmitter,
//	    idempotency.WithTTL(24 * time.Hour),
//	)
//
// # How It Works
//
// 1. A key is generated from the mandate signing payload (SHA256 hash by default)
// 2. The store atomically checks for a cached transaction hash or an in-flight submission
// 3. If cached: return the hash without submitting
// 4. If in-flight: wait for the other submission, then return its hash
// 5. Otherwise: submit, then cache the hash
//
// Failed submissions are NOT cached, allowing legitimate retries.
package idempotency
