// Package bite is the threshold-decryption collaborator. The server releases the
// policy secret only when the caller asserts the claim condition; the client
// implements agent.Decryptor against it.
package bite

import (
	"errors"
)

// Wire paths and values
const (
	DecryptPath = "/decrypt-claim"
	EncryptPath = "/encrypt-policy"
	HealthPath  = "/health"

	StatusClaimApproved = "CLAIM_APPROVED"
	DefaultCondition    = "Weather == HURRICANE"
	DefaultSecret       = "0xSECRET_KEY_THAT_UNLOCKS_MILLIONS"
	EncryptedBlobPrefix = "0xEncryptedBlob_BITE_v2_Signature_"

	conditionNotMetMessage = "Condition not met. Secret remains encrypted."
)

var (
	ErrConditionNotMet = errors.New("bite: condition not met")
	ErrUnavailable     = errors.New("bite: decrypt service unavailable")
	ErrEmptySecret     = errors.New("bite: empty secret")
)

// DecryptRequest is the /decrypt-claim body
type DecryptRequest struct {
	ConditionMet bool `json:"condition_met"`
}

// DecryptResponse is returned when the secret is released
type DecryptResponse struct {
	DecryptedSecret string `json:"decrypted_secret"`
	Status          string `json:"status"`
}

// EncryptResponse is returned by /encrypt-policy
type EncryptResponse struct {
	EncryptedBlob string `json:"encrypted_blob"`
	Condition     string `json:"condition"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}
