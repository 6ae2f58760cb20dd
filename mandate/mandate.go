// Package mandate builds AP2 payment mandates: verifiable credentials that
// authorize a single payout once a parametric claim condition is verified.
package mandate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Document constants
const (
	ContextSecurityV2 = "https://w3id.org/security/v2"
	ContextAP2        = "https://ap2.google.com/v1"

	TypeVerifiableCredential = "VerifiableCredential"
	TypePaymentMandate       = "PaymentMandate"

	ProofType          = "EcdsaSecp256k1Signature2019"
	ProofPurpose       = "assertionMethod"
	DefaultIssuer      = "did:web:recoverai.agent"
	ConditionTriggered = "PARAMETRIC_TRIGGER_VERIFIED"
)

var (
	ErrMissingPayee  = errors.New("mandate: payee is required")
	ErrInvalidAmount = errors.New("mandate: amount must be a positive decimal")
	ErrUnsigned      = errors.New("mandate: not signed")
)

// Amount is a decimal value in a currency
type Amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// Subject is the credential subject: who is paid, how much, and why
type Subject struct {
	ID        string `json:"id"`
	Payee     string `json:"payee"`
	Amount    Amount `json:"amount"`
	Intent    string `json:"intent,omitempty"`
	Condition string `json:"condition"`
}

// Proof carries the issuer's signature over the mandate
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	ProofPurpose       string `json:"proofPurpose"`
	VerificationMethod string `json:"verificationMethod"`
	Signature          string `json:"signature,omitempty"`
}

// Mandate is an AP2 PaymentMandate credential
type Mandate struct {
	Context           []string `json:"@context"`
	Type              []string `json:"type"`
	Issuer            string   `json:"issuer"`
	IssuanceDate      string   `json:"issuanceDate"`
	CredentialSubject Subject  `json:"credentialSubject"`
	Proof             Proof    `json:"proof"`
}

// Params are the inputs of New. Zero-valued optional fields take defaults.
type Params struct {
	Payee     string
	Amount    string
	Currency  string
	Condition string
	Intent    string

	Issuer             string    // default DefaultIssuer
	VerificationMethod string    // default Issuer + "#keys-1"
	IssuedAt           time.Time // default time.Now
}

// New creates an unsigned mandate
func New(p Params) (*Mandate, error) {
	if p.Payee == "" {
		return nil, ErrMissingPayee
	}
	if r, ok := new(big.Rat).SetString(p.Amount); !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, p.Amount)
	}
	if p.Currency == "" {
		return nil, fmt.Errorf("mandate: currency is required")
	}
	if p.Condition == "" {
		p.Condition = ConditionTriggered
	}
	if p.Issuer == "" {
		p.Issuer = DefaultIssuer
	}
	if p.VerificationMethod == "" {
		p.VerificationMethod = p.Issuer + "#keys-1"
	}
	if p.IssuedAt.IsZero() {
		p.IssuedAt = time.Now()
	}
	issued := p.IssuedAt.UTC().Format(time.RFC3339)

	return &Mandate{
		Context:      []string{ContextSecurityV2, ContextAP2},
		Type:         []string{TypeVerifiableCredential, TypePaymentMandate},
		Issuer:       p.Issuer,
		IssuanceDate: issued,
		CredentialSubject: Subject{
			ID:        "urn:uuid:" + uuid.NewString(),
			Payee:     p.Payee,
			Amount:    Amount{Currency: p.Currency, Value: p.Amount},
			Intent:    p.Intent,
			Condition: p.Condition,
		},
		Proof: Proof{
			Type:               ProofType,
			Created:            issued,
			ProofPurpose:       ProofPurpose,
			VerificationMethod: p.VerificationMethod,
		},
	}, nil
}

// SigningPayload is the byte string a signer signs: the JSON document without its signature
func (m *Mandate) SigningPayload() ([]byte, error) {
	unsigned := *m
	unsigned.Proof.Signature = ""
	data, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("mandate: failed to marshal signing payload: %w", err)
	}
	return data, nil
}

// Signed reports whether a signature has been attached
func (m *Mandate) Signed() bool {
	return m.Proof.Signature != ""
}

// JSON returns the indented document
func (m *Mandate) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
