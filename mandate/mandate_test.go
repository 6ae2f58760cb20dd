package mandate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := New(Params{
		Payee:    "0xUser_Victim_Address",
		Amount:   "5000",
		Currency: "USDC",
		IssuedAt: issued,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{ContextSecurityV2, ContextAP2}, m.Context)
	assert.Equal(t, []string{TypeVerifiableCredential, TypePaymentMandate}, m.Type)
	assert.Equal(t, DefaultIssuer, m.Issuer)
	assert.Equal(t, "2025-03-01T12:00:00Z", m.IssuanceDate)
	assert.True(t, strings.HasPrefix(m.CredentialSubject.ID, "urn:uuid:"))
	assert.Equal(t, Amount{Currency: "USDC", Value: "5000"}, m.CredentialSubject.Amount)
	assert.Equal(t, ConditionTriggered, m.CredentialSubject.Condition)
	assert.Equal(t, ProofType, m.Proof.Type)
	assert.Equal(t, "did:web:recoverai.agent#keys-1", m.Proof.VerificationMethod)
	assert.False(t, m.Signed())
}

func TestNew_UniqueSubjectIDs(t *testing.T) {
	a, err := New(Params{Payee: "0xA", Amount: "1", Currency: "USDC"})
	require.NoError(t, err)
	b, err := New(Params{Payee: "0xA", Amount: "1", Currency: "USDC"})
	require.NoError(t, err)

	assert.NotEqual(t, a.CredentialSubject.ID, b.CredentialSubject.ID)
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		err    error
	}{
		{"missing payee", Params{Amount: "1", Currency: "USDC"}, ErrMissingPayee},
		{"zero amount", Params{Payee: "0xA", Amount: "0", Currency: "USDC"}, ErrInvalidAmount},
		{"garbage amount", Params{Payee: "0xA", Amount: "lots", Currency: "USDC"}, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := New(Params{Payee: "0xA", Amount: "1"})
	assert.Error(t, err)
}

func TestSigningPayload_ExcludesSignature(t *testing.T) {
	m, err := New(Params{Payee: "0xA", Amount: "5000", Currency: "USDC"})
	require.NoError(t, err)

	before, err := m.SigningPayload()
	require.NoError(t, err)

	m.Proof.Signature = "0xdeadbeef"
	after, err := m.SigningPayload()
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, "0xdeadbeef", m.Proof.Signature, "payload must not mutate the mandate")
	assert.NotContains(t, string(after), "signature")
}

func TestMandateJSON_FieldNames(t *testing.T) {
	m, err := New(Params{Payee: "0xA", Amount: "5000", Currency: "USDC"})
	require.NoError(t, err)
	m.Proof.Signature = "0x01"

	data, err := m.JSON()
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"@context", "type", "issuer", "issuanceDate", "credentialSubject", "proof"} {
		assert.Contains(t, doc, key)
	}
	proof := doc["proof"].(map[string]interface{})
	assert.Equal(t, "0x01", proof["signature"])
	assert.Equal(t, "assertionMethod", proof["proofPurpose"])
}

func TestValidate(t *testing.T) {
	m, err := New(Params{Payee: "0xA", Amount: "5000", Currency: "USDC"})
	require.NoError(t, err)

	result := Validate(m)
	assert.True(t, result.Valid, "errors: %v", result.Errors)

	m.CredentialSubject.ID = "mandate-1"
	m.CredentialSubject.Amount.Value = "-5"
	result = Validate(m)
	assert.False(t, result.Valid)
	assert.GreaterOrEqual(t, len(result.Errors), 2)

	result = ValidateDocument([]byte(`{"issuer":"did:web:x"}`))
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}
