// Package evm signs claim mandates and submits payouts and invoice payments on EVM chains.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// ErrSignerMismatch is returned when a mandate was signed by an unexpected key
var ErrSignerMismatch = errors.New("evm: mandate signer mismatch")

// MandateSigner signs AP2 mandates with an ECDSA key as EIP-191 personal messages
type MandateSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewMandateSignerFromPrivateKey creates a signer from a hex-encoded private key
// (with or without "0x" prefix)
func NewMandateSignerFromPrivateKey(privateKeyHex string) (*MandateSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewMandateSigner(privateKey), nil
}

// NewMandateSigner creates a signer from a parsed key
func NewMandateSigner(privateKey *ecdsa.PrivateKey) *MandateSigner {
	return &MandateSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the Ethereum address of the signer
func (s *MandateSigner) Address() string {
	return s.address.Hex()
}

// Sign returns the 65-byte (r, s, v) signature over the mandate's signing payload, hex encoded
func (s *MandateSigner) Sign(ctx context.Context, m *mandate.Mandate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	digest, err := mandateDigest(m)
	if err != nil {
		return "", err
	}

	signature, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	// Adjust v value for Ethereum (recovery ID 0/1 → 27/28)
	signature[64] += 27

	return hexutil.Encode(signature), nil
}

// RecoverSigner returns the address that produced the mandate's signature
func RecoverSigner(m *mandate.Mandate) (common.Address, error) {
	if !m.Signed() {
		return common.Address{}, mandate.ErrUnsigned
	}

	signature, err := hexutil.Decode(m.Proof.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	if signature[64] >= 27 {
		signature[64] -= 27
	}

	digest, err := mandateDigest(m)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyMandate checks the mandate was signed by expected
func VerifyMandate(m *mandate.Mandate, expected string) error {
	signer, err := RecoverSigner(m)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(expected) {
		return fmt.Errorf("%w: got %s, want %s", ErrSignerMismatch, signer.Hex(), expected)
	}
	return nil
}

// MandateHash is the keccak256 of the mandate's signing payload
func MandateHash(m *mandate.Mandate) (common.Hash, error) {
	payload, err := m.SigningPayload()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(payload), nil
}

func mandateDigest(m *mandate.Mandate) ([]byte, error) {
	payload, err := m.SigningPayload()
	if err != nil {
		return nil, err
	}
	return accounts.TextHash(payload), nil
}
