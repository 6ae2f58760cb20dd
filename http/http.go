// Package http carries the payment-gated resource protocol over HTTP.
// It provides the wire types shared by the gateway server and the HTTP Transport
// used by recoverai.GatewayClient.
package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
)

// Header names
const (
	IdentityHeader        = "X-Wallet-Address"
	PaymentRequiredHeader = "PAYMENT-REQUIRED"
)

// Default route paths
const (
	DefaultResourcePath = "/weather"
	DefaultPaymentPath  = "/pay-invoice"
)

// StatusSuccess is the status field of a served resource body
const StatusSuccess = "success"

// Reserved fields added to a 200 body next to the snapshot fields
const (
	fieldStatus  = "status"
	fieldReceipt = "oracle_receipt"
)

// PaymentRequest is the body of the payment endpoint. Service names the paid
// resource and defaults to the server's primary one.
type PaymentRequest struct {
	InvoiceID     string             `json:"invoice_id"`
	WalletAddress recoverai.Identity `json:"wallet_address,omitempty"`
	Service       string             `json:"service,omitempty"`
}

// OracleReceipt attests which data was served and what it cost
type OracleReceipt struct {
	Service   string `json:"service"`
	Cost      string `json:"cost"`
	Timestamp string `json:"timestamp"`
	DataHash  string `json:"data_hash"`
}

// ErrorResponse is the body of non-protocol error replies
type ErrorResponse struct {
	Error string `json:"error"`
}

// EncodePaymentRequiredHeader encodes a 402 document as base64 JSON
func EncodePaymentRequiredHeader(required recoverai.PaymentRequired) (string, error) {
	data, err := json.Marshal(required)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePaymentRequiredHeader decodes a base64 payment required header
func DecodePaymentRequiredHeader(header string) (recoverai.PaymentRequired, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return recoverai.PaymentRequired{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var required recoverai.PaymentRequired
	if err := json.Unmarshal(data, &required); err != nil {
		return recoverai.PaymentRequired{}, fmt.Errorf("invalid payment required JSON: %w", err)
	}

	return required, nil
}
