package recoverai

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// X402Version is the protocol version advertised in 402 responses
const X402Version = 1

// Identity is an opaque client key, typically a wallet address.
// The empty identity is anonymous and never entitled.
type Identity string

// AnonymousIdentity is the placeholder embedded in invoice ids issued to anonymous callers.
// It never resolves to an entitled identity.
const AnonymousIdentity Identity = "unknown"

// IsAnonymous reports whether the identity cannot hold an entitlement
func (i Identity) IsAnonymous() bool {
	s := strings.TrimSpace(string(i))
	return s == "" || Identity(s) == AnonymousIdentity
}

// Price is a decimal amount in a named currency, e.g. "0.01 USDC"
type Price struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// ParsePrice parses "<decimal> <currency>"
func ParsePrice(s string) (Price, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Price{}, fmt.Errorf("invalid price format: %q", s)
	}
	if _, ok := new(big.Rat).SetString(fields[0]); !ok {
		return Price{}, fmt.Errorf("invalid price amount: %q", fields[0])
	}
	return Price{Amount: fields[0], Currency: fields[1]}, nil
}

// MustParsePrice is ParsePrice for package-level defaults
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Price) String() string {
	return p.Amount + " " + p.Currency
}

// BaseUnits converts the decimal amount to integer base units for a token with the given decimals
func (p Price) BaseUnits(decimals int) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(p.Amount)
	if !ok {
		return nil, fmt.Errorf("invalid price amount: %q", p.Amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("price %s has more than %d decimals", p.Amount, decimals)
	}
	return new(big.Int).Set(r.Num()), nil
}

// InvoiceStatus is the payment state of an invoice
type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "UNPAID"
	InvoicePaid   InvoiceStatus = "PAID"
)

// Invoice is a priced claim-check issued to an identity
type Invoice struct {
	ID       string        `json:"id"`
	Identity Identity      `json:"identity"`
	Price    Price         `json:"price"`
	Status   InvoiceStatus `json:"status"`
	IssuedAt time.Time     `json:"issuedAt"`
	PaidAt   time.Time     `json:"paidAt,omitempty"`
}

// Paid reports whether the invoice has been settled
func (i Invoice) Paid() bool {
	return i.Status == InvoicePaid
}

// Snapshot is the current value of a gated resource
type Snapshot map[string]interface{}

// Clone returns a shallow copy of the snapshot
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Number returns the field as a float64 if it holds a numeric value
func (s Snapshot) Number(field string) (float64, bool) {
	switch v := s[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// PaymentRequirements describes one acceptable way to pay for a resource
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds,omitempty"`
	Asset             string `json:"asset"`
}

// PaymentRequired is the 402 document sent to clients that are not entitled
type PaymentRequired struct {
	X402Version    int                   `json:"x402Version"`
	Error          string                `json:"error"`
	Price          string                `json:"price"`
	PaymentAddress string                `json:"payment_address"`
	Chain          string                `json:"chain"`
	ID             string                `json:"id"`
	Accepts        []PaymentRequirements `json:"accepts,omitempty"`
}

// PaymentAck statuses returned by the payment endpoint
const (
	PaymentVerified        = "verified"
	PaymentVerifiedGeneric = "verified_generic"
)

// PaymentAck is the gateway's answer to a payment confirmation
type PaymentAck struct {
	Status string   `json:"status"`
	Wallet Identity `json:"wallet,omitempty"`
}

// Resolved reports whether the gateway tied the payment to an identity
func (a PaymentAck) Resolved() bool {
	return a.Status == PaymentVerified
}

// GatewayResponse is the transport-neutral result of a resource request
type GatewayResponse struct {
	StatusCode      int
	Snapshot        Snapshot
	PaymentRequired *PaymentRequired
}
