package recoverai

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Gateway defaults, matching the weather oracle deployment
const (
	DefaultResourceName   = "weather"
	DefaultPayTo          = "0xOracleWallet_Mock_Address"
	DefaultNetwork        = "base-sepolia"
	DefaultAsset          = "0x036CbD53842c5426634e7929541eC2318f3dCF7e" // USDC on Base Sepolia
	DefaultAssetDecimals  = 6
	DefaultMaxTimeoutSecs = 300
)

// DefaultPrice is the per-identity access price of the weather resource
var DefaultPrice = MustParsePrice("0.01 USDC")

// DefaultWeather is the baseline weather snapshot
func DefaultWeather() Snapshot {
	return Snapshot{
		"weather":     "SUNNY",
		"wind_speed":  10.0,
		"temperature": 75.0,
	}
}

// ResourceGateway serves one named resource, gated by per-identity payment.
// It is safe for concurrent use and also satisfies Transport for in-process clients.
type ResourceGateway struct {
	name              string
	description       string
	price             Price
	payTo             string
	network           string
	asset             string
	decimals          int
	maxTimeoutSeconds int

	entitlements *EntitlementStore
	ledger       *InvoiceLedger
	audit        *AuditLog
	logger       log.Logger

	mu       sync.RWMutex
	snapshot Snapshot
	baseline Snapshot
	source   func() Snapshot
}

// GatewayOption configures a ResourceGateway
type GatewayOption func(*ResourceGateway)

// WithResourceName sets the resource name used in invoices and audit entries
func WithResourceName(name string) GatewayOption {
	return func(g *ResourceGateway) {
		g.name = name
	}
}

// WithDescription sets the description advertised in payment requirements
func WithDescription(description string) GatewayOption {
	return func(g *ResourceGateway) {
		g.description = description
	}
}

// WithPrice sets the access price
func WithPrice(price Price) GatewayOption {
	return func(g *ResourceGateway) {
		g.price = price
	}
}

// WithPayTo sets the payment address
func WithPayTo(address string) GatewayOption {
	return func(g *ResourceGateway) {
		g.payTo = address
	}
}

// WithNetwork sets the chain the invoice must be paid on
func WithNetwork(network string) GatewayOption {
	return func(g *ResourceGateway) {
		g.network = network
	}
}

// WithAsset sets the token contract and its decimals
func WithAsset(asset string, decimals int) GatewayOption {
	return func(g *ResourceGateway) {
		g.asset = asset
		g.decimals = decimals
	}
}

// WithBaseline sets the snapshot served initially and restored by ResetResource
func WithBaseline(baseline Snapshot) GatewayOption {
	return func(g *ResourceGateway) {
		g.baseline = baseline.Clone()
	}
}

// WithSource serves a snapshot computed on every read instead of a stored one.
// UpdateResource and ResetResource have no effect on what such a gateway serves.
func WithSource(source func() Snapshot) GatewayOption {
	return func(g *ResourceGateway) {
		g.source = source
	}
}

// WithEntitlementStore shares an existing store with the gateway's ledger
func WithEntitlementStore(store *EntitlementStore) GatewayOption {
	return func(g *ResourceGateway) {
		g.entitlements = store
	}
}

// WithAuditLog records gateway events into audit
func WithAuditLog(audit *AuditLog) GatewayOption {
	return func(g *ResourceGateway) {
		g.audit = audit
	}
}

// WithGatewayLogger sets the gateway logger
func WithGatewayLogger(logger log.Logger) GatewayOption {
	return func(g *ResourceGateway) {
		g.logger = logger
	}
}

// NewResourceGateway creates a gateway for the weather resource unless overridden by options
func NewResourceGateway(opts ...GatewayOption) *ResourceGateway {
	g := &ResourceGateway{
		name:              DefaultResourceName,
		description:       "Premium Weather Oracle - real-time disaster monitoring data",
		price:             DefaultPrice,
		payTo:             DefaultPayTo,
		network:           DefaultNetwork,
		asset:             DefaultAsset,
		decimals:          DefaultAssetDecimals,
		maxTimeoutSeconds: DefaultMaxTimeoutSecs,
		baseline:          DefaultWeather(),
		logger:            log.Root(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.entitlements == nil {
		g.entitlements = NewEntitlementStore()
	}
	if g.audit == nil {
		g.audit = NewAuditLog(DefaultAuditLimit)
	}
	g.ledger = NewInvoiceLedger(g.entitlements)
	g.snapshot = g.baseline.Clone()
	g.logger = g.logger.With("resource", g.name)
	return g
}

// Name returns the resource name
func (g *ResourceGateway) Name() string { return g.name }

// Price returns the access price
func (g *ResourceGateway) Price() Price { return g.price }

// Entitlements returns the gateway's entitlement store
func (g *ResourceGateway) Entitlements() *EntitlementStore { return g.entitlements }

// Ledger returns the gateway's invoice ledger
func (g *ResourceGateway) Ledger() *InvoiceLedger { return g.ledger }

// Audit returns the gateway's audit log
func (g *ResourceGateway) Audit() *AuditLog { return g.audit }

// GetResource returns the snapshot for entitled identities and a payment-required
// response carrying an invoice for everyone else
func (g *ResourceGateway) GetResource(ctx context.Context, identity Identity) (*GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if g.entitlements.IsEntitled(identity) {
		return g.serve(identity), nil
	}

	invoiceID := InvoiceID(AnonymousIdentity, 0)
	if !identity.IsAnonymous() {
		inv, err := g.ledger.Issue(identity, g.price)
		if errors.Is(err, ErrAlreadyEntitled) {
			// paid between the entitlement check and issuing
			return g.serve(identity), nil
		}
		if err != nil {
			return nil, err
		}
		invoiceID = inv.ID
	}

	g.audit.Record(AuditEntry{
		Event:   EventPaymentRequired,
		Service: g.name,
		Wallet:  identity,
		Amount:  g.price.String(),
		Details: map[string]interface{}{"status": http.StatusPaymentRequired, "invoice_id": invoiceID},
	})
	g.logger.Debug("Payment required", "wallet", identity, "invoice", invoiceID)

	return &GatewayResponse{
		StatusCode:      http.StatusPaymentRequired,
		PaymentRequired: g.paymentRequired(invoiceID),
	}, nil
}

func (g *ResourceGateway) serve(identity Identity) *GatewayResponse {
	snapshot := g.Snapshot()
	g.audit.Record(AuditEntry{
		Event:   EventDataServed,
		Service: g.name,
		Wallet:  identity,
	})
	return &GatewayResponse{StatusCode: http.StatusOK, Snapshot: snapshot}
}

func (g *ResourceGateway) paymentRequired(invoiceID string) *PaymentRequired {
	pr := &PaymentRequired{
		X402Version:    X402Version,
		Error:          "Payment Required",
		Price:          g.price.String(),
		PaymentAddress: g.payTo,
		Chain:          g.network,
		ID:             invoiceID,
	}
	if amount, err := g.price.BaseUnits(g.decimals); err == nil {
		pr.Accepts = []PaymentRequirements{{
			Scheme:            "exact",
			Network:           g.network,
			MaxAmountRequired: amount.String(),
			Resource:          "/" + g.name,
			Description:       g.description,
			MimeType:          "application/json",
			PayTo:             g.payTo,
			MaxTimeoutSeconds: g.maxTimeoutSeconds,
			Asset:             g.asset,
		}}
	} else {
		g.logger.Warn("Price not representable in asset units", "price", g.price, "decimals", g.decimals, "err", err)
	}
	return pr
}

// ConfirmPayment records a payment for invoiceID. Payments that cannot be tied to an
// identity are acknowledged generically instead of being rejected.
func (g *ResourceGateway) ConfirmPayment(ctx context.Context, invoiceID string, identityHint Identity) (*PaymentAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	receipt, err := g.ledger.RecordPayment(invoiceID, identityHint)
	if err != nil {
		if !errors.Is(err, ErrInvoiceNotFound) {
			return nil, err
		}
		g.audit.Record(AuditEntry{
			Event:   EventPaymentGeneric,
			Service: g.name,
			Wallet:  identityHint,
			Details: map[string]interface{}{"invoice_id": invoiceID},
		})
		g.logger.Warn("Payment acknowledged without identity", "invoice", invoiceID)
		return &PaymentAck{Status: PaymentVerifiedGeneric}, nil
	}

	g.audit.Record(AuditEntry{
		Event:   EventPaymentConfirmed,
		Service: g.name,
		Wallet:  receipt.Identity,
		Amount:  g.price.String(),
		Details: map[string]interface{}{
			"invoice_id":   receipt.InvoiceID,
			"resolved_by":  string(receipt.ResolvedBy),
			"already_paid": receipt.AlreadyPaid,
		},
	})
	g.logger.Info("Payment verified", "invoice", receipt.InvoiceID, "wallet", receipt.Identity,
		"resolvedBy", receipt.ResolvedBy, "alreadyPaid", receipt.AlreadyPaid)
	return &PaymentAck{Status: PaymentVerified, Wallet: receipt.Identity}, nil
}

// Snapshot returns a copy of the current resource value
func (g *ResourceGateway) Snapshot() Snapshot {
	if g.source != nil {
		return g.source().Clone()
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.snapshot.Clone()
}

// UpdateResource merges values into the snapshot. Readers observe either the old or
// the new snapshot, never a partial merge.
func (g *ResourceGateway) UpdateResource(values map[string]interface{}) Snapshot {
	g.mu.Lock()
	next := g.snapshot.Clone()
	for k, v := range values {
		next[k] = v
	}
	g.snapshot = next
	g.mu.Unlock()

	g.audit.Record(AuditEntry{
		Event:   EventResourceUpdated,
		Service: g.name,
		Details: values,
	})
	g.logger.Info("Resource updated", "fields", len(values))
	return next.Clone()
}

// ResetResource restores the baseline snapshot. Entitlements are untouched.
func (g *ResourceGateway) ResetResource() Snapshot {
	g.mu.Lock()
	g.snapshot = g.baseline.Clone()
	g.mu.Unlock()

	g.logger.Info("Resource reset to baseline")
	return g.baseline.Clone()
}

// ResetEntitlements clears every entitlement and invoice record
func (g *ResourceGateway) ResetEntitlements() {
	g.entitlements.Reset()
	g.ledger.Reset()
	g.logger.Info("Entitlements cleared")
}
