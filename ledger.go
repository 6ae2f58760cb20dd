package recoverai

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// InvoicePrefix starts every invoice id
const InvoicePrefix = "invoice_"

// InvoiceID builds the id of the n-th invoice issued to identity.
// The first invoice is "invoice_<identity>", re-issues are "invoice_<n>.<identity>".
func InvoiceID(identity Identity, generation int) string {
	if generation <= 0 {
		return InvoicePrefix + string(identity)
	}
	return InvoicePrefix + strconv.Itoa(generation) + "." + string(identity)
}

// IdentityFromInvoiceID recovers the identity embedded in a first-generation invoice id.
// Re-issued ids are only resolvable by the ledger that issued them, see InvoiceLedger.Owner.
func IdentityFromInvoiceID(id string) (Identity, bool) {
	rest, ok := strings.CutPrefix(id, InvoicePrefix)
	if !ok {
		return "", false
	}
	identity := Identity(rest)
	if identity.IsAnonymous() {
		return "", false
	}
	return identity, true
}

// Resolution records how a payment was tied to an identity
type Resolution string

const (
	ResolvedByRecord    Resolution = "record"
	ResolvedByInvoiceID Resolution = "invoice_id"
	ResolvedByHint      Resolution = "hint"
)

// PaymentReceipt is the outcome of a successful RecordPayment
type PaymentReceipt struct {
	InvoiceID   string
	Identity    Identity
	ResolvedBy  Resolution
	AlreadyPaid bool
}

// InvoiceLedger mints invoices and records their payment. Paying an invoice grants
// the owning identity in the linked EntitlementStore. It is safe for concurrent use.
type InvoiceLedger struct {
	mu           sync.Mutex
	invoices     map[string]*Invoice
	outstanding  map[Identity]string
	generations  map[Identity]int
	entitlements *EntitlementStore
	now          func() time.Time
}

// LedgerOption configures an InvoiceLedger
type LedgerOption func(*InvoiceLedger)

// WithLedgerClock overrides the ledger's time source
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *InvoiceLedger) {
		l.now = now
	}
}

// NewInvoiceLedger creates a ledger that grants into entitlements
func NewInvoiceLedger(entitlements *EntitlementStore, opts ...LedgerOption) *InvoiceLedger {
	l := &InvoiceLedger{
		invoices:     make(map[string]*Invoice),
		outstanding:  make(map[Identity]string),
		generations:  make(map[Identity]int),
		entitlements: entitlements,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Issue returns the identity's outstanding unpaid invoice, or mints a new one.
// An identity that is already entitled gets ErrAlreadyEntitled instead of an invoice.
func (l *InvoiceLedger) Issue(identity Identity, price Price) (Invoice, error) {
	if identity.IsAnonymous() {
		return Invoice{}, ErrAnonymousIdentity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// RecordPayment grants while holding l.mu, so this cannot race a payment
	if l.entitlements.IsEntitled(identity) {
		return Invoice{}, ErrAlreadyEntitled
	}

	if id, ok := l.outstanding[identity]; ok {
		if inv := l.invoices[id]; inv != nil && !inv.Paid() {
			return *inv, nil
		}
		delete(l.outstanding, identity)
	}

	gen := l.generations[identity]
	id := InvoiceID(identity, gen)
	for l.invoices[id] != nil {
		gen++
		id = InvoiceID(identity, gen)
	}
	l.generations[identity] = gen + 1

	inv := &Invoice{
		ID:       id,
		Identity: identity,
		Price:    price,
		Status:   InvoiceUnpaid,
		IssuedAt: l.now(),
	}
	l.invoices[id] = inv
	l.outstanding[identity] = id
	return *inv, nil
}

// RecordPayment marks an invoice paid and entitles its owner.
//
// The owner is resolved from the invoice record, then from the identity embedded in
// the id, then from identityHint. Paying an already-paid invoice succeeds with
// AlreadyPaid set and grants nothing. If no identity can be resolved the error
// wraps ErrInvoiceNotFound.
func (l *InvoiceLedger) RecordPayment(invoiceID string, identityHint Identity) (PaymentReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if inv, ok := l.invoices[invoiceID]; ok {
		receipt := PaymentReceipt{
			InvoiceID:  inv.ID,
			Identity:   inv.Identity,
			ResolvedBy: ResolvedByRecord,
		}
		if inv.Paid() {
			receipt.AlreadyPaid = true
			return receipt, nil
		}
		inv.Status = InvoicePaid
		inv.PaidAt = l.now()
		if l.outstanding[inv.Identity] == inv.ID {
			delete(l.outstanding, inv.Identity)
		}
		l.entitlements.Grant(inv.Identity)
		return receipt, nil
	}

	if identity, ok := l.ownerFromIDLocked(invoiceID); ok {
		now := l.now()
		l.invoices[invoiceID] = &Invoice{
			ID:       invoiceID,
			Identity: identity,
			Status:   InvoicePaid,
			IssuedAt: now,
			PaidAt:   now,
		}
		granted := l.entitlements.Grant(identity)
		return PaymentReceipt{
			InvoiceID:   invoiceID,
			Identity:    identity,
			ResolvedBy:  ResolvedByInvoiceID,
			AlreadyPaid: !granted,
		}, nil
	}

	if !identityHint.IsAnonymous() {
		granted := l.entitlements.Grant(identityHint)
		return PaymentReceipt{
			InvoiceID:   invoiceID,
			Identity:    identityHint,
			ResolvedBy:  ResolvedByHint,
			AlreadyPaid: !granted,
		}, nil
	}

	return PaymentReceipt{}, fmt.Errorf("%w: %q", ErrInvoiceNotFound, invoiceID)
}

// Owner resolves the identity an invoice id belongs to, from the record if one
// exists and otherwise from the id itself
func (l *InvoiceLedger) Owner(invoiceID string) (Identity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if inv, ok := l.invoices[invoiceID]; ok {
		return inv.Identity, true
	}
	return l.ownerFromIDLocked(invoiceID)
}

// ownerFromIDLocked strips a "<n>." generation prefix only when this ledger has
// issued generation n to the remaining identity. Otherwise the dot belongs to the identity.
func (l *InvoiceLedger) ownerFromIDLocked(invoiceID string) (Identity, bool) {
	identity, ok := IdentityFromInvoiceID(invoiceID)
	if !ok {
		return "", false
	}
	if gen, suffix, found := strings.Cut(string(identity), "."); found {
		if n, err := strconv.Atoi(gen); err == nil && n > 0 && l.generations[Identity(suffix)] > n {
			return Identity(suffix), true
		}
	}
	return identity, true
}

// Get returns a copy of the invoice with the given id
func (l *InvoiceLedger) Get(invoiceID string) (Invoice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, ok := l.invoices[invoiceID]
	if !ok {
		return Invoice{}, false
	}
	return *inv, true
}

// Outstanding returns the identity's unpaid invoice, if any
func (l *InvoiceLedger) Outstanding(identity Identity) (Invoice, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.outstanding[identity]
	if !ok {
		return Invoice{}, false
	}
	inv := l.invoices[id]
	if inv == nil || inv.Paid() {
		return Invoice{}, false
	}
	return *inv, true
}

// Reset drops every invoice record. Generation counters are kept so ids stay unique.
func (l *InvoiceLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.invoices = make(map[string]*Invoice)
	l.outstanding = make(map[Identity]string)
}
