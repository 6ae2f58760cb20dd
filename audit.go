package recoverai

import (
	"sync"
	"time"
)

// Audit events recorded by the gateway
const (
	EventPaymentRequired  = "PAYMENT_REQUIRED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentGeneric   = "PAYMENT_UNRESOLVED"
	EventDataServed       = "DATA_SERVED"
	EventResourceUpdated  = "RESOURCE_UPDATED"
	EventStormSimulated   = "STORM_SIMULATED"
	EventReset            = "RESET"

	EventMandateCreated    = "MANDATE_CREATED"
	EventMandateAuthorized = "MANDATE_AUTHORIZED"
	EventMandateRejected   = "MANDATE_REJECTED"
	EventMandateSettled    = "MANDATE_SETTLED"
)

// AuditEntry is a single gateway event
type AuditEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"`
	Service   string                 `json:"service"`
	Wallet    Identity               `json:"wallet,omitempty"`
	Amount    string                 `json:"amount,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AuditLog is an append-only, bounded, in-memory event log
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	limit   int
	now     func() time.Time
}

// DefaultAuditLimit bounds the number of retained entries
const DefaultAuditLimit = 1000

// NewAuditLog creates a log retaining at most limit entries (DefaultAuditLimit if limit <= 0)
func NewAuditLog(limit int) *AuditLog {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	return &AuditLog{limit: limit, now: time.Now}
}

// Record appends an entry, dropping the oldest when full
func (a *AuditLog) Record(entry AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}
	a.entries = append(a.entries, entry)
	if over := len(a.entries) - a.limit; over > 0 {
		a.entries = append([]AuditEntry(nil), a.entries[over:]...)
	}
}

// Entries returns a copy of the retained entries, oldest first
func (a *AuditLog) Entries() []AuditEntry {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]AuditEntry(nil), a.entries...)
}

// Clear drops all entries
func (a *AuditLog) Clear() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = nil
}
