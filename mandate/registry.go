package mandate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Status is the approval state of a registered mandate
type Status string

const (
	StatusPendingAuthorization Status = "PENDING_AUTHORIZATION"
	StatusAuthorized           Status = "AUTHORIZED"
	StatusRejected             Status = "REJECTED"
	StatusSettled              Status = "SETTLED"
)

// Approval defaults
const (
	DefaultIntent       = "INSURANCE_PAYOUT"
	DefaultApprover     = "human-operator"
	ApprovalMethod      = "ui-approval"
	DefaultRejectReason = "User declined"
	DefaultChain        = "SKALE BITE V2 Sandbox"
	DefaultChainID      = 103698795

	simulatedTxPrefix = "0xskale_"
)

var (
	ErrMandateNotFound   = errors.New("mandate: not found")
	ErrInvalidTransition = errors.New("mandate: invalid status transition")
)

// Authorization records who approved a mandate
type Authorization struct {
	AuthorizedBy string `json:"authorized_by"`
	AuthorizedAt string `json:"authorized_at"`
	Method       string `json:"method"`
}

// Rejection records who declined a mandate and why
type Rejection struct {
	RejectedBy string `json:"rejected_by"`
	RejectedAt string `json:"rejected_at"`
	Reason     string `json:"reason"`
}

// Settlement records the payout of an authorized mandate
type Settlement struct {
	SettledAt string `json:"settled_at"`
	TxHash    string `json:"tx_hash"`
	Chain     string `json:"chain"`
	ChainID   int64  `json:"chain_id"`
}

// Record is a mandate awaiting or past human approval
type Record struct {
	ID            string         `json:"id"`
	Status        Status         `json:"status"`
	CreatedAt     string         `json:"created_at"`
	Mandate       *Mandate       `json:"mandate"`
	Authorization *Authorization `json:"authorization,omitempty"`
	Rejection     *Rejection     `json:"rejection,omitempty"`
	Settlement    *Settlement    `json:"settlement,omitempty"`
}

func (r *Record) clone() Record {
	out := *r
	m := *r.Mandate
	out.Mandate = &m
	return out
}

// Signer signs a mandate before settlement
type Signer interface {
	Sign(ctx context.Context, m *Mandate) (string, error)
}

// Submitter pays out a signed mandate and returns the transaction hash
type Submitter interface {
	Submit(ctx context.Context, m *Mandate) (string, error)
}

// Registry holds mandates through the human approval lifecycle:
// PENDING_AUTHORIZATION, then AUTHORIZED or REJECTED, then SETTLED.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	records  map[string]*Record
	order    []string
	settling map[string]bool

	signer    Signer
	submitter Submitter
	chain     string
	chainID   int64
	now       func() time.Time
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryClock sets the time source for lifecycle timestamps
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// WithRegistrySigner signs unsigned mandates at settlement
func WithRegistrySigner(signer Signer) RegistryOption {
	return func(r *Registry) {
		r.signer = signer
	}
}

// WithRegistrySubmitter executes settlements. Without one, settlement is simulated.
func WithRegistrySubmitter(submitter Submitter) RegistryOption {
	return func(r *Registry) {
		r.submitter = submitter
	}
}

// WithRegistryChain names the chain reported in settlements
func WithRegistryChain(name string, id int64) RegistryOption {
	return func(r *Registry) {
		r.chain = name
		r.chainID = id
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		records:  make(map[string]*Record),
		settling: make(map[string]bool),
		chain:    DefaultChain,
		chainID:  DefaultChainID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

// Create registers a new mandate awaiting approval. An empty Intent becomes DefaultIntent.
func (r *Registry) Create(p Params) (Record, error) {
	if p.Intent == "" {
		p.Intent = DefaultIntent
	}
	if p.IssuedAt.IsZero() {
		p.IssuedAt = r.now()
	}
	m, err := New(p)
	if err != nil {
		return Record{}, err
	}
	if result := Validate(m); !result.Valid {
		return Record{}, fmt.Errorf("mandate: invalid document: %s", strings.Join(result.Errors, "; "))
	}

	rec := &Record{
		ID:        "man_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Status:    StatusPendingAuthorization,
		CreatedAt: r.timestamp(),
		Mandate:   m,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return rec.clone(), nil
}

// lookupLocked returns the record if it is in the wanted status
func (r *Registry) lookupLocked(id string, want Status) (*Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMandateNotFound, id)
	}
	if rec.Status != want {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, id, rec.Status, want)
	}
	return rec, nil
}

// Approve authorizes a pending mandate. An empty approver is DefaultApprover.
func (r *Registry) Approve(id, approver string) (Record, error) {
	if approver == "" {
		approver = DefaultApprover
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookupLocked(id, StatusPendingAuthorization)
	if err != nil {
		return Record{}, err
	}
	rec.Status = StatusAuthorized
	rec.Authorization = &Authorization{
		AuthorizedBy: approver,
		AuthorizedAt: r.timestamp(),
		Method:       ApprovalMethod,
	}
	return rec.clone(), nil
}

// Reject declines a pending mandate. Empty arguments take DefaultApprover and DefaultRejectReason.
func (r *Registry) Reject(id, rejecter, reason string) (Record, error) {
	if rejecter == "" {
		rejecter = DefaultApprover
	}
	if reason == "" {
		reason = DefaultRejectReason
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookupLocked(id, StatusPendingAuthorization)
	if err != nil {
		return Record{}, err
	}
	rec.Status = StatusRejected
	rec.Rejection = &Rejection{
		RejectedBy: rejecter,
		RejectedAt: r.timestamp(),
		Reason:     reason,
	}
	return rec.clone(), nil
}

// Settle pays out an authorized mandate. A failed payout leaves it authorized so
// it can be settled again.
func (r *Registry) Settle(ctx context.Context, id string) (Record, error) {
	r.mu.Lock()
	rec, err := r.lookupLocked(id, StatusAuthorized)
	if err == nil && r.settling[id] {
		err = fmt.Errorf("%w: %s is already settling", ErrInvalidTransition, id)
	}
	if err != nil {
		r.mu.Unlock()
		return Record{}, err
	}
	r.settling[id] = true
	m := *rec.Mandate
	r.mu.Unlock()

	txHash, err := r.pay(ctx, &m)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settling, id)
	if err != nil {
		return Record{}, err
	}
	// a Reset while paying drops the record
	rec, ok := r.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrMandateNotFound, id)
	}
	rec.Mandate = &m
	rec.Status = StatusSettled
	rec.Settlement = &Settlement{
		SettledAt: r.timestamp(),
		TxHash:    txHash,
		Chain:     r.chain,
		ChainID:   r.chainID,
	}
	return rec.clone(), nil
}

func (r *Registry) pay(ctx context.Context, m *Mandate) (string, error) {
	if r.signer != nil && !m.Signed() {
		sig, err := r.signer.Sign(ctx, m)
		if err != nil {
			return "", fmt.Errorf("mandate: signing failed: %w", err)
		}
		m.Proof.Signature = sig
	}
	if r.submitter != nil {
		return r.submitter.Submit(ctx, m)
	}

	payload, err := m.SigningPayload()
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(payload, []byte(r.timestamp()))
	return simulatedTxPrefix + hexutil.Encode(hash[:8])[2:], nil
}

// Get returns a copy of the record with the given id
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Pending returns the mandates awaiting approval, oldest first
func (r *Registry) Pending() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Record{}
	for _, id := range r.order {
		if rec := r.records[id]; rec.Status == StatusPendingAuthorization {
			out = append(out, rec.clone())
		}
	}
	return out
}

// Reset drops every mandate
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]*Record)
	r.order = nil
}
