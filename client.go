package recoverai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Transport carries gateway calls. Implementations should wrap network failures
// in ErrUnreachable so GatewayClient can tell them apart from malformed replies.
type Transport interface {
	GetResource(ctx context.Context, identity Identity) (*GatewayResponse, error)
	ConfirmPayment(ctx context.Context, invoiceID string, identityHint Identity) (*PaymentAck, error)
}

// Settler executes the payment for an invoice and returns a payment reference
// (a transaction hash for on-chain settlers)
type Settler interface {
	Settle(ctx context.Context, required PaymentRequired, identity Identity) (string, error)
}

// SettlerFunc adapts a function to Settler
type SettlerFunc func(ctx context.Context, required PaymentRequired, identity Identity) (string, error)

func (f SettlerFunc) Settle(ctx context.Context, required PaymentRequired, identity Identity) (string, error) {
	return f(ctx, required, identity)
}

// DefaultAttemptTimeout bounds every individual gateway or settlement call
const DefaultAttemptTimeout = 10 * time.Second

// GatewayClient fetches gated resources, paying for them when asked to
type GatewayClient struct {
	transport      Transport
	settler        Settler
	attemptTimeout time.Duration
	logger         log.Logger
}

// ClientOption configures a GatewayClient
type ClientOption func(*GatewayClient)

// WithAttemptTimeout sets the per-call timeout
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *GatewayClient) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithClientLogger sets the client logger
func WithClientLogger(logger log.Logger) ClientOption {
	return func(c *GatewayClient) {
		c.logger = logger
	}
}

// NewGatewayClient creates a client that talks through transport and pays through settler
func NewGatewayClient(transport Transport, settler Settler, opts ...ClientOption) *GatewayClient {
	c := &GatewayClient{
		transport:      transport,
		settler:        settler,
		attemptTimeout: DefaultAttemptTimeout,
		logger:         log.Root(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the resource snapshot for identity.
//
// A payment-required answer is settled once, confirmed with the gateway and the
// fetch is retried once. Failures are returned as *FetchError and never retried here.
func (c *GatewayClient) Fetch(ctx context.Context, identity Identity) (Snapshot, error) {
	resp, err := c.getResource(ctx, identity)
	if err != nil {
		return nil, c.classify("", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Snapshot, nil
	case http.StatusPaymentRequired:
	default:
		return nil, newFetchError(FetchUnhandled, "", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	required := resp.PaymentRequired
	if required == nil || required.ID == "" {
		return nil, newFetchError(FetchUnhandled, "", errors.New("payment required response carries no invoice"))
	}
	invoiceID := required.ID
	c.logger.Info("Payment required", "invoice", invoiceID, "price", required.Price, "chain", required.Chain)

	ref, err := c.settle(ctx, *required, identity)
	if err != nil {
		return nil, newFetchError(FetchPaymentNotConfirmed, invoiceID, fmt.Errorf("settlement failed: %w", err))
	}

	ack, err := c.confirmPayment(ctx, invoiceID, identity)
	if err != nil {
		return nil, c.classify(invoiceID, err)
	}
	c.logger.Info("Payment submitted", "invoice", invoiceID, "ref", ref, "status", ack.Status, "wallet", ack.Wallet)

	resp, err = c.getResource(ctx, identity)
	if err != nil {
		return nil, c.classify(invoiceID, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Snapshot, nil
	case http.StatusPaymentRequired:
		return nil, newFetchError(FetchPaymentNotConfirmed, invoiceID, nil)
	default:
		return nil, newFetchError(FetchUnhandled, invoiceID, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
}

func (c *GatewayClient) getResource(ctx context.Context, identity Identity) (*GatewayResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	resp, err := c.transport.GetResource(ctx, identity)
	if err == nil && resp == nil {
		err = errors.New("empty gateway response")
	}
	return resp, err
}

func (c *GatewayClient) confirmPayment(ctx context.Context, invoiceID string, identity Identity) (*PaymentAck, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	ack, err := c.transport.ConfirmPayment(ctx, invoiceID, identity)
	if err == nil && ack == nil {
		err = errors.New("empty payment acknowledgement")
	}
	return ack, err
}

func (c *GatewayClient) settle(ctx context.Context, required PaymentRequired, identity Identity) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	return c.settler.Settle(ctx, required, identity)
}

func (c *GatewayClient) classify(invoiceID string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newFetchError(FetchUnreachable, invoiceID, err)
	}
	return newFetchError(FetchUnhandled, invoiceID, err)
}

// SimulatedSettler pays nothing and returns a synthetic reference.
// It records every invoice it was asked to settle.
type SimulatedSettler struct {
	mu    sync.Mutex
	calls []string
	err   error
}

// NewSimulatedSettler creates a settler that always succeeds
func NewSimulatedSettler() *SimulatedSettler {
	return &SimulatedSettler{}
}

// FailWith makes subsequent Settle calls return err
func (s *SimulatedSettler) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *SimulatedSettler) Settle(ctx context.Context, required PaymentRequired, identity Identity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, required.ID)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("simulated-%d:%s", len(s.calls), required.ID), nil
}

// Calls returns the invoice ids passed to Settle, in order
func (s *SimulatedSettler) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
