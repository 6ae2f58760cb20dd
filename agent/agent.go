// Package agent implements the claim agent: it polls a payment-gated oracle,
// detects a parametric trigger and settles the claim exactly once.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// Fetcher returns the current resource snapshot, paying for access if required.
// *recoverai.GatewayClient implements it.
type Fetcher interface {
	Fetch(ctx context.Context, identity recoverai.Identity) (recoverai.Snapshot, error)
}

// Decryptor recovers the policy secret once the claim condition is met
type Decryptor interface {
	Decrypt(ctx context.Context, conditionMet bool) (string, error)
}

// Signer signs a mandate and returns the signature blob
type Signer interface {
	Sign(ctx context.Context, m *mandate.Mandate) (string, error)
}

// LedgerSubmitter executes the payout for a signed mandate and returns a transaction id
type LedgerSubmitter interface {
	Submit(ctx context.Context, m *mandate.Mandate) (string, error)
}

var (
	ErrDecryptFailed = errors.New("agent: decrypt failed")
	ErrSignFailed    = errors.New("agent: mandate signing failed")
)

// Agent defaults
const (
	DefaultIdentity        recoverai.Identity = "0xAgentWalletAddress_12345"
	DefaultPayee                              = "0xUser_Victim_Address"
	DefaultPayoutAmount                       = "5000"
	DefaultPayoutCurrency                     = "USDC"
	DefaultMagnitudeField                     = "wind_speed"
	DefaultThreshold                          = 100.0
	DefaultPollInterval                       = 5 * time.Second
	DefaultDecryptAttempts                    = 1
)

// Threshold returns a pointer to v for Config.Threshold
func Threshold(v float64) *float64 {
	return &v
}

// Config holds the claim parameters. Zero fields take the package defaults.
type Config struct {
	Identity       recoverai.Identity
	Payee          string
	PayoutAmount   string
	PayoutCurrency string
	Condition      string
	Issuer         string
	MagnitudeField string
	PollInterval   time.Duration

	// Threshold is the magnitude a snapshot must exceed to trigger. Nil selects DefaultThreshold.
	Threshold *float64

	// DecryptAttempts bounds decrypt retries. 1 is strict mode: the first refusal is fatal.
	DecryptAttempts int

	// CallTimeout bounds each decrypt, sign and submit call
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Identity == "" {
		c.Identity = DefaultIdentity
	}
	if c.Payee == "" {
		c.Payee = DefaultPayee
	}
	if c.PayoutAmount == "" {
		c.PayoutAmount = DefaultPayoutAmount
	}
	if c.PayoutCurrency == "" {
		c.PayoutCurrency = DefaultPayoutCurrency
	}
	if c.Condition == "" {
		c.Condition = mandate.ConditionTriggered
	}
	if c.Issuer == "" {
		c.Issuer = mandate.DefaultIssuer
	}
	if c.MagnitudeField == "" {
		c.MagnitudeField = DefaultMagnitudeField
	}
	if c.Threshold == nil {
		c.Threshold = Threshold(DefaultThreshold)
	} else {
		c.Threshold = Threshold(*c.Threshold)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DecryptAttempts <= 0 {
		c.DecryptAttempts = DefaultDecryptAttempts
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = recoverai.DefaultAttemptTimeout
	}
	return c
}

// Triggered reports whether the snapshot's magnitude field strictly exceeds threshold.
// Missing or non-numeric fields never trigger.
func Triggered(snapshot recoverai.Snapshot, field string, threshold float64) bool {
	v, ok := snapshot.Number(field)
	return ok && v > threshold
}

// Result summarizes a finished run
type Result struct {
	State    State
	Polls    int
	Snapshot recoverai.Snapshot // the snapshot that triggered the claim
	Mandate  *mandate.Mandate
	TxHash   string

	// SubmitErr is set when the payout submission failed. The run still ends in Done.
	SubmitErr error
	// Err is the cause of a Failed run
	Err error
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TransitionHook observes every state change
type TransitionHook func(from, to State)

// ClaimAgent is the claim lifecycle state machine. It is not safe for concurrent use.
type ClaimAgent struct {
	cfg       Config
	fetcher   Fetcher
	decryptor Decryptor
	signer    Signer
	submitter LedgerSubmitter

	logger log.Logger
	sleep  SleepFunc
	now    func() time.Time
	hooks  []TransitionHook

	state     State
	polls     int
	snapshot  recoverai.Snapshot
	secret    string
	mandate   *mandate.Mandate
	txHash    string
	submitErr error
	err       error
}

// Option configures a ClaimAgent
type Option func(*ClaimAgent)

// WithLogger sets the agent logger
func WithLogger(logger log.Logger) Option {
	return func(a *ClaimAgent) {
		a.logger = logger
	}
}

// WithSleep replaces the poll delay implementation
func WithSleep(sleep SleepFunc) Option {
	return func(a *ClaimAgent) {
		a.sleep = sleep
	}
}

// WithClock sets the time source used for mandate issuance
func WithClock(now func() time.Time) Option {
	return func(a *ClaimAgent) {
		a.now = now
	}
}

// OnTransition registers a hook called after every state change
func OnTransition(hook TransitionHook) Option {
	return func(a *ClaimAgent) {
		a.hooks = append(a.hooks, hook)
	}
}

// New creates an agent in the Monitoring state
func New(cfg Config, fetcher Fetcher, decryptor Decryptor, signer Signer, submitter LedgerSubmitter, opts ...Option) (*ClaimAgent, error) {
	if fetcher == nil || decryptor == nil || signer == nil || submitter == nil {
		return nil, errors.New("agent: fetcher, decryptor, signer and submitter are required")
	}

	a := &ClaimAgent{
		cfg:       cfg.withDefaults(),
		fetcher:   fetcher,
		decryptor: decryptor,
		signer:    signer,
		submitter: submitter,
		logger:    log.Root(),
		sleep:     sleepContext,
		now:       time.Now,
		state:     Monitoring,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("agent", a.cfg.Identity)
	return a, nil
}

// Config returns the effective configuration
func (a *ClaimAgent) Config() Config { return a.cfg }

// State returns the current state
func (a *ClaimAgent) State() State { return a.state }

// Run steps the agent until it reaches Done or Failed.
// If ctx is cancelled first, Run returns the partial result and ctx.Err().
func (a *ClaimAgent) Run(ctx context.Context) (Result, error) {
	a.logger.Info("Claim agent online", "threshold", *a.cfg.Threshold, "field", a.cfg.MagnitudeField,
		"pollInterval", a.cfg.PollInterval, "callTimeout", a.cfg.CallTimeout)

	for !a.state.Terminal() {
		if _, err := a.Step(ctx); err != nil {
			return a.result(), err
		}
	}
	return a.result(), nil
}

// Step runs the entry action of the current state and performs one transition.
// Poll delays happen inside Step. Terminal states are left unchanged.
func (a *ClaimAgent) Step(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return a.state, err
	}

	var err error
	switch a.state {
	case Monitoring:
		err = a.monitor(ctx)
	case Detecting:
		err = a.detect(ctx)
	case Decrypting:
		err = a.decrypt(ctx)
	case Authorizing:
		a.authorize(ctx)
	case Settling:
		a.settle(ctx)
	}
	return a.state, err
}

func (a *ClaimAgent) monitor(ctx context.Context) error {
	a.polls++
	snapshot, err := a.fetcher.Fetch(ctx, a.cfg.Identity)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case errors.Is(err, recoverai.ErrUnreachable):
			a.logger.Warn("Oracle unreachable, no data this cycle", "err", err)
		case errors.Is(err, recoverai.ErrPaymentNotConfirmed):
			a.logger.Warn("Payment not confirmed, retrying next cycle", "err", err)
		default:
			a.logger.Error("Oracle request failed", "err", err)
		}
		return a.sleep(ctx, a.cfg.PollInterval)
	}

	a.snapshot = snapshot
	a.transition(Detecting)
	return nil
}

func (a *ClaimAgent) detect(ctx context.Context) error {
	magnitude, _ := a.snapshot.Number(a.cfg.MagnitudeField)
	if !Triggered(a.snapshot, a.cfg.MagnitudeField, *a.cfg.Threshold) {
		a.logger.Info("Conditions nominal", a.cfg.MagnitudeField, magnitude, "weather", a.snapshot["weather"])
		if err := a.sleep(ctx, a.cfg.PollInterval); err != nil {
			return err
		}
		a.transition(Monitoring)
		return nil
	}

	a.logger.Warn("Disaster detected", a.cfg.MagnitudeField, magnitude, "threshold", *a.cfg.Threshold)
	a.transition(Decrypting)
	return nil
}

func (a *ClaimAgent) decrypt(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.DecryptAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		secret, err := a.decryptor.Decrypt(callCtx, true)
		cancel()
		if err == nil && secret != "" {
			a.secret = secret
			a.logger.Info("Policy secret recovered", "attempt", attempt)
			a.transition(Authorizing)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("empty secret")
		}
		lastErr = err
		a.logger.Error("Decryption refused", "attempt", attempt, "of", a.cfg.DecryptAttempts, "err", err)

		if attempt < a.cfg.DecryptAttempts {
			if err := a.sleep(ctx, a.cfg.PollInterval); err != nil {
				return err
			}
		}
	}

	a.fail(fmt.Errorf("%w: %w", ErrDecryptFailed, lastErr))
	return nil
}

func (a *ClaimAgent) authorize(ctx context.Context) {
	m, err := mandate.New(mandate.Params{
		Payee:     a.cfg.Payee,
		Amount:    a.cfg.PayoutAmount,
		Currency:  a.cfg.PayoutCurrency,
		Condition: a.cfg.Condition,
		Issuer:    a.cfg.Issuer,
		IssuedAt:  a.now(),
	})
	if err != nil {
		a.fail(err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	sig, err := a.signer.Sign(callCtx, m)
	if err != nil {
		a.fail(fmt.Errorf("%w: %w", ErrSignFailed, err))
		return
	}
	m.Proof.Signature = sig
	a.mandate = m

	a.logger.Info("Mandate signed", "id", m.CredentialSubject.ID, "payee", m.CredentialSubject.Payee,
		"amount", m.CredentialSubject.Amount.Value, "currency", m.CredentialSubject.Amount.Currency)
	a.transition(Settling)
}

func (a *ClaimAgent) settle(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	txHash, err := a.submitter.Submit(callCtx, a.mandate)
	if err != nil {
		a.submitErr = err
		a.logger.Error("Payout submission failed", "mandate", a.mandate.CredentialSubject.ID, "err", err)
	} else {
		a.txHash = txHash
		a.logger.Info("Payout submitted", "tx", txHash)
	}
	a.transition(Done)
}

func (a *ClaimAgent) fail(err error) {
	a.err = err
	a.logger.Error("Claim failed", "state", a.state, "err", err)
	a.transition(Failed)
}

func (a *ClaimAgent) transition(to State) {
	from := a.state
	a.state = to
	a.logger.Debug("State transition", "from", from, "to", to)
	for _, hook := range a.hooks {
		hook(from, to)
	}
}

func (a *ClaimAgent) result() Result {
	return Result{
		State:     a.state,
		Polls:     a.polls,
		Snapshot:  a.snapshot,
		Mandate:   a.mandate,
		TxHash:    a.txHash,
		SubmitErr: a.submitErr,
		Err:       a.err,
	}
}
