// Package config loads binary configuration from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	"github.com/Pratik-Shirodkar/RecoverAI/agent"
	"github.com/Pratik-Shirodkar/RecoverAI/bite"
)

// Default listen ports
const (
	DefaultOraclePort = "5000"
	DefaultBitePort   = "3000"
	DefaultChainID    = 84532
)

// Logging is shared by every binary
type Logging struct {
	Level  string
	Format string
}

// Oracle configures cmd/oracle
type Oracle struct {
	Port           string
	ResourceName   string
	Price          recoverai.Price
	RiskPrice      recoverai.Price
	PayTo          string
	Network        string
	Asset          string
	AssetDecimals  int
	RateLimitRPS   float64
	RateLimitBurst int
	AuditLimit     int
	Logging        Logging
}

// Bite configures cmd/bite
type Bite struct {
	Port         string
	Secret       string
	Condition    string
	DecryptDelay time.Duration
	Logging      Logging
}

// Agent configures cmd/agent
type Agent struct {
	OracleURL      string
	BiteURL        string
	AttemptTimeout time.Duration
	Claim          agent.Config

	// Chain settings. An empty RPCURL or PrivateKey selects the simulated ledger.
	RPCURL        string
	PrivateKey    string
	ChainID       int64
	VaultAddress  string
	AssetDecimals int

	Logging Logging
}

// OnChain reports whether real transactions can be sent
func (a *Agent) OnChain() bool {
	return a.RPCURL != "" && a.PrivateKey != "" && a.VaultAddress != ""
}

// LoadDotEnv loads the given env files, or .env when none is named.
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadOracle reads the oracle configuration
func LoadOracle() (*Oracle, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	e := &env{}

	cfg := &Oracle{
		Port:           e.str("PORT", DefaultOraclePort),
		ResourceName:   e.str("RESOURCE_NAME", recoverai.DefaultResourceName),
		PayTo:          e.str("PAY_TO_ADDRESS", recoverai.DefaultPayTo),
		Network:        e.str("NETWORK", recoverai.DefaultNetwork),
		Asset:          e.str("ASSET_ADDRESS", recoverai.DefaultAsset),
		AssetDecimals:  e.integer("ASSET_DECIMALS", recoverai.DefaultAssetDecimals),
		RateLimitRPS:   e.float("RATE_LIMIT_RPS", 0),
		RateLimitBurst: e.integer("RATE_LIMIT_BURST", 10),
		AuditLimit:     e.integer("AUDIT_LIMIT", recoverai.DefaultAuditLimit),
		Logging:        e.logging(),
	}
	cfg.Price = e.price("PRICE", recoverai.DefaultPrice)
	cfg.RiskPrice = e.price("RISK_PRICE", recoverai.DefaultRiskPrice)

	if err := e.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBite reads the decrypt collaborator configuration
func LoadBite() (*Bite, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	e := &env{}

	cfg := &Bite{
		Port:         e.str("PORT", DefaultBitePort),
		Secret:       e.str("BITE_SECRET", bite.DefaultSecret),
		Condition:    e.str("BITE_CONDITION", bite.DefaultCondition),
		DecryptDelay: e.duration("DECRYPT_DELAY", bite.DefaultDecryptDelay),
		Logging:      e.logging(),
	}

	if err := e.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAgent reads the claim agent configuration
func LoadAgent() (*Agent, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	e := &env{}

	cfg := &Agent{
		OracleURL:      e.str("ORACLE_URL", "http://localhost:"+DefaultOraclePort),
		BiteURL:        e.str("BITE_URL", "http://localhost:"+DefaultBitePort),
		AttemptTimeout: e.duration("ATTEMPT_TIMEOUT", recoverai.DefaultAttemptTimeout),
		Claim: agent.Config{
			Identity:        recoverai.Identity(e.str("AGENT_WALLET_ADDRESS", string(agent.DefaultIdentity))),
			Payee:           e.str("PAYEE_ADDRESS", agent.DefaultPayee),
			PayoutAmount:    e.str("PAYOUT_AMOUNT", agent.DefaultPayoutAmount),
			PayoutCurrency:  e.str("PAYOUT_CURRENCY", agent.DefaultPayoutCurrency),
			MagnitudeField:  e.str("MAGNITUDE_FIELD", agent.DefaultMagnitudeField),
			PollInterval:    e.duration("POLL_INTERVAL", agent.DefaultPollInterval),
			DecryptAttempts: e.integer("DECRYPT_ATTEMPTS", agent.DefaultDecryptAttempts),
			CallTimeout:     e.duration("CALL_TIMEOUT", recoverai.DefaultAttemptTimeout),
		},
		RPCURL:        e.str("EVM_RPC_URL", ""),
		PrivateKey:    e.str("EVM_PRIVATE_KEY", ""),
		ChainID:       int64(e.integer("CHAIN_ID", DefaultChainID)),
		VaultAddress:  e.str("VAULT_ADDRESS", ""),
		AssetDecimals: e.integer("ASSET_DECIMALS", recoverai.DefaultAssetDecimals),
		Logging:       e.logging(),
	}

	if err := e.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MaskSecret shortens a key for display
func MaskSecret(secret string) string {
	if len(secret) <= 10 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:6] + "..." + secret[len(secret)-4:]
}

// env reads typed variables and collects parse failures
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (e *env) price(key string, def recoverai.Price) recoverai.Price {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	p, err := recoverai.ParsePrice(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return p
}

func (e *env) logging() Logging {
	return Logging{
		Level:  e.str("LOG_LEVEL", "info"),
		Format: e.str("LOG_FORMAT", FormatTerminal),
	}
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}
