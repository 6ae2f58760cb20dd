// Command agent runs the parametric claim agent until the claim settles or fails.
// It exits 0 when the claim reaches DONE and 1 when it reaches FAILED.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	"github.com/Pratik-Shirodkar/RecoverAI/agent"
	"github.com/Pratik-Shirodkar/RecoverAI/bite"
	"github.com/Pratik-Shirodkar/RecoverAI/config"
	"github.com/Pratik-Shirodkar/RecoverAI/extensions/idempotency"
	x402http "github.com/Pratik-Shirodkar/RecoverAI/http"
	"github.com/Pratik-Shirodkar/RecoverAI/signers/evm"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadAgent()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		return 1
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		return 1
	}
	log.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize agent", "err", err)
		return 1
	}
	defer deps.close()

	client := recoverai.NewGatewayClient(
		x402http.NewClient(cfg.OracleURL, x402http.WithHTTPClient(&http.Client{})),
		deps.settler,
		recoverai.WithAttemptTimeout(cfg.AttemptTimeout),
		recoverai.WithClientLogger(logger),
	)

	claim, err := agent.New(cfg.Claim, client, bite.NewClient(cfg.BiteURL), deps.signer, deps.submitter,
		agent.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to create agent", "err", err)
		return 1
	}

	logger.Info("Agent configured", "oracle", cfg.OracleURL, "bite", cfg.BiteURL,
		"signer", deps.signer.Address(), "onChain", cfg.OnChain())

	result, err := claim.Run(ctx)
	if err != nil {
		logger.Warn("Agent stopped before the claim finished", "state", result.State, "err", err)
		return 1
	}

	switch result.State {
	case agent.Done:
		logger.Info("Claim settled, shutting down", "mandate", result.Mandate.CredentialSubject.ID,
			"tx", result.TxHash, "submitErr", result.SubmitErr)
		return 0
	default:
		logger.Error("Claim failed", "err", result.Err)
		return 1
	}
}

type dependencies struct {
	signer    *evm.MandateSigner
	settler   recoverai.Settler
	submitter agent.LedgerSubmitter
	close     func()
}

// wire selects real chain collaborators when an RPC endpoint, key and vault are
// configured, and simulated ones otherwise
func wire(ctx context.Context, cfg *config.Agent, logger log.Logger) (*dependencies, error) {
	deps := &dependencies{close: func() {}}

	if cfg.PrivateKey != "" {
		signer, err := evm.NewMandateSignerFromPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		deps.signer = signer
	} else {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		deps.signer = evm.NewMandateSigner(key)
		logger.Warn("No EVM_PRIVATE_KEY configured, signing mandates with an ephemeral key")
	}

	var inner agent.LedgerSubmitter
	if cfg.OnChain() {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RPC: %w", err)
		}
		deps.close = client.Close

		sender, err := evm.NewTxSender(client, cfg.PrivateKey, big.NewInt(cfg.ChainID))
		if err != nil {
			client.Close()
			return nil, err
		}
		settler, err := evm.NewInvoiceSettler(sender)
		if err != nil {
			client.Close()
			return nil, err
		}
		payouts, err := evm.NewPayoutSubmitter(sender, cfg.VaultAddress, cfg.AssetDecimals)
		if err != nil {
			client.Close()
			return nil, err
		}
		deps.settler = settler
		inner = payouts
		logger.Info("Using on-chain settlement", "rpc", cfg.RPCURL, "chainId", cfg.ChainID,
			"vault", cfg.VaultAddress, "account", sender.Address(), "key", config.MaskSecret(cfg.PrivateKey))
	} else {
		deps.settler = recoverai.NewSimulatedSettler()
		inner = agent.NewSimulatedSubmitter()
		logger.Warn("No chain configured, invoices and payouts are simulated")
	}

	deps.submitter = idempotency.Wrap(inner,
		idempotency.WithKeyPayload(idempotency.TermsPayload),
		idempotency.WithLogger(logger),
	)
	return deps, nil
}
