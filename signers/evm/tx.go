package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	recoverai "github.com/Pratik-Shirodkar/RecoverAI"
	"github.com/Pratik-Shirodkar/RecoverAI/mandate"
)

// DefaultGasLimit is used for every contract call
const DefaultGasLimit = 300000

// PayoutABI is the claim vault method that releases a payout against a signed mandate
const PayoutABI = `[{"type":"function","name":"executePayout","stateMutability":"nonpayable","inputs":[{"name":"payee","type":"address"},{"name":"amount","type":"uint256"},{"name":"mandateHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]}]`

// ERC20TransferABI is the ERC-20 transfer method used to pay invoices
const ERC20TransferABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

var (
	ErrInvalidAddress = errors.New("evm: invalid address")
	ErrNoRequirements = errors.New("evm: payment required carries no payment requirements")
	ErrInvalidAmount  = errors.New("evm: invalid amount")
)

// ChainClient is the subset of *ethclient.Client needed to submit transactions
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxSender signs and submits contract calls from one account
type TxSender struct {
	client     ChainClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	gasLimit   uint64
}

// NewTxSender creates a sender for chainID from a hex-encoded private key
func NewTxSender(client ChainClient, privateKeyHex string, chainID *big.Int) (*TxSender, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &TxSender{
		client:     client,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    chainID,
		gasLimit:   DefaultGasLimit,
	}, nil
}

// Address returns the sending account
func (s *TxSender) Address() string {
	return s.address.Hex()
}

// WriteContract packs method with args, signs the call and submits it, returning the tx hash.
// It does not wait for the receipt.
func (s *TxSender) WriteContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (string, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), s.gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// PayoutSubmitter executes signed mandates against a claim vault contract
type PayoutSubmitter struct {
	sender   *TxSender
	vault    common.Address
	abi      abi.ABI
	decimals int
}

// NewPayoutSubmitter creates a submitter for the vault at vaultAddress paying a token with decimals
func NewPayoutSubmitter(sender *TxSender, vaultAddress string, decimals int) (*PayoutSubmitter, error) {
	if !common.IsHexAddress(vaultAddress) {
		return nil, fmt.Errorf("%w: vault %q", ErrInvalidAddress, vaultAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(PayoutABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &PayoutSubmitter{
		sender:   sender,
		vault:    common.HexToAddress(vaultAddress),
		abi:      parsed,
		decimals: decimals,
	}, nil
}

// Submit sends executePayout for the mandate and returns the transaction hash
func (p *PayoutSubmitter) Submit(ctx context.Context, m *mandate.Mandate) (string, error) {
	if !m.Signed() {
		return "", mandate.ErrUnsigned
	}
	subject := m.CredentialSubject
	if !common.IsHexAddress(subject.Payee) {
		return "", fmt.Errorf("%w: payee %q", ErrInvalidAddress, subject.Payee)
	}

	amount, err := recoverai.Price{Amount: subject.Amount.Value, Currency: subject.Amount.Currency}.BaseUnits(p.decimals)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	hash, err := MandateHash(m)
	if err != nil {
		return "", err
	}

	signature, err := decodeSignature(m.Proof.Signature)
	if err != nil {
		return "", err
	}

	return p.sender.WriteContract(ctx, p.vault, p.abi, "executePayout",
		common.HexToAddress(subject.Payee), amount, [32]byte(hash), signature)
}

// InvoiceSettler pays 402 invoices with an ERC-20 transfer to the advertised payee
type InvoiceSettler struct {
	sender *TxSender
	abi    abi.ABI
}

// NewInvoiceSettler creates a settler sending from sender
func NewInvoiceSettler(sender *TxSender) (*InvoiceSettler, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &InvoiceSettler{sender: sender, abi: parsed}, nil
}

// Settle transfers the first exact requirement's amount of its asset to its payTo address
func (s *InvoiceSettler) Settle(ctx context.Context, required recoverai.PaymentRequired, identity recoverai.Identity) (string, error) {
	var req *recoverai.PaymentRequirements
	for i := range required.Accepts {
		if required.Accepts[i].Scheme == "exact" {
			req = &required.Accepts[i]
			break
		}
	}
	if req == nil {
		return "", ErrNoRequirements
	}
	if !common.IsHexAddress(req.PayTo) {
		return "", fmt.Errorf("%w: payTo %q", ErrInvalidAddress, req.PayTo)
	}
	if !common.IsHexAddress(req.Asset) {
		return "", fmt.Errorf("%w: asset %q", ErrInvalidAddress, req.Asset)
	}
	amount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok || amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, req.MaxAmountRequired)
	}

	return s.sender.WriteContract(ctx, common.HexToAddress(req.Asset), s.abi, "transfer",
		common.HexToAddress(req.PayTo), amount)
}

func decodeSignature(sig string) ([]byte, error) {
	data, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return data, nil
}
