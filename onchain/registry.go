// Package onchain mirrors platform agent registration on the AgentManage
// contract. It is optional: API-side registration never depends on it, and
// callers are expected to log chain failures and carry on.
package onchain

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
	"github.com/pinai-network/agent-sdk-go/pkg/logger"
)

// DefaultContractAddress is the deployed AgentManage contract.
const DefaultContractAddress = "0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9"

// MaxFieldLength caps string arguments before they are packed into calldata.
const MaxFieldLength = 256

const (
	defaultGasLimit       = 500_000
	deactivateGasLimit    = 300_000
	defaultReceiptTimeout = 30 * time.Second

	// Contract status value for a disabled agent.
	statusDisabled = 2
)

// agentManageABI covers the two functions the SDK calls.
const agentManageABI = `[
  {"type":"function","name":"create","stateMutability":"payable","inputs":[
    {"name":"owner","type":"address"},
    {"name":"name","type":"string"},
    {"name":"endpoint","type":"string"},
    {"name":"description","type":"string"},
    {"name":"agentId","type":"uint256"},
    {"name":"category","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"updateAgentStatusByAgentId","stateMutability":"nonpayable","inputs":[
    {"name":"agentId","type":"uint256"},
    {"name":"status","type":"uint8"}],"outputs":[]}
]`

// Config describes how to reach the chain and sign transactions.
type Config struct {
	RPCURL          string
	PrivateKey      string
	ContractAddress string
	ReceiptTimeout  time.Duration
}

// Registry signs and submits AgentManage transactions.
type Registry struct {
	eth            *ethclient.Client
	key            *ecdsa.PrivateKey
	from           common.Address
	contract       common.Address
	abi            abi.ABI
	chainID        *big.Int
	receiptTimeout time.Duration
	log            *slog.Logger
}

// NewRegistry dials the RPC endpoint and prepares the signing account.
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rpc url is required")
	}
	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if keyHex == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "private key is required")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse private key")
	}

	contractAddr := cfg.ContractAddress
	if contractAddr == "" {
		contractAddr = DefaultContractAddress
	}
	if !common.IsHexAddress(contractAddr) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "invalid contract address")
	}

	parsedABI, err := abi.JSON(strings.NewReader(agentManageABI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "parse contract abi")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "dial chain rpc")
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "fetch chain id")
	}

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = defaultReceiptTimeout
	}
	return &Registry{
		eth:            eth,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		contract:       common.HexToAddress(contractAddr),
		abi:            parsedABI,
		chainID:        chainID,
		receiptTimeout: timeout,
		log:            logger.Named("onchain"),
	}, nil
}

// Account returns the signing account address.
func (r *Registry) Account() common.Address {
	return r.from
}

// Register mirrors a freshly registered agent on the contract. The owner
// defaults to the signing account; the ticker doubles as the service endpoint
// and its keccak hash becomes the category, matching the platform convention.
func (r *Registry) Register(ctx context.Context, agentID int64, owner, name, ticker, description string) error {
	ownerAddr := r.from
	if owner != "" {
		if !common.IsHexAddress(owner) {
			return xerrors.New(xerrors.CodeInvalidArgument, "invalid owner address")
		}
		ownerAddr = common.HexToAddress(owner)
	}
	category := CategoryOf(ticker)
	data, err := r.abi.Pack("create",
		ownerAddr,
		Truncate(name),
		Truncate(ticker),
		Truncate(description),
		big.NewInt(agentID),
		category,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "pack create call")
	}
	if err := r.submit(ctx, data, defaultGasLimit); err != nil {
		return err
	}
	r.log.Info("agent registered on chain",
		slog.Int64("agent_id", agentID),
		slog.String("owner", ownerAddr.Hex()))
	return nil
}

// Deactivate flags the agent as disabled on the contract.
func (r *Registry) Deactivate(ctx context.Context, agentID int64) error {
	data, err := r.abi.Pack("updateAgentStatusByAgentId", big.NewInt(agentID), uint8(statusDisabled))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "pack status update call")
	}
	if err := r.submit(ctx, data, deactivateGasLimit); err != nil {
		return err
	}
	r.log.Info("agent deactivated on chain", slog.Int64("agent_id", agentID))
	return nil
}

// submit signs an EIP-1559 transaction carrying data and waits for its receipt.
func (r *Registry) submit(ctx context.Context, data []byte, gasLimit uint64) error {
	nonce, err := r.eth.PendingNonceAt(ctx, r.from)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "fetch nonce")
	}
	tipCap, err := r.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "fetch gas tip cap")
	}
	head, err := r.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "fetch chain head")
	}
	// feeCap = tip + 2 * baseFee keeps the tx valid across base fee doubling.
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := coretypes.NewTx(&coretypes.DynamicFeeTx{
		ChainID:   r.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &r.contract,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(r.chainID), r.key)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "sign transaction")
	}
	if err := r.eth.SendTransaction(ctx, signed); err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "send transaction")
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, r.eth, signed)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeChainFailure, err, "wait for receipt")
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return xerrors.New(xerrors.CodeChainFailure, "transaction reverted",
			xerrors.WithMetadata("tx_hash", signed.Hash().Hex()))
	}
	return nil
}

// Close releases the RPC connection.
func (r *Registry) Close() {
	if r != nil && r.eth != nil {
		r.eth.Close()
	}
}

// Truncate caps a string at MaxFieldLength before it is packed into calldata.
func Truncate(s string) string {
	if len(s) <= MaxFieldLength {
		return s
	}
	return s[:MaxFieldLength]
}

// CategoryOf derives the contract category for a ticker.
func CategoryOf(ticker string) common.Hash {
	return crypto.Keccak256Hash([]byte(ticker))
}
