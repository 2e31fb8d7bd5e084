package chainio

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/samber/lo"

	"github.com/piggyclaim/piggyclaim/core/chainio/signer"
	"github.com/piggyclaim/piggyclaim/metrics"
	"github.com/piggyclaim/piggyclaim/pkg/eip1559"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

const (
	DefaultMaxWait = 180 * time.Second

	notFoundInterval  = 1 * time.Second
	noStatusInterval  = 300 * time.Millisecond
	successfulTxState = uint64(1)
)

// Backend is the subset of ethclient.Client an Account needs to send a tx.
type Backend interface {
	eip1559.FeeSource

	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type Options struct {
	DynamicFee bool

	Clock   timekeeper.Clock
	Logger  sdklogging.Logger
	Metrics metrics.MetricsGenerator
}

// Account signs and submits transactions for one wallet and waits for them.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address

	backend  Backend
	receipts ReceiptFetcher

	dynamicFee bool
	clock      timekeeper.Clock
	logger     sdklogging.Logger
	metrics    metrics.MetricsGenerator

	closer func()
}

func NewAccount(key *ecdsa.PrivateKey, backend Backend, receipts ReceiptFetcher, opts Options) *Account {
	clock := opts.Clock
	if clock == nil {
		clock = timekeeper.RealClock()
	}

	return &Account{
		key:        key,
		address:    signer.Address(key),
		backend:    backend,
		receipts:   receipts,
		dynamicFee: opts.DynamicFee,
		clock:      clock,
		logger:     logger.EnsureLogger(opts.Logger),
		metrics:    metrics.Ensure(opts.Metrics),
	}
}

// Dial connects to rpcURL through httpClient, which carries the wallet proxy.
func Dial(ctx context.Context, rpcURL string, httpClient *http.Client, key *ecdsa.PrivateKey, opts Options) (*Account, error) {
	rpcOpts := []rpc.ClientOption{}
	if httpClient != nil {
		rpcOpts = append(rpcOpts, rpc.WithHTTPClient(httpClient))
	}

	rpcClient, err := rpc.DialOptions(ctx, rpcURL, rpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}

	account := NewAccount(key, ethclient.NewClient(rpcClient), NewRPCReceiptFetcher(rpcClient), opts)
	account.closer = rpcClient.Close
	return account, nil
}

func (a *Account) Address() common.Address {
	return a.address
}

func (a *Account) Close() {
	if a.closer != nil {
		a.closer()
	}
}

func (a *Account) trace(hash common.Hash, state TxState) {
	a.logger.Debug("tx state", "address", a.address.Hex(), "tx", hash.Hex(), "state", state.String())
}

// BuildTransaction reads nonce, chain id and fees, estimates gas and signs.
// Nothing is broadcast, so it is safe to call again after a failure.
func (a *Account) BuildTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error) {
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	chainID, err := a.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	msg := ethereum.CallMsg{
		From:  a.address,
		To:    &to,
		Value: value,
		Data:  data,
	}

	var gasPrice, maxFee, tipCap *big.Int
	if a.dynamicFee {
		maxFee, tipCap, err = eip1559.SuggestFee(ctx, a.backend)
		if err != nil {
			return nil, fmt.Errorf("suggest dynamic fee: %w", err)
		}
		msg.GasFeeCap, msg.GasTipCap = maxFee, tipCap
	} else {
		gasPrice, err = a.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		msg.GasPrice = gasPrice
	}
	a.trace(common.Hash{}, TxBuilt)

	gas, err := a.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	a.trace(common.Hash{}, TxGasEstimated)
	a.logger.Debug("gas estimated", "address", a.address.Hex(), "gas", gas,
		"max_cost_eth", ToEther(maxCost(gas, lo.Ternary(a.dynamicFee, maxFee, gasPrice))).String())

	var tx *types.Transaction
	if a.dynamicFee {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tipCap,
			GasFeeCap: maxFee,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}

	signed, err := signer.SignTx(tx, chainID, a.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	a.trace(signed.Hash(), TxSigned)

	return signed, nil
}

// SubmitTransaction broadcasts a signed transaction once.
func (a *Account) SubmitTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	a.trace(signed.Hash(), TxSubmitted)

	return signed.Hash(), nil
}

// WaitForReceipt polls the receipt of hash until it is final or maxWait has
// passed without the transaction being found. A cancelled ctx yields TxPending.
func (a *Account) WaitForReceipt(ctx context.Context, hash common.Hash, maxWait time.Duration) (TxState, *Receipt) {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	start := a.clock.Now()

	for {
		receipt, err := a.receipts.FetchReceipt(ctx, hash)

		var wait time.Duration
		switch {
		case err == nil && receipt.Status == nil:
			wait = noStatusInterval
		case err == nil && *receipt.Status == successfulTxState:
			return TxConfirmed, receipt
		case err == nil:
			return TxFailed, receipt
		default:
			if ctx.Err() != nil {
				return TxPending, nil
			}
			if !errors.Is(err, ethereum.NotFound) {
				a.logger.Warn("receipt lookup failed", "tx", hash.Hex(), "error", err)
			}
			if a.clock.Now().Sub(start) > maxWait {
				return TxTimedOut, nil
			}
			wait = notFoundInterval
		}

		if err := a.clock.Sleep(ctx, wait); err != nil {
			return TxPending, nil
		}
	}
}

// WaitUntilTxFinished reports whether hash was mined with a successful status.
func (a *Account) WaitUntilTxFinished(ctx context.Context, hash common.Hash, maxWait time.Duration) bool {
	state, _ := a.WaitForReceipt(ctx, hash, maxWait)
	a.metrics.IncTx(state.String())

	switch state {
	case TxConfirmed:
		a.logger.Info("transaction confirmed", "address", a.address.Hex(), "tx", hash.Hex())
		return true
	case TxFailed:
		a.logger.Error("transaction failed", "address", a.address.Hex(), "tx", hash.Hex())
	case TxTimedOut:
		a.logger.Error("transaction not found in time", "address", a.address.Hex(), "tx", hash.Hex(), "max_wait", maxWait)
	default:
		a.logger.Warn("stopped waiting for transaction", "address", a.address.Hex(), "tx", hash.Hex(), "error", ctx.Err())
	}
	return false
}
