package claimer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/piggyclaim/piggyclaim/core/retry"
	"github.com/piggyclaim/piggyclaim/pkg/httpclient"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
)

const (
	DefaultAPI         = "https://www.superform.xyz/api/proxy/token-distribution"
	DefaultExplorerURL = "https://basescan.org"

	alreadyClaimedMarker = "already claimed"
)

var (
	ErrAlreadyClaimed = errors.New("wallet has already claimed")
	ErrNoChain        = errors.New("claimer has no chain access")
	ErrBadClaimData   = errors.New("malformed claim data")
)

// HTTPCapable fetches a JSON document and reports its status.
type HTTPCapable interface {
	Get(ctx context.Context, url string) (*httpclient.Response, error)
}

// ChainCapable builds and submits a transaction and waits for its receipt.
// Building has no side effect and can be retried, submitting can not.
type ChainCapable interface {
	Address() common.Address
	BuildTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Transaction, error)
	SubmitTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error)
	WaitUntilTxFinished(ctx context.Context, hash common.Hash, maxWait time.Duration) bool
}

type Config struct {
	API         string
	ExplorerURL string
	MaxWait     time.Duration
	Retry       retry.Policy
}

func (c Config) withDefaults() Config {
	if c.API == "" {
		c.API = DefaultAPI
	}
	if c.ExplorerURL == "" {
		c.ExplorerURL = DefaultExplorerURL
	}
	c.API = strings.TrimRight(c.API, "/")
	c.ExplorerURL = strings.TrimRight(c.ExplorerURL, "/")
	return c
}

// Superform claims the token distribution of one wallet.
type Superform struct {
	address common.Address
	http    HTTPCapable
	chain   ChainCapable

	config Config
	cache  *AmountCache
	logger logger.Logger
}

type claimData struct {
	TransactionData string `json:"transactionData"`
	To              string `json:"to"`
}

// NewSuperform wires a claimer. chain may be nil when only amounts are read.
func NewSuperform(address common.Address, http HTTPCapable, chain ChainCapable, config Config, cache *AmountCache, log logger.Logger) *Superform {
	log = logger.EnsureLogger(log)
	config = config.withDefaults()
	if config.Retry.Logger == nil {
		config.Retry.Logger = log
	}

	return &Superform{
		address: address,
		http:    http,
		chain:   chain,
		config:  config,
		cache:   cache,
		logger:  log.With("address", address.Hex()),
	}
}

func (s *Superform) Address() common.Address {
	return s.address
}

func (s *Superform) amountURL() string {
	return fmt.Sprintf("%s/%s/", s.config.API, s.address.Hex())
}

func (s *Superform) claimURL() string {
	return fmt.Sprintf("%s/claim/%s/", s.config.API, s.address.Hex())
}

// GetAmount returns the claimable token amount, 0 when the API has none.
func (s *Superform) GetAmount(ctx context.Context) (float64, error) {
	amount, err := s.Amount(ctx)
	if err != nil {
		return 0, err
	}
	return amount.InexactFloat64(), nil
}

// Amount is GetAmount at full precision.
func (s *Superform) Amount(ctx context.Context) (decimal.Decimal, error) {
	if cached, ok := s.cache.Get(s.address); ok {
		return cached, nil
	}

	amount, err := retry.Do(ctx, s.config.Retry.Named("get amount"), func(ctx context.Context) (decimal.Decimal, error) {
		resp, err := s.http.Get(ctx, s.amountURL())
		if err != nil {
			return decimal.Zero, err
		}
		if !resp.OK() {
			s.logger.Debug("token distribution unavailable", "http_status", resp.Status)
			return decimal.Zero, nil
		}

		value, found := resp.Lookup("superrewards_stats", "total_tokens")
		if !found {
			return decimal.Zero, nil
		}
		return toDecimal(value)
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.cache.Set(s.address, amount)
	return amount, nil
}

func toDecimal(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return decimal.Zero, retry.Permanent(fmt.Errorf("unexpected total_tokens type %T", value))
}

func rejectionReason(resp *httpclient.Response) string {
	for _, field := range []string{"detail", "reason", "message"} {
		if v, ok := resp.Lookup(field); ok {
			if reason, ok := v.(string); ok {
				return reason
			}
		}
	}
	return ""
}

func (s *Superform) fetchClaimData(ctx context.Context) (*claimData, error) {
	return retry.Do(ctx, s.config.Retry.Named("get claim data"), func(ctx context.Context) (*claimData, error) {
		resp, err := s.http.Get(ctx, s.claimURL())
		if err != nil {
			return nil, err
		}

		if !resp.OK() {
			reason := rejectionReason(resp)
			if strings.Contains(strings.ToLower(reason), alreadyClaimedMarker) {
				return nil, retry.Permanent(ErrAlreadyClaimed)
			}
			if reason == "" {
				reason = string(resp.Raw)
			}
			return nil, fmt.Errorf("claim data rejected with status %d: %s", resp.Status, reason)
		}

		var data claimData
		if err := resp.Decode(&data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadClaimData, err)
		}
		if data.TransactionData == "" || !common.IsHexAddress(data.To) {
			return nil, fmt.Errorf("%w: transactionData=%q to=%q", ErrBadClaimData, data.TransactionData, data.To)
		}
		return &data, nil
	})
}

// Claim submits the claim transaction. It reports true when the claim is
// confirmed on chain or the API says the wallet already claimed.
func (s *Superform) Claim(ctx context.Context) (bool, error) {
	data, err := s.fetchClaimData(ctx)
	if errors.Is(err, ErrAlreadyClaimed) {
		s.logger.Warn("this wallet has already claimed tokens")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if s.chain == nil {
		return false, ErrNoChain
	}

	calldata, err := hexutil.Decode(data.TransactionData)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadClaimData, err)
	}

	// logged with the success line, a failed lookup is not fatal
	amount, err := s.Amount(ctx)
	if err != nil {
		s.logger.Warn("could not read token amount before claim", "error", err)
	}

	to := common.HexToAddress(data.To)
	signed, err := retry.Do(ctx, s.config.Retry.Named("build claim tx"), func(ctx context.Context) (*types.Transaction, error) {
		return s.chain.BuildTransaction(ctx, to, calldata, big.NewInt(0))
	})
	if err != nil {
		return false, fmt.Errorf("build claim: %w", err)
	}

	// never retried, a resend could land twice
	hash, err := s.chain.SubmitTransaction(ctx, signed)
	if err != nil {
		return false, fmt.Errorf("submit claim: %w", err)
	}
	s.logger.Debug("claim submitted", "tx", hash.Hex())

	if !s.chain.WaitUntilTxFinished(ctx, hash, s.config.MaxWait) {
		return false, nil
	}
	// the claimable amount changed, a later check must read it again
	s.cache.Forget(s.address)

	logger.Success(s.logger, "successfully claimed tokens",
		"amount", amount.String(),
		"tx", fmt.Sprintf("%s/tx/%s", s.config.ExplorerURL, hash.Hex()))
	return true, nil
}
