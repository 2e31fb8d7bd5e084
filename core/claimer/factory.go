package claimer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/piggyclaim/piggyclaim/core/chainio"
	"github.com/piggyclaim/piggyclaim/core/chainio/signer"
	"github.com/piggyclaim/piggyclaim/metrics"
	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/httpclient"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/proxy"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

type FactoryConfig struct {
	Config

	RPCURL     string
	DynamicFee bool
}

// Factory builds a Superform per wallet, bound to that wallet's proxy.
type Factory struct {
	config  FactoryConfig
	cache   *AmountCache
	clock   timekeeper.Clock
	logger  logger.Logger
	metrics metrics.MetricsGenerator
}

func NewFactory(config FactoryConfig, cache *AmountCache, clock timekeeper.Clock, log logger.Logger, m metrics.MetricsGenerator) *Factory {
	if clock == nil {
		clock = timekeeper.RealClock()
	}
	return &Factory{
		config:  config,
		cache:   cache,
		clock:   clock,
		logger:  logger.EnsureLogger(log),
		metrics: metrics.Ensure(m),
	}
}

// New returns a claimer able to submit transactions. The returned func
// releases the rpc connection.
func (f *Factory) New(ctx context.Context, privateKey string, p *proxy.Proxy) (*Superform, func(), error) {
	key, err := signer.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}

	client, err := httpclient.New(p)
	if err != nil {
		return nil, nil, err
	}

	rpcHTTP, err := p.HTTPClient(httpclient.DefaultTimeout)
	if err != nil {
		return nil, nil, err
	}

	account, err := chainio.Dial(ctx, f.config.RPCURL, rpcHTTP, key, chainio.Options{
		DynamicFee: f.config.DynamicFee,
		Clock:      f.clock,
		Logger:     f.logger,
		Metrics:    f.metrics,
	})
	if err != nil {
		return nil, nil, err
	}

	return NewSuperform(account.Address(), client, account, f.config.Config, f.cache, f.logger), account.Close, nil
}

// NewReader returns a claimer that only reads amounts.
func (f *Factory) NewReader(address common.Address, p *proxy.Proxy) (*Superform, error) {
	client, err := httpclient.New(p)
	if err != nil {
		return nil, err
	}
	return NewSuperform(address, client, nil, f.config.Config, f.cache, f.logger), nil
}

func routeProxy(route *model.Route) *proxy.Proxy {
	if route == nil || route.Wallet == nil {
		return nil
	}
	return route.Wallet.Proxy
}

// ClaimHandler runs the CLAIM task of a route.
func (f *Factory) ClaimHandler(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
	superform, closer, err := f.New(ctx, privateKey, routeProxy(route))
	if err != nil {
		return false, fmt.Errorf("build claimer: %w", err)
	}
	defer closer()

	return superform.Claim(ctx)
}

// CheckTokensHandler logs the claimable amount of a route's wallet.
func (f *Factory) CheckTokensHandler(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
	key, err := signer.ParsePrivateKey(privateKey)
	if err != nil {
		return false, err
	}

	superform, err := f.NewReader(signer.Address(key), routeProxy(route))
	if err != nil {
		return false, fmt.Errorf("build checker: %w", err)
	}

	amount, err := superform.Amount(ctx)
	if err != nil {
		return false, err
	}

	logger.Success(f.logger, "tokens available", "address", superform.Address().Hex(), "amount", amount.String())
	return true, nil
}
