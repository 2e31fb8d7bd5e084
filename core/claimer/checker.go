package claimer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

const DefaultCheckConcurrency = 8

// Balance is one line of the token report.
type Balance struct {
	Address common.Address
	Amount  decimal.Decimal
	Err     error
}

type CheckOptions struct {
	Concurrency int
	// Pause is taken between two wallet launches
	Pause    timekeeper.Delay
	RotateIP bool
}

// Check reads the amount of every wallet with at most Concurrency requests in
// flight. A failed wallet is reported with a zero amount and its error, it
// doesn't stop the others. Results keep the order of wallets.
func (f *Factory) Check(ctx context.Context, wallets []*model.Wallet, opts CheckOptions) ([]Balance, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultCheckConcurrency
	}

	balances := make([]Balance, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, wallet := range wallets {
		balances[i] = Balance{Address: wallet.Address, Amount: decimal.Zero}
	}

	for i, wallet := range wallets {
		i, wallet := i, wallet

		if i > 0 {
			if err := f.clock.Sleep(gctx, opts.Pause.Pick()); err != nil {
				break
			}
		}

		g.Go(func() error {
			if opts.RotateIP && wallet.Proxy.CanRotate() {
				if err := wallet.Proxy.ChangeIP(gctx); err != nil {
					f.logger.Warn("failed to rotate proxy ip", "address", wallet.Address.Hex(), "error", err)
				}
			}

			superform, err := f.NewReader(wallet.Address, wallet.Proxy)
			if err != nil {
				balances[i].Err = err
				return nil
			}

			amount, err := superform.Amount(gctx)
			if err != nil {
				f.logger.Error("failed to check tokens", "address", wallet.Address.Hex(), "error", err)
				balances[i].Err = err
				return nil
			}

			f.logger.Info("checked tokens", "address", wallet.Address.Hex(), "amount", amount.String())
			balances[i].Amount = amount
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return balances, err
	}
	return balances, ctx.Err()
}
