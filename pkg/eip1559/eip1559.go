package eip1559

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// FeeSource is the subset of ethclient.Client needed to price a dynamic fee tx.
type FeeSource interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// SuggestFee returns maxFeePerGas and maxPriorityFeePerGas for the next block.
func SuggestFee(ctx context.Context, client FeeSource) (*big.Int, *big.Int, error) {
	// Get suggested gas tip cap (maxPriorityFeePerGas)
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	// Add 13% buffer to tip
	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer = new(big.Int).Mul(buffer, big.NewInt(13))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)

	var maxFeePerGas *big.Int

	baseFee := header.BaseFee
	if baseFee != nil {
		// maxFeePerGas = (2 * baseFee) + maxPriorityFeePerGas, survives a doubling of the base fee
		maxFeePerGas = new(big.Int).Add(
			new(big.Int).Mul(baseFee, big.NewInt(2)),
			maxPriorityFeePerGas,
		)
	} else {
		// Legacy (pre-EIP-1559) chain
		maxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}
