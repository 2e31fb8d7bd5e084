package eip1559

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feeStub struct {
	tip     *big.Int
	baseFee *big.Int
}

func (f *feeStub) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tip, nil
}

func (f *feeStub) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func TestSuggestFee(t *testing.T) {
	maxFee, tip, err := SuggestFee(context.Background(), &feeStub{
		tip:     big.NewInt(1000),
		baseFee: big.NewInt(5000),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1130), tip.Int64())
	assert.Equal(t, int64(11130), maxFee.Int64())
}

func TestSuggestFeeLegacyChain(t *testing.T) {
	maxFee, tip, err := SuggestFee(context.Background(), &feeStub{tip: big.NewInt(100)})
	require.NoError(t, err)

	assert.Equal(t, tip.Int64(), maxFee.Int64())
}
