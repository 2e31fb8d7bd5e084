package chainio

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", ToEther(wei).String())
	assert.Equal(t, "0.000000000000000001", ToEther(big.NewInt(1)).String())
	assert.True(t, ToEther(nil).IsZero())
}

func TestMaxCost(t *testing.T) {
	assert.Equal(t, big.NewInt(21000*2113), maxCost(21000, big.NewInt(2113)))
	assert.Equal(t, int64(0), maxCost(21000, nil).Int64())
}
