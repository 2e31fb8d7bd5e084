package chainio

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToEther converts a wei amount to ether.
func ToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

// maxCost is the most a transaction can burn: gas limit times the fee cap.
func maxCost(gas uint64, feeCap *big.Int) *big.Int {
	if feeCap == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), feeCap)
}
