package chainio

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Receipt is the part of a transaction receipt the poller looks at. Status is
// nil when the node returned a receipt without the status field.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	Status      *uint64
}

// ReceiptFetcher returns ethereum.NotFound while the transaction is not mined.
type ReceiptFetcher interface {
	FetchReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// rpcReceiptFetcher reads the raw receipt so a missing status stays
// distinguishable from a failed one, which types.Receipt can't do.
type rpcReceiptFetcher struct {
	client *rpc.Client
}

type rawReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	Status          *hexutil.Uint64 `json:"status"`
}

func NewRPCReceiptFetcher(client *rpc.Client) ReceiptFetcher {
	return &rpcReceiptFetcher{client: client}
}

func (f *rpcReceiptFetcher) FetchReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var raw *rawReceipt
	if err := f.client.CallContext(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ethereum.NotFound
	}

	r := &Receipt{TxHash: raw.TransactionHash}
	if raw.BlockNumber != nil {
		r.BlockNumber = raw.BlockNumber.ToInt()
	}
	if raw.Status != nil {
		status := uint64(*raw.Status)
		r.Status = &status
	}
	return r, nil
}
