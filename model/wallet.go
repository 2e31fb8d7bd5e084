package model

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"

	"github.com/piggyclaim/piggyclaim/core/chainio/signer"
	"github.com/piggyclaim/piggyclaim/pkg/proxy"
)

// Wallet is the identity a route runs as. It is built once and never mutated.
type Wallet struct {
	PrivateKey string
	Key        *ecdsa.PrivateKey
	Address    common.Address
	Proxy      *proxy.Proxy
}

func NewWallet(privateKey string, p *proxy.Proxy) (*Wallet, error) {
	key, err := signer.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		PrivateKey: privateKey,
		Key:        key,
		Address:    signer.Address(key),
		Proxy:      p,
	}, nil
}

func (w *Wallet) String() string {
	return w.Address.Hex()
}
