package schema

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key layout
//   w:<address>          planned route of a wallet, json WalletRecord
//   c:<address>:<task>   completion marker, value is unix millis
//   r:runs               counter of processing runs
// Addresses are stored lower case so lookups don't depend on checksum casing.

const (
	walletPrefix     = "w:"
	completionPrefix = "c:"
)

var RunCounterKey = []byte("r:runs")

func normalize(address common.Address) string {
	return strings.ToLower(address.Hex())
}

func WalletStoragePrefix() []byte {
	return []byte(walletPrefix)
}

func WalletStorageKey(address common.Address) []byte {
	return []byte(walletPrefix + normalize(address))
}

func CompletionStoragePrefix() []byte {
	return []byte(completionPrefix)
}

// CompletionByWalletPrefix returns the prefix of every completion of a wallet.
func CompletionByWalletPrefix(address common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", completionPrefix, normalize(address)))
}

func CompletionStorageKey(address common.Address, task string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", completionPrefix, normalize(address), task))
}

// TaskFromCompletionKey extracts the task name from a completion key.
func TaskFromCompletionKey(key []byte) string {
	parts := strings.SplitN(string(key), ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
