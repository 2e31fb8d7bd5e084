package claimer

import (
	"context"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const DefaultAmountTTL = 10 * time.Minute

// AmountCache remembers the token amount of an address for a short while.
type AmountCache struct {
	cache *bigcache.BigCache
}

func NewAmountCache(ctx context.Context, ttl time.Duration) (*AmountCache, error) {
	if ttl <= 0 {
		ttl = DefaultAmountTTL
	}

	config := bigcache.DefaultConfig(ttl)
	// number of shards (must be a power of 2)
	config.Shards = 64
	// bigcache has a one second resolution
	config.CleanWindow = time.Minute
	config.MaxEntriesInWindow = 10000
	config.MaxEntrySize = 64
	config.HardMaxCacheSize = 16

	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, err
	}
	return &AmountCache{cache: cache}, nil
}

func cacheKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// Get returns the cached amount. A nil cache always misses.
func (c *AmountCache) Get(address common.Address) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Zero, false
	}

	raw, err := c.cache.Get(cacheKey(address))
	if err != nil {
		return decimal.Zero, false
	}

	amount, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

func (c *AmountCache) Set(address common.Address, amount decimal.Decimal) {
	if c == nil {
		return
	}
	_ = c.cache.Set(cacheKey(address), []byte(amount.String()))
}

func (c *AmountCache) Forget(address common.Address) {
	if c == nil {
		return
	}
	// a missing entry is the state Forget asks for
	_ = c.cache.Delete(cacheKey(address))
}

func (c *AmountCache) Close() error {
	if c == nil {
		return nil
	}
	return c.cache.Close()
}
