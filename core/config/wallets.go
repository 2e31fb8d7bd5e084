package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/proxy"
)

// LoadLines reads one entry per line, skipping blanks and # comments.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// LoadKeys is LoadLines for a private key file. A key listed twice, with or
// without the 0x prefix, is kept once at its first position.
func LoadKeys(path string) ([]string, error) {
	lines, err := LoadLines(path)
	if err != nil {
		return nil, err
	}
	return lo.UniqBy(lines, func(key string) string {
		return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X"))
	}), nil
}

// BuildWallets pairs every key with the proxy at index modulo pool size. Change
// links are only kept for mobile proxies.
func BuildWallets(keys []string, proxyLines []string, mobile bool) ([]*model.Wallet, error) {
	pool := make([]*proxy.Proxy, 0, len(proxyLines))
	for i, line := range proxyLines {
		p, err := proxy.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("proxy line %d: %w", i+1, err)
		}
		if !mobile {
			p.ChangeLink = ""
		}
		pool = append(pool, p)
	}

	wallets := make([]*model.Wallet, 0, len(keys))
	for i, key := range keys {
		var p *proxy.Proxy
		if len(pool) > 0 {
			p = pool[i%len(pool)]
		}

		wallet, err := model.NewWallet(key, p)
		if err != nil {
			return nil, fmt.Errorf("private key %d: %w", i+1, err)
		}
		wallets = append(wallets, wallet)
	}

	return wallets, nil
}

// Shuffle returns keys in random order without touching the input.
func Shuffle(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return lo.Shuffle(out)
}
