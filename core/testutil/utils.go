package testutil

import (
	"os"
	"testing"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/proxy"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
	"github.com/piggyclaim/piggyclaim/storage"
)

// Well known development keys, never fund them.
const (
	TestKey1 = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	TestKey2 = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	TestKey3 = "0x5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a"

	TestAddress1 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	TestAddress2 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	TestAddress3 = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

// Shortcut to initialize a storage at a temp path, panic if we cannot create db
func TestMustDB() storage.Storage {
	dir, err := os.MkdirTemp("", "piggytest")
	if err != nil {
		panic(err)
	}

	db, err := storage.NewWithPath(dir)
	if err != nil {
		panic(err)
	}
	return db
}

// MustDB opens a temp store that is closed and removed when t ends.
func MustDB(t *testing.T) storage.Storage {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.NewWithPath(dir)
	if err != nil {
		t.Fatalf("cannot open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger("development")
	if err != nil {
		panic(err)
	}
	return logger
}

func MustWallet(key string, p *proxy.Proxy) *model.Wallet {
	wallet, err := model.NewWallet(key, p)
	if err != nil {
		panic(err)
	}
	return wallet
}

func TestWallets() []*model.Wallet {
	return []*model.Wallet{
		MustWallet(TestKey1, nil),
		MustWallet(TestKey2, proxy.MustParse("user:pass@10.0.0.1:8080")),
		MustWallet(TestKey3, proxy.MustParse("10.0.0.2:8080|https://rotate.test/change?key=1")),
	}
}

func FakeClock() *timekeeper.FakeClock {
	return timekeeper.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
}
