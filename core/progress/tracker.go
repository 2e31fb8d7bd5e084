package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/proxy"
	"github.com/piggyclaim/piggyclaim/storage"
	"github.com/piggyclaim/piggyclaim/storage/schema"
)

var ErrNoRecord = errors.New("wallet has no stored route")

// WalletRecord is the route planned for a wallet when the database was generated.
type WalletRecord struct {
	Address   string   `json:"address"`
	Proxy     string   `json:"proxy,omitempty"`
	Tasks     []string `json:"tasks"`
	CreatedAt int64    `json:"created_at"`
}

// WalletStatus is the progress of one wallet as shown by `status`.
type WalletStatus struct {
	Record      *WalletRecord
	Completed   map[string]time.Time
	Pending     []string
	ProxyString string
}

func (s *WalletStatus) Done() bool {
	return len(s.Pending) == 0
}

type Stats struct {
	Wallets   int    `json:"wallets"`
	Finished  int    `json:"finished"`
	Completed int    `json:"completed"`
	Pending   int    `json:"pending"`
	Runs      uint64 `json:"runs"`
}

// Tracker keeps per wallet task completion in the store. Completion keys are
// only ever added, a completed task is never handed out again.
type Tracker struct {
	db     storage.Storage
	logger logger.Logger
	now    func() time.Time
}

func New(db storage.Storage, log logger.Logger) *Tracker {
	return &Tracker{
		db:     db,
		logger: logger.EnsureLogger(log),
		now:    time.Now,
	}
}

func proxyLine(p *proxy.Proxy) string {
	if p == nil {
		return ""
	}
	if p.ChangeLink != "" {
		return p.URL + "|" + p.ChangeLink
	}
	return p.URL
}

// Generate wipes all routes and progress and stores a fresh route per wallet.
func (t *Tracker) Generate(wallets []*model.Wallet, tasks []model.TaskName) (int, error) {
	if len(tasks) == 0 {
		return 0, fmt.Errorf("no tasks to plan")
	}

	for _, prefix := range [][]byte{schema.WalletStoragePrefix(), schema.CompletionStoragePrefix()} {
		removed, err := t.db.DeleteByPrefix(prefix)
		if err != nil {
			return 0, fmt.Errorf("cannot reset %s: %w", prefix, err)
		}
		if removed > 0 {
			t.logger.Debug("removed previous entries", "prefix", string(prefix), "count", removed)
		}
	}

	names := lo.Map(tasks, func(task model.TaskName, _ int) string { return task.String() })
	createdAt := t.now().UnixMilli()

	updates := make(map[string][]byte, len(wallets))
	for _, wallet := range wallets {
		record := &WalletRecord{
			Address:   wallet.Address.Hex(),
			Proxy:     proxyLine(wallet.Proxy),
			Tasks:     names,
			CreatedAt: createdAt,
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return 0, err
		}
		updates[string(schema.WalletStorageKey(wallet.Address))] = payload
	}

	if err := t.db.BatchWrite(updates); err != nil {
		return 0, err
	}

	return len(updates), nil
}

func (t *Tracker) Record(address common.Address) (*WalletRecord, error) {
	payload, err := t.db.GetKey(schema.WalletStorageKey(address))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}

	var record WalletRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("corrupted record for %s: %w", address.Hex(), err)
	}
	return &record, nil
}

// MarkComplete records that task finished for address. Marking twice keeps
// the first timestamp.
func (t *Tracker) MarkComplete(address common.Address, task model.TaskName) error {
	ts := strconv.FormatInt(t.now().UnixMilli(), 10)
	if _, err := t.db.SetIfAbsent(schema.CompletionStorageKey(address, task.String()), []byte(ts)); err != nil {
		return fmt.Errorf("cannot mark %s complete for %s: %w", task, address.Hex(), err)
	}
	return nil
}

func (t *Tracker) completions(address common.Address) (map[string]time.Time, error) {
	items, err := t.db.GetByPrefix(schema.CompletionByWalletPrefix(address))
	if err != nil {
		return nil, err
	}

	out := make(map[string]time.Time, len(items))
	for _, item := range items {
		ms, _ := strconv.ParseInt(string(item.Value), 10, 64)
		out[schema.TaskFromCompletionKey(item.Key)] = time.UnixMilli(ms)
	}
	return out, nil
}

// LoadPending returns the planned tasks of address not yet completed, in order.
func (t *Tracker) LoadPending(address common.Address) ([]model.TaskName, error) {
	record, err := t.Record(address)
	if err != nil {
		return nil, err
	}

	done, err := t.completions(address)
	if err != nil {
		return nil, err
	}

	pending := lo.Filter(record.Tasks, func(task string, _ int) bool {
		_, ok := done[task]
		return !ok
	})

	return lo.FilterMap(pending, func(name string, _ int) (model.TaskName, bool) {
		task, err := model.ParseTaskName(name)
		if err != nil {
			// still routed so the engine reports it, an unknown task never completes
			return model.TaskName(name), true
		}
		return task, true
	}), nil
}

// Routes matches keys against the stored records and returns a route for every
// wallet with pending tasks. Keys with no record are skipped. When mobile is
// false the stored change links are dropped.
func (t *Tracker) Routes(keys []string, mobile bool) ([]*model.Route, error) {
	routes := make([]*model.Route, 0, len(keys))

	for _, key := range keys {
		wallet, err := model.NewWallet(key, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}

		record, err := t.Record(wallet.Address)
		if errors.Is(err, ErrNoRecord) {
			t.logger.Debug("wallet is not in the database, skipping", "address", wallet.Address.Hex())
			continue
		}
		if err != nil {
			return nil, err
		}

		pending, err := t.LoadPending(wallet.Address)
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			continue
		}

		if record.Proxy != "" {
			p, err := proxy.Parse(record.Proxy)
			if err != nil {
				return nil, fmt.Errorf("stored proxy of %s: %w", wallet.Address.Hex(), err)
			}
			if !mobile {
				p.ChangeLink = ""
			}
			wallet.Proxy = p
		}

		routes = append(routes, &model.Route{Wallet: wallet, Tasks: pending})
	}

	// one route per wallet, two routes would race on the same nonce
	return lo.UniqBy(routes, func(r *model.Route) common.Address {
		return r.Wallet.Address
	}), nil
}

// BeginRun counts a processing run and returns its ordinal.
func (t *Tracker) BeginRun() (uint64, error) {
	return t.db.IncCounter(schema.RunCounterKey)
}

// Statuses returns the progress of every stored wallet ordered by address.
func (t *Tracker) Statuses() ([]*WalletStatus, error) {
	items, err := t.db.GetByPrefix(schema.WalletStoragePrefix())
	if err != nil {
		return nil, err
	}

	statuses := make([]*WalletStatus, 0, len(items))
	for _, item := range items {
		var record WalletRecord
		if err := json.Unmarshal(item.Value, &record); err != nil {
			t.logger.Warn("skipping corrupted record", "key", string(item.Key), "error", err)
			continue
		}

		address := common.HexToAddress(record.Address)
		done, err := t.completions(address)
		if err != nil {
			return nil, err
		}

		status := &WalletStatus{
			Record:    &record,
			Completed: done,
			Pending: lo.Filter(record.Tasks, func(task string, _ int) bool {
				_, ok := done[task]
				return !ok
			}),
		}
		if record.Proxy != "" {
			if p, err := proxy.Parse(record.Proxy); err == nil {
				status.ProxyString = p.String()
			}
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

func (t *Tracker) Stats() (*Stats, error) {
	statuses, err := t.Statuses()
	if err != nil {
		return nil, err
	}

	runs, err := t.db.GetCounter(schema.RunCounterKey, 0)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Wallets: len(statuses), Runs: runs}
	for _, s := range statuses {
		stats.Completed += len(s.Completed)
		stats.Pending += len(s.Pending)
		if s.Done() {
			stats.Finished++
		}
	}
	return stats, nil
}
