package migrations

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/piggyclaim/piggyclaim/core/progress"
	"github.com/piggyclaim/piggyclaim/storage"
	"github.com/piggyclaim/piggyclaim/storage/schema"
)

// NormalizeTaskNames upper-cases and de-duplicates the planned tasks of every
// wallet record. Hand edited databases used lower case names, which never
// matched a handler and so never completed.
func NormalizeTaskNames(db storage.Storage) (int, error) {
	items, err := db.GetByPrefix(schema.WalletStoragePrefix())
	if err != nil {
		return 0, err
	}

	updates := make(map[string][]byte)
	for _, item := range items {
		var record progress.WalletRecord
		if err := json.Unmarshal(item.Value, &record); err != nil {
			continue
		}

		normalized := lo.Uniq(lo.Map(record.Tasks, func(task string, _ int) string {
			return strings.ToUpper(strings.TrimSpace(task))
		}))
		if slices.Equal(normalized, record.Tasks) {
			continue
		}

		record.Tasks = normalized
		payload, err := json.Marshal(&record)
		if err != nil {
			return 0, err
		}
		updates[string(item.Key)] = payload
	}

	if len(updates) == 0 {
		return 0, nil
	}
	if err := db.BatchWrite(updates); err != nil {
		return 0, err
	}
	return len(updates), nil
}
