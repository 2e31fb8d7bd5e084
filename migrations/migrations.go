package migrations

import (
	"github.com/piggyclaim/piggyclaim/core/migrator"
)

// Migrations are applied in order on every start. Names are prefixed with
// YYYYMMDD-HHMMSS and must never change once released.
var Migrations = []migrator.Migration{
	{
		Name:     "20241019-120000-normalize-task-names",
		Function: NormalizeTaskNames,
	},
}
