package model

import "github.com/samber/lo"

// Route is a wallet with its pending tasks in execution order.
type Route struct {
	Wallet *Wallet
	Tasks  []TaskName
}

func (r *Route) TaskNames() []string {
	return lo.Map(r.Tasks, func(t TaskName, _ int) string { return string(t) })
}
