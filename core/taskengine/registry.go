package taskengine

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
)

// Handler performs one task for a route. It reports whether the task is done
// for good, only then the task is marked complete.
type Handler func(ctx context.Context, privateKey string, route *model.Route) (bool, error)

type Registry struct {
	mu       sync.RWMutex
	handlers map[model.TaskName]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.TaskName]Handler)}
}

func (r *Registry) Register(name model.TaskName, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Lookup(name model.TaskName) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists the registered tasks in lexical order.
func (r *Registry) Names() []model.TaskName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.handlers)
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// NotReleasedHandler stands in for a task whose feature does not exist yet.
// It never completes so the task stays pending for a later release.
func NotReleasedHandler(log logger.Logger, feature string) Handler {
	log = logger.EnsureLogger(log)
	return func(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
		log.Warn(feature+" is not released yet", "address", route.Wallet.Address.Hex())
		return false, nil
	}
}
