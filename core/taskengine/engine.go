package taskengine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"

	"github.com/piggyclaim/piggyclaim/metrics"
	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/proxy"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

// ProgressTracker persists task completion.
type ProgressTracker interface {
	MarkComplete(address common.Address, task model.TaskName) error
}

// Notifier is told when a wallet ran out of tasks.
type Notifier interface {
	Notify(ctx context.Context, wallet *model.Wallet) error
}

// IPResolver returns the egress ip of a proxy, used for logging after rotation.
type IPResolver func(ctx context.Context, p *proxy.Proxy) (string, error)

type Config struct {
	PauseBetweenWallets timekeeper.Delay
	PauseBetweenModules timekeeper.Delay

	MobileProxy bool
	RotateIP    bool
}

// The core datastructure of the task engine
type Engine struct {
	config   Config
	registry *Registry
	tracker  ProgressTracker
	notifier Notifier

	clock      timekeeper.Clock
	ipResolver IPResolver
	metrics    metrics.MetricsGenerator
	logger     logger.Logger

	lock    sync.Mutex
	last    *Summary
	running bool
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithClock(c timekeeper.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithMetrics(m metrics.MetricsGenerator) Option {
	return func(e *Engine) { e.metrics = metrics.Ensure(m) }
}

func WithIPResolver(r IPResolver) Option {
	return func(e *Engine) { e.ipResolver = r }
}

// create a new task engine using given handlers and progress tracker
func New(config Config, registry *Registry, tracker ProgressTracker, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		config:   config,
		registry: registry,
		tracker:  tracker,

		clock:   timekeeper.RealClock(),
		metrics: metrics.Noop,
		logger:  logger.EnsureLogger(log),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// LastSummary returns the summary of the latest finished Run, nil before any.
func (e *Engine) LastSummary() *Summary {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.last
}

// Running reports whether a Run is in progress.
func (e *Engine) Running() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.running
}

// Run launches one goroutine per route, pausing between launches, and waits
// for all of them. Once ctx is done no more routes are launched, Run still
// waits for the launched ones and then returns ctx.Err().
func (e *Engine) Run(ctx context.Context, routes []*model.Route) error {
	if e.tracker == nil {
		return ErrNoTracker
	}

	runID := ulid.Make().String()
	started := e.clock.Now()
	log := e.logger.With("run_id", runID)

	e.setRunning(true)
	defer e.setRunning(false)

	if len(routes) == 0 {
		logger.Success(log, "all tasks are completed")
		e.finish(&Summary{RunID: runID, StartedAt: started})
		return nil
	}

	log.Info("starting routes", "routes", len(routes))

	results := make([]routeResult, len(routes))
	var wg sync.WaitGroup

	launched := 0
	for i, route := range routes {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		launched++
		go func(i int, route *model.Route) {
			defer wg.Done()
			results[i] = e.runRoute(ctx, route)
		}(i, route)

		if i == len(routes)-1 {
			break
		}

		pause := e.config.PauseBetweenWallets.Pick()
		log.Info("sleeping before next wallet", "seconds", pause.Seconds())
		if err := e.clock.Sleep(ctx, pause); err != nil {
			break
		}
	}

	wg.Wait()

	summary := newSummary(runID, started, e.clock.Now(), len(routes), launched, results[:launched])
	e.finish(summary)
	summary.Log(log)

	return ctx.Err()
}

func (e *Engine) setRunning(v bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.running = v
}

func (e *Engine) finish(s *Summary) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.last = s
}

type routeResult struct {
	completed int
	failed    int
	finished  bool
}

// runRoute executes the pending tasks of one wallet. Nothing raised in here
// reaches the scheduler or sibling routes.
func (e *Engine) runRoute(ctx context.Context, route *model.Route) (result routeResult) {
	e.metrics.AddActiveRoutes(1)
	defer e.metrics.AddActiveRoutes(-1)

	log := e.logger.With("address", route.Wallet.Address.Hex())

	defer func() {
		if r := recover(); r != nil {
			log.Error("route crashed", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			result.finished = false
		}
	}()

	// pacing pauses are not counted as work
	active := timekeeper.NewElapsing(e.clock)

	e.rotate(ctx, route, log)

	for _, task := range route.Tasks {
		if ctx.Err() != nil {
			return result
		}

		if e.runTask(ctx, route, task, log) {
			result.completed++
		} else {
			result.failed++
		}

		pause := e.config.PauseBetweenModules.Pick()
		log.Info("sleeping before next module", "seconds", pause.Seconds())
		_ = active.Pause()
		if err := e.clock.Sleep(ctx, pause); err != nil {
			return result
		}
		_ = active.Resume()
	}

	result.finished = true
	log.Info("route finished", "completed", result.completed, "failed", result.failed, "active", active.Since())

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, route.Wallet); err != nil {
			log.Warn("failed to notify", "error", err)
		}
	}

	return result
}

func (e *Engine) rotate(ctx context.Context, route *model.Route, log logger.Logger) {
	p := route.Wallet.Proxy
	if !p.CanRotate() || !e.config.MobileProxy || !e.config.RotateIP {
		return
	}

	if err := p.ChangeIP(ctx); err != nil {
		e.metrics.IncRotation("error")
		log.Warn("failed to rotate proxy ip, keeping current one", "proxy", p.String(), "error", err)
		return
	}
	e.metrics.IncRotation("success")

	if e.ipResolver == nil {
		return
	}
	if ip, err := e.ipResolver(ctx, p); err == nil {
		log.Debug("proxy ip rotated", "proxy", p.Host(), "ip", ip)
	}
}

// runTask reports whether task was completed and recorded.
func (e *Engine) runTask(ctx context.Context, route *model.Route, task model.TaskName, log logger.Logger) bool {
	handler, ok := e.registry.Lookup(task)
	if !ok {
		e.metrics.IncTask(task.String(), TaskStatusUnknown)
		log.Error("skipping task", "task", task, "error", ErrUnknownTask)
		return false
	}

	start := e.clock.Now()
	completed, err := handler(ctx, route.Wallet.PrivateKey, route)
	if err != nil {
		e.metrics.IncTask(task.String(), TaskStatusError)
		log.Error("task failed", "task", task, "error", err, "elapsed", e.clock.Now().Sub(start))
		return false
	}

	if !completed {
		e.metrics.IncTask(task.String(), TaskStatusIncomplete)
		log.Warn("task not completed", "task", task)
		return false
	}

	if err := e.tracker.MarkComplete(route.Wallet.Address, task); err != nil {
		e.metrics.IncTask(task.String(), TaskStatusError)
		log.Error("cannot record task completion", "task", task, "error", err)
		return false
	}

	e.metrics.IncTask(task.String(), TaskStatusCompleted)
	logger.Success(log, "task completed", "task", task, "elapsed", e.clock.Now().Sub(start))
	return true
}
