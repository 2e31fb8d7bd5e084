package taskengine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piggyclaim/piggyclaim/core/progress"
	"github.com/piggyclaim/piggyclaim/core/testutil"
	"github.com/piggyclaim/piggyclaim/model"
	"github.com/piggyclaim/piggyclaim/pkg/proxy"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

type memTracker struct {
	mu   sync.Mutex
	done map[string][]model.TaskName
}

func newMemTracker() *memTracker {
	return &memTracker{done: map[string][]model.TaskName{}}
}

func (m *memTracker) MarkComplete(address common.Address, task model.TaskName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[address.Hex()] = append(m.done[address.Hex()], task)
	return nil
}

func (m *memTracker) completed(address common.Address) []model.TaskName {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[address.Hex()]
}

type countingNotifier struct {
	notified sync.Map
	calls    int32
}

func (n *countingNotifier) Notify(ctx context.Context, wallet *model.Wallet) error {
	atomic.AddInt32(&n.calls, 1)
	n.notified.Store(wallet.Address.Hex(), true)
	return nil
}

func fixedHandler(completed bool, err error, calls *int32) Handler {
	return func(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
		atomic.AddInt32(calls, 1)
		return completed, err
	}
}

func route(key string, p *proxy.Proxy, tasks ...model.TaskName) *model.Route {
	return &model.Route{Wallet: testutil.MustWallet(key, p), Tasks: tasks}
}

func countSleeps(sleeps []time.Duration, d time.Duration) int {
	n := 0
	for _, s := range sleeps {
		if s == d {
			n++
		}
	}
	return n
}

func testConfig() Config {
	return Config{
		PauseBetweenWallets: timekeeper.Fixed(7),
		PauseBetweenModules: timekeeper.Fixed(1),
	}
}

func TestRunEmptyRoutes(t *testing.T) {
	clock := testutil.FakeClock()
	var calls int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, fixedHandler(true, nil, &calls))

	engine := New(testConfig(), registry, newMemTracker(), nil, WithClock(clock))
	require.NoError(t, engine.Run(context.Background(), nil))

	assert.EqualValues(t, 0, calls)
	assert.Empty(t, clock.Sleeps())
	require.NotNil(t, engine.LastSummary())
	assert.Equal(t, 0, engine.LastSummary().Routes)
	assert.False(t, engine.Running())
}

func TestRunWaitsForEveryRoute(t *testing.T) {
	var finished int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, func(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&finished, 1)
		return true, nil
	})

	tracker := newMemTracker()
	engine := New(testConfig(), registry, tracker, nil, WithClock(testutil.FakeClock()))

	routes := []*model.Route{
		route(testutil.TestKey1, nil, model.TaskClaim),
		route(testutil.TestKey2, nil, model.TaskClaim),
		route(testutil.TestKey3, nil, model.TaskClaim),
	}
	require.NoError(t, engine.Run(context.Background(), routes))

	assert.EqualValues(t, 3, atomic.LoadInt32(&finished))
	for _, r := range routes {
		assert.Equal(t, []model.TaskName{model.TaskClaim}, tracker.completed(r.Wallet.Address))
	}

	summary := engine.LastSummary()
	assert.Equal(t, 3, summary.Finished)
	assert.Equal(t, 3, summary.TasksCompleted)
	assert.Equal(t, 0, summary.Incomplete())
	assert.NotEmpty(t, summary.RunID)
}

func TestLaunchPacingSkipsLastPause(t *testing.T) {
	clock := testutil.FakeClock()
	var calls int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, fixedHandler(true, nil, &calls))

	engine := New(testConfig(), registry, newMemTracker(), nil, WithClock(clock))
	routes := []*model.Route{
		route(testutil.TestKey1, nil, model.TaskClaim),
		route(testutil.TestKey2, nil, model.TaskClaim),
		route(testutil.TestKey3, nil, model.TaskClaim),
	}
	require.NoError(t, engine.Run(context.Background(), routes))

	sleeps := clock.Sleeps()
	assert.Equal(t, 2, countSleeps(sleeps, 7*time.Second))
	assert.Equal(t, 3, countSleeps(sleeps, time.Second))
}

func TestModulePauseIsUnconditional(t *testing.T) {
	clock := testutil.FakeClock()
	var claimCalls, swapCalls, checkCalls int32

	registry := NewRegistry()
	registry.Register(model.TaskClaim, fixedHandler(true, nil, &claimCalls))
	registry.Register(model.TaskSwap, fixedHandler(false, nil, &swapCalls))
	registry.Register(model.TaskCheckTokens, fixedHandler(false, errors.New("api down"), &checkCalls))

	tracker := newMemTracker()
	engine := New(testConfig(), registry, tracker, nil, WithClock(clock))

	r := route(testutil.TestKey1, nil, model.TaskClaim, model.TaskSwap, model.TaskCheckTokens)
	require.NoError(t, engine.Run(context.Background(), []*model.Route{r}))

	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clock.Sleeps())
	assert.Equal(t, []model.TaskName{model.TaskClaim}, tracker.completed(r.Wallet.Address))

	summary := engine.LastSummary()
	assert.Equal(t, 1, summary.TasksCompleted)
	assert.Equal(t, 2, summary.TasksFailed)
	assert.Equal(t, 1, summary.Finished)
}

func TestUnknownTaskIsSkipped(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, fixedHandler(true, nil, &calls))

	tracker := newMemTracker()
	engine := New(testConfig(), registry, tracker, nil, WithClock(testutil.FakeClock()))

	r := route(testutil.TestKey1, nil, model.TaskName("BRIDGE"), model.TaskClaim)
	require.NoError(t, engine.Run(context.Background(), []*model.Route{r}))

	assert.EqualValues(t, 1, calls)
	assert.Equal(t, []model.TaskName{model.TaskClaim}, tracker.completed(r.Wallet.Address))
}

func TestPanicDoesNotAffectSiblings(t *testing.T) {
	crashing := testutil.MustWallet(testutil.TestKey2, nil)

	registry := NewRegistry()
	registry.Register(model.TaskClaim, func(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
		if route.Wallet.Address == crashing.Address {
			panic("boom")
		}
		return true, nil
	})

	notifier := &countingNotifier{}
	tracker := newMemTracker()
	engine := New(testConfig(), registry, tracker, nil, WithClock(testutil.FakeClock()), WithNotifier(notifier))

	routes := []*model.Route{
		route(testutil.TestKey1, nil, model.TaskClaim),
		route(testutil.TestKey2, nil, model.TaskClaim),
		route(testutil.TestKey3, nil, model.TaskClaim),
	}
	require.NoError(t, engine.Run(context.Background(), routes))

	summary := engine.LastSummary()
	assert.Equal(t, 3, summary.Routes)
	assert.Equal(t, 2, summary.Finished)
	assert.Equal(t, 1, summary.Incomplete())
	assert.Empty(t, tracker.completed(crashing.Address))

	assert.EqualValues(t, 2, atomic.LoadInt32(&notifier.calls))
	_, notified := notifier.notified.Load(crashing.Address.Hex())
	assert.False(t, notified)
}

func TestNotifierAfterTasks(t *testing.T) {
	var calls int32
	registry := NewRegistry()
	registry.Register(model.TaskSwap, fixedHandler(false, nil, &calls))

	notifier := &countingNotifier{}
	engine := New(testConfig(), registry, newMemTracker(), nil, WithClock(testutil.FakeClock()), WithNotifier(notifier))

	r := route(testutil.TestKey1, nil, model.TaskSwap)
	require.NoError(t, engine.Run(context.Background(), []*model.Route{r}))

	_, notified := notifier.notified.Load(r.Wallet.Address.Hex())
	assert.True(t, notified)
}

func changeIPServer(t *testing.T, status int) (*httptest.Server, *int32) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestRotateBeforeFirstTask(t *testing.T) {
	server, hits := changeIPServer(t, http.StatusOK)

	var seenHits int32 = -1
	registry := NewRegistry()
	registry.Register(model.TaskClaim, func(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
		atomic.StoreInt32(&seenHits, atomic.LoadInt32(hits))
		return true, nil
	})

	resolved := int32(0)
	config := testConfig()
	config.MobileProxy = true
	config.RotateIP = true
	engine := New(config, registry, newMemTracker(), nil,
		WithClock(testutil.FakeClock()),
		WithIPResolver(func(ctx context.Context, p *proxy.Proxy) (string, error) {
			atomic.AddInt32(&resolved, 1)
			return "1.2.3.4", nil
		}))

	p := proxy.MustParse("127.0.0.1:1|" + server.URL + "/change")
	require.NoError(t, engine.Run(context.Background(), []*model.Route{route(testutil.TestKey1, p, model.TaskClaim)}))

	assert.EqualValues(t, 1, atomic.LoadInt32(&seenHits))
	assert.EqualValues(t, 1, atomic.LoadInt32(&resolved))
}

func TestRotationNeedsBothFlags(t *testing.T) {
	server, hits := changeIPServer(t, http.StatusOK)

	var calls int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, fixedHandler(true, nil, &calls))

	config := testConfig()
	config.MobileProxy = true
	config.RotateIP = false
	engine := New(config, registry, newMemTracker(), nil, WithClock(testutil.FakeClock()))

	p := proxy.MustParse("127.0.0.1:1|" + server.URL)
	require.NoError(t, engine.Run(context.Background(), []*model.Route{route(testutil.TestKey1, p, model.TaskClaim)}))

	assert.EqualValues(t, 0, atomic.LoadInt32(hits))
	assert.EqualValues(t, 1, calls)
}

func TestRotationFailureIsTolerated(t *testing.T) {
	server, hits := changeIPServer(t, http.StatusInternalServerError)

	var calls int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, fixedHandler(true, nil, &calls))

	config := testConfig()
	config.MobileProxy = true
	config.RotateIP = true
	engine := New(config, registry, newMemTracker(), nil, WithClock(testutil.FakeClock()))

	p := proxy.MustParse("127.0.0.1:1|" + server.URL)
	require.NoError(t, engine.Run(context.Background(), []*model.Route{route(testutil.TestKey1, p, model.TaskClaim)}))

	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 1, engine.LastSummary().Finished)
}

func TestCancelStopsLaunching(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, func(ctx context.Context, privateKey string, route *model.Route) (bool, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return true, nil
	})

	// real clock, the launch pause is long enough for the first route to cancel
	config := Config{PauseBetweenWallets: timekeeper.Fixed(5), PauseBetweenModules: timekeeper.Fixed(5)}
	engine := New(config, registry, newMemTracker(), nil)

	routes := []*model.Route{
		route(testutil.TestKey1, nil, model.TaskClaim),
		route(testutil.TestKey2, nil, model.TaskClaim),
	}

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, routes) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, 1, engine.LastSummary().Launched)
}

func TestNoTracker(t *testing.T) {
	engine := New(testConfig(), NewRegistry(), nil, nil)
	assert.ErrorIs(t, engine.Run(context.Background(), nil), ErrNoTracker)
}

func TestCompletedTasksAreNotRoutedAgain(t *testing.T) {
	tracker := progress.New(testutil.MustDB(t), nil)
	wallets := testutil.TestWallets()
	_, err := tracker.Generate(wallets, []model.TaskName{model.TaskClaim, model.TaskSwap})
	require.NoError(t, err)

	var claimCalls, swapCalls int32
	registry := NewRegistry()
	registry.Register(model.TaskClaim, fixedHandler(true, nil, &claimCalls))
	registry.Register(model.TaskSwap, fixedHandler(false, nil, &swapCalls))

	keys := []string{testutil.TestKey1, testutil.TestKey2, testutil.TestKey3}
	routes, err := tracker.Routes(keys, false)
	require.NoError(t, err)

	engine := New(testConfig(), registry, tracker, nil, WithClock(testutil.FakeClock()))
	require.NoError(t, engine.Run(context.Background(), routes))
	assert.EqualValues(t, 3, claimCalls)

	routes, err = tracker.Routes(keys, false)
	require.NoError(t, err)
	require.Len(t, routes, 3)
	for _, r := range routes {
		assert.Equal(t, []model.TaskName{model.TaskSwap}, r.Tasks)
	}
}

func TestRegistryNames(t *testing.T) {
	registry := NewRegistry()
	registry.Register(model.TaskSwap, NotReleasedHandler(nil, "swap"))
	registry.Register(model.TaskClaim, NotReleasedHandler(nil, "claim"))

	assert.Equal(t, []model.TaskName{model.TaskClaim, model.TaskSwap}, registry.Names())

	h, ok := registry.Lookup(model.TaskSwap)
	require.True(t, ok)
	done, err := h(context.Background(), testutil.TestKey1, route(testutil.TestKey1, nil, model.TaskSwap))
	assert.NoError(t, err)
	assert.False(t, done)
}
