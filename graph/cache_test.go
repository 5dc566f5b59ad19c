package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingObserver counts events for assertions.
type recordingObserver struct {
	NopObserver
	hits, misses, checkpoints, interrupts atomic.Int32
	nodeErrors                            atomic.Int32
	mu                                    sync.Mutex
	statuses                              []string
}

func (o *recordingObserver) OnCacheHit(string, string)                  { o.hits.Add(1) }
func (o *recordingObserver) OnCacheMiss(string, string)                 { o.misses.Add(1) }
func (o *recordingObserver) OnCheckpoint(string, CheckpointSource)      { o.checkpoints.Add(1) }
func (o *recordingObserver) OnInterrupt(string, string, InterruptPhase) { o.interrupts.Add(1) }

func (o *recordingObserver) OnNodeEnd(_ string, _ string, _ time.Duration, err error) {
	if err != nil {
		o.nodeErrors.Add(1)
	}
}

func (o *recordingObserver) OnRunEnd(_ string, status string, _ time.Duration) {
	o.mu.Lock()
	o.statuses = append(o.statuses, status)
	o.mu.Unlock()
}

func cachedGraph(t *testing.T, clock *fakeClock, obs Observer, calls *atomic.Int32, fail *atomic.Bool) *CompiledGraph[testState] {
	t.Helper()
	node := NodeFunc[testState](func(_ context.Context, s testState) (NodeOutput[testState], error) {
		calls.Add(1)
		if fail != nil && fail.Load() {
			return NodeOutput[testState]{}, errors.New("upstream unavailable")
		}
		return StateOutput(testState{Count: len(s.Messages)}), nil
	})
	g, err := NewStateGraph[testState]("cached").
		AddNodeWithCache("expensive", node, CachePolicy{TTL: time.Minute}).
		SetEntryPoint("expensive").
		Compile(withClock(clock.Now), WithObserver(obs))
	require.NoError(t, err)
	return g
}

func TestCache_HitSkipsNode(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	obs := &recordingObserver{}
	g := cachedGraph(t, newFakeClock(), obs, &calls, nil)
	input := testState{Messages: []string{"a", "b"}}

	first, err := g.Invoke(context.Background(), input)
	require.NoError(t, err)
	second, err := g.Invoke(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, 2, second.State.Count)
	assert.Equal(t, int32(1), obs.hits.Load())
	assert.Equal(t, int32(1), obs.misses.Load())
	assert.Equal(t, 1, g.cache.len())
}

func TestCache_DifferentInputMisses(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	g := cachedGraph(t, newFakeClock(), NopObserver{}, &calls, nil)

	_, err := g.Invoke(context.Background(), testState{Messages: []string{"a"}})
	require.NoError(t, err)
	_, err = g.Invoke(context.Background(), testState{Messages: []string{"b"}})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	clock := newFakeClock()
	g := cachedGraph(t, clock, NopObserver{}, &calls, nil)
	input := testState{Messages: []string{"x"}}

	_, err := g.Invoke(context.Background(), input)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = g.Invoke(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	_, err = g.Invoke(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_ErrorsNotCached(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var fail atomic.Bool
	fail.Store(true)
	obs := &recordingObserver{}
	g := cachedGraph(t, newFakeClock(), obs, &calls, &fail)
	input := testState{Messages: []string{"x"}}

	_, err := g.Invoke(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, int32(1), obs.nodeErrors.Load())

	fail.Store(false)
	res, err := g.Invoke(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1, res.State.Count)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_ConcurrentRunsShareEntry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	g := cachedGraph(t, newFakeClock(), NopObserver{}, &calls, nil)
	input := testState{Messages: []string{"same"}}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Invoke(context.Background(), input)
			assert.NoError(t, err)
			assert.Equal(t, 1, res.State.Count)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(16))
	assert.Equal(t, 1, g.cache.len())
}

func TestCache_InterruptIsNotReplayedOnResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	counter := newCallCounter()
	obs := &recordingObserver{}
	g, err := NewStateGraph[testState]("cached-approval").
		AddNodeWithCache("approve", approvalNode(counter), CachePolicy{TTL: time.Hour}).
		AddNode("done", visit("done", nil)).
		AddEdge("approve", "done").
		SetEntryPoint("approve").
		Compile(WithCheckpointer(NewMemorySaver()), WithObserver(obs), withClock(newFakeClock().Now))
	require.NoError(t, err)

	first, err := g.Invoke(ctx, testState{}, WithThreadID("c"))
	require.NoError(t, err)
	require.True(t, first.IsInterrupted())
	assert.Equal(t, 0, g.cache.len())

	second, err := g.Invoke(ctx, testState{}, WithThreadID("c"), WithResume("yes"))
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, second.Status)
	assert.Equal(t, []string{"approved:yes", "done"}, second.State.Trace)
	assert.Equal(t, 2, counter.get("approve"))
	// the resumed output depends on the resume value and stays out of the cache
	assert.Equal(t, 0, g.cache.len())

	third, err := g.Invoke(ctx, testState{}, WithThreadID("d"))
	require.NoError(t, err)
	assert.True(t, third.IsInterrupted())
	assert.Equal(t, 3, counter.get("approve"))
	assert.Equal(t, int32(0), obs.hits.Load())
}

func TestNodeCache_SkipsInterruptOutputs(t *testing.T) {
	t.Parallel()

	c := newNodeCache[testState](newFakeClock().Now)
	calls := 0
	fn := func() (NodeOutput[testState], error) {
		calls++
		return Interrupt[testState]("wait"), nil
	}

	for i := 0; i < 2; i++ {
		out, hit, err := c.do("k", time.Minute, fn)
		require.NoError(t, err)
		assert.False(t, hit)
		cmd, ok := out.Command()
		require.True(t, ok)
		assert.Equal(t, CommandInterrupt, cmd.Kind)
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.len())
}

func TestNodeCache_StoreKeepsLiveEntry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := newNodeCache[testState](clock.Now)
	first := StateOutput(testState{Count: 1})
	second := StateOutput(testState{Count: 2})

	assert.Equal(t, first, c.store("k", first, time.Minute))
	assert.Equal(t, first, c.store("k", second, time.Minute))

	clock.Advance(time.Minute)
	_, ok := c.lookup("k")
	assert.False(t, ok)
	assert.Equal(t, second, c.store("k", second, time.Minute))
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	a := cacheKey("node", []byte(`{"x":1}`))
	b := cacheKey("node", []byte(`{"x":1}`))
	c := cacheKey("other", []byte(`{"x":1}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "node:")
}

func TestObserver_RunStatuses(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	g, err := linearGraph("a", "b").InterruptBefore("b").
		Compile(WithCheckpointer(NewMemorySaver()), WithObserver(obs))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{}, WithThreadID("o"))
	require.NoError(t, err)
	_, err = g.Invoke(context.Background(), testState{}, WithThreadID("o"))
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{RunStatusInterrupted, RunStatusComplete}, obs.statuses)
	assert.Equal(t, int32(1), obs.interrupts.Load())
	// input, a, interrupt before b, b
	assert.Equal(t, int32(4), obs.checkpoints.Load())
}

func TestMultiObserver_FansOut(t *testing.T) {
	t.Parallel()

	a, b := &recordingObserver{}, &recordingObserver{}
	g, err := linearGraph("x", "y").InterruptBefore("y").
		Compile(WithCheckpointer(NewMemorySaver()), WithObserver(MultiObserver(a, nil, b)))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), testState{}, WithThreadID("m"))
	require.NoError(t, err)

	for _, obs := range []*recordingObserver{a, b} {
		assert.Equal(t, int32(1), obs.interrupts.Load())
		assert.Equal(t, int32(3), obs.checkpoints.Load())
		obs.mu.Lock()
		assert.Equal(t, []string{RunStatusInterrupted}, obs.statuses)
		obs.mu.Unlock()
	}
}
