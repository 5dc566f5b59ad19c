package graph

import "time"

// Run outcomes reported to Observer.OnRunEnd.
const (
	RunStatusComplete    = "complete"
	RunStatusInterrupted = "interrupted"
	RunStatusError       = "error"
)

// Observer receives execution events. Implementations must be safe for
// concurrent use; one compiled graph may serve many runs at once.
type Observer interface {
	OnRunStart(graph string)
	OnRunEnd(graph, status string, duration time.Duration)
	OnNodeEnd(graph, node string, duration time.Duration, err error)
	OnCacheHit(graph, node string)
	OnCacheMiss(graph, node string)
	OnCheckpoint(graph string, source CheckpointSource)
	OnInterrupt(graph, node string, phase InterruptPhase)
}

// MultiObserver fans every event out to observers in order. Nil entries are
// skipped.
func MultiObserver(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) OnRunStart(graph string) {
	for _, o := range m {
		o.OnRunStart(graph)
	}
}

func (m multiObserver) OnRunEnd(graph, status string, duration time.Duration) {
	for _, o := range m {
		o.OnRunEnd(graph, status, duration)
	}
}

func (m multiObserver) OnNodeEnd(graph, node string, duration time.Duration, err error) {
	for _, o := range m {
		o.OnNodeEnd(graph, node, duration, err)
	}
}

func (m multiObserver) OnCacheHit(graph, node string) {
	for _, o := range m {
		o.OnCacheHit(graph, node)
	}
}

func (m multiObserver) OnCacheMiss(graph, node string) {
	for _, o := range m {
		o.OnCacheMiss(graph, node)
	}
}

func (m multiObserver) OnCheckpoint(graph string, source CheckpointSource) {
	for _, o := range m {
		o.OnCheckpoint(graph, source)
	}
}

func (m multiObserver) OnInterrupt(graph, node string, phase InterruptPhase) {
	for _, o := range m {
		o.OnInterrupt(graph, node, phase)
	}
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnRunStart(string)                              {}
func (NopObserver) OnRunEnd(string, string, time.Duration)         {}
func (NopObserver) OnNodeEnd(string, string, time.Duration, error) {}
func (NopObserver) OnCacheHit(string, string)                      {}
func (NopObserver) OnCacheMiss(string, string)                     {}
func (NopObserver) OnCheckpoint(string, CheckpointSource)          {}
func (NopObserver) OnInterrupt(string, string, InterruptPhase)     {}
