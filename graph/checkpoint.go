package graph

import (
	"context"
	"encoding/json"
	"time"
)

// CheckpointSource tells why a checkpoint was written.
type CheckpointSource string

const (
	SourceInput     CheckpointSource = "input"
	SourceLoop      CheckpointSource = "loop"
	SourceInterrupt CheckpointSource = "interrupt"
	SourceUpdate    CheckpointSource = "update"
)

// CheckpointConfig identifies one independent, resumable run.
type CheckpointConfig struct {
	ThreadID string `json:"thread_id" yaml:"thread_id"`
}

// InterruptRecord is the persisted form of a pending interrupt.
type InterruptRecord struct {
	Node  string          `json:"node"`
	Phase InterruptPhase  `json:"phase"`
	Value json.RawMessage `json:"value,omitempty"`
}

// PendingSend is a Send target that has not run yet, with its encoded payload.
type PendingSend struct {
	Node    string          `json:"node"`
	Payload json.RawMessage `json:"payload"`
}

// Checkpoint is a persisted (state, next node) snapshot of one thread. Sends
// holds the rest of an in-flight fan-out; its first entry is NextNode.
type Checkpoint struct {
	ID        string            `json:"id"`
	ThreadID  string            `json:"thread_id"`
	Step      int               `json:"step"`
	State     json.RawMessage   `json:"state"`
	NextNode  string            `json:"next_node,omitempty"`
	Source    CheckpointSource  `json:"source"`
	Interrupt *InterruptRecord  `json:"interrupt,omitempty"`
	Sends     []PendingSend     `json:"sends,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Pending reports whether the thread still has work to resume. A pause after
// the final node stays pending until the thread is resumed once more.
func (c *Checkpoint) Pending() bool {
	if c.Interrupt != nil {
		return true
	}
	return c.NextNode != "" && c.NextNode != END
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	if c.State != nil {
		cp.State = append(json.RawMessage(nil), c.State...)
	}
	if c.Interrupt != nil {
		intr := *c.Interrupt
		if intr.Value != nil {
			intr.Value = append(json.RawMessage(nil), intr.Value...)
		}
		cp.Interrupt = &intr
	}
	if c.Sends != nil {
		cp.Sends = make([]PendingSend, len(c.Sends))
		for i, ps := range c.Sends {
			cp.Sends[i] = PendingSend{Node: ps.Node, Payload: append(json.RawMessage(nil), ps.Payload...)}
		}
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Checkpointer persists checkpoints per thread. Implementations serialize
// concurrent writes to the same thread.
type Checkpointer interface {
	// Put appends a checkpoint to the thread's history.
	Put(ctx context.Context, cfg CheckpointConfig, cp *Checkpoint) error
	// Get returns the latest checkpoint, or nil when the thread has none.
	Get(ctx context.Context, cfg CheckpointConfig) (*Checkpoint, error)
	// List returns the thread's checkpoints, oldest first.
	List(ctx context.Context, cfg CheckpointConfig) ([]*Checkpoint, error)
}

// ThreadStore is a Checkpointer that can also enumerate and drop threads.
type ThreadStore interface {
	Checkpointer
	ListThreads(ctx context.Context) ([]string, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// StateSnapshot is a decoded checkpoint.
type StateSnapshot[S any] struct {
	State        S
	Next         string
	Step         int
	CheckpointID string
	Source       CheckpointSource
	Interrupt    *InterruptRecord
	CreatedAt    time.Time
}

func snapshotFrom[S any](cp *Checkpoint) (*StateSnapshot[S], error) {
	state, err := decodeState[S](cp.State)
	if err != nil {
		return nil, err
	}
	return &StateSnapshot[S]{
		State:        state,
		Next:         cp.NextNode,
		Step:         cp.Step,
		CheckpointID: cp.ID,
		Source:       cp.Source,
		Interrupt:    cp.Interrupt,
		CreatedAt:    cp.CreatedAt,
	}, nil
}
