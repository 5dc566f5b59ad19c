package graph

import (
	"context"
	"fmt"
)

// StreamMode selects what a streamed run emits per completed node.
type StreamMode string

const (
	// StreamValues emits the full state after the step's merge.
	StreamValues StreamMode = "values"
	// StreamUpdates emits the state as it was before the step's merge.
	StreamUpdates StreamMode = "updates"
	// StreamMessages is emitted like StreamValues; consumers filter.
	StreamMessages StreamMode = "messages"
	// StreamDebug is emitted like StreamValues; consumers filter.
	StreamDebug StreamMode = "debug"
	// StreamCustom emits the payloads a node pushed with EmitCustom.
	StreamCustom StreamMode = "custom"
)

const streamBuffer = 16

// ParseStreamMode converts a mode name.
func ParseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(s); m {
	case StreamValues, StreamUpdates, StreamMessages, StreamDebug, StreamCustom:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream mode: %q", s)
	}
}

// GraphEvent is one observation of a completed node.
type GraphEvent[S any] struct {
	Node    string
	State   S
	Payload any
}

// MultiGraphEvent tags an event with the mode that produced it.
type MultiGraphEvent[S any] struct {
	Mode  StreamMode
	Event GraphEvent[S]
}

// StreamItem is either an event or the terminal error of the run.
type StreamItem[S any] struct {
	MultiGraphEvent[S]
	Err error
}

// Stream runs the graph and emits one item per completed node. It is
// StreamModes with a single mode.
func (g *CompiledGraph[S]) Stream(ctx context.Context, input S, mode StreamMode, opts ...RunOption) <-chan StreamItem[S] {
	return g.StreamModes(ctx, input, []StreamMode{mode}, opts...)
}

// StreamModes runs the graph once and emits, per completed node, one item for
// every requested mode in the order given. StreamCustom yields one item per
// payload pushed by the node, so a node that pushes nothing yields none. A
// failed run ends with an item carrying the error. The channel is closed when
// the run returns; cancelling ctx stops it.
func (g *CompiledGraph[S]) StreamModes(ctx context.Context, input S, modes []StreamMode, opts ...RunOption) <-chan StreamItem[S] {
	out := make(chan StreamItem[S], streamBuffer)

	go func() {
		defer close(out)

		send := func(item StreamItem[S]) error {
			select {
			case out <- item:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(modes) == 0 {
			_ = send(StreamItem[S]{Err: fmt.Errorf("no stream mode requested")})
			return
		}
		for _, m := range modes {
			if _, err := ParseStreamMode(string(m)); err != nil {
				_ = send(StreamItem[S]{Err: err})
				return
			}
		}

		emit := func(node string, before, after S, custom []any) error {
			for _, mode := range modes {
				switch mode {
				case StreamUpdates:
					if err := send(event(mode, node, before, nil)); err != nil {
						return err
					}
				case StreamCustom:
					for _, payload := range custom {
						if err := send(event(mode, node, after, payload)); err != nil {
							return err
						}
					}
				default:
					if err := send(event(mode, node, after, nil)); err != nil {
						return err
					}
				}
			}
			return nil
		}

		if _, err := g.run(ctx, input, opts, emit); err != nil {
			_ = send(StreamItem[S]{Err: err})
		}
	}()

	return out
}

func event[S any](mode StreamMode, node string, state S, payload any) StreamItem[S] {
	return StreamItem[S]{MultiGraphEvent: MultiGraphEvent[S]{
		Mode:  mode,
		Event: GraphEvent[S]{Node: node, State: state, Payload: payload},
	}}
}
