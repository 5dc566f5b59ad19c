package graph

import (
	"encoding/json"
	"fmt"
)

// State is the constraint every graph state type satisfies.
//
// Merge folds a partial update into the receiver and returns the result. The
// executor never mutates a state in place; nodes receive copies and every step
// goes through Merge. State values are checkpointed as JSON, so the type must
// round-trip through encoding/json. Use value types: UpdateState merges into the
// zero value when a thread has no checkpoint yet.
type State[S any] interface {
	Merge(update S) S
}

func encodeState[S any](s S) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

func decodeState[S any](data json.RawMessage) (S, error) {
	var s S
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

func encodeSends[S any](targets []SendTarget[S]) ([]PendingSend, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	out := make([]PendingSend, len(targets))
	for i, t := range targets {
		data, err := encodeState(t.Payload)
		if err != nil {
			return nil, fmt.Errorf("send target %s: %w", t.Node, err)
		}
		out[i] = PendingSend{Node: t.Node, Payload: data}
	}
	return out, nil
}

func decodeSends[S any](pending []PendingSend) ([]SendTarget[S], error) {
	if len(pending) == 0 {
		return nil, nil
	}
	out := make([]SendTarget[S], len(pending))
	for i, ps := range pending {
		payload, err := decodeState[S](ps.Payload)
		if err != nil {
			return nil, fmt.Errorf("send target %s: %w", ps.Node, err)
		}
		out[i] = SendTarget[S]{Node: ps.Node, Payload: payload}
	}
	return out, nil
}
