package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidGraph is wrapped by every construction error returned from Compile.
	ErrInvalidGraph = errors.New("invalid graph")
	// ErrDuplicateNode is returned when a node name is registered twice.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrInvalidNodeName is returned for empty or reserved node names.
	ErrInvalidNodeName = errors.New("invalid node name")
	// ErrNodeNotFound is returned when routing resolves to an unregistered node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrRecursionLimit is returned when a run executes more nodes than the configured ceiling.
	ErrRecursionLimit = errors.New("recursion limit exceeded")
	// ErrCheckpointerRequired is returned when interrupts or state access are used without a checkpointer.
	ErrCheckpointerRequired = errors.New("checkpointer required")
	// ErrThreadNotFound is returned when no checkpoint exists for a thread.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrInvalidThread is returned for an empty thread id.
	ErrInvalidThread = errors.New("invalid thread id")
	// ErrInvalidCommand is returned when a node emits a command that cannot be applied.
	ErrInvalidCommand = errors.New("invalid command")
)

// ValidationError collects every structural problem found by Compile.
type ValidationError struct {
	Graph string
	Errs  []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("graph %q validation failed: %s", e.Graph, strings.Join(msgs, "; "))
}

// Unwrap exposes ErrInvalidGraph and every individual problem to errors.Is / errors.As.
func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrInvalidGraph}, e.Errs...)
}

// NodeError reports a failure returned by a node's Process method.
type NodeError struct {
	Node string
	Step int
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
