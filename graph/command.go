package graph

import "fmt"

// CommandKind enumerates the control-flow instructions a node can issue.
type CommandKind int

const (
	// CommandGoto jumps to a node, bypassing edges.
	CommandGoto CommandKind = iota + 1
	// CommandGotoWithUpdate merges a delta, then jumps to a node.
	CommandGotoWithUpdate
	// CommandUpdate merges a delta and keeps ordinary edge routing.
	CommandUpdate
	// CommandEnd terminates the run.
	CommandEnd
	// CommandSend runs each target in order with its own payload as input.
	CommandSend
	// CommandResume carries a caller value into the node that resumes a paused run.
	CommandResume
	// CommandInterrupt pauses the run without applying any update.
	CommandInterrupt
)

func (k CommandKind) String() string {
	switch k {
	case CommandGoto:
		return "goto"
	case CommandGotoWithUpdate:
		return "goto_with_update"
	case CommandUpdate:
		return "update"
	case CommandEnd:
		return "end"
	case CommandSend:
		return "send"
	case CommandResume:
		return "resume"
	case CommandInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// SendTarget is one fan-out destination of a Send command.
type SendTarget[S any] struct {
	Node    string
	Payload S
}

// Command is an explicit control-flow instruction. Only the fields relevant to
// Kind are set.
type Command[S any] struct {
	Kind    CommandKind
	Node    string
	Update  S
	Targets []SendTarget[S]
	Value   any
}

// NodeOutput is what a node returns: either a state update or a Command.
type NodeOutput[S any] struct {
	state S
	cmd   *Command[S]
}

// StateOutput wraps an ordinary state update that is merged and routed by edges.
func StateOutput[S any](s S) NodeOutput[S] {
	return NodeOutput[S]{state: s}
}

// CommandOutput wraps a Command.
func CommandOutput[S any](cmd Command[S]) NodeOutput[S] {
	return NodeOutput[S]{cmd: &cmd}
}

// Goto routes directly to node.
func Goto[S any](node string) NodeOutput[S] {
	return CommandOutput(Command[S]{Kind: CommandGoto, Node: node})
}

// GotoWithUpdate merges delta and routes directly to node.
func GotoWithUpdate[S any](node string, delta S) NodeOutput[S] {
	return CommandOutput(Command[S]{Kind: CommandGotoWithUpdate, Node: node, Update: delta})
}

// Update merges delta and continues along the node's edges.
func Update[S any](delta S) NodeOutput[S] {
	return CommandOutput(Command[S]{Kind: CommandUpdate, Update: delta})
}

// EndRun finishes the run immediately.
func EndRun[S any]() NodeOutput[S] {
	return CommandOutput(Command[S]{Kind: CommandEnd})
}

// Send fans out to targets. They run sequentially in list order.
func Send[S any](targets ...SendTarget[S]) NodeOutput[S] {
	return CommandOutput(Command[S]{Kind: CommandSend, Targets: targets})
}

// Interrupt pauses the run. The node's own update is discarded and the node
// runs again when the thread is resumed; ResumeValue then reports the value
// supplied with WithResume.
func Interrupt[S any](value any) NodeOutput[S] {
	return CommandOutput(Command[S]{Kind: CommandInterrupt, Value: value})
}

// IsCommand reports whether the output carries a Command.
func (o NodeOutput[S]) IsCommand() bool { return o.cmd != nil }

// State returns the state update of a non-command output.
func (o NodeOutput[S]) State() S { return o.state }

// Command returns the command, if any.
func (o NodeOutput[S]) Command() (Command[S], bool) {
	if o.cmd == nil {
		return Command[S]{}, false
	}
	return *o.cmd, true
}
