package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NodeState is the completion state of a Node.
type NodeState int32

const (
	// StatePending means the node has not been processed yet.
	StatePending NodeState = iota

	// StateDone means the node was downloaded (and extracted, if not a leaf)
	// or failed. Err reports which.
	StateDone

	// StateDuplicate means the URL had already been dispatched earlier in the
	// same run. Duplicates carry neither a document nor an error.
	StateDuplicate

	// StateInterrupted means the run was cancelled or the crawler closed
	// before the node could be processed.
	StateInterrupted
)

// String returns a lower-case name for the state.
func (s NodeState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateDuplicate:
		return "duplicate"
	case StateInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("NodeState(%d)", int32(s))
	}
}

// Node is the traversal state of one URL reached at one depth.
//
// A node is completed exactly once by one of complete, completeWithChildren,
// fail, markDuplicate or markInterrupted. Completing a node twice is a
// programming error and panics. The result fields are written before the
// done channel is closed, so they are safe to read by anyone who observed
// completion through Wait.
type Node struct {
	url      string
	depth    int
	maxDepth int

	completed atomic.Bool
	done      chan struct{}

	state    NodeState
	document *Document
	children []*Node
	err      error
}

func newNode(rawURL string, depth, maxDepth int) *Node {
	return &Node{
		url:      rawURL,
		depth:    depth,
		maxDepth: maxDepth,
		done:     make(chan struct{}),
	}
}

// URL returns the node's URL.
func (n *Node) URL() string { return n.url }

// Depth returns the node's depth. The root is at depth 1.
func (n *Node) Depth() int { return n.depth }

// MaxDepth returns the depth limit of the run the node belongs to.
func (n *Node) MaxDepth() int { return n.maxDepth }

// IsLeaf reports whether the node is at the depth limit and will not be
// extracted.
func (n *Node) IsLeaf() bool { return n.depth >= n.maxDepth }

// State returns the current state without blocking.
func (n *Node) State() NodeState {
	select {
	case <-n.done:
		return n.state
	default:
		return StatePending
	}
}

// Document returns the downloaded document. Only valid after completion.
func (n *Node) Document() *Document { return n.document }

// Children returns the nodes discovered in this node's document. Empty for
// leaves, failures, duplicates and interrupted nodes. Only valid after
// completion.
func (n *Node) Children() []*Node { return n.children }

// Err returns the transport or extraction failure. Only valid after
// completion.
func (n *Node) Err() error { return n.err }

// Wait blocks until the node is completed or ctx is done, whichever comes
// first, and returns the resulting state. Cancellation of ctx is reported as
// StateInterrupted without modifying the node. Wait may be called any number
// of times from any goroutine.
func (n *Node) Wait(ctx context.Context) NodeState {
	select {
	case <-n.done:
		return n.state
	case <-ctx.Done():
		// Completion may have raced with cancellation; prefer the real state.
		select {
		case <-n.done:
			return n.state
		default:
			return StateInterrupted
		}
	}
}

func (n *Node) complete(doc *Document) {
	n.finish(StateDone, func() {
		n.document = doc
	})
}

func (n *Node) completeWithChildren(doc *Document, children []*Node) {
	n.finish(StateDone, func() {
		n.document = doc
		n.children = children
	})
}

func (n *Node) fail(err error) {
	n.finish(StateDone, func() {
		n.err = err
	})
}

func (n *Node) markDuplicate() {
	n.finish(StateDuplicate, nil)
}

func (n *Node) markInterrupted() {
	n.finish(StateInterrupted, nil)
}

func (n *Node) finish(state NodeState, set func()) {
	if !n.completed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("crawler: node %q (depth %d) completed twice", n.url, n.depth))
	}
	if set != nil {
		set()
	}
	n.state = state
	close(n.done)
}

// String implements fmt.Stringer for logging.
func (n *Node) String() string {
	return fmt.Sprintf("Node{url=%q depth=%d/%d state=%s}", n.url, n.depth, n.maxDepth, n.State())
}
