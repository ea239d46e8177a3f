package flow

import (
	"time"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Node is a validated, load-frozen node: spec fields plus the decoded typed
// config and the effective per-node execution deadline.
type Node struct {
	ID      string
	Type    schema.NodeType
	Label   string
	Ports   []string
	Config any // *schema.TriageConfig, *schema.AuthConfig, ...
	// Timeout is the whole-step deadline; 0 falls back to the contract or
	// engine default. Per-operation budgets (detection windows, per-attempt
	// and per-collect timeouts) stay in Config and apply inside the executor.
	Timeout time.Duration
}

// HasPort reports whether the node declares the given output port.
func (n *Node) HasPort(port string) bool {
	for _, p := range n.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// Terminal reports whether the node ends the call flow.
func (n *Node) Terminal() bool {
	return n.Type == schema.NodeTypeEnd
}

type edgeKey struct {
	nodeID string
	port   string
}

// Definition is the immutable, validated runtime form of a call-flow graph.
// Built once by Load, then shared read-only across every concurrent session
// that references it. Sessions reference a definition by ID+Version, never by
// aliasing a live editor document.
type Definition struct {
	id          string
	version     int
	name        string
	startNodeID string
	nodes       map[string]*Node
	edges       map[edgeKey]string
}

// ID returns the definition's identity.
func (d *Definition) ID() string { return d.id }

// Version returns the definition's version.
func (d *Definition) Version() int { return d.version }

// Name returns the human-readable workflow name.
func (d *Definition) Name() string { return d.name }

// StartNodeID returns the designated entry node.
func (d *Definition) StartNodeID() string { return d.startNodeID }

// Node looks up a node by ID.
func (d *Definition) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// Next resolves the edge (nodeID, port) to the target node ID.
func (d *Definition) Next(nodeID, port string) (string, bool) {
	target, ok := d.edges[edgeKey{nodeID, port}]
	return target, ok
}

// Len returns the number of nodes.
func (d *Definition) Len() int { return len(d.nodes) }

// NodeIDs returns the IDs of all nodes. The slice is freshly allocated; the
// definition itself stays immutable.
func (d *Definition) NodeIDs() []string {
	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}
	return ids
}
