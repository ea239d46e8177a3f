package schema

import "encoding/json"

// GraphDocument is the JSON-serializable call-flow graph as authored by the
// visual editor and persisted by the surrounding CRUD layer. The engine only
// consumes this shape through flow.Load, which rejects anything violating the
// graph invariants.
type GraphDocument struct {
	ID          string         `json:"id"`
	Version     int            `json:"version"`
	Name        string         `json:"name,omitempty"`
	StartNodeID string         `json:"start_node_id"`
	Nodes       []NodeSpec     `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NodeSpec describes a single node in a call-flow graph.
type NodeSpec struct {
	ID     string          `json:"id"`
	Type   NodeType        `json:"type"`
	Label  string          `json:"label,omitempty"`
	Config json.RawMessage `json:"config,omitempty"` // type-specific config, decoded at load time
	Ports  []string        `json:"ports,omitempty"`  // declared output ports; defaults per node type
}

// Edge routes a node's output port to the next node.
type Edge struct {
	Source string `json:"source"`
	Port   string `json:"port"`
	Target string `json:"target"`
}

// NodeType enumerates the kinds of nodes in a call flow.
type NodeType string

const (
	NodeTypeSmartTriage    NodeType = "smart_triage"
	NodeTypeAuthentication NodeType = "authentication"
	NodeTypeAPIFetch       NodeType = "api_fetch"
	NodeTypeAMD            NodeType = "amd"
	NodeTypeBooleanLogic   NodeType = "boolean_logic"
	NodeTypeMenu           NodeType = "menu"
	NodeTypeForm           NodeType = "form"
	NodeTypeTransfer       NodeType = "transfer"
	NodeTypeEnd            NodeType = "end"
)

// Well-known output ports.
const (
	PortNormal       = "normal"
	PortLowSentiment = "low-sentiment"
	PortSuccess      = "success"
	PortFailure      = "failure"
	PortError        = "error"
	PortHuman        = "human"
	PortMachine      = "machine"
	PortYes          = "yes"
	PortNo           = "no"
	PortTimeout      = "timeout"
	PortInvalid      = "invalid"
	PortComplete     = "complete"
	PortAbandoned    = "abandoned"
	PortConnected    = "connected"
	PortBusy         = "busy"
	PortFailed       = "failed"
)

// RetryPolicy configures retry behavior for a node's external call.
type RetryPolicy struct {
	Max      int    `json:"max"`                 // max retry attempts after the first try
	Backoff  string `json:"backoff,omitempty"`   // none | constant | linear | exponential (default: exponential)
	Delay    string `json:"delay,omitempty"`     // initial delay (e.g. "250ms")
	MaxDelay string `json:"max_delay,omitempty"` // cap on computed delay
}
