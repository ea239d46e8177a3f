package nodes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Input is the data provided to a node executor at execution time.
// Vars is a read-only view of the session's variables; executors report
// updates through the Outcome, never by mutating Vars.
type Input struct {
	SessionID string
	CallID    string
	Vars      map[string]any
}

// Outcome is the result of executing one node: the output port taken plus
// optional variable updates and diagnostic metadata. It carries no reference
// to the next node — edge resolution belongs to the engine.
type Outcome struct {
	Port        string         `json:"port"`
	Variables   map[string]any `json:"variables,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`

	// Wait means the node started an asynchronous operation and the port will
	// arrive later through an external result. Port must be empty.
	Wait bool `json:"wait,omitempty"`
}

// Executor is the polymorphism seam every node type implements. cfg is the
// typed config decoded at load time (e.g. *schema.TriageConfig).
// Implementations must respect ctx cancellation and must resolve to exactly
// one declared port — the engine never breaks ties.
type Executor interface {
	Execute(ctx context.Context, cfg any, in Input) (*Outcome, error)
}

// Collaborator classes, used to cap concurrent outbound calls per downstream
// service type.
const (
	CollabNLU       = "nlu"
	CollabVerifier  = "verifier"
	CollabHTTP      = "http"
	CollabAMD       = "amd"
	CollabTelephony = "telephony"
)

// Contract binds a node type to its executor, declared ports, default
// deadline, and collaborator class.
type Contract struct {
	Type           schema.NodeType
	Ports          []string
	Executor       Executor
	DefaultTimeout time.Duration
	Collaborator   string // "" = no external call
}

// Catalog is the static node-type registry. Populated at startup, read-only
// afterwards; shared by every session.
type Catalog struct {
	mu        sync.RWMutex
	contracts map[schema.NodeType]Contract
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		contracts: make(map[schema.NodeType]Contract),
	}
}

// Register adds a contract to the catalog. Returns error on duplicate type.
func (c *Catalog) Register(contract Contract) error {
	if contract.Type == "" {
		return schema.NewError(schema.ErrCodeValidation, "contract node type is empty")
	}
	if contract.Executor == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "contract %s has no executor", contract.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.contracts[contract.Type]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "node type %q already registered", contract.Type)
	}
	c.contracts[contract.Type] = contract
	return nil
}

// Get retrieves the contract for a node type.
func (c *Catalog) Get(t schema.NodeType) (Contract, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	contract, ok := c.contracts[t]
	if !ok {
		return Contract{}, schema.NewErrorf(schema.ErrCodeNotFound, "node type %q not registered", t)
	}
	return contract, nil
}

// Has checks if a node type is registered.
func (c *Catalog) Has(t schema.NodeType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.contracts[t]
	return ok
}

// Types returns all registered node types, sorted.
func (c *Catalog) Types() []schema.NodeType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]schema.NodeType, 0, len(c.contracts))
	for t := range c.contracts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
