package flow

import (
	"fmt"
	"net/url"
	"time"

	"github.com/itchyny/gojq"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Loader turns editor-authored graph documents into immutable Definitions.
// Validation happens once here; sessions never see an unvalidated graph.
type Loader struct {
	validator *graphValidator
}

// NewLoader creates a Loader with the graph JSON Schema pre-compiled.
func NewLoader() (*Loader, error) {
	v, err := newGraphValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{validator: v}, nil
}

// Load validates a raw graph document and returns the frozen Definition.
// The pipeline runs in two stages: structural (JSON Schema), then a single
// semantic pass that collects every violation — port/edge consistency,
// unreachable nodes, missing terminal paths, per-type config decoding — so
// the editor can surface all problems at once.
func (l *Loader) Load(raw []byte) (*Definition, error) {
	result := l.validator.validateStructural(raw)
	if !result.Valid() {
		return nil, result.ToError()
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}

	def, semResult := buildDefinition(doc)
	result.Merge(semResult)
	if !result.Valid() {
		return nil, result.ToError()
	}

	return def, nil
}

// buildDefinition performs the semantic pass: node/config validation, edge
// table construction, reachability analysis. The returned Definition is only
// meaningful when the result carries no errors.
func buildDefinition(doc *schema.GraphDocument) (*Definition, *schema.ValidationResult) {
	result := &schema.ValidationResult{}

	def := &Definition{
		id:          doc.ID,
		version:     doc.Version,
		name:        doc.Name,
		startNodeID: doc.StartNodeID,
		nodes:       make(map[string]*Node, len(doc.Nodes)),
		edges:       make(map[edgeKey]string, len(doc.Edges)),
	}

	endCount := 0
	for i := range doc.Nodes {
		spec := &doc.Nodes[i]
		path := fmt.Sprintf("nodes[%d]", i)

		if _, exists := def.nodes[spec.ID]; exists {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", spec.ID))
			continue
		}

		cfg, err := schema.DecodeNodeConfig(spec.Type, spec.Config)
		if err != nil {
			result.AddError(path+".config", schema.ErrCodeConfigInvalid, err.Error())
			continue
		}

		node := &Node{
			ID:     spec.ID,
			Type:   spec.Type,
			Label:  spec.Label,
			Ports:  effectivePorts(spec, cfg),
			Config: cfg,
		}
		node.Timeout = validateNodeConfig(node, path, cfg, result)
		def.nodes[spec.ID] = node

		if node.Terminal() {
			endCount++
		}
	}

	if endCount == 0 {
		result.AddError("nodes", schema.ErrCodeValidation, "graph has no end node")
	}

	if _, ok := def.nodes[doc.StartNodeID]; !ok {
		result.AddError("start_node_id", schema.ErrCodeValidation,
			fmt.Sprintf("start node %q does not exist", doc.StartNodeID))
	}

	validateEdges(doc, def, result)

	// Graph-level checks only make sense on a structurally sound edge table.
	if result.Valid() {
		validateReachability(doc, def, result)
	}

	return def, result
}

// effectivePorts resolves a node's declared output ports: explicit ports from
// the editor win, otherwise per-type defaults. Menu defaults include the
// configured digit choices.
func effectivePorts(spec *schema.NodeSpec, cfg any) []string {
	if len(spec.Ports) > 0 {
		return spec.Ports
	}
	ports := schema.DefaultPorts(spec.Type)
	if mc, ok := cfg.(*schema.MenuConfig); ok {
		combined := make([]string, 0, len(mc.Choices)+len(ports))
		combined = append(combined, mc.Choices...)
		combined = append(combined, ports...)
		return combined
	}
	return ports
}

// validateEdges builds the edge table, rejecting dangling endpoints,
// undeclared source ports, duplicate (source, port) pairs, and outgoing
// edges from terminal nodes.
func validateEdges(doc *schema.GraphDocument, def *Definition, result *schema.ValidationResult) {
	for i, e := range doc.Edges {
		path := fmt.Sprintf("edges[%d]", i)

		src, srcOK := def.nodes[e.Source]
		if !srcOK {
			result.AddError(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("edge source %q does not exist", e.Source))
		}
		if _, ok := def.nodes[e.Target]; !ok {
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("edge target %q does not exist", e.Target))
		}
		if !srcOK {
			continue
		}

		if src.Terminal() {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("end node %q cannot have outgoing edges", e.Source))
			continue
		}
		if !src.HasPort(e.Port) {
			result.AddError(path+".port", schema.ErrCodePortNotDeclared,
				fmt.Sprintf("node %q does not declare port %q", e.Source, e.Port))
			continue
		}

		key := edgeKey{e.Source, e.Port}
		if _, dup := def.edges[key]; dup {
			result.AddError(path, schema.ErrCodeConflict,
				fmt.Sprintf("duplicate edge for node %q port %q", e.Source, e.Port))
			continue
		}
		def.edges[key] = e.Target
	}

	// A declared port with no outgoing edge is a routing gap the author should
	// close; at runtime an outcome on that port fails the session.
	for _, node := range def.nodes {
		if node.Terminal() {
			continue
		}
		for _, port := range node.Ports {
			if _, ok := def.edges[edgeKey{node.ID, port}]; !ok {
				result.AddWarning(fmt.Sprintf("nodes[%s].ports[%s]", node.ID, port),
					schema.ErrCodeValidation,
					fmt.Sprintf("port %q of node %q has no outgoing edge", port, node.ID))
			}
		}
	}
}

// validateReachability checks that every node is reachable from the start
// node and that a terminal end node is reachable from every node.
func validateReachability(doc *schema.GraphDocument, def *Definition, result *schema.ValidationResult) {
	// Forward BFS from the start node over the edge table.
	forward := make(map[string]bool, len(def.nodes))
	queue := []string{doc.StartNodeID}
	forward[doc.StartNodeID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		node := def.nodes[id]
		for _, port := range node.Ports {
			if target, ok := def.edges[edgeKey{id, port}]; ok && !forward[target] {
				forward[target] = true
				queue = append(queue, target)
			}
		}
	}
	for id := range def.nodes {
		if !forward[id] {
			result.AddError(fmt.Sprintf("nodes[%s]", id), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from start node %q", id, doc.StartNodeID))
		}
	}

	// Reverse BFS from every end node: nodes outside this set are dead ends
	// that can never terminate.
	reverse := make(map[string][]string, len(def.nodes))
	for key, target := range def.edges {
		reverse[target] = append(reverse[target], key.nodeID)
	}
	reachesEnd := make(map[string]bool, len(def.nodes))
	for id, node := range def.nodes {
		if node.Terminal() {
			reachesEnd[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, pred := range reverse[id] {
			if !reachesEnd[pred] {
				reachesEnd[pred] = true
				queue = append(queue, pred)
			}
		}
	}
	for id := range def.nodes {
		if forward[id] && !reachesEnd[id] {
			result.AddError(fmt.Sprintf("nodes[%s]", id), schema.ErrCodeValidation,
				fmt.Sprintf("node %q has no path to an end node", id))
		}
	}
}

// validateNodeConfig applies per-type semantic rules and returns the node's
// whole-step deadline (0 = contract or engine default). Budgets that bound a
// single operation inside the executor are validated here but never returned
// as the step deadline: amd detection_time, the api_fetch per-attempt
// timeout, and the menu/form per-collect timeout all have to expire inside a
// still-live step, or the executor's fail-open and retry policies would be
// cut off by their own budget.
func validateNodeConfig(node *Node, path string, cfg any, result *schema.ValidationResult) time.Duration {
	switch c := cfg.(type) {
	case *schema.TriageConfig:
		if c.SentimentThreshold < 0 || c.SentimentThreshold > 1 {
			result.AddError(path+".config.sentiment_threshold", schema.ErrCodeConfigInvalid,
				fmt.Sprintf("sentiment_threshold %v outside [0, 1]", c.SentimentThreshold))
		}
		return parseTimeout(c.Timeout, path+".config.timeout", result)

	case *schema.AuthConfig:
		switch c.Method {
		case "otp", "voice_biometric":
		default:
			result.AddError(path+".config.method", schema.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown auth method %q", c.Method))
		}
		if c.MaxAttempts < 0 {
			result.AddError(path+".config.max_attempts", schema.ErrCodeConfigInvalid,
				"max_attempts must be >= 0")
		}
		return parseTimeout(c.Timeout, path+".config.timeout", result)

	case *schema.APIFetchConfig:
		if c.Endpoint == "" {
			result.AddError(path+".config.endpoint", schema.ErrCodeConfigInvalid,
				"endpoint is required")
		} else if u, err := url.ParseRequestURI(c.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			result.AddError(path+".config.endpoint", schema.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid endpoint %q", c.Endpoint))
		}
		switch c.Method {
		case "", "GET", "POST", "PUT", "PATCH", "DELETE":
		default:
			result.AddError(path+".config.method", schema.ErrCodeConfigInvalid,
				fmt.Sprintf("unsupported HTTP method %q", c.Method))
		}
		if c.MaxRetries < 0 {
			result.AddError(path+".config.max_retries", schema.ErrCodeConfigInvalid,
				"max_retries must be >= 0")
		}
		if c.Capture != "" {
			if _, err := gojq.Parse(c.Capture); err != nil {
				result.AddError(path+".config.capture", schema.ErrCodeConfigInvalid,
					fmt.Sprintf("invalid capture expression: %s", err.Error()))
			}
		}
		// Per-attempt budget; the executor owns the retry loop around it.
		parseTimeout(c.Timeout, path+".config.timeout", result)
		return 0

	case *schema.AMDConfig:
		// Detection budget; expiry fails open inside the executor.
		parseTimeout(c.DetectionTime, path+".config.detection_time", result)
		return 0

	case *schema.BooleanLogicConfig:
		if c.Field == "" && c.Expression == "" {
			result.AddError(path+".config", schema.ErrCodeConfigInvalid,
				"boolean_logic requires field or expression")
		}
		switch c.Engine {
		case "", "expr", "cel":
		default:
			result.AddError(path+".config.engine", schema.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown expression engine %q", c.Engine))
		}
		return 0

	case *schema.MenuConfig:
		if c.Prompt == "" {
			result.AddError(path+".config.prompt", schema.ErrCodeConfigInvalid, "prompt is required")
		}
		if len(c.Choices) == 0 {
			result.AddError(path+".config.choices", schema.ErrCodeConfigInvalid, "choices must not be empty")
		}
		for i, choice := range c.Choices {
			if !validDTMF(choice) {
				result.AddError(fmt.Sprintf("%s.config.choices[%d]", path, i), schema.ErrCodeConfigInvalid,
					fmt.Sprintf("choice %q is not a DTMF digit", choice))
			}
		}
		// Per-collect budget; the executor re-prompts up to max_attempts.
		parseTimeout(c.Timeout, path+".config.timeout", result)
		return 0

	case *schema.FormConfig:
		if len(c.Fields) == 0 {
			result.AddError(path+".config.fields", schema.ErrCodeConfigInvalid, "fields must not be empty")
		}
		seen := make(map[string]bool, len(c.Fields))
		for i, f := range c.Fields {
			if f.Name == "" {
				result.AddError(fmt.Sprintf("%s.config.fields[%d].name", path, i), schema.ErrCodeConfigInvalid,
					"field name is required")
				continue
			}
			if seen[f.Name] {
				result.AddError(fmt.Sprintf("%s.config.fields[%d].name", path, i), schema.ErrCodeConfigInvalid,
					fmt.Sprintf("duplicate field name %q", f.Name))
			}
			seen[f.Name] = true
		}
		// Per-collect budget, applied to every field prompt in turn.
		parseTimeout(c.Timeout, path+".config.timeout", result)
		return 0

	case *schema.TransferConfig:
		if c.Target == "" {
			result.AddError(path+".config.target", schema.ErrCodeConfigInvalid, "target is required")
		}
		return parseTimeout(c.Timeout, path+".config.timeout", result)
	}

	return 0
}

// parseTimeout validates a duration config field, reporting violations at the
// given field path.
func parseTimeout(s, path string, result *schema.ValidationResult) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.AddError(path, schema.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid duration %q", s))
		return 0
	}
	if d <= 0 {
		result.AddError(path, schema.ErrCodeConfigInvalid,
			fmt.Sprintf("duration %q must be positive", s))
		return 0
	}
	return d
}

func validDTMF(s string) bool {
	if len(s) != 1 {
		return false
	}
	c := s[0]
	return (c >= '0' && c <= '9') || c == '*' || c == '#'
}
