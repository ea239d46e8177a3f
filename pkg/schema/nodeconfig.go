package schema

import (
	"bytes"
	"encoding/json"
)

// Node config blobs arrive as untyped JSON from the visual editor. Each node
// type has its own strongly-typed variant, decoded and validated once at load
// time so executors never see malformed config.

// TriageConfig configures a smart_triage node.
type TriageConfig struct {
	SentimentThreshold float64      `json:"sentiment_threshold"`
	Language           string       `json:"language,omitempty"`
	Timeout            string       `json:"timeout,omitempty"`
	Retry              *RetryPolicy `json:"retry,omitempty"`
}

// AuthConfig configures an authentication node.
type AuthConfig struct {
	Method      string       `json:"method"` // otp | voice_biometric
	MaxAttempts int          `json:"max_attempts,omitempty"`
	OTPLength   int          `json:"otp_length,omitempty"`
	Timeout     string       `json:"timeout,omitempty"`
	Retry       *RetryPolicy `json:"retry,omitempty"`
}

// APIFetchConfig configures an api_fetch node.
type APIFetchConfig struct {
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method,omitempty"` // default GET
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
	Timeout     string            `json:"timeout,omitempty"`
	RetryOnFail bool              `json:"retry_on_fail,omitempty"`
	MaxRetries  int               `json:"max_retries,omitempty"`
	Capture     string            `json:"capture,omitempty"` // jq expression over the response body
}

// AMDConfig configures an answering-machine-detection node.
type AMDConfig struct {
	DetectionTime string `json:"detection_time,omitempty"` // detector budget; fail-open to human on expiry
}

// BooleanLogicConfig configures a boolean_logic node.
type BooleanLogicConfig struct {
	Field      string `json:"field,omitempty"`      // session variable, truthiness check
	Expression string `json:"expression,omitempty"` // full expression; overrides field
	Engine     string `json:"engine,omitempty"`     // expr (default) | cel
}

// MenuConfig configures a DTMF menu node.
type MenuConfig struct {
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices"`               // digits; each is an output port
	Timeout     string   `json:"timeout,omitempty"`     // per-collect timeout
	MaxAttempts int      `json:"max_attempts,omitempty"`
}

// FormField is a single field collected by a form node.
type FormField struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	Kind   string `json:"kind,omitempty"` // digits | speech (default digits)
}

// FormConfig configures a form node.
type FormConfig struct {
	Fields  []FormField `json:"fields"`
	Timeout string      `json:"timeout,omitempty"`
}

// TransferConfig configures a transfer node.
type TransferConfig struct {
	Target  string `json:"target"` // queue, extension, or E.164 number
	Timeout string `json:"timeout,omitempty"`
}

// EndConfig configures an end node.
type EndConfig struct {
	Disposition string `json:"disposition,omitempty"` // reporting label, e.g. "resolved"
}

// DefaultPorts returns the declared output ports for a node type when the
// editor omits them. An end node has none.
func DefaultPorts(t NodeType) []string {
	switch t {
	case NodeTypeSmartTriage:
		return []string{PortLowSentiment, PortNormal}
	case NodeTypeAuthentication:
		return []string{PortSuccess, PortFailure}
	case NodeTypeAPIFetch:
		return []string{PortSuccess, PortError}
	case NodeTypeAMD:
		return []string{PortHuman, PortMachine}
	case NodeTypeBooleanLogic:
		return []string{PortYes, PortNo}
	case NodeTypeMenu:
		return []string{PortTimeout, PortInvalid}
	case NodeTypeForm:
		return []string{PortComplete, PortAbandoned}
	case NodeTypeTransfer:
		return []string{PortConnected, PortBusy, PortFailed}
	case NodeTypeEnd:
		return nil
	}
	return nil
}

// DecodeNodeConfig decodes a raw config blob into the typed variant for the
// node type. Unknown fields are rejected so editor typos surface at load time.
func DecodeNodeConfig(t NodeType, raw json.RawMessage) (any, error) {
	var target any
	switch t {
	case NodeTypeSmartTriage:
		target = &TriageConfig{}
	case NodeTypeAuthentication:
		target = &AuthConfig{}
	case NodeTypeAPIFetch:
		target = &APIFetchConfig{}
	case NodeTypeAMD:
		target = &AMDConfig{}
	case NodeTypeBooleanLogic:
		target = &BooleanLogicConfig{}
	case NodeTypeMenu:
		target = &MenuConfig{}
	case NodeTypeForm:
		target = &FormConfig{}
	case NodeTypeTransfer:
		target = &TransferConfig{}
	case NodeTypeEnd:
		target = &EndConfig{}
	default:
		return nil, NewErrorf(ErrCodeValidation, "unknown node type: %s", t)
	}

	if len(raw) == 0 {
		return target, nil
	}
	if err := strictUnmarshal(raw, target); err != nil {
		return nil, NewErrorf(ErrCodeConfigInvalid, "decode %s config: %s", t, err.Error()).WithCause(err)
	}
	return target, nil
}

func strictUnmarshal(raw json.RawMessage, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
