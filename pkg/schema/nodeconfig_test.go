package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNodeConfigTyped(t *testing.T) {
	cfg, err := DecodeNodeConfig(NodeTypeSmartTriage,
		json.RawMessage(`{"sentiment_threshold": 0.35, "language": "en-US"}`))
	require.NoError(t, err)

	triage, ok := cfg.(*TriageConfig)
	require.True(t, ok)
	assert.Equal(t, 0.35, triage.SentimentThreshold)
	assert.Equal(t, "en-US", triage.Language)
}

func TestDecodeNodeConfigRejectsUnknownFields(t *testing.T) {
	_, err := DecodeNodeConfig(NodeTypeSmartTriage,
		json.RawMessage(`{"sentiment_treshold": 0.35}`))
	require.Error(t, err, "editor typos must surface at load time")
}

func TestDecodeNodeConfigEmptyUsesZeroValue(t *testing.T) {
	cfg, err := DecodeNodeConfig(NodeTypeAMD, nil)
	require.NoError(t, err)

	amd, ok := cfg.(*AMDConfig)
	require.True(t, ok)
	assert.Empty(t, amd.DetectionTime)
}

func TestDecodeNodeConfigRetryPolicy(t *testing.T) {
	cfg, err := DecodeNodeConfig(NodeTypeAuthentication, json.RawMessage(
		`{"method": "otp", "retry": {"max": 3, "backoff": "exponential", "delay": "100ms"}}`))
	require.NoError(t, err)

	auth, ok := cfg.(*AuthConfig)
	require.True(t, ok)
	require.NotNil(t, auth.Retry)
	assert.Equal(t, 3, auth.Retry.Max)
	assert.Equal(t, "exponential", auth.Retry.Backoff)
}

func TestDefaultPortsPerType(t *testing.T) {
	tests := []struct {
		nodeType NodeType
		ports    []string
	}{
		{NodeTypeSmartTriage, []string{PortLowSentiment, PortNormal}},
		{NodeTypeAuthentication, []string{PortSuccess, PortFailure}},
		{NodeTypeAPIFetch, []string{PortSuccess, PortError}},
		{NodeTypeAMD, []string{PortHuman, PortMachine}},
		{NodeTypeBooleanLogic, []string{PortYes, PortNo}},
		{NodeTypeMenu, []string{PortTimeout, PortInvalid}},
		{NodeTypeForm, []string{PortComplete, PortAbandoned}},
		{NodeTypeTransfer, []string{PortConnected, PortBusy, PortFailed}},
		{NodeTypeEnd, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ports, DefaultPorts(tt.nodeType), string(tt.nodeType))
	}
}
