package nodes

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

var menuConfig = &schema.MenuConfig{
	Prompt:      "press 1 for sales, 2 for support",
	Choices:     []string{"1", "2"},
	MaxAttempts: 3,
}

func TestMenuMatchesChoice(t *testing.T) {
	tel := &scriptTelephony{inputs: []string{"2"}}
	exec := NewMenuExecutor(tel)

	out, err := exec.Execute(context.Background(), menuConfig, Input{CallID: "c-1"})
	require.NoError(t, err)

	assert.Equal(t, "2", out.Port)
	assert.Equal(t, "2", out.Variables["menu_choice"])
	require.Len(t, tel.collects, 1)
	assert.Equal(t, 1, tel.collects[0].MaxDigits)
}

func TestMenuRetriesUnrecognizedDigitThenInvalid(t *testing.T) {
	tel := &scriptTelephony{inputs: []string{"9", "9", "9"}}
	exec := NewMenuExecutor(tel)

	out, err := exec.Execute(context.Background(), menuConfig, Input{CallID: "c-1"})
	require.NoError(t, err)

	assert.Equal(t, schema.PortInvalid, out.Port)
	assert.Len(t, tel.collects, 3)
}

func TestMenuSilenceResolvesTimeout(t *testing.T) {
	tel := &scriptTelephony{} // every collect returns ""
	exec := NewMenuExecutor(tel)

	out, err := exec.Execute(context.Background(), menuConfig, Input{CallID: "c-1"})
	require.NoError(t, err)

	assert.Equal(t, schema.PortTimeout, out.Port)
	assert.Len(t, tel.collects, 3)
}

func TestMenuRecoversAfterOneBadDigit(t *testing.T) {
	tel := &scriptTelephony{inputs: []string{"7", "1"}}
	exec := NewMenuExecutor(tel)

	out, err := exec.Execute(context.Background(), menuConfig, Input{CallID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "1", out.Port)
}

func TestFormCapturesAllFields(t *testing.T) {
	tel := &scriptTelephony{inputs: []string{"12345", "6789"}}
	exec := NewFormExecutor(tel)

	out, err := exec.Execute(context.Background(), &schema.FormConfig{
		Fields: []schema.FormField{
			{Name: "account", Prompt: "enter account number"},
			{Name: "pin", Prompt: "enter pin"},
		},
	}, Input{CallID: "c-1"})
	require.NoError(t, err)

	assert.Equal(t, schema.PortComplete, out.Port)
	assert.Equal(t, "12345", out.Variables["account"])
	assert.Equal(t, "6789", out.Variables["pin"])
}

func TestFormAbandonedKeepsPartialCapture(t *testing.T) {
	tel := &scriptTelephony{inputs: []string{"12345"}} // silence on second field
	exec := NewFormExecutor(tel)

	out, err := exec.Execute(context.Background(), &schema.FormConfig{
		Fields: []schema.FormField{
			{Name: "account", Prompt: "enter account number"},
			{Name: "pin", Prompt: "enter pin"},
		},
	}, Input{CallID: "c-1"})
	require.NoError(t, err)

	assert.Equal(t, schema.PortAbandoned, out.Port)
	assert.Equal(t, "12345", out.Variables["account"])
	assert.Equal(t, "pin", out.Diagnostics["abandoned_at"])
}

func TestTransferStatuses(t *testing.T) {
	tests := []struct {
		status   TransferStatus
		wantPort string
	}{
		{TransferConnected, schema.PortConnected},
		{TransferBusy, schema.PortBusy},
		{TransferFailed, schema.PortFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			exec := NewTransferExecutor(&scriptTelephony{transfer: tt.status})
			out, err := exec.Execute(context.Background(),
				&schema.TransferConfig{Target: "queue:support"}, Input{CallID: "c-1"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, out.Port)
			assert.Equal(t, "queue:support", out.Variables["transfer_target"])
		})
	}
}

func TestTransferPendingParksSession(t *testing.T) {
	exec := NewTransferExecutor(&scriptTelephony{transfer: TransferPending})

	out, err := exec.Execute(context.Background(),
		&schema.TransferConfig{Target: "queue:support"}, Input{CallID: "c-1"})
	require.NoError(t, err)

	assert.True(t, out.Wait)
	assert.Empty(t, out.Port)
}

func TestRegisterBuiltinsCoversAllNodeTypes(t *testing.T) {
	catalog := NewCatalog()
	err := RegisterBuiltins(catalog, Collaborators{
		NLU:        &fakeAnalyzer{},
		Verifier:   &scriptVerifier{results: []VerifyResult{{Verified: true}}},
		Detector:   &fakeDetector{},
		Telephony:  &scriptTelephony{},
		HTTPClient: &http.Client{Timeout: time.Second},
	}, nil)
	require.NoError(t, err)

	for _, nt := range []schema.NodeType{
		schema.NodeTypeSmartTriage, schema.NodeTypeAuthentication,
		schema.NodeTypeAPIFetch, schema.NodeTypeAMD, schema.NodeTypeBooleanLogic,
		schema.NodeTypeMenu, schema.NodeTypeForm, schema.NodeTypeTransfer,
		schema.NodeTypeEnd,
	} {
		assert.True(t, catalog.Has(nt), "missing contract for %s", nt)
	}
	assert.Len(t, catalog.Types(), 9)
}
