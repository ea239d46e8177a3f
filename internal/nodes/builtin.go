package nodes

import (
	"net/http"
	"time"

	"github.com/kylasweb/ivrflow/internal/expressions"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

// Collaborators bundles the external services the builtin executors need.
// Passed in explicitly so tests can substitute doubles; no process-wide state.
type Collaborators struct {
	NLU        SentimentAnalyzer
	Verifier   Verifier
	Detector   Detector
	Telephony  Telephony
	HTTPClient *http.Client
}

// RegisterBuiltins registers the standard node contracts into the catalog.
// cel may be nil to disable the CEL engine for boolean_logic nodes.
func RegisterBuiltins(c *Catalog, deps Collaborators, cel *expressions.CELEngine) error {
	contracts := []Contract{
		{
			Type:           schema.NodeTypeSmartTriage,
			Ports:          schema.DefaultPorts(schema.NodeTypeSmartTriage),
			Executor:       NewTriageExecutor(deps.NLU),
			DefaultTimeout: 10 * time.Second,
			Collaborator:   CollabNLU,
		},
		{
			Type:           schema.NodeTypeAuthentication,
			Ports:          schema.DefaultPorts(schema.NodeTypeAuthentication),
			Executor:       NewAuthExecutor(deps.Verifier),
			DefaultTimeout: 2 * time.Minute,
			Collaborator:   CollabVerifier,
		},
		{
			Type:           schema.NodeTypeAPIFetch,
			Ports:          schema.DefaultPorts(schema.NodeTypeAPIFetch),
			Executor:       NewAPIFetchExecutor(deps.HTTPClient, expressions.NewGoJQEngine()),
			DefaultTimeout: 30 * time.Second,
			Collaborator:   CollabHTTP,
		},
		{
			Type:           schema.NodeTypeAMD,
			Ports:          schema.DefaultPorts(schema.NodeTypeAMD),
			Executor:       NewAMDExecutor(deps.Detector),
			DefaultTimeout: 15 * time.Second,
			Collaborator:   CollabAMD,
		},
		{
			Type:     schema.NodeTypeBooleanLogic,
			Ports:    schema.DefaultPorts(schema.NodeTypeBooleanLogic),
			Executor: NewBooleanLogicExecutor(expressions.NewExprEngine(), cel),
			// pure evaluation, no collaborator
			DefaultTimeout: 5 * time.Second,
		},
		{
			Type:           schema.NodeTypeMenu,
			Ports:          schema.DefaultPorts(schema.NodeTypeMenu),
			Executor:       NewMenuExecutor(deps.Telephony),
			DefaultTimeout: 2 * time.Minute,
			Collaborator:   CollabTelephony,
		},
		{
			Type:           schema.NodeTypeForm,
			Ports:          schema.DefaultPorts(schema.NodeTypeForm),
			Executor:       NewFormExecutor(deps.Telephony),
			DefaultTimeout: 5 * time.Minute,
			Collaborator:   CollabTelephony,
		},
		{
			Type:           schema.NodeTypeTransfer,
			Ports:          schema.DefaultPorts(schema.NodeTypeTransfer),
			Executor:       NewTransferExecutor(deps.Telephony),
			DefaultTimeout: time.Minute,
			Collaborator:   CollabTelephony,
		},
		{
			Type:     schema.NodeTypeEnd,
			Executor: NewEndExecutor(),
		},
	}

	for _, contract := range contracts {
		if err := c.Register(contract); err != nil {
			return err
		}
	}
	return nil
}
