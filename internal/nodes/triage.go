package nodes

import (
	"context"
	"time"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// TriageExecutor implements the smart_triage node: it asks the NLU
// collaborator for a sentiment score and routes against the configured
// threshold. A score exactly at the threshold resolves to the normal port —
// the executor, not the engine, owns the tie-break.
type TriageExecutor struct {
	nlu SentimentAnalyzer
}

// NewTriageExecutor creates a smart_triage executor.
func NewTriageExecutor(nlu SentimentAnalyzer) *TriageExecutor {
	return &TriageExecutor{nlu: nlu}
}

func (e *TriageExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.TriageConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "smart_triage: unexpected config type")
	}

	start := time.Now()
	res, err := e.nlu.Analyze(ctx, AnalyzeRequest{
		CallID:   in.CallID,
		Language: c.Language,
		Vars:     in.Vars,
	})
	if err != nil {
		return nil, wrapCollaboratorError("smart_triage", err)
	}

	port := schema.PortNormal
	if res.Sentiment < c.SentimentThreshold {
		port = schema.PortLowSentiment
	}

	return &Outcome{
		Port: port,
		Variables: map[string]any{
			"sentiment_score": res.Sentiment,
			"intent":          res.Intent,
		},
		Diagnostics: map[string]any{
			"confidence": res.Confidence,
			"latency_ms": time.Since(start).Milliseconds(),
		},
	}, nil
}

var _ Executor = (*TriageExecutor)(nil)
