package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// DefaultDetectionTime bounds the AMD collaborator when detection_time is unset.
const DefaultDetectionTime = 5 * time.Second

// AMDExecutor implements the answering-machine-detection node. The detector
// gets config.detection_time to answer; if it does not, the node fails open
// to the human port. Blocking the call indefinitely on a slow detector is
// worse than occasionally treating a machine as a person.
type AMDExecutor struct {
	detector Detector
}

// NewAMDExecutor creates an amd executor.
func NewAMDExecutor(detector Detector) *AMDExecutor {
	return &AMDExecutor{detector: detector}
}

func (e *AMDExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.AMDConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "amd: unexpected config type")
	}

	detectionTime := DefaultDetectionTime
	if c.DetectionTime != "" {
		if d, err := time.ParseDuration(c.DetectionTime); err == nil {
			detectionTime = d
		}
	}

	detectCtx, cancel := context.WithTimeout(ctx, detectionTime)
	defer cancel()

	res, err := e.detector.Detect(detectCtx, in.CallID)
	if err != nil {
		// Session abandonment propagates; only the detection budget fails open.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &Outcome{
				Port:        schema.PortHuman,
				Diagnostics: map[string]any{"fail_open": true, "detection_time": detectionTime.String()},
			}, nil
		}
		return nil, wrapCollaboratorError("amd", err)
	}

	port := schema.PortHuman
	if res.Machine {
		port = schema.PortMachine
	}
	return &Outcome{
		Port:        port,
		Variables:   map[string]any{"amd_result": port},
		Diagnostics: map[string]any{"confidence": res.Confidence},
	}, nil
}

var _ Executor = (*AMDExecutor)(nil)
