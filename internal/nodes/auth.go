package nodes

import (
	"context"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

// DefaultMaxAuthAttempts bounds OTP retries when the node config leaves
// max_attempts unset.
const DefaultMaxAuthAttempts = 3

// AuthExecutor implements the authentication node. It dispatches to the OTP
// or voice-biometric verifier per config. Exhausting OTP attempts is a normal
// outcome on the failure port, not an error — the workflow author decides
// what happens next.
type AuthExecutor struct {
	verifier Verifier
}

// NewAuthExecutor creates an authentication executor.
func NewAuthExecutor(verifier Verifier) *AuthExecutor {
	return &AuthExecutor{verifier: verifier}
}

func (e *AuthExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.AuthConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "authentication: unexpected config type")
	}

	maxAttempts := 1
	if c.Method == "otp" {
		maxAttempts = c.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = DefaultMaxAuthAttempts
		}
	}

	var lastReason string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := e.verifier.Verify(ctx, VerifyRequest{
			CallID:  in.CallID,
			Method:  c.Method,
			Attempt: attempt,
		})
		if err != nil {
			return nil, wrapCollaboratorError("authentication", err)
		}

		if res.Verified {
			return &Outcome{
				Port: schema.PortSuccess,
				Variables: map[string]any{
					"auth_method":   c.Method,
					"auth_attempts": attempt,
				},
			}, nil
		}
		lastReason = res.Reason
	}

	return &Outcome{
		Port: schema.PortFailure,
		Variables: map[string]any{
			"auth_method":   c.Method,
			"auth_attempts": maxAttempts,
		},
		Diagnostics: map[string]any{
			"reason": lastReason,
		},
	}, nil
}

var _ Executor = (*AuthExecutor)(nil)
