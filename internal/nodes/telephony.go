package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/kylasweb/ivrflow/pkg/schema"
)

const (
	defaultCollectTimeout  = 10 * time.Second
	defaultMenuMaxAttempts = 3
)

// MenuExecutor implements the menu node: play a prompt, collect one DTMF
// digit, route on the choice. Unrecognized digits retry up to max_attempts
// before the invalid port; silence retries before the timeout port.
type MenuExecutor struct {
	tel Telephony
}

// NewMenuExecutor creates a menu executor.
func NewMenuExecutor(tel Telephony) *MenuExecutor {
	return &MenuExecutor{tel: tel}
}

func (e *MenuExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.MenuConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "menu: unexpected config type")
	}

	timeout := defaultCollectTimeout
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err == nil {
			timeout = d
		}
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMenuMaxAttempts
	}

	sawInput := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		digits, err := e.tel.Collect(ctx, CollectRequest{
			CallID:    in.CallID,
			Prompt:    c.Prompt,
			Kind:      "digits",
			MaxDigits: 1,
			Timeout:   timeout,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue // caller silent this round; re-prompt
			}
			return nil, wrapCollaboratorError("menu", err)
		}

		if digits == "" {
			continue
		}
		sawInput = true

		for _, choice := range c.Choices {
			if digits == choice {
				return &Outcome{
					Port:      choice,
					Variables: map[string]any{"menu_choice": choice},
				}, nil
			}
		}
	}

	if sawInput {
		return &Outcome{Port: schema.PortInvalid}, nil
	}
	return &Outcome{Port: schema.PortTimeout}, nil
}

// FormExecutor implements the form node: collect a sequence of fields from
// the caller. All fields captured resolves to complete; caller silence on
// any field resolves to abandoned.
type FormExecutor struct {
	tel Telephony
}

// NewFormExecutor creates a form executor.
func NewFormExecutor(tel Telephony) *FormExecutor {
	return &FormExecutor{tel: tel}
}

func (e *FormExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.FormConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "form: unexpected config type")
	}

	timeout := defaultCollectTimeout
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err == nil {
			timeout = d
		}
	}

	captured := make(map[string]any, len(c.Fields))
	for _, field := range c.Fields {
		kind := field.Kind
		if kind == "" {
			kind = "digits"
		}

		value, err := e.tel.Collect(ctx, CollectRequest{
			CallID:  in.CallID,
			Prompt:  field.Prompt,
			Kind:    kind,
			Timeout: timeout,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return &Outcome{
					Port:        schema.PortAbandoned,
					Variables:   captured,
					Diagnostics: map[string]any{"abandoned_at": field.Name},
				}, nil
			}
			return nil, wrapCollaboratorError("form", err)
		}
		if value == "" {
			return &Outcome{
				Port:        schema.PortAbandoned,
				Variables:   captured,
				Diagnostics: map[string]any{"abandoned_at": field.Name},
			}, nil
		}
		captured[field.Name] = value
	}

	return &Outcome{Port: schema.PortComplete, Variables: captured}, nil
}

// TransferExecutor implements the transfer node: bridge the call to the
// configured target and route on the bridge result.
type TransferExecutor struct {
	tel Telephony
}

// NewTransferExecutor creates a transfer executor.
func NewTransferExecutor(tel Telephony) *TransferExecutor {
	return &TransferExecutor{tel: tel}
}

func (e *TransferExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.TransferConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "transfer: unexpected config type")
	}

	status, err := e.tel.Transfer(ctx, TransferRequest{CallID: in.CallID, Target: c.Target})
	if err != nil {
		return nil, wrapCollaboratorError("transfer", err)
	}

	vars := map[string]any{"transfer_target": c.Target}

	var port string
	switch status {
	case TransferPending:
		// Disposition arrives later via the control plane's callback; the
		// session parks in waiting_external until then.
		return &Outcome{Wait: true, Variables: vars}, nil
	case TransferConnected:
		port = schema.PortConnected
	case TransferBusy:
		port = schema.PortBusy
	default:
		port = schema.PortFailed
	}

	return &Outcome{Port: port, Variables: vars}, nil
}

var (
	_ Executor = (*MenuExecutor)(nil)
	_ Executor = (*FormExecutor)(nil)
	_ Executor = (*TransferExecutor)(nil)
)
