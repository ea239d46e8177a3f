package nodes

import (
	"context"
	"time"
)

// Collaborator contracts. Each external service is consumed through a narrow
// interface returning a result or error within the caller-supplied deadline;
// the engine never depends on a collaborator's transport details.

// AnalyzeRequest carries the conversation context to the NLU service.
type AnalyzeRequest struct {
	CallID   string
	Language string
	Vars     map[string]any
}

// AnalyzeResult is the sentiment/intent classification for a call.
type AnalyzeResult struct {
	Sentiment  float64 // 0 (hostile) .. 1 (positive)
	Intent     string
	Confidence float64
}

// SentimentAnalyzer is the NLU collaborator used by smart_triage nodes.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error)
}

// VerifyRequest describes one verification attempt.
type VerifyRequest struct {
	CallID  string
	Method  string // otp | voice_biometric
	Attempt int    // 1-based
}

// VerifyResult reports whether the caller passed verification.
// Verified=false with a nil error is a normal authentication failure, not a
// collaborator fault.
type VerifyResult struct {
	Verified bool
	Reason   string
}

// Verifier is the OTP / voice-biometric collaborator used by authentication nodes.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// Detection classifies who answered the call.
type Detection struct {
	Machine    bool
	Confidence float64
}

// Detector is the answering-machine-detection collaborator.
type Detector interface {
	Detect(ctx context.Context, callID string) (Detection, error)
}

// CollectRequest asks the telephony control plane to play a prompt and
// collect caller input.
type CollectRequest struct {
	CallID    string
	Prompt    string
	Kind      string // digits | speech
	MaxDigits int
	Timeout   time.Duration
}

// TransferRequest asks the telephony control plane to bridge the call away.
type TransferRequest struct {
	CallID string
	Target string
}

// TransferStatus is the terminal state of a transfer attempt.
type TransferStatus string

const (
	TransferConnected TransferStatus = "connected"
	TransferBusy      TransferStatus = "busy"
	TransferFailed    TransferStatus = "failed"

	// TransferPending means the control plane accepted the bridge and will
	// report the final disposition asynchronously.
	TransferPending TransferStatus = "pending"
)

// Telephony is the control plane that plays prompts, collects DTMF/speech,
// and bridges calls. Collect returns the empty string when the caller
// provided no input before the request timeout.
type Telephony interface {
	Collect(ctx context.Context, req CollectRequest) (string, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferStatus, error)
}
