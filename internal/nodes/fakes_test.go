package nodes

import (
	"context"
	"sync"
	"time"
)

// Hand-rolled collaborator fakes shared by the executor tests.

type fakeAnalyzer struct {
	res AnalyzeResult
	err error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ AnalyzeRequest) (AnalyzeResult, error) {
	return f.res, f.err
}

// scriptVerifier replays a fixed sequence of results, one per attempt.
type scriptVerifier struct {
	mu      sync.Mutex
	results []VerifyResult
	err     error
	calls   int
}

func (f *scriptVerifier) Verify(_ context.Context, _ VerifyRequest) (VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return VerifyResult{}, f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

type fakeDetector struct {
	det   Detection
	err   error
	delay time.Duration
}

func (f *fakeDetector) Detect(ctx context.Context, _ string) (Detection, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Detection{}, ctx.Err()
		}
	}
	return f.det, f.err
}

// scriptTelephony replays collect inputs in order and records requests.
type scriptTelephony struct {
	mu          sync.Mutex
	inputs      []string
	collectErr  error
	transfer    TransferStatus
	transferErr error
	collects    []CollectRequest
}

func (f *scriptTelephony) Collect(_ context.Context, req CollectRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collects = append(f.collects, req)
	if f.collectErr != nil {
		return "", f.collectErr
	}
	if len(f.inputs) == 0 {
		return "", nil
	}
	next := f.inputs[0]
	f.inputs = f.inputs[1:]
	return next, nil
}

func (f *scriptTelephony) Transfer(_ context.Context, _ TransferRequest) (TransferStatus, error) {
	return f.transfer, f.transferErr
}
