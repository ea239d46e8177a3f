package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kylasweb/ivrflow/internal/nodes"
)

// simulator drives the collaborator interfaces from a terminal so a call
// flow can be walked interactively before it ships. Prompts go to stdout,
// caller input comes from the reader line by line.
type simulator struct {
	in *bufio.Scanner
}

func newSimulator(in *bufio.Scanner) *simulator {
	return &simulator{in: in}
}

func (s *simulator) read(prompt string) string {
	fmt.Printf("%s > ", prompt)
	if !s.in.Scan() {
		return ""
	}
	return strings.TrimSpace(s.in.Text())
}

func (s *simulator) Analyze(ctx context.Context, req nodes.AnalyzeRequest) (nodes.AnalyzeResult, error) {
	line := s.read("sentiment 0..1 (enter=0.8)")
	score := 0.8
	if line != "" {
		if v, err := strconv.ParseFloat(line, 64); err == nil {
			score = v
		}
	}
	return nodes.AnalyzeResult{Sentiment: score, Intent: "simulated", Confidence: 1}, nil
}

func (s *simulator) Verify(ctx context.Context, req nodes.VerifyRequest) (nodes.VerifyResult, error) {
	line := s.read(fmt.Sprintf("verify attempt %d via %s, pass? [y/n]", req.Attempt, req.Method))
	if strings.HasPrefix(strings.ToLower(line), "y") {
		return nodes.VerifyResult{Verified: true}, nil
	}
	return nodes.VerifyResult{Verified: false, Reason: "declined in simulator"}, nil
}

func (s *simulator) Detect(ctx context.Context, callID string) (nodes.Detection, error) {
	line := s.read("answered by machine? [y/n]")
	return nodes.Detection{
		Machine:    strings.HasPrefix(strings.ToLower(line), "y"),
		Confidence: 1,
	}, nil
}

func (s *simulator) Collect(ctx context.Context, req nodes.CollectRequest) (string, error) {
	return s.read(req.Prompt), nil
}

func (s *simulator) Transfer(ctx context.Context, req nodes.TransferRequest) (nodes.TransferStatus, error) {
	line := s.read(fmt.Sprintf("transfer to %s: result? [connected/busy/failed]", req.Target))
	switch strings.ToLower(line) {
	case "", "connected", "c":
		return nodes.TransferConnected, nil
	case "busy", "b":
		return nodes.TransferBusy, nil
	default:
		return nodes.TransferFailed, nil
	}
}
