package llm

import (
	"context"
	"time"
)

const providerStub = "stub"

// StubClient returns fixed answers after a short simulated delay. It is used
// for local development without model credentials.
type StubClient struct {
	delay time.Duration
}

// NewStubClient creates a stub that waits delay before answering.
func NewStubClient(delay time.Duration) *StubClient {
	return &StubClient{delay: delay}
}

// Complete returns "no weight found" for extraction and an empty allocation
// for cost models.
func (c *StubClient) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		observe(providerStub, req.Purpose, ctx.Err())
		return "", &Error{Provider: providerStub, Purpose: req.Purpose, Err: ctx.Err()}
	}

	observe(providerStub, req.Purpose, nil)
	switch req.Purpose {
	case PurposeExtractWeight:
		return `{"unit_weight_grams": null}`, nil
	case PurposeCostModel:
		return `[]`, nil
	default:
		return "", nil
	}
}
