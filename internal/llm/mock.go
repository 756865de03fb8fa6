package llm

import (
	"context"
)

// MockClient is a mock model client for testing. Responses and Errors
// are consumed per call in order; when exhausted, the last entry repeats.
type MockClient struct {
	Responses   []string
	Errors      []error
	CallCount   int
	LastRequest *Request
}

// NewMockClient creates a mock client that always returns response.
func NewMockClient(response string) *MockClient {
	return &MockClient{Responses: []string{response}}
}

// NewMockClientSeq creates a mock client that returns the given
// per-call outcomes in order. A nil error with an empty response at the
// same index yields an empty completion.
func NewMockClientSeq(responses []string, errs []error) *MockClient {
	return &MockClient{Responses: responses, Errors: errs}
}

func pick[T any](items []T, call int) (v T) {
	if len(items) == 0 {
		return v
	}
	if call >= len(items) {
		return items[len(items)-1]
	}
	return items[call]
}

// Complete returns the next queued response or error.
func (c *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	call := c.CallCount
	c.CallCount++
	c.LastRequest = &req

	if err := pick(c.Errors, call); err != nil {
		return nil, err
	}

	return &Response{
		Content: pick(c.Responses, call),
		Model:   "mock-model",
	}, nil
}

// Provider returns the mock provider.
func (c *MockClient) Provider() Provider {
	return "mock"
}

// Model returns the mock model name.
func (c *MockClient) Model() string {
	return "mock-model"
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)
