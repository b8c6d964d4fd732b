package llmclient

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient replays a scripted sequence of Responses, one per call, for
// deterministic AgentRunner tests — grounded on the teacher's MessagesClient
// test-double pattern (features/model/anthropic's interface seam exists for
// exactly this purpose).
type FakeClient struct {
	mu        sync.Mutex
	responses []Response
	calls     []*Request
}

// NewFakeClient builds a FakeClient that returns responses in order, one per
// Complete call.
func NewFakeClient(responses ...Response) *FakeClient {
	return &FakeClient{responses: responses}
}

// Complete returns the next scripted response, recording the request for
// later assertions.
func (f *FakeClient) Complete(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("llmclient: fake client exhausted its scripted responses")
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return &next, nil
}

// Calls returns every Request the fake received, in order.
func (f *FakeClient) Calls() []*Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Request, len(f.calls))
	copy(out, f.calls)
	return out
}
