// Package mock provides a scriptable stand-in for llm.Provider.
//
// Tests set the response fields up front, hand the mock to the code under
// test, and afterwards inspect CompleteCalls to see what was sent. A queue
// of responses lets a single mock serve multi-call flows (perception, then
// reformulation) with distinct replies per call.
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello!"},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Safe for concurrent
// calls once configured; configure it before handing it out.
type Provider struct {
	mu sync.Mutex

	// CompleteResponses is an ordered queue; each Complete call consumes one.
	// When the queue is exhausted (or nil), CompleteResponse is returned.
	CompleteResponses []*llm.CompletionResponse

	// CompleteResponse is the fallback reply. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, when non-nil, is returned instead of any response.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the next queued response, falling
// back to CompleteResponse.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.CompleteResponses) > 0 {
		resp := p.CompleteResponses[0]
		p.CompleteResponses = p.CompleteResponses[1:]
		return resp, nil
	}
	return p.CompleteResponse, nil
}
