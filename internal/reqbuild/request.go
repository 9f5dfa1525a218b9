// Package reqbuild translates a populated conversation state into a
// provider-neutral chat request: layered user/assistant framing, grouped and
// individual context blocks, history, and the terminal prompt. Provider
// strategies in internal/dispatch serialize the result, honouring or dropping
// the cache annotations as the backend allows.
package reqbuild

import (
	"encoding/json"
	"fmt"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message of the built request. CacheHint marks the
// message as a cache breakpoint: everything up to and including it is stable
// and may be cached by a caching-capable backend.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CacheHint bool   `json:"cache_hint,omitempty"`
}

// Request is the provider-neutral chat request.
type Request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`

	// Thinking requests an extended-thinking block from backends that
	// support it.
	Thinking bool `json:"thinking,omitempty"`
}

// Serialize renders the request as indented JSON for storage on the turn.
func (r *Request) Serialize() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("reqbuild: serialize request: %w", err)
	}
	return string(data), nil
}
