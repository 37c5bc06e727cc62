// Package llm provides the completion service used for planning and generation.
package llm

import "context"

// Request is a single completion request.
type Request struct {
	// Prompt is the user message.
	Prompt string
	// SystemPrompt is optional.
	SystemPrompt string
	// MaxTokens caps the response. Zero uses the client default.
	MaxTokens int64
}

// Response is the text of a completion and its token usage.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// TokensUsed returns input plus output tokens.
func (r *Response) TokensUsed() int64 {
	return r.InputTokens + r.OutputTokens
}

// Completer is an LLM completion service. Responses are untrusted text;
// callers must tolerate malformed output.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
