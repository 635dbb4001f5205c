package processor

import "context"

// Turn is one role/content pair of model input.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Delta is one increment of a streamed reply. A non-nil Err terminates the
// stream; no further deltas follow it.
type Delta struct {
	Content string
	Err     error
}

// Backend is the generative-model contract the processor consumes.
// ListModels failures are non-fatal: the processor degrades to assuming
// the configured model is loadable.
type Backend interface {
	Chat(ctx context.Context, model string, turns []Turn) (string, error)
	ChatStream(ctx context.Context, model string, turns []Turn) (<-chan Delta, error)
	ListModels(ctx context.Context) ([]string, error)
}
