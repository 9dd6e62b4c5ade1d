package llm

import "context"

// Fragment is one incremental piece of a streamed answer, keyed by output
// field name. The "answer" field carries a text delta; any other field is a
// whole-value replacement.
type Fragment map[string]any

// FieldAnswer is the streamed text field every provider must emit.
const FieldAnswer = "answer"

// Stream is a lazy, finite, non-restartable sequence of fragments. Next
// returns io.EOF once the stream is exhausted; any other error is a
// transient generation failure. A retry opens a fresh stream, it never
// resumes this one.
type Stream interface {
	Next() (Fragment, error)
	Close() error
}

// Exchange is one past prompt/answer pair supplied as chat history.
type Exchange struct {
	Prompt string
	Answer string
}

// Request contains answer-generation parameters
type Request struct {
	Prompt  string
	History []Exchange
}

// Provider defines the interface for streaming answer generators
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Stream opens one fresh generation attempt
	Stream(ctx context.Context, req Request) (Stream, error)
}
