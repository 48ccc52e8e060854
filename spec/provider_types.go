package spec

import "context"

// RecognizeContext is the read-only view recognizers and matchers score
// against. Recognizers must not mutate session state; DialogData is a copy of
// the active frame's state for recognizers that condition on prior dialog
// progress.
type RecognizeContext struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`

	// Intent is the turn's top-level recognition result once it has been
	// computed, so intent-name matchers can reuse it instead of re-scoring.
	Intent *IntentRecognizerResult `json:"intent,omitempty"`

	DialogData map[string]any `json:"dialogData,omitempty"`
}

// Recognizer scores how strongly an utterance matches some intent/pattern.
type Recognizer interface {
	Recognize(ctx context.Context, rc RecognizeContext) (IntentRecognizerResult, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, rc RecognizeContext) (IntentRecognizerResult, error)

func (f RecognizerFunc) Recognize(ctx context.Context, rc RecognizeContext) (IntentRecognizerResult, error) {
	return f(ctx, rc)
}

// StateStore persists SessionState between turns, keyed by conversation
// address. Implementations must be atomic per key: a failed Save persists
// nothing. Get must return state that is safe for the caller to
// mutate (a fresh copy, never an aliased in-memory value).
type StateStore interface {
	// Get loads the stored state. ok is false when nothing is stored yet
	// (a fresh conversation), which is not an error.
	Get(ctx context.Context, key StateKey) (state SessionState, ok bool, err error)

	// Save replaces the stored state. Last write wins; no optimistic
	// concurrency is assumed.
	Save(ctx context.Context, key StateKey, state SessionState) error

	// Delete removes the stored state, if any.
	Delete(ctx context.Context, key StateKey) error
}

// Connector is the outbound send pipeline: it delivers an ordered batch of
// normalized messages to the transport. Delivery is at-least-once; exactly-
// once is not guaranteed by this layer.
type Connector interface {
	Send(ctx context.Context, msgs []Message) error
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context, msgs []Message) error

func (f ConnectorFunc) Send(ctx context.Context, msgs []Message) error {
	return f(ctx, msgs)
}
