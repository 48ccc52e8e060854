// Package botdialogs implements the dialog-routing and session-state engine
// of a conversational bot SDK: libraries of dialogs, actions and recognizers,
// a per-conversation dialog callstack, and a router that decides for every
// inbound message whether to continue the active dialog, run a stack-scoped
// action, or run a global action.
//
// The package is stateless with respect to conversations: a spec.StateStore
// collaborator persists spec.SessionState between turns, and each turn works
// on a fresh deserialized copy of that state. Turns for the same conversation
// are serialized by the router; turns for different conversations run in
// parallel.
package botdialogs

// Default tuning values. The ordering relationships between these matter
// (see bestRoute); the exact numbers are configurable product tuning.
const (
	// DefaultActionThreshold is the minimum matcher score an action needs to
	// produce a route candidate.
	DefaultActionThreshold = 0.1

	// DefaultActiveDialogFloor is the minimum score a positive active-dialog
	// match is raised to, so an in-progress topic never loses to global
	// noise of similar confidence.
	DefaultActiveDialogFloor = 0.1

	// DefaultNoneIntentFloor caps the score of a "none" recognition so it can
	// serve as a fallback without out-competing a genuine intent match.
	DefaultNoneIntentFloor = 0.1

	// DefaultMaxStackDepth bounds dialog nesting; beginning a dialog past it
	// is fatal for the turn.
	DefaultMaxStackDepth = 32

	// DefaultMaxConcurrentTurns bounds how many messages of an inbound batch
	// are processed simultaneously.
	DefaultMaxConcurrentTurns = 4
)

// DefaultFriendlyErrorText is sent to the user when a handler or recognizer
// fails; raw error detail goes to the error handler only.
const DefaultFriendlyErrorText = "Sorry, something went wrong. Please try again."
