package botdialogs

import (
	"context"
	"fmt"

	"github.com/flexigpt/botdialogs-go/spec"
)

// stepStateKey tracks waterfall progress inside the frame state. The value
// survives JSON round-trips, so reads must tolerate float64.
const stepStateKey = "step"

// WaterfallStep is one step of a waterfall. res carries the begin args on
// the first step and the child/previous-step result afterwards.
type WaterfallStep func(ctx context.Context, s *Session, res spec.DialogResult) error

// WaterfallDialog is a dialog composed of an ordered sequence of steps. The
// current step index is persisted in the frame state; resuming with reason
// back decrements the pointer, any other reason increments it, and a pointer
// outside the step range ends the dialog forwarding its last result to the
// parent frame.
type WaterfallDialog struct {
	steps []WaterfallStep
}

// NewWaterfall builds a waterfall from its steps.
func NewWaterfall(steps ...WaterfallStep) *WaterfallDialog {
	return &WaterfallDialog{steps: steps}
}

func (w *WaterfallDialog) Begin(ctx context.Context, s *Session, args any) error {
	if len(w.steps) == 0 {
		return s.EndDialog(ctx)
	}
	s.DialogData()[stepStateKey] = 0
	return w.steps[0](ctx, s, spec.DialogResult{Resumed: spec.ResumeForward, Response: args})
}

// ReplyReceived advances the waterfall like a forward resume, carrying the
// inbound message text as the step result.
func (w *WaterfallDialog) ReplyReceived(ctx context.Context, s *Session) error {
	return w.Resumed(ctx, s, spec.DialogResult{
		Resumed:  spec.ResumeForward,
		Response: s.Message().Text,
	})
}

func (w *WaterfallDialog) Resumed(ctx context.Context, s *Session, result spec.DialogResult) error {
	step, err := stateInt(s.DialogData(), stepStateKey)
	if err != nil {
		return fmt.Errorf("waterfall step state: %w", err)
	}

	if result.Resumed == spec.ResumeBack {
		step--
	} else {
		step++
	}

	if step < 0 || step >= len(w.steps) {
		// Fell off the end: forward the last result to the parent frame.
		return s.EndDialogWithResult(ctx, result)
	}

	s.DialogData()[stepStateKey] = step
	return w.steps[step](ctx, s, result)
}

func (w *WaterfallDialog) Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error) {
	return spec.IntentRecognizerResult{}, nil
}

// stateInt reads an int frame-state value, tolerating the float64 form JSON
// deserialization produces.
func stateInt(state map[string]any, key string) (int, error) {
	v, ok := state[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %q", spec.ErrInvalidArgument, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %q is %T", spec.ErrInvalidArgument, key, v)
	}
}
