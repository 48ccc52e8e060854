package botdialogs

import (
	"context"

	"github.com/flexigpt/botdialogs-go/spec"
)

// Dialog is one unit of conversation logic. A dialog lives in exactly one
// Library and is addressed by its library-qualified id ("library:dialog").
//
// Lifecycle: Begin runs when a frame for the dialog is pushed; ReplyReceived
// runs when routing forwards an inbound message to the active frame; Resumed
// runs when a child dialog ends and control returns to this frame.
type Dialog interface {
	Begin(ctx context.Context, s *Session, args any) error
	ReplyReceived(ctx context.Context, s *Session) error
	Resumed(ctx context.Context, s *Session, result spec.DialogResult) error

	// Recognize scores how strongly the dialog claims the current message
	// while it is the active frame. A zero score defers to actions and the
	// resume fallback.
	Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error)
}

// DialogHandler is the handler form of a simple dialog: it runs on Begin with
// the begin args and on every ReplyReceived with args nil.
type DialogHandler func(ctx context.Context, s *Session, args any) error

// SimpleDialog adapts a single handler function to the Dialog interface.
// Resume results are forwarded to the handler as args.
type SimpleDialog struct {
	Handler DialogHandler

	// Recognizer optionally scores the dialog's claim on the message while
	// active. Nil means score zero (rely on the resume fallback).
	Recognizer spec.Recognizer
}

func (d *SimpleDialog) Begin(ctx context.Context, s *Session, args any) error {
	return d.Handler(ctx, s, args)
}

func (d *SimpleDialog) ReplyReceived(ctx context.Context, s *Session) error {
	return d.Handler(ctx, s, nil)
}

func (d *SimpleDialog) Resumed(ctx context.Context, s *Session, result spec.DialogResult) error {
	return d.Handler(ctx, s, result)
}

func (d *SimpleDialog) Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error) {
	if d.Recognizer == nil {
		return spec.IntentRecognizerResult{}, nil
	}
	return d.Recognizer.Recognize(ctx, rc)
}
