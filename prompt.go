package botdialogs

import (
	"context"
	"regexp"
	"strings"

	"github.com/flexigpt/botdialogs-go/spec"
)

// SystemLibraryName is the name of the library carrying the built-in prompt
// dialogs. The system library is an explicitly constructed dependency: hosts
// create one with NewSystemLibrary and hand it to New; there is no ambient
// process-wide instance.
const SystemLibraryName = "system"

// Built-in dialog ids within the system library.
const (
	TextPromptDialog    = "prompt-text"
	ConfirmPromptDialog = "prompt-confirm"
)

// PromptOptions configures a built-in prompt dialog.
type PromptOptions struct {
	// Prompt is sent when the prompt begins.
	Prompt string `json:"prompt"`

	// RetryPrompt is sent after an invalid reply; defaults to Prompt.
	RetryPrompt string `json:"retryPrompt,omitempty"`

	// MaxRetries bounds invalid replies before the prompt gives up and
	// resumes the parent with ResumeNotCompleted. Zero means retry forever.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// NewSystemLibrary builds the library of built-in prompt dialogs. Dialog
// registration over fixed ids cannot collide, so construction cannot fail.
func NewSystemLibrary() *Library {
	lib := NewLibrary(SystemLibraryName)
	// Registering fresh ids into a fresh library; errors are impossible.
	_ = lib.Dialog(TextPromptDialog, &textPrompt{})
	_ = lib.Dialog(ConfirmPromptDialog, &confirmPrompt{})
	return lib
}

const (
	promptStateOptions = "promptOptions"
	promptStateRetries = "retries"
)

func beginPrompt(ctx context.Context, s *Session, args any) (PromptOptions, error) {
	opts, _ := args.(PromptOptions)
	s.DialogData()[promptStateOptions] = map[string]any{
		"prompt":      opts.Prompt,
		"retryPrompt": opts.RetryPrompt,
		"maxRetries":  opts.MaxRetries,
	}
	s.DialogData()[promptStateRetries] = 0
	s.Send(opts.Prompt)
	return opts, nil
}

func promptOptionsFromState(state map[string]any) PromptOptions {
	raw, _ := state[promptStateOptions].(map[string]any)
	opts := PromptOptions{}
	if v, ok := raw["prompt"].(string); ok {
		opts.Prompt = v
	}
	if v, ok := raw["retryPrompt"].(string); ok {
		opts.RetryPrompt = v
	}
	if n, err := stateInt(raw, "maxRetries"); err == nil {
		opts.MaxRetries = n
	}
	return opts
}

// retryOrGiveUp re-prompts after an invalid reply, resuming the parent with
// ResumeNotCompleted once retries are exhausted.
func retryOrGiveUp(ctx context.Context, s *Session) error {
	opts := promptOptionsFromState(s.DialogData())
	retries, err := stateInt(s.DialogData(), promptStateRetries)
	if err != nil {
		retries = 0
	}
	retries++
	if opts.MaxRetries > 0 && retries > opts.MaxRetries {
		return s.EndDialogWithResult(ctx, spec.DialogResult{Resumed: spec.ResumeNotCompleted})
	}
	s.DialogData()[promptStateRetries] = retries

	retry := opts.RetryPrompt
	if retry == "" {
		retry = opts.Prompt
	}
	s.Send(retry)
	return nil
}

// textPrompt collects one non-empty text reply.
type textPrompt struct{}

func (p *textPrompt) Begin(ctx context.Context, s *Session, args any) error {
	_, err := beginPrompt(ctx, s, args)
	return err
}

func (p *textPrompt) ReplyReceived(ctx context.Context, s *Session) error {
	text := strings.TrimSpace(s.Message().Text)
	if text == "" {
		return retryOrGiveUp(ctx, s)
	}
	return s.EndDialogWithResult(ctx, spec.DialogResult{Resumed: spec.ResumeCompleted, Response: text})
}

func (p *textPrompt) Resumed(ctx context.Context, s *Session, result spec.DialogResult) error {
	// Prompts have no children; a stray resume re-prompts.
	s.Send(promptOptionsFromState(s.DialogData()).Prompt)
	return nil
}

func (p *textPrompt) Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error) {
	// A waiting prompt claims any non-empty reply outright.
	if strings.TrimSpace(rc.Text) == "" {
		return spec.IntentRecognizerResult{}, nil
	}
	return spec.IntentRecognizerResult{Score: 0.5, Intent: "prompt-reply"}, nil
}

var (
	confirmYes = regexp.MustCompile(`(?i)^\s*(y|yes|yep|sure|ok|okay|true)\b`)
	confirmNo  = regexp.MustCompile(`(?i)^\s*(n|no|nope|nah|false)\b`)
)

// confirmPrompt collects a yes/no reply as a bool.
type confirmPrompt struct{}

func (p *confirmPrompt) Begin(ctx context.Context, s *Session, args any) error {
	_, err := beginPrompt(ctx, s, args)
	return err
}

func (p *confirmPrompt) ReplyReceived(ctx context.Context, s *Session) error {
	text := s.Message().Text
	switch {
	case confirmYes.MatchString(text):
		return s.EndDialogWithResult(ctx, spec.DialogResult{Resumed: spec.ResumeCompleted, Response: true})
	case confirmNo.MatchString(text):
		return s.EndDialogWithResult(ctx, spec.DialogResult{Resumed: spec.ResumeCompleted, Response: false})
	default:
		return retryOrGiveUp(ctx, s)
	}
}

func (p *confirmPrompt) Resumed(ctx context.Context, s *Session, result spec.DialogResult) error {
	s.Send(promptOptionsFromState(s.DialogData()).Prompt)
	return nil
}

func (p *confirmPrompt) Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error) {
	if confirmYes.MatchString(rc.Text) || confirmNo.MatchString(rc.Text) {
		return spec.IntentRecognizerResult{Score: 0.8, Intent: "prompt-confirm"}, nil
	}
	if strings.TrimSpace(rc.Text) == "" {
		return spec.IntentRecognizerResult{}, nil
	}
	return spec.IntentRecognizerResult{Score: 0.3, Intent: "prompt-reply"}, nil
}
