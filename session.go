package botdialogs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flexigpt/botdialogs-go/internal/stack"
	"github.com/flexigpt/botdialogs-go/spec"
)

// Session is one turn's mutable view over a conversation: the inbound
// message, the loaded session state and dialog stack, and the outbox of
// messages queued for the send pipeline. A session is owned exclusively by
// the turn processing it and must not be retained after the turn ends.
type Session struct {
	router *Router
	logger *slog.Logger

	msg    spec.Message
	key    spec.StateKey
	state  spec.SessionState
	stack  *stack.Stack
	intent *spec.IntentRecognizerResult

	outbox            []spec.Message
	conversationEnded bool

	maxStackDepth int
}

func newSession(r *Router, msg spec.Message, state spec.SessionState) *Session {
	return &Session{
		router:        r,
		logger:        r.logger,
		msg:           msg,
		key:           msg.Address.StateKey(),
		state:         state,
		stack:         stack.New(state.Callstack),
		maxStackDepth: r.maxStackDepth,
	}
}

// Message returns the inbound message being processed.
func (s *Session) Message() spec.Message { return s.msg }

// StateKey returns the conversation's storage key.
func (s *Session) StateKey() spec.StateKey { return s.key }

// Intent returns the turn's top-level recognition result, or nil when no
// recognizer produced one.
func (s *Session) Intent() *spec.IntentRecognizerResult { return s.intent }

// StackDepth returns the current dialog nesting depth.
func (s *Session) StackDepth() int { return s.stack.Depth() }

// ActiveDialogID returns the library-qualified id of the active dialog, or
// "" when the conversation is between topics.
func (s *Session) ActiveDialogID() string {
	if e := s.stack.Active(); e != nil {
		return e.ID
	}
	return ""
}

// UserData is the user-scoped free-form state map, created on first use.
func (s *Session) UserData() map[string]any {
	if s.state.UserData == nil {
		s.state.UserData = map[string]any{}
	}
	return s.state.UserData
}

// ConversationData is the conversation-scoped free-form state map.
func (s *Session) ConversationData() map[string]any {
	if s.state.ConversationData == nil {
		s.state.ConversationData = map[string]any{}
	}
	return s.state.ConversationData
}

// PrivateConversationData is the user+conversation-scoped free-form state
// map. It is cleared when the conversation ends.
func (s *Session) PrivateConversationData() map[string]any {
	if s.state.PrivateConversationData == nil {
		s.state.PrivateConversationData = map[string]any{}
	}
	return s.state.PrivateConversationData
}

// DialogData is the active frame's dialog state. With no dialog in progress
// it returns a detached empty map that is not persisted.
func (s *Session) DialogData() map[string]any {
	e := s.stack.Active()
	if e == nil {
		return map[string]any{}
	}
	if e.State == nil {
		e.State = map[string]any{}
	}
	return e.State
}

// Send queues a text message for the user. Extra args format the text with
// fmt.Sprintf.
func (s *Session) Send(text string, args ...any) {
	if len(args) > 0 {
		text = fmt.Sprintf(text, args...)
	}
	s.SendMessage(spec.Message{
		Type: spec.MessageTypeMessage,
		Text: text,
	})
}

// SendMessage queues a normalized outbound message, filling in id, address,
// locale and timestamp when absent.
func (s *Session) SendMessage(m spec.Message) {
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.Type == "" {
		m.Type = spec.MessageTypeMessage
	}
	if m.Address == (spec.Address{}) {
		m.Address = s.msg.Address
	}
	if m.Locale == "" {
		m.Locale = s.msg.Locale
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	s.outbox = append(s.outbox, m)
}

// BeginDialog pushes a frame for the dialog and invokes its Begin hook. The
// id may be unqualified (resolved in the root library) or library-qualified.
func (s *Session) BeginDialog(ctx context.Context, id string, args any) error {
	qualified, d, err := s.router.resolveDialog(id)
	if err != nil {
		return err
	}
	if s.stack.Depth()+1 > s.maxStackDepth {
		return fmt.Errorf("%w: depth %d beginning %s", spec.ErrStackDepthExceeded, s.stack.Depth(), qualified)
	}
	s.stack.Push(spec.DialogStackEntry{ID: qualified})
	return d.Begin(ctx, s, args)
}

// EndDialog ends the active dialog reporting plain completion.
func (s *Session) EndDialog(ctx context.Context) error {
	return s.EndDialogWithResult(ctx, spec.DialogResult{Resumed: spec.ResumeCompleted})
}

// EndDialogWithResult pops the active frame and resumes the new top frame
// with the result. With nothing left on the stack the conversation returns
// to root state.
func (s *Session) EndDialogWithResult(ctx context.Context, result spec.DialogResult) error {
	ended, ok := s.stack.Pop()
	if !ok {
		return nil
	}
	if result.Resumed == "" {
		result.Resumed = spec.ResumeCompleted
	}
	result.ChildID = ended.ID

	top := s.stack.Active()
	if top == nil {
		return nil
	}
	_, d, err := s.router.resolveDialog(top.ID)
	if err != nil {
		return err
	}
	return d.Resumed(ctx, s, result)
}

// ReplaceDialog swaps the active frame for the given dialog without changing
// nesting depth (redirect semantics).
func (s *Session) ReplaceDialog(ctx context.Context, id string, args any) error {
	qualified, d, err := s.router.resolveDialog(id)
	if err != nil {
		return err
	}
	if !s.stack.ReplaceTop(spec.DialogStackEntry{ID: qualified}) {
		// Empty stack: a replace degenerates to a begin.
		return s.BeginDialog(ctx, id, args)
	}
	return d.Begin(ctx, s, args)
}

// CancelDialog unwinds the stack down to index (inclusive). With a
// replacement dialog it is begun in place of the canceled frames; otherwise
// the frame left on top is resumed with ResumeCanceled.
func (s *Session) CancelDialog(ctx context.Context, index int, replacementID string, args any) error {
	if index < 0 || index >= s.stack.Depth() {
		return fmt.Errorf("%w: cancel index %d of depth %d", spec.ErrInvalidArgument, index, s.stack.Depth())
	}
	canceled := s.stack.At(index).ID
	s.stack.Truncate(index)

	if replacementID != "" {
		return s.BeginDialog(ctx, replacementID, args)
	}

	top := s.stack.Active()
	if top == nil {
		return nil
	}
	_, d, err := s.router.resolveDialog(top.ID)
	if err != nil {
		return err
	}
	return d.Resumed(ctx, s, spec.DialogResult{Resumed: spec.ResumeCanceled, ChildID: canceled})
}

// Reset clears the dialog stack; the conversation returns to root state.
func (s *Session) Reset() {
	s.stack.Clear()
}

// EndConversation clears the stack and the private conversation data,
// optionally sending a farewell first, and emits an end-of-conversation
// event for the transport.
func (s *Session) EndConversation(ctx context.Context, farewell string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if farewell != "" {
		s.Send(farewell)
	}
	s.stack.Clear()
	s.state.PrivateConversationData = nil
	s.conversationEnded = true
	s.SendMessage(spec.Message{Type: spec.MessageTypeEndConversation})
	return nil
}
