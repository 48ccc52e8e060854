// Package stack implements the per-conversation dialog callstack: an ordered
// sequence of dialog invocation frames where the last frame is the active
// dialog. The stack itself carries no behavior beyond frame bookkeeping;
// lifecycle hooks are invoked by the session that owns it.
package stack

import (
	"github.com/flexigpt/botdialogs-go/spec"
)

// Stack wraps a conversation's callstack frames. It is owned by exactly one
// turn at a time and is not safe for concurrent use.
type Stack struct {
	entries []spec.DialogStackEntry
}

// New builds a stack over the given frames. The slice is taken over, not
// copied; callers hand in freshly deserialized state.
func New(entries []spec.DialogStackEntry) *Stack {
	return &Stack{entries: entries}
}

// Push appends a new frame, making it the active dialog.
func (s *Stack) Push(e spec.DialogStackEntry) {
	if e.State == nil {
		e.State = map[string]any{}
	}
	s.entries = append(s.entries, e)
}

// Pop removes and returns the top frame. ok is false on an empty stack.
func (s *Stack) Pop() (e spec.DialogStackEntry, ok bool) {
	if len(s.entries) == 0 {
		return spec.DialogStackEntry{}, false
	}
	e = s.entries[len(s.entries)-1]
	s.entries[len(s.entries)-1] = spec.DialogStackEntry{}
	s.entries = s.entries[:len(s.entries)-1]
	return e, true
}

// ReplaceTop atomically swaps the top frame without changing nesting depth.
// ok is false on an empty stack.
func (s *Stack) ReplaceTop(e spec.DialogStackEntry) bool {
	if len(s.entries) == 0 {
		return false
	}
	if e.State == nil {
		e.State = map[string]any{}
	}
	s.entries[len(s.entries)-1] = e
	return true
}

// Active returns a pointer to the top frame so the caller can mutate its
// State in place, or nil when the conversation is between topics.
func (s *Stack) Active() *spec.DialogStackEntry {
	if len(s.entries) == 0 {
		return nil
	}
	return &s.entries[len(s.entries)-1]
}

// At returns a pointer to the frame at index i (0 = outermost), or nil when
// out of range.
func (s *Stack) At(i int) *spec.DialogStackEntry {
	if i < 0 || i >= len(s.entries) {
		return nil
	}
	return &s.entries[i]
}

// Depth returns the number of frames.
func (s *Stack) Depth() int { return len(s.entries) }

// Truncate removes the frame at index i and every frame above it. Out-of-range
// indexes are a no-op.
func (s *Stack) Truncate(i int) {
	if i < 0 || i >= len(s.entries) {
		return
	}
	for j := i; j < len(s.entries); j++ {
		s.entries[j] = spec.DialogStackEntry{}
	}
	s.entries = s.entries[:i]
}

// Clear empties the stack.
func (s *Stack) Clear() {
	s.Truncate(0)
}

// Entries returns the frames in order, outermost first. The returned slice is
// the stack's backing storage; callers persist it at end of turn.
func (s *Stack) Entries() []spec.DialogStackEntry {
	return s.entries
}
