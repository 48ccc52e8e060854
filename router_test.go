package botdialogs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/flexigpt/botdialogs-go/memstatestore"
	"github.com/flexigpt/botdialogs-go/spec"
)

// captureConnector records every batch the router flushes.
type captureConnector struct {
	mu    sync.Mutex
	sent  []spec.Message
	fails bool
}

func (c *captureConnector) Send(ctx context.Context, msgs []spec.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails {
		return errors.New("transport down")
	}
	c.sent = append(c.sent, msgs...)
	return nil
}

func (c *captureConnector) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		if m.Type == spec.MessageTypeMessage {
			out = append(out, m.Text)
		}
	}
	return out
}

// newGreetingLibrary builds the standard test bot: a two-step greeting
// waterfall behind a "hi" trigger, plus global help and goodbye actions.
func newGreetingLibrary(t *testing.T) *Library {
	t.Helper()
	lib := NewLibrary("root")

	greet := NewWaterfall(
		func(ctx context.Context, s *Session, _ spec.DialogResult) error {
			return s.BeginDialog(ctx, "system:"+TextPromptDialog, PromptOptions{
				Prompt:     "What is your name?",
				MaxRetries: 1,
			})
		},
		func(ctx context.Context, s *Session, res spec.DialogResult) error {
			name, _ := res.Response.(string)
			if name == "" {
				name = "stranger"
			}
			s.UserData()["name"] = name
			s.Send("Hello %s", name)
			return s.EndDialog(ctx)
		},
	)
	if err := lib.Dialog("greet", greet); err != nil {
		t.Fatalf("Dialog: %v", err)
	}

	if err := lib.TriggerAction("greet", &ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^hi$`)},
	}); err != nil {
		t.Fatalf("TriggerAction: %v", err)
	}
	err := lib.Actions().Action("help", func(ctx context.Context, s *Session, _ spec.RouteData) error {
		s.Send("Try saying hi.")
		return nil
	}, &ActionOptions{MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^help$`)}})
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	err = lib.Actions().EndConversationAction("goodbye", "Bye!", &ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^goodbye$`)},
	})
	if err != nil {
		t.Fatalf("EndConversationAction: %v", err)
	}
	return lib
}

func TestRouter_GreetingConversation(t *testing.T) {
	t.Parallel()

	conn := &captureConnector{}
	store := memstatestore.New()
	r, err := New(newGreetingLibrary(t), WithConnector(conn), WithStateStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	res, err := r.ProcessMessage(ctx, testMessage("c1", "hi"))
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if !res.Handled {
		t.Fatal("turn 1 unhandled")
	}
	if res.Route == nil || res.Route.RouteType != spec.RouteTypeGlobalAction {
		t.Fatalf("turn 1 route = %+v", res.Route)
	}
	if got := conn.texts(); len(got) != 1 || got[0] != "What is your name?" {
		t.Fatalf("turn 1 sent %v", got)
	}

	res, err = r.ProcessMessage(ctx, testMessage("c1", "Ada"))
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !res.Handled {
		t.Fatal("turn 2 unhandled")
	}
	if got := conn.texts(); len(got) != 2 || got[1] != "Hello Ada" {
		t.Fatalf("turn 2 sent %v", got)
	}

	// The conversation is back at root state and the name persisted.
	state, ok, err := store.Get(ctx, testMessage("c1", "").Address.StateKey())
	if err != nil || !ok {
		t.Fatalf("stored state: ok %v err %v", ok, err)
	}
	if len(state.Callstack) != 0 {
		t.Fatalf("callstack = %+v, want empty", state.Callstack)
	}
	if state.UserData["name"] != "Ada" {
		t.Fatalf("userData = %+v", state.UserData)
	}
	if state.Version != 2 {
		t.Fatalf("version = %d, want 2 (one bump per turn)", state.Version)
	}
}

func TestRouter_UnhandledTurn(t *testing.T) {
	t.Parallel()

	r, err := New(newGreetingLibrary(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.ProcessMessage(context.Background(), testMessage("c1", "complete gibberish"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Handled {
		t.Fatal("gibberish with no active dialog was handled")
	}
	if res.Route != nil {
		t.Fatalf("route = %+v, want nil", res.Route)
	}
	if len(res.Responses) != 0 {
		t.Fatalf("responses = %v, want none", res.Responses)
	}
}

func TestRouter_ActiveDialogFallback(t *testing.T) {
	t.Parallel()

	// With a dialog in progress, an unmatched message still resumes it.
	conn := &captureConnector{}
	r, err := New(newGreetingLibrary(t), WithConnector(conn))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := r.ProcessMessage(ctx, testMessage("c1", "hi")); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := r.ProcessMessage(ctx, testMessage("c1", "Grace"))
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !res.Handled {
		t.Fatal("reply to a waiting prompt was unhandled")
	}
	if got := conn.texts(); got[len(got)-1] != "Hello Grace" {
		t.Fatalf("sent %v", got)
	}
}

func TestRouter_GlobalActionInterruptsDialog(t *testing.T) {
	t.Parallel()

	conn := &captureConnector{}
	r, err := New(newGreetingLibrary(t), WithConnector(conn))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := r.ProcessMessage(ctx, testMessage("c1", "hi")); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := r.ProcessMessage(ctx, testMessage("c1", "help"))
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Route == nil || res.Route.RouteType != spec.RouteTypeGlobalAction {
		t.Fatalf("route = %+v, want the global help action", res.Route)
	}
	if got := conn.texts(); got[len(got)-1] != "Try saying hi." {
		t.Fatalf("sent %v", got)
	}
}

func TestRouter_EndConversation(t *testing.T) {
	t.Parallel()

	conn := &captureConnector{}
	store := memstatestore.New()
	r, err := New(newGreetingLibrary(t), WithConnector(conn), WithStateStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := r.ProcessMessage(ctx, testMessage("c1", "hi")); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := r.ProcessMessage(ctx, testMessage("c1", "goodbye"))
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !res.Handled {
		t.Fatal("goodbye unhandled")
	}

	last := res.Responses[len(res.Responses)-1]
	if last.Type != spec.MessageTypeEndConversation {
		t.Fatalf("last response type = %q, want endOfConversation", last.Type)
	}

	state, ok, err := store.Get(ctx, testMessage("c1", "").Address.StateKey())
	if err != nil || !ok {
		t.Fatalf("stored state: ok %v err %v", ok, err)
	}
	if len(state.Callstack) != 0 || state.PrivateConversationData != nil {
		t.Fatalf("state after end = %+v", state)
	}
}

func TestRouter_HandlerErrorRecovered(t *testing.T) {
	t.Parallel()

	lib := NewLibrary("root")
	boom := &SimpleDialog{Handler: func(ctx context.Context, s *Session, args any) error {
		s.ConversationData()["poisoned"] = true
		return errors.New("handler exploded")
	}}
	if err := lib.Dialog("boom", boom); err != nil {
		t.Fatalf("Dialog: %v", err)
	}
	if err := lib.TriggerAction("boom", &ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^boom$`)},
	}); err != nil {
		t.Fatalf("TriggerAction: %v", err)
	}

	var handlerErr error
	conn := &captureConnector{}
	store := memstatestore.New()
	r, err := New(lib,
		WithConnector(conn),
		WithStateStore(store),
		WithErrorHandler(func(ctx context.Context, key spec.StateKey, err error) { handlerErr = err }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	res, err := r.ProcessMessage(ctx, testMessage("c1", "boom"))
	if err != nil {
		t.Fatalf("ProcessMessage returned %v, handler failures must be recovered", err)
	}
	if res.Handled {
		t.Fatal("failed turn reported as handled")
	}

	// The user sees only the friendly text, never the raw error.
	got := conn.texts()
	if len(got) != 1 || got[0] != DefaultFriendlyErrorText {
		t.Fatalf("sent %v", got)
	}
	if handlerErr == nil || !strings.Contains(handlerErr.Error(), "handler exploded") {
		t.Fatalf("error handler got %v", handlerErr)
	}

	// The turn's mutations were not persisted.
	if _, ok, _ := store.Get(ctx, testMessage("c1", "").Address.StateKey()); ok {
		t.Fatal("state persisted despite the handler failure")
	}
}

func TestRouter_HandlerPanicRecovered(t *testing.T) {
	t.Parallel()

	lib := NewLibrary("root")
	panicky := &SimpleDialog{Handler: func(ctx context.Context, s *Session, args any) error {
		panic("unexpected nil")
	}}
	if err := lib.Dialog("panic", panicky); err != nil {
		t.Fatalf("Dialog: %v", err)
	}
	if err := lib.TriggerAction("panic", &ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^go$`)},
	}); err != nil {
		t.Fatalf("TriggerAction: %v", err)
	}

	conn := &captureConnector{}
	r, err := New(lib, WithConnector(conn))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.ProcessMessage(context.Background(), testMessage("c1", "go"))
	if err != nil {
		t.Fatalf("ProcessMessage returned %v, panics must be recovered", err)
	}
	if res.Handled {
		t.Fatal("panicked turn reported as handled")
	}
	if got := conn.texts(); len(got) != 1 || got[0] != DefaultFriendlyErrorText {
		t.Fatalf("sent %v", got)
	}
}

func TestRouter_StackDepthGuard(t *testing.T) {
	t.Parallel()

	lib := NewLibrary("root")
	recurse := &SimpleDialog{Handler: func(ctx context.Context, s *Session, args any) error {
		return s.BeginDialog(ctx, "recurse", nil)
	}}
	if err := lib.Dialog("recurse", recurse); err != nil {
		t.Fatalf("Dialog: %v", err)
	}
	if err := lib.TriggerAction("recurse", &ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^dig$`)},
	}); err != nil {
		t.Fatalf("TriggerAction: %v", err)
	}

	var handlerErr error
	store := memstatestore.New()
	r, err := New(lib,
		WithStateStore(store),
		WithMaxStackDepth(5),
		WithErrorHandler(func(ctx context.Context, key spec.StateKey, err error) { handlerErr = err }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	res, err := r.ProcessMessage(ctx, testMessage("c1", "dig"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Handled {
		t.Fatal("overflowing turn reported as handled")
	}
	if !errors.Is(handlerErr, spec.ErrStackDepthExceeded) {
		t.Fatalf("error handler got %v, want ErrStackDepthExceeded", handlerErr)
	}

	// The cleared stack is persisted so the next turn starts fresh.
	state, ok, err := store.Get(ctx, testMessage("c1", "").Address.StateKey())
	if err != nil || !ok {
		t.Fatalf("stored state: ok %v err %v", ok, err)
	}
	if len(state.Callstack) != 0 {
		t.Fatalf("callstack = %+v, want cleared", state.Callstack)
	}
}

func TestRouter_InvalidAddressRejected(t *testing.T) {
	t.Parallel()

	r, err := New(newGreetingLibrary(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg := spec.Message{Type: spec.MessageTypeMessage, Text: "hi"}
	if _, err := r.ProcessMessage(context.Background(), msg); !errors.Is(err, spec.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRouter_StoreFailureSurfaces(t *testing.T) {
	t.Parallel()

	r, err := New(newGreetingLibrary(t), WithStateStore(failingStore{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.ProcessMessage(context.Background(), testMessage("c1", "hi")); err == nil {
		t.Fatal("storage failure did not surface")
	}
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key spec.StateKey) (spec.SessionState, bool, error) {
	return spec.SessionState{}, false, errors.New("store down")
}
func (failingStore) Save(ctx context.Context, key spec.StateKey, state spec.SessionState) error {
	return errors.New("store down")
}
func (failingStore) Delete(ctx context.Context, key spec.StateKey) error {
	return errors.New("store down")
}

func TestRouter_ProcessBatch(t *testing.T) {
	t.Parallel()

	r, err := New(newGreetingLibrary(t), WithMaxConcurrentTurns(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	msgs := make([]spec.Message, 8)
	for i := range msgs {
		msgs[i] = testMessage(fmt.Sprintf("c%d", i), "help")
	}
	results, err := r.ProcessBatch(context.Background(), msgs)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if len(results) != len(msgs) {
		t.Fatalf("got %d results, want %d", len(results), len(msgs))
	}
	for i, res := range results {
		if !res.Handled {
			t.Fatalf("result %d unhandled", i)
		}
	}
}

func TestRouter_SameConversationSerialized(t *testing.T) {
	t.Parallel()

	// Concurrent turns for one conversation must not lose state updates.
	lib := NewLibrary("root")
	count := &SimpleDialog{Handler: func(ctx context.Context, s *Session, args any) error {
		n, _ := stateInt(s.ConversationData(), "count")
		s.ConversationData()["count"] = n + 1
		return s.EndDialog(ctx)
	}}
	if err := lib.Dialog("count", count); err != nil {
		t.Fatalf("Dialog: %v", err)
	}
	if err := lib.TriggerAction("count", &ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^count$`)},
	}); err != nil {
		t.Fatalf("TriggerAction: %v", err)
	}

	store := memstatestore.New()
	r, err := New(lib, WithStateStore(store), WithMaxConcurrentTurns(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const turns = 16
	msgs := make([]spec.Message, turns)
	for i := range msgs {
		msgs[i] = testMessage("shared", "count")
	}
	if _, err := r.ProcessBatch(context.Background(), msgs); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	state, ok, err := store.Get(context.Background(), testMessage("shared", "").Address.StateKey())
	if err != nil || !ok {
		t.Fatalf("stored state: ok %v err %v", ok, err)
	}
	n, err := stateInt(state.ConversationData, "count")
	if err != nil || n != turns {
		t.Fatalf("count = %v (err %v), want %d", n, err, turns)
	}
	if state.Version != turns {
		t.Fatalf("version = %d, want %d", state.Version, turns)
	}
}

func TestRouter_ConnectorFailureSurfacesAfterPersist(t *testing.T) {
	t.Parallel()

	conn := &captureConnector{fails: true}
	store := memstatestore.New()
	r, err := New(newGreetingLibrary(t), WithConnector(conn), WithStateStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := r.ProcessMessage(context.Background(), testMessage("c1", "hi"))
	if err == nil {
		t.Fatal("connector failure did not surface")
	}
	// The turn itself succeeded: responses are reported and state persisted.
	if len(res.Responses) == 0 {
		t.Fatal("responses lost on connector failure")
	}
	if _, ok, _ := store.Get(context.Background(), testMessage("c1", "").Address.StateKey()); !ok {
		t.Fatal("state not persisted before the connector ran")
	}
}

func TestRouter_ActiveDialogStickiness(t *testing.T) {
	t.Parallel()

	// An in-progress topic with a weak claim (floored to 0.1) keeps the turn:
	// a foreign library's equally weak global match never clears the action
	// threshold, so it produces no candidate at all.
	root := NewLibrary("root")
	if err := root.Dialog("topic", &claimDialog{Dialog: nopDialog(), score: 0.05}); err != nil {
		t.Fatalf("Dialog: %v", err)
	}
	other := NewLibrary("other")
	err := other.Actions().Action("weak", func(ctx context.Context, s *Session, _ spec.RouteData) error {
		s.Send("weak action ran")
		return nil
	}, &ActionOptions{MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`q`)}})
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	if err := root.Library(other); err != nil {
		t.Fatalf("Library: %v", err)
	}

	store := memstatestore.New()
	key := testMessage("c1", "").Address.StateKey()
	err = store.Save(context.Background(), key, spec.SessionState{
		Callstack: []spec.DialogStackEntry{{ID: "root:topic"}},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	r, err := New(root, WithStateStore(store))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 20 runes, one matched by the weak action's pattern: score 0.05.
	res, err := r.ProcessMessage(context.Background(), testMessage("c1", "zzzzzzzzzzzzzzzzzzzq"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Route == nil || res.Route.RouteType != spec.RouteTypeActiveDialog {
		t.Fatalf("route = %+v, want the active dialog", res.Route)
	}
	if res.Route.Score != DefaultActiveDialogFloor {
		t.Fatalf("score = %v, want floored to %v", res.Route.Score, DefaultActiveDialogFloor)
	}
}

func TestRouter_NestedLibraryRecognizer(t *testing.T) {
	t.Parallel()

	// A child library's own recognizers drive its intent-matched actions;
	// a child without any inherits the top-level recognition result.
	root := NewLibrary("root")
	root.Recognizer(NewRegexpRecognizer("Shout", regexp.MustCompile(`(?i)^shout$`)))

	status := NewLibrary("status")
	status.Recognizer(NewRegexpRecognizer("Ping", regexp.MustCompile(`(?i)^ping$`)))
	var pingRan bool
	err := status.Actions().Action("ping", func(ctx context.Context, s *Session, _ spec.RouteData) error {
		pingRan = true
		s.Send("pong")
		return nil
	}, &ActionOptions{Matches: []string{"Ping"}})
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	if err := root.Library(status); err != nil {
		t.Fatalf("Library: %v", err)
	}

	plain := NewLibrary("plain")
	var shoutRan bool
	err = plain.Actions().Action("shout", func(ctx context.Context, s *Session, _ spec.RouteData) error {
		shoutRan = true
		return nil
	}, &ActionOptions{Matches: []string{"Shout"}})
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	if err := root.Library(plain); err != nil {
		t.Fatalf("Library: %v", err)
	}

	conn := &captureConnector{}
	r, err := New(root, WithConnector(conn))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	res, err := r.ProcessMessage(ctx, testMessage("c1", "ping"))
	if err != nil {
		t.Fatalf("ping turn: %v", err)
	}
	if !res.Handled || !pingRan {
		t.Fatalf("ping turn: handled=%v ran=%v", res.Handled, pingRan)
	}
	if res.Route == nil || res.Route.RouteType != spec.RouteTypeGlobalAction || res.Route.LibraryName != "status" {
		t.Fatalf("ping route = %+v, want the status library's global action", res.Route)
	}
	if got := conn.texts(); len(got) != 1 || got[0] != "pong" {
		t.Fatalf("sent %v", got)
	}

	res, err = r.ProcessMessage(ctx, testMessage("c1", "shout"))
	if err != nil {
		t.Fatalf("shout turn: %v", err)
	}
	if !res.Handled || !shoutRan {
		t.Fatalf("shout turn: handled=%v ran=%v", res.Handled, shoutRan)
	}
	if res.Route == nil || res.Route.LibraryName != "plain" {
		t.Fatalf("shout route = %+v, want the plain library's action", res.Route)
	}
}

func TestRouter_StackDepthRecoveryDiscardsMutations(t *testing.T) {
	t.Parallel()

	lib := NewLibrary("root")
	dig := &SimpleDialog{Handler: func(ctx context.Context, s *Session, args any) error {
		s.ConversationData()["poisoned"] = true
		return s.BeginDialog(ctx, "dig", nil)
	}}
	if err := lib.Dialog("dig", dig); err != nil {
		t.Fatalf("Dialog: %v", err)
	}
	if err := lib.TriggerAction("dig", &ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^dig$`)},
	}); err != nil {
		t.Fatalf("TriggerAction: %v", err)
	}

	store := memstatestore.New()
	ctx := context.Background()
	key := testMessage("c1", "").Address.StateKey()
	err := store.Save(ctx, key, spec.SessionState{
		ConversationData: map[string]any{"safe": true},
		Version:          1,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	r, err := New(lib, WithStateStore(store), WithMaxStackDepth(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := r.ProcessMessage(ctx, testMessage("c1", "dig"))
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Handled {
		t.Fatal("overflowing turn reported as handled")
	}

	// The stack reset lands on the last persisted state: the failed turn's
	// data mutations are gone, earlier data survives.
	state, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("stored state: ok %v err %v", ok, err)
	}
	if len(state.Callstack) != 0 {
		t.Fatalf("callstack = %+v, want cleared", state.Callstack)
	}
	if _, found := state.ConversationData["poisoned"]; found {
		t.Fatal("failed turn's mutation was persisted")
	}
	if state.ConversationData["safe"] != true {
		t.Fatalf("conversationData = %+v, want the earlier value kept", state.ConversationData)
	}
	if state.Version != 2 {
		t.Fatalf("version = %d, want 2", state.Version)
	}
}

func TestRouter_OptionValidation(t *testing.T) {
	t.Parallel()

	lib := newGreetingLibrary(t)
	cases := []struct {
		name string
		opt  Option
	}{
		{"nil store", WithStateStore(nil)},
		{"nil system library", WithSystemLibrary(nil)},
		{"zero stack depth", WithMaxStackDepth(0)},
		{"zero concurrency", WithMaxConcurrentTurns(0)},
		{"empty priorities", WithRoutePriorities(nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(lib, tc.opt); !errors.Is(err, spec.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}

	if _, err := New(nil); !errors.Is(err, spec.ErrInvalidArgument) {
		t.Fatalf("nil root err = %v, want ErrInvalidArgument", err)
	}
}
