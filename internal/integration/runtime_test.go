package integration

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	botdialogs "github.com/flexigpt/botdialogs-go"
	"github.com/flexigpt/botdialogs-go/memstatestore"
	"github.com/flexigpt/botdialogs-go/spec"
)

// newOrderBot builds a two-library bot: a root library delegating order
// tracking to a nested "orders" library, with a stack-scoped cancel action on
// the tracking dialog.
func newOrderBot(t *testing.T, store spec.StateStore, conn spec.Connector) *botdialogs.Router {
	t.Helper()

	orders := botdialogs.NewLibrary("orders")
	track := botdialogs.NewWaterfall(
		func(ctx context.Context, s *botdialogs.Session, _ spec.DialogResult) error {
			return s.BeginDialog(ctx, "system:"+botdialogs.TextPromptDialog, botdialogs.PromptOptions{
				Prompt: "Which order number?",
			})
		},
		func(ctx context.Context, s *botdialogs.Session, res spec.DialogResult) error {
			num, _ := res.Response.(string)
			s.ConversationData()["lastOrder"] = num
			s.Send("Order %s is on its way.", num)
			return s.EndDialog(ctx)
		},
	)
	if err := orders.Dialog("track", track); err != nil {
		t.Fatalf("Dialog: %v", err)
	}
	as, err := orders.DialogActions("track")
	if err != nil {
		t.Fatalf("DialogActions: %v", err)
	}
	err = as.Action("abort", func(ctx context.Context, s *botdialogs.Session, data spec.RouteData) error {
		s.Send("Tracking canceled.")
		return s.CancelDialog(ctx, data.DialogIndex, "", nil)
	}, &botdialogs.ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)^never mind$`)},
	})
	if err != nil {
		t.Fatalf("Action: %v", err)
	}

	root := botdialogs.NewLibrary("root")
	if err := root.Library(orders); err != nil {
		t.Fatalf("Library: %v", err)
	}
	err = root.Actions().BeginDialogAction("track", "orders:track", &botdialogs.ActionOptions{
		MatchesRegexp: []*regexp.Regexp{regexp.MustCompile(`(?i)track my order`)},
	})
	if err != nil {
		t.Fatalf("BeginDialogAction: %v", err)
	}

	opts := []botdialogs.Option{}
	if store != nil {
		opts = append(opts, botdialogs.WithStateStore(store))
	}
	if conn != nil {
		opts = append(opts, botdialogs.WithConnector(conn))
	}
	r, err := botdialogs.New(root, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestCrossLibraryConversation(t *testing.T) {
	t.Parallel()

	conn := &recordingConnector{}
	store := memstatestore.New()
	r := newOrderBot(t, store, conn)
	ctx := context.Background()

	if _, err := r.ProcessMessage(ctx, message("c1", "please track my order")); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if got := conn.lastText(t); got != "Which order number?" {
		t.Fatalf("turn 1 sent %q", got)
	}

	// Mid-prompt the stack spans two libraries' dialogs.
	state, ok, err := store.Get(ctx, message("c1", "").Address.StateKey())
	if err != nil || !ok {
		t.Fatalf("state: ok %v err %v", ok, err)
	}
	if len(state.Callstack) != 2 ||
		state.Callstack[0].ID != "orders:track" ||
		state.Callstack[1].ID != "system:prompt-text" {
		t.Fatalf("callstack = %+v", state.Callstack)
	}

	if _, err := r.ProcessMessage(ctx, message("c1", "A-1042")); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if got := conn.lastText(t); got != "Order A-1042 is on its way." {
		t.Fatalf("turn 2 sent %q", got)
	}

	state, _, err = store.Get(ctx, message("c1", "").Address.StateKey())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Callstack) != 0 {
		t.Fatalf("callstack = %+v, want empty", state.Callstack)
	}
	if state.ConversationData["lastOrder"] != "A-1042" {
		t.Fatalf("conversationData = %+v", state.ConversationData)
	}
}

func TestStackActionCancelsNestedDialog(t *testing.T) {
	t.Parallel()

	conn := &recordingConnector{}
	store := memstatestore.New()
	r := newOrderBot(t, store, conn)
	ctx := context.Background()

	if _, err := r.ProcessMessage(ctx, message("c1", "track my order")); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	res, err := r.ProcessMessage(ctx, message("c1", "never mind"))
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if res.Route == nil || res.Route.RouteType != spec.RouteTypeStackAction {
		t.Fatalf("route = %+v, want a stack action", res.Route)
	}
	if got := conn.lastText(t); got != "Tracking canceled." {
		t.Fatalf("turn 2 sent %q", got)
	}

	state, _, err := store.Get(ctx, message("c1", "").Address.StateKey())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Callstack) != 0 {
		t.Fatalf("callstack = %+v, want cleared by cancel", state.Callstack)
	}
}

func TestStatePersistsAcrossRouterInstances(t *testing.T) {
	t.Parallel()

	// A second router over the same store continues the conversation, i.e.
	// everything needed to resume lives in the persisted state.
	store := memstatestore.New()
	ctx := context.Background()

	first := newOrderBot(t, store, nil)
	if _, err := first.ProcessMessage(ctx, message("c1", "track my order")); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	conn := &recordingConnector{}
	second := newOrderBot(t, store, conn)
	if _, err := second.ProcessMessage(ctx, message("c1", "B-7")); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if got := conn.lastText(t); got != "Order B-7 is on its way." {
		t.Fatalf("turn 2 sent %q", got)
	}
}

func TestIndependentConversationsDoNotInterfere(t *testing.T) {
	t.Parallel()

	store := memstatestore.New()
	r := newOrderBot(t, store, nil)
	ctx := context.Background()

	const convs = 6
	msgs := make([]spec.Message, 0, convs)
	for i := range convs {
		msgs = append(msgs, message(fmt.Sprintf("c%d", i), "track my order"))
	}
	if _, err := r.ProcessBatch(ctx, msgs); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	replies := make([]spec.Message, 0, convs)
	for i := range convs {
		replies = append(replies, message(fmt.Sprintf("c%d", i), fmt.Sprintf("ORD-%d", i)))
	}
	if _, err := r.ProcessBatch(ctx, replies); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	for i := range convs {
		state, ok, err := store.Get(ctx, message(fmt.Sprintf("c%d", i), "").Address.StateKey())
		if err != nil || !ok {
			t.Fatalf("conv %d state: ok %v err %v", i, ok, err)
		}
		want := fmt.Sprintf("ORD-%d", i)
		if state.ConversationData["lastOrder"] != want {
			t.Fatalf("conv %d lastOrder = %v, want %s", i, state.ConversationData["lastOrder"], want)
		}
	}
}
