package botdialogs

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/flexigpt/botdialogs-go/spec"
)

// ActionHandler runs a selected action with the route data captured when the
// action matched.
type ActionHandler func(ctx context.Context, s *Session, data spec.RouteData) error

// SelectActionHook runs before an action's default behavior. It must call
// next for the default behavior to run; not calling next vetoes it.
type SelectActionHook func(ctx context.Context, s *Session, data spec.RouteData, next func() error) error

// ActionOptions configures how an action matches and how its selection is
// intercepted.
type ActionOptions struct {
	// Matches lists intent names the action triggers on; the route score is
	// the intent's recognizer score.
	Matches []string

	// MatchesRegexp lists patterns evaluated against the utterance; the
	// route score is matched length over utterance length.
	MatchesRegexp []*regexp.Regexp

	// IntentThreshold overrides the set's acceptance threshold when > 0.
	IntentThreshold float64

	// DialogArgs is passed to Begin for begin-dialog and trigger actions.
	DialogArgs any

	// OnSelectAction intercepts selection (chain of responsibility).
	OnSelectAction SelectActionHook
}

type actionKind int

const (
	actionKindCustom actionKind = iota
	actionKindBeginDialog
	actionKindEndConversation
)

type actionEntry struct {
	name     string
	kind     actionKind
	dialogID string // begin-dialog target
	farewell string // end-conversation message
	handler  ActionHandler
	opts     ActionOptions
}

// ActionSet is a named collection of triggerable actions. A Library owns one
// global set plus one per dialog for stack-scoped actions.
type ActionSet struct {
	mu        sync.RWMutex
	actions   map[string]*actionEntry
	order     []string
	threshold float64
}

// NewActionSet builds an empty set with the default acceptance threshold.
func NewActionSet() *ActionSet {
	return &ActionSet{
		actions:   map[string]*actionEntry{},
		threshold: DefaultActionThreshold,
	}
}

// SetThreshold replaces the set-level acceptance threshold.
func (as *ActionSet) SetThreshold(t float64) {
	as.mu.Lock()
	as.threshold = t
	as.mu.Unlock()
}

func (as *ActionSet) add(e *actionEntry) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	if _, ok := as.actions[e.name]; ok {
		return fmt.Errorf("%w: %s", spec.ErrActionAlreadyExists, e.name)
	}
	as.actions[e.name] = e
	as.order = append(as.order, e.name)
	return nil
}

// Action registers a custom action with its handler.
func (as *ActionSet) Action(name string, h ActionHandler, opts *ActionOptions) error {
	if name == "" || h == nil {
		return fmt.Errorf("%w: action needs a name and a handler", spec.ErrInvalidArgument)
	}
	e := &actionEntry{name: name, kind: actionKindCustom, handler: h}
	if opts != nil {
		e.opts = *opts
	}
	return as.add(e)
}

// BeginDialogAction registers an action whose default behavior begins the
// given library-qualified dialog.
func (as *ActionSet) BeginDialogAction(name, dialogID string, opts *ActionOptions) error {
	if name == "" || dialogID == "" {
		return fmt.Errorf("%w: begin-dialog action needs a name and a dialog id", spec.ErrInvalidArgument)
	}
	e := &actionEntry{name: name, kind: actionKindBeginDialog, dialogID: dialogID}
	if opts != nil {
		e.opts = *opts
	}
	return as.add(e)
}

// EndConversationAction registers an action whose default behavior ends the
// conversation, optionally sending a farewell message first.
func (as *ActionSet) EndConversationAction(name, farewell string, opts *ActionOptions) error {
	if name == "" {
		return fmt.Errorf("%w: end-conversation action needs a name", spec.ErrInvalidArgument)
	}
	e := &actionEntry{name: name, kind: actionKindEndConversation, farewell: farewell}
	if opts != nil {
		e.opts = *opts
	}
	return as.add(e)
}

// FindActionRoutes scores every action against the turn's recognize context
// and returns the candidates sharing the maximum score (ties are passed up
// for later disambiguation, not resolved here). The result always contains
// at least the zero-score sentinel.
func (as *ActionSet) FindActionRoutes(ctx context.Context, rc spec.RecognizeContext, libraryName string) ([]spec.RouteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	as.mu.RLock()
	defer as.mu.RUnlock()

	best := 0.0
	var routes []spec.RouteResult
	for _, name := range as.order {
		e := as.actions[name]

		score, intent := e.bestMatch(rc)
		threshold := as.threshold
		if e.opts.IntentThreshold > 0 {
			threshold = e.opts.IntentThreshold
		}
		if score < threshold {
			continue
		}

		switch {
		case score > best:
			best = score
			routes = routes[:0]
		case score < best:
			continue
		}
		routes = append(routes, spec.RouteResult{
			Score:       score,
			LibraryName: libraryName,
			Label:       "action:" + e.name,
			RouteData: spec.RouteData{
				Action:      e.name,
				DialogID:    e.dialogID,
				DialogIndex: -1,
				Intent:      intent,
			},
		})
	}

	if len(routes) == 0 {
		routes = append(routes, spec.ZeroRoute(libraryName))
	}
	return routes, nil
}

// bestMatch returns the action's best matcher score and the recognition
// payload that produced it.
func (e *actionEntry) bestMatch(rc spec.RecognizeContext) (float64, *spec.IntentRecognizerResult) {
	var (
		best   float64
		intent *spec.IntentRecognizerResult
	)

	if rc.Intent != nil && rc.Intent.Intent != "" {
		for _, name := range e.opts.Matches {
			if name == rc.Intent.Intent && rc.Intent.Score > best {
				best = rc.Intent.Score
				intent = rc.Intent
			}
		}
	}

	for _, re := range e.opts.MatchesRegexp {
		m := re.FindStringSubmatch(rc.Text)
		if m == nil {
			continue
		}
		if score := matchScore(m[0], rc.Text); score > best {
			best = score
			intent = &spec.IntentRecognizerResult{
				Score:      score,
				Intent:     e.name,
				Expression: re.String(),
				Matched:    m,
			}
		}
	}

	return best, intent
}

// SelectActionRoute invokes the winning action. When the action declared an
// OnSelectAction hook, the hook runs first and must call its continuation
// for the default behavior to run.
func (as *ActionSet) SelectActionRoute(ctx context.Context, s *Session, route spec.RouteResult) error {
	as.mu.RLock()
	e := as.actions[route.RouteData.Action]
	as.mu.RUnlock()
	if e == nil {
		return fmt.Errorf("%w: action %q", spec.ErrInvalidArgument, route.RouteData.Action)
	}

	invoke := func() error {
		switch e.kind {
		case actionKindBeginDialog:
			return s.BeginDialog(ctx, e.dialogID, e.opts.DialogArgs)
		case actionKindEndConversation:
			return s.EndConversation(ctx, e.farewell)
		default:
			return e.handler(ctx, s, route.RouteData)
		}
	}

	if e.opts.OnSelectAction != nil {
		return e.opts.OnSelectAction(ctx, s, route.RouteData, invoke)
	}
	return invoke()
}
