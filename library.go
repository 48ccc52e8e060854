package botdialogs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flexigpt/botdialogs-go/spec"
)

// Library is a named registry of dialogs, actions, recognizers and nested
// sub-libraries. Libraries are created at bot-configuration time and are
// read-mostly afterwards; registering concurrently with routing is
// unsupported.
type Library struct {
	name string

	mu         sync.RWMutex
	dialogs    map[string]Dialog
	children   map[string]*Library
	childOrder []string

	actions       *ActionSet
	dialogActions map[string]*ActionSet

	// triggers holds per-dialog trigger actions until they are hoisted into
	// the global set on first route finding.
	triggers      map[string]*ActionOptions
	triggerOrder  []string
	triggersBound bool

	recognizers *RecognizerSet
}

// NewLibrary builds an empty library.
func NewLibrary(name string) *Library {
	return &Library{
		name:          name,
		dialogs:       map[string]Dialog{},
		children:      map[string]*Library{},
		actions:       NewActionSet(),
		dialogActions: map[string]*ActionSet{},
		triggers:      map[string]*ActionOptions{},
		recognizers:   NewRecognizerSet(RecognizeOrderParallel),
	}
}

func (l *Library) Name() string { return l.name }

// QualifyDialogID returns the library-qualified form of a dialog id.
func QualifyDialogID(libraryName, dialogID string) string {
	return libraryName + ":" + dialogID
}

// SplitDialogID splits a library-qualified dialog id into its parts.
func SplitDialogID(id string) (libraryName, dialogID string, ok bool) {
	return strings.Cut(id, ":")
}

// Dialog registers a dialog under an unqualified id. Duplicate ids are a
// configuration error surfaced at registration time.
func (l *Library) Dialog(id string, d Dialog) error {
	if id == "" || strings.Contains(id, ":") || d == nil {
		return fmt.Errorf("%w: dialog id must be non-empty and unqualified", spec.ErrInvalidArgument)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.dialogs[id]; ok {
		return fmt.Errorf("%w: %s", spec.ErrDialogAlreadyExists, QualifyDialogID(l.name, id))
	}
	l.dialogs[id] = d
	return nil
}

// Library nests a child library. Nesting that would make a library its own
// descendant is rejected.
func (l *Library) Library(child *Library) error {
	if child == nil || child.name == "" {
		return fmt.Errorf("%w: child library must be named", spec.ErrInvalidArgument)
	}
	if child == l || child.contains(l) {
		return fmt.Errorf("%w: %s", spec.ErrLibraryCycle, child.name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.children[child.name]; ok {
		return fmt.Errorf("%w: library %s already registered", spec.ErrInvalidArgument, child.name)
	}
	l.children[child.name] = child
	l.childOrder = append(l.childOrder, child.name)
	return nil
}

// contains reports whether target is l or one of l's descendants.
func (l *Library) contains(target *Library) bool {
	if l == target {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, name := range l.childOrder {
		if l.children[name].contains(target) {
			return true
		}
	}
	return false
}

// Recognizer appends a top-level recognizer and returns the library for
// chaining.
func (l *Library) Recognizer(r spec.Recognizer) *Library {
	l.recognizers.Add(r)
	return l
}

// RecognizerSet exposes the library's recognizer set for configuration.
func (l *Library) RecognizerSet() *RecognizerSet { return l.recognizers }

// Actions exposes the library's global action set.
func (l *Library) Actions() *ActionSet { return l.actions }

// DialogActions returns the stack-scoped action set of a registered dialog,
// creating it on first use.
func (l *Library) DialogActions(dialogID string) (*ActionSet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.dialogs[dialogID]; !ok {
		return nil, fmt.Errorf("%w: %s", spec.ErrDialogNotFound, QualifyDialogID(l.name, dialogID))
	}
	as := l.dialogActions[dialogID]
	if as == nil {
		as = NewActionSet()
		l.dialogActions[dialogID] = as
	}
	return as, nil
}

// TriggerAction declares a global "begin this dialog" action for a
// registered dialog. The action is hoisted into the library's global set
// lazily, once, on first route finding.
func (l *Library) TriggerAction(dialogID string, opts *ActionOptions) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.dialogs[dialogID]; !ok {
		return fmt.Errorf("%w: %s", spec.ErrDialogNotFound, QualifyDialogID(l.name, dialogID))
	}
	if _, ok := l.triggers[dialogID]; ok {
		return fmt.Errorf("%w: trigger for %s", spec.ErrActionAlreadyExists, QualifyDialogID(l.name, dialogID))
	}
	l.triggers[dialogID] = opts
	l.triggerOrder = append(l.triggerOrder, dialogID)
	return nil
}

// bindTriggers hoists declared trigger actions into the global action set.
// Idempotent; runs once.
func (l *Library) bindTriggers() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.triggersBound {
		return nil
	}
	for _, dialogID := range l.triggerOrder {
		opts := l.triggers[dialogID]
		qualified := QualifyDialogID(l.name, dialogID)
		if err := l.actions.BeginDialogAction(qualified, qualified, opts); err != nil {
			return err
		}
	}
	l.triggersBound = true
	return nil
}

// stackActionSet returns the dialog's stack-scoped action set, or nil.
func (l *Library) stackActionSet(dialogID string) *ActionSet {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dialogActions[dialogID]
}

// findDialog resolves an unqualified dialog id in this library.
func (l *Library) findDialog(dialogID string) (Dialog, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.dialogs[dialogID]
	return d, ok
}

// libraryTree returns the library and its descendants depth-first in
// registration order.
func (l *Library) libraryTree() []*Library {
	out := []*Library{l}
	l.mu.RLock()
	order := append([]string(nil), l.childOrder...)
	children := make([]*Library, 0, len(order))
	for _, name := range order {
		children = append(children, l.children[name])
	}
	l.mu.RUnlock()
	for _, c := range children {
		out = append(out, c.libraryTree()...)
	}
	return out
}

// libraryByName resolves a library name within this library's tree.
func (l *Library) libraryByName(name string) (*Library, bool) {
	for _, lib := range l.libraryTree() {
		if lib.name == name {
			return lib, true
		}
	}
	return nil, false
}

// routeQuery is the per-turn input to route finding.
type routeQuery struct {
	rc        spec.RecognizeContext
	callstack []spec.DialogStackEntry

	activeDialogFloor float64
}

// findRoutes fans out over the library's three route sources in parallel and
// merges the candidates. Each source contributes a non-empty list (padded
// with the zero-score sentinel).
func (l *Library) findRoutes(ctx context.Context, q routeQuery) ([]spec.RouteResult, error) {
	if err := l.bindTriggers(); err != nil {
		return nil, err
	}

	// A library with its own recognizers scopes intent matching to them;
	// libraries without any inherit the top-level result.
	if l.recognizers.Len() > 0 {
		res, err := l.recognizers.Recognize(ctx, spec.RecognizeContext{Text: q.rc.Text, Locale: q.rc.Locale})
		if err != nil {
			return nil, fmt.Errorf("library %s recognition: %w", l.name, err)
		}
		q.rc.Intent = nil
		if res.Score > 0 {
			q.rc.Intent = &res
		}
	}

	var active, stacked, global []spec.RouteResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		active, err = l.findActiveDialogRoutes(gctx, q)
		return err
	})
	g.Go(func() (err error) {
		stacked, err = l.findStackActionRoutes(gctx, q)
		return err
	})
	g.Go(func() (err error) {
		global, err = l.findGlobalActionRoutes(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]spec.RouteResult, 0, len(active)+len(stacked)+len(global))
	merged = append(merged, active...)
	merged = append(merged, stacked...)
	merged = append(merged, global...)
	return merged, nil
}

// findActiveDialogRoutes asks the active dialog, when it belongs to this
// library, to score the message. Positive scores are floored so a topic in
// progress never loses to global noise of similar confidence.
func (l *Library) findActiveDialogRoutes(ctx context.Context, q routeQuery) ([]spec.RouteResult, error) {
	top := len(q.callstack) - 1
	if top < 0 {
		return []spec.RouteResult{spec.ZeroRoute(l.name)}, nil
	}

	frame := q.callstack[top]
	libName, dialogID, ok := SplitDialogID(frame.ID)
	if !ok || libName != l.name {
		return []spec.RouteResult{spec.ZeroRoute(l.name)}, nil
	}
	d, ok := l.findDialog(dialogID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", spec.ErrDialogNotFound, frame.ID)
	}

	rc := q.rc
	rc.DialogData = frame.State
	res, err := d.Recognize(ctx, rc)
	if err != nil {
		return nil, err
	}

	score := res.Score
	if score > 0 && score < q.activeDialogFloor {
		score = q.activeDialogFloor
	}
	if score <= 0 {
		return []spec.RouteResult{spec.ZeroRoute(l.name)}, nil
	}
	return []spec.RouteResult{{
		Score:       score,
		LibraryName: l.name,
		Label:       "activeDialog:" + frame.ID,
		RouteType:   spec.RouteTypeActiveDialog,
		RouteData: spec.RouteData{
			DialogID:    frame.ID,
			DialogIndex: top,
			Intent:      &res,
		},
	}}, nil
}

// findStackActionRoutes walks the callstack top to bottom and collects
// stack-scoped action matches for frames owned by this library, tagging each
// with the frame index so selection targets the right frame.
func (l *Library) findStackActionRoutes(ctx context.Context, q routeQuery) ([]spec.RouteResult, error) {
	var routes []spec.RouteResult
	for i := len(q.callstack) - 1; i >= 0; i-- {
		frame := q.callstack[i]
		libName, dialogID, ok := SplitDialogID(frame.ID)
		if !ok || libName != l.name {
			continue
		}

		l.mu.RLock()
		as := l.dialogActions[dialogID]
		l.mu.RUnlock()
		if as == nil {
			continue
		}

		rc := q.rc
		rc.DialogData = frame.State
		found, err := as.FindActionRoutes(ctx, rc, l.name)
		if err != nil {
			return nil, err
		}
		for _, r := range found {
			if r.Score <= 0 {
				continue
			}
			r.RouteType = spec.RouteTypeStackAction
			r.RouteData.DialogID = frame.ID
			r.RouteData.DialogIndex = i
			routes = append(routes, r)
		}
	}

	if len(routes) == 0 {
		routes = append(routes, spec.ZeroRoute(l.name))
	}
	return routes, nil
}

// findGlobalActionRoutes asks the library's global action set, independent of
// stack position.
func (l *Library) findGlobalActionRoutes(ctx context.Context, q routeQuery) ([]spec.RouteResult, error) {
	found, err := l.actions.FindActionRoutes(ctx, q.rc, l.name)
	if err != nil {
		return nil, err
	}
	for i := range found {
		if found[i].Score > 0 {
			found[i].RouteType = spec.RouteTypeGlobalAction
		}
	}
	return found, nil
}
