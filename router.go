package botdialogs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flexigpt/botdialogs-go/internal/keylock"
	"github.com/flexigpt/botdialogs-go/memstatestore"
	"github.com/flexigpt/botdialogs-go/spec"
)

// Router orchestrates one conversation turn: it loads persisted state,
// builds a session, gathers candidate routes from every registered library,
// disambiguates, dispatches to the winner, persists the resulting state and
// flushes the outbox through the send pipeline.
//
// Turns for the same conversation are serialized inside the router; turns
// for different conversations run in parallel.
type Router struct {
	logger *slog.Logger

	lib    *Library
	system *Library

	store     spec.StateStore
	connector spec.Connector
	locks     *keylock.KeyedMutex

	maxStackDepth      int
	maxConcurrentTurns int
	activeDialogFloor  float64
	priorities         RoutePriorities
	friendlyErrorText  string
	errorHandler       func(ctx context.Context, key spec.StateKey, err error)
}

// TurnResult reports the outcome of one processed turn.
type TurnResult struct {
	// Handled is false when no route qualified and no dialog was in
	// progress (the turn fell through unrouted), and after a recovered
	// handler failure.
	Handled bool

	// Responses is the ordered outbox produced by the turn. It is also
	// delivered to the configured Connector.
	Responses []spec.Message

	// Route is the winning candidate, or nil for fallback/unhandled turns.
	Route *spec.RouteResult
}

// Option configures a Router.
type Option func(*Router) error

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) error {
		r.logger = l
		return nil
	}
}

// WithStateStore replaces the default in-memory state store.
func WithStateStore(st spec.StateStore) Option {
	return func(r *Router) error {
		if st == nil {
			return fmt.Errorf("%w: nil state store", spec.ErrInvalidArgument)
		}
		r.store = st
		return nil
	}
}

// WithConnector sets the outbound send pipeline. Without one, responses are
// only reported in TurnResult.
func WithConnector(c spec.Connector) Option {
	return func(r *Router) error {
		r.connector = c
		return nil
	}
}

// WithSystemLibrary replaces the built-in prompt library instance.
func WithSystemLibrary(lib *Library) Option {
	return func(r *Router) error {
		if lib == nil {
			return fmt.Errorf("%w: nil system library", spec.ErrInvalidArgument)
		}
		r.system = lib
		return nil
	}
}

// WithMaxStackDepth bounds dialog nesting (default DefaultMaxStackDepth).
func WithMaxStackDepth(n int) Option {
	return func(r *Router) error {
		if n <= 0 {
			return fmt.Errorf("%w: max stack depth must be positive", spec.ErrInvalidArgument)
		}
		r.maxStackDepth = n
		return nil
	}
}

// WithMaxConcurrentTurns bounds batch concurrency (default
// DefaultMaxConcurrentTurns).
func WithMaxConcurrentTurns(n int) Option {
	return func(r *Router) error {
		if n <= 0 {
			return fmt.Errorf("%w: max concurrent turns must be positive", spec.ErrInvalidArgument)
		}
		r.maxConcurrentTurns = n
		return nil
	}
}

// WithRoutePriorities replaces the route-type priority assignment. The
// relative ordering is a product decision; reordering changes which routes
// can interrupt which.
func WithRoutePriorities(p RoutePriorities) Option {
	return func(r *Router) error {
		if len(p) == 0 {
			return fmt.Errorf("%w: empty route priorities", spec.ErrInvalidArgument)
		}
		r.priorities = p
		return nil
	}
}

// WithActiveDialogFloor replaces the floor applied to positive active-dialog
// scores (default DefaultActiveDialogFloor).
func WithActiveDialogFloor(f float64) Option {
	return func(r *Router) error {
		r.activeDialogFloor = f
		return nil
	}
}

// WithFriendlyErrorText replaces the generic message sent to users after a
// recovered handler failure.
func WithFriendlyErrorText(text string) Option {
	return func(r *Router) error {
		r.friendlyErrorText = text
		return nil
	}
}

// WithErrorHandler registers the operator-facing error channel. It receives
// full error detail that is never leaked to end users.
func WithErrorHandler(h func(ctx context.Context, key spec.StateKey, err error)) Option {
	return func(r *Router) error {
		r.errorHandler = h
		return nil
	}
}

// New builds a Router over a root library.
func New(root *Library, opts ...Option) (*Router, error) {
	if root == nil || root.name == "" {
		return nil, fmt.Errorf("%w: root library must be named", spec.ErrInvalidArgument)
	}
	r := &Router{
		logger:             slog.Default(),
		lib:                root,
		system:             NewSystemLibrary(),
		store:              memstatestore.New(),
		locks:              keylock.New(),
		maxStackDepth:      DefaultMaxStackDepth,
		maxConcurrentTurns: DefaultMaxConcurrentTurns,
		activeDialogFloor:  DefaultActiveDialogFloor,
		priorities:         DefaultRoutePriorities(),
		friendlyErrorText:  DefaultFriendlyErrorText,
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(r); err != nil {
			return nil, err
		}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Library returns the root library.
func (r *Router) Library() *Library { return r.lib }

// SystemLibrary returns the built-in prompt library.
func (r *Router) SystemLibrary() *Library { return r.system }

// resolveDialog resolves an optionally qualified dialog id across the root
// and system library trees.
func (r *Router) resolveDialog(id string) (qualified string, d Dialog, err error) {
	libName, dialogID, ok := SplitDialogID(id)
	if !ok {
		libName, dialogID = r.lib.name, id
	}
	lib, found := r.lib.libraryByName(libName)
	if !found {
		lib, found = r.system.libraryByName(libName)
	}
	if !found {
		return "", nil, fmt.Errorf("%w: %s", spec.ErrLibraryNotFound, libName)
	}
	d, found = lib.findDialog(dialogID)
	if !found {
		return "", nil, fmt.Errorf("%w: %s", spec.ErrDialogNotFound, QualifyDialogID(libName, dialogID))
	}
	return QualifyDialogID(libName, dialogID), d, nil
}

// ProcessMessage runs one turn for an inbound message. Handler failures are
// recovered: the user gets the friendly error text, full detail goes to the
// error handler, and the last persisted state stays authoritative. Only
// storage and send-pipeline failures are returned as errors.
func (r *Router) ProcessMessage(ctx context.Context, msg spec.Message) (TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}
	if msg.Type == "" {
		msg.Type = spec.MessageTypeMessage
	}
	addr := msg.Address
	if addr.ChannelID == "" || addr.ConversationID == "" || addr.UserID == "" {
		return TurnResult{}, fmt.Errorf("%w: message address needs channel, conversation and user ids", spec.ErrInvalidArgument)
	}

	key := addr.StateKey()
	unlock := r.locks.Lock(key.String())
	defer unlock()

	state, _, err := r.store.Get(ctx, key)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load session state %s: %w", key, err)
	}

	s := newSession(r, msg, state)

	// Top-level recognition, once per turn. Failures degrade to a zero
	// result; individual recognizer failures were already isolated inside
	// the set.
	if res, rerr := r.lib.recognizers.Recognize(ctx, spec.RecognizeContext{Text: msg.Text, Locale: msg.Locale}); rerr != nil {
		r.notifyError(ctx, key, fmt.Errorf("top-level recognition: %w", rerr))
	} else if res.Score > 0 {
		s.intent = &res
	}

	routes, err := r.findAllRoutes(ctx, s)
	if err != nil {
		return TurnResult{}, fmt.Errorf("find routes %s: %w", key, err)
	}
	best := bestRoute(routes, s.stack.Entries(), r.lib.name, r.priorities)

	handled, derr := r.dispatch(ctx, s, best)
	if derr != nil {
		return r.recoverTurn(ctx, s, key, derr)
	}

	if err := r.persist(ctx, s); err != nil {
		return TurnResult{}, err
	}

	result := TurnResult{Handled: handled, Responses: s.outbox, Route: best}
	if !handled {
		r.logger.Debug("turn unhandled", "key", key.String(), "text", msg.Text)
	}
	if err := r.flush(ctx, s.outbox); err != nil {
		return result, err
	}
	return result, nil
}

// ProcessBatch processes a batch of inbound messages with bounded
// concurrency. results[i] corresponds to msgs[i]; the returned error is the
// first per-turn failure, after every turn has finished.
func (r *Router) ProcessBatch(ctx context.Context, msgs []spec.Message) ([]TurnResult, error) {
	results := make([]TurnResult, len(msgs))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrentTurns)
	for i, msg := range msgs {
		g.Go(func() error {
			res, err := r.ProcessMessage(ctx, msg)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// findAllRoutes fans route finding out over every registered library (root
// and system trees, depth-first in registration order) and flattens the
// candidates into one pool.
func (r *Router) findAllRoutes(ctx context.Context, s *Session) ([]spec.RouteResult, error) {
	q := routeQuery{
		rc: spec.RecognizeContext{
			Text:   s.msg.Text,
			Locale: s.msg.Locale,
			Intent: s.intent,
		},
		callstack:         s.stack.Entries(),
		activeDialogFloor: r.activeDialogFloor,
	}

	libs := append(r.lib.libraryTree(), r.system.libraryTree()...)
	perLib := make([][]spec.RouteResult, len(libs))

	g, gctx := errgroup.WithContext(ctx)
	for i, lib := range libs {
		g.Go(func() (err error) {
			perLib[i], err = lib.findRoutes(gctx, q)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []spec.RouteResult
	for _, rs := range perLib {
		merged = append(merged, rs...)
	}
	return merged, nil
}

// dispatch invokes the winning route, or falls back to resuming the active
// dialog when nothing qualified. handled is false only when the stack was
// empty and no route won. Handler panics surface as errors.
func (r *Router) dispatch(ctx context.Context, s *Session, best *spec.RouteResult) (handled bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("dialog handler panic: %v", p)
		}
	}()

	if best == nil {
		if s.stack.Depth() == 0 {
			return false, nil
		}
		return true, r.routeToActiveDialog(ctx, s)
	}

	switch best.RouteType {
	case spec.RouteTypeActiveDialog:
		return true, r.routeToActiveDialog(ctx, s)

	case spec.RouteTypeStackAction:
		libName, dialogID, ok := SplitDialogID(best.RouteData.DialogID)
		if !ok {
			return true, fmt.Errorf("%w: stack route dialog id %q", spec.ErrInvalidArgument, best.RouteData.DialogID)
		}
		lib, err := r.routeLibrary(libName)
		if err != nil {
			return true, err
		}
		as := lib.stackActionSet(dialogID)
		if as == nil {
			return true, fmt.Errorf("%w: no stack actions for %s", spec.ErrInvalidArgument, best.RouteData.DialogID)
		}
		return true, as.SelectActionRoute(ctx, s, *best)

	case spec.RouteTypeGlobalAction:
		lib, err := r.routeLibrary(best.LibraryName)
		if err != nil {
			return true, err
		}
		return true, lib.actions.SelectActionRoute(ctx, s, *best)

	default:
		return true, fmt.Errorf("%w: route type %q", spec.ErrInvalidArgument, best.RouteType)
	}
}

func (r *Router) routeLibrary(name string) (*Library, error) {
	if lib, ok := r.lib.libraryByName(name); ok {
		return lib, nil
	}
	if lib, ok := r.system.libraryByName(name); ok {
		return lib, nil
	}
	return nil, fmt.Errorf("%w: %s", spec.ErrLibraryNotFound, name)
}

// routeToActiveDialog forwards the turn to whatever is on top of the stack.
func (r *Router) routeToActiveDialog(ctx context.Context, s *Session) error {
	top := s.stack.Active()
	if top == nil {
		return nil
	}
	_, d, err := r.resolveDialog(top.ID)
	if err != nil {
		return err
	}
	return d.ReplyReceived(ctx, s)
}

// recoverTurn applies the handler-failure policy: notify the operator
// channel, send only the friendly message, and preserve the last persisted
// state. A stack-depth overflow additionally resets the stack so the next
// turn does not overflow again; the failed turn's other mutations are still
// discarded, so the reset is applied on top of the last persisted state.
func (r *Router) recoverTurn(ctx context.Context, s *Session, key spec.StateKey, derr error) (TurnResult, error) {
	r.notifyError(ctx, key, derr)

	if errors.Is(derr, spec.ErrStackDepthExceeded) {
		state, _, gerr := r.store.Get(ctx, key)
		if gerr != nil {
			return TurnResult{}, fmt.Errorf("load session state %s: %w", key, gerr)
		}
		clean := newSession(r, s.msg, state)
		clean.stack.Clear()
		if err := r.persist(ctx, clean); err != nil {
			return TurnResult{}, err
		}
	}

	friendly := newSession(r, s.msg, spec.SessionState{})
	friendly.Send(r.friendlyErrorText)
	result := TurnResult{Handled: false, Responses: friendly.outbox}
	if err := r.flush(ctx, friendly.outbox); err != nil {
		return result, err
	}
	return result, nil
}

// persist writes the turn's state back once, last write wins.
func (r *Router) persist(ctx context.Context, s *Session) error {
	s.state.Callstack = s.stack.Entries()
	s.state.LastAccess = time.Now().UTC()
	s.state.Version++
	if err := r.store.Save(ctx, s.key, s.state); err != nil {
		return fmt.Errorf("save session state %s: %w", s.key, err)
	}
	return nil
}

func (r *Router) flush(ctx context.Context, outbox []spec.Message) error {
	if r.connector == nil || len(outbox) == 0 {
		return nil
	}
	if err := r.connector.Send(ctx, outbox); err != nil {
		return fmt.Errorf("send pipeline: %w", err)
	}
	return nil
}

func (r *Router) notifyError(ctx context.Context, key spec.StateKey, err error) {
	r.logger.Error("turn failed", "key", key.String(), "error", err)
	if r.errorHandler != nil {
		r.errorHandler(ctx, key, err)
	}
}
