package botdialogs

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/flexigpt/botdialogs-go/spec"
)

// RegexpRecognizer matches an utterance against per-locale regular
// expressions. The score is the matched substring length over the full
// utterance length, so broader matches score higher.
type RegexpRecognizer struct {
	intent   string
	patterns map[string]*regexp.Regexp // locale -> pattern; "" is the default
}

// NewRegexpRecognizer builds a recognizer for one intent with the default
// locale pattern. Additional locales are added with Pattern.
func NewRegexpRecognizer(intent string, re *regexp.Regexp) *RegexpRecognizer {
	return &RegexpRecognizer{
		intent:   intent,
		patterns: map[string]*regexp.Regexp{"": re},
	}
}

// Pattern registers a locale-specific pattern and returns the recognizer for
// chaining.
func (r *RegexpRecognizer) Pattern(locale string, re *regexp.Regexp) *RegexpRecognizer {
	r.patterns[locale] = re
	return r
}

func (r *RegexpRecognizer) Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error) {
	if err := ctx.Err(); err != nil {
		return spec.IntentRecognizerResult{}, err
	}

	re := r.patterns[rc.Locale]
	if re == nil {
		re = r.patterns[""]
	}
	if re == nil || rc.Text == "" {
		return spec.IntentRecognizerResult{}, nil
	}

	m := re.FindStringSubmatch(rc.Text)
	if m == nil {
		return spec.IntentRecognizerResult{}, nil
	}

	score := matchScore(m[0], rc.Text)
	return spec.IntentRecognizerResult{
		Score:      score,
		Intent:     r.intent,
		Expression: re.String(),
		Matched:    m,
	}, nil
}

// matchScore returns matched length over utterance length in runes, capped
// at 1.0.
func matchScore(matched, text string) float64 {
	tl := utf8.RuneCountInString(text)
	if tl == 0 {
		return 0
	}
	score := float64(utf8.RuneCountInString(matched)) / float64(tl)
	if score > 1 {
		score = 1
	}
	return score
}

// RecognizerFilter wraps a recognizer with an enablement gate and a
// post-recognition hook (e.g. rescoring). A nil Enabled always runs; a nil
// OnRecognized passes results through unchanged.
type RecognizerFilter struct {
	Recognizer spec.Recognizer

	Enabled      func(ctx context.Context, rc spec.RecognizeContext) bool
	OnRecognized func(ctx context.Context, rc spec.RecognizeContext, res spec.IntentRecognizerResult) (spec.IntentRecognizerResult, error)
}

func (f *RecognizerFilter) Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error) {
	if f.Enabled != nil && !f.Enabled(ctx, rc) {
		return spec.IntentRecognizerResult{}, nil
	}
	res, err := f.Recognizer.Recognize(ctx, rc)
	if err != nil {
		return spec.IntentRecognizerResult{}, err
	}
	if f.OnRecognized != nil {
		return f.OnRecognized(ctx, rc, res)
	}
	return res, nil
}

// RecognizeOrder selects how a RecognizerSet runs its members.
type RecognizeOrder string

const (
	// RecognizeOrderParallel scores all members concurrently and takes the
	// max, short-circuiting once a perfect score is seen.
	RecognizeOrderParallel RecognizeOrder = "parallel"

	// RecognizeOrderSeries scores members in registration order and stops at
	// the first perfect score.
	RecognizeOrderSeries RecognizeOrder = "series"
)

// errStopRecognize cancels an in-flight parallel fan-out once a perfect
// score has been found.
var errStopRecognize = errors.New("stop recognize")

// RecognizerSet combines recognizers under one scoring policy. Highest score
// wins; exact ties go to the earliest-registered member. A result carrying a
// null/"none" intent is capped at the none-intent floor so it can still be a
// fallback but never starves a genuine match of similar score.
//
// Members must be pure functions of (utterance, locale, prior dialog state);
// a failing member is isolated and contributes a zero score.
type RecognizerSet struct {
	mu          sync.RWMutex
	order       RecognizeOrder
	recognizers []spec.Recognizer

	noneFloor float64
	logger    *slog.Logger

	// cache memoizes recognition by (locale, utterance) across turns. It
	// assumes members ignore DialogData; sets with frame-dependent members
	// should leave it disabled.
	cache *lru.Cache[string, spec.IntentRecognizerResult]
}

// NewRecognizerSet builds an empty set with the given run order.
func NewRecognizerSet(order RecognizeOrder) *RecognizerSet {
	if order != RecognizeOrderSeries {
		order = RecognizeOrderParallel
	}
	return &RecognizerSet{
		order:     order,
		noneFloor: DefaultNoneIntentFloor,
		logger:    slog.Default(),
	}
}

// SetOrder replaces the run order for subsequent Recognize calls. Unknown
// values fall back to parallel.
func (rs *RecognizerSet) SetOrder(order RecognizeOrder) {
	if order != RecognizeOrderSeries {
		order = RecognizeOrderParallel
	}
	rs.mu.Lock()
	rs.order = order
	rs.mu.Unlock()
}

// SetLogger replaces the logger used for isolated member failures.
func (rs *RecognizerSet) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	rs.mu.Lock()
	rs.logger = l
	rs.mu.Unlock()
}

// SetNoneIntentFloor replaces the cap applied to none-intent scores.
func (rs *RecognizerSet) SetNoneIntentFloor(f float64) {
	rs.mu.Lock()
	rs.noneFloor = f
	rs.mu.Unlock()
}

// SetCacheSize enables (n > 0) or disables (n <= 0) the cross-turn
// recognition cache.
func (rs *RecognizerSet) SetCacheSize(n int) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if n <= 0 {
		rs.cache = nil
		return nil
	}
	c, err := lru.New[string, spec.IntentRecognizerResult](n)
	if err != nil {
		return err
	}
	rs.cache = c
	return nil
}

// Add appends a recognizer; registration order is the tie-break order.
func (rs *RecognizerSet) Add(r spec.Recognizer) *RecognizerSet {
	rs.mu.Lock()
	rs.recognizers = append(rs.recognizers, r)
	rs.mu.Unlock()
	return rs
}

// Len returns the number of registered recognizers.
func (rs *RecognizerSet) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.recognizers)
}

func (rs *RecognizerSet) Recognize(ctx context.Context, rc spec.RecognizeContext) (spec.IntentRecognizerResult, error) {
	if err := ctx.Err(); err != nil {
		return spec.IntentRecognizerResult{}, err
	}

	rs.mu.RLock()
	order := rs.order
	members := append([]spec.Recognizer(nil), rs.recognizers...)
	floor := rs.noneFloor
	logger := rs.logger
	cache := rs.cache
	rs.mu.RUnlock()

	if len(members) == 0 {
		return spec.IntentRecognizerResult{}, nil
	}

	cacheKey := rc.Locale + "\n" + rc.Text
	if cache != nil {
		if res, ok := cache.Get(cacheKey); ok {
			return res, nil
		}
	}

	var best spec.IntentRecognizerResult
	switch order {
	case RecognizeOrderSeries:
		for _, r := range members {
			res, err := r.Recognize(ctx, rc)
			if err != nil {
				logger.Warn("recognizer failed; skipping", "error", err)
				continue
			}
			res = capNoneIntent(res, floor)
			if res.Score > best.Score {
				best = res
			}
			if best.Score >= 1 {
				break
			}
		}

	default: // parallel
		results := make([]spec.IntentRecognizerResult, len(members))
		g, gctx := errgroup.WithContext(ctx)
		for i, r := range members {
			g.Go(func() error {
				res, err := r.Recognize(gctx, rc)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					logger.Warn("recognizer failed; skipping", "error", err)
					return nil
				}
				res = capNoneIntent(res, floor)
				results[i] = res
				if res.Score >= 1 {
					return errStopRecognize
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil && !errors.Is(err, errStopRecognize) {
			return spec.IntentRecognizerResult{}, err
		}
		for _, res := range results {
			if res.Score > best.Score {
				best = res
			}
		}
	}

	if cache != nil {
		cache.Add(cacheKey, best)
	}
	return best, nil
}

// capNoneIntent normalizes a null/"none" intent down to the configured floor.
func capNoneIntent(res spec.IntentRecognizerResult, floor float64) spec.IntentRecognizerResult {
	if res.Intent == "" || strings.EqualFold(res.Intent, "none") {
		if res.Score > floor {
			res.Score = floor
		}
	}
	return res
}
