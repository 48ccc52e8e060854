// Package fsrecognizer loads intent definitions from a YAML file and builds
// regular-expression recognizers from them, so a bot's intents can be edited
// without recompiling.
//
// Definition file shape:
//
//	intents:
//	  - intent: Help
//	    patterns:
//	      - "(?i)^help"
//	      - "(?i)what can you do"
//	    locales:
//	      fr:
//	        - "(?i)^aide"
//	    scoreCap: 0.8
//
// "patterns" are the default-locale expressions; "locales" adds per-locale
// overrides. Multiple patterns for one locale are combined by alternation.
// "scoreCap" optionally bounds the intent's score in (0, 1].
package fsrecognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	botdialogs "github.com/flexigpt/botdialogs-go"
	"github.com/flexigpt/botdialogs-go/spec"
)

const maxDefinitionBytes = 1 << 20 // 1 MiB

type definitionFile struct {
	Intents []intentDefinition `yaml:"intents"`
}

type intentDefinition struct {
	Intent   string              `yaml:"intent"`
	Patterns []string            `yaml:"patterns"`
	Locales  map[string][]string `yaml:"locales"`

	// ScoreCap, when set, bounds the intent's recognition score so broad
	// catch-all patterns cannot out-compete specific intents.
	ScoreCap float64 `yaml:"scoreCap"`
}

// Load reads a definition file and returns one recognizer per intent, in file
// order. The returned recognizers are ready to Add to a RecognizerSet or to
// attach to a Library.
func Load(ctx context.Context, path string) ([]spec.Recognizer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fsrecognizer: %w", err)
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", spec.ErrInvalidArgument)
	}

	b, err := readAllLimited(path)
	if err != nil {
		return nil, fmt.Errorf("fsrecognizer: %w", err)
	}

	var def definitionFile
	if err := yaml.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("fsrecognizer: invalid YAML in %s: %w", path, err)
	}
	if len(def.Intents) == 0 {
		return nil, fmt.Errorf("fsrecognizer: %s defines no intents", path)
	}

	seen := map[string]bool{}
	recognizers := make([]spec.Recognizer, 0, len(def.Intents))
	for i, in := range def.Intents {
		r, err := buildRecognizer(in)
		if err != nil {
			return nil, fmt.Errorf("fsrecognizer: %s: intent %d: %w", path, i, err)
		}
		if seen[in.Intent] {
			return nil, fmt.Errorf("fsrecognizer: %s: duplicate intent %q", path, in.Intent)
		}
		seen[in.Intent] = true
		recognizers = append(recognizers, r)
	}
	return recognizers, nil
}

// LoadSet is a convenience wrapper that loads a definition file straight into
// a RecognizerSet with the given run order.
func LoadSet(ctx context.Context, path string, order botdialogs.RecognizeOrder) (*botdialogs.RecognizerSet, error) {
	recognizers, err := Load(ctx, path)
	if err != nil {
		return nil, err
	}
	set := botdialogs.NewRecognizerSet(order)
	for _, r := range recognizers {
		set.Add(r)
	}
	return set, nil
}

func buildRecognizer(in intentDefinition) (spec.Recognizer, error) {
	name := strings.TrimSpace(in.Intent)
	if name == "" {
		return nil, errors.New("intent name is required")
	}
	if len(in.Patterns) == 0 && len(in.Locales) == 0 {
		return nil, fmt.Errorf("intent %q has no patterns", name)
	}

	var r *botdialogs.RegexpRecognizer
	if len(in.Patterns) > 0 {
		re, err := compilePatterns(in.Patterns)
		if err != nil {
			return nil, fmt.Errorf("intent %q: %w", name, err)
		}
		r = botdialogs.NewRegexpRecognizer(name, re)
	}

	for locale, patterns := range in.Locales {
		locale = strings.TrimSpace(locale)
		if locale == "" {
			return nil, fmt.Errorf("intent %q has an empty locale key", name)
		}
		if len(patterns) == 0 {
			return nil, fmt.Errorf("intent %q locale %q has no patterns", name, locale)
		}
		re, err := compilePatterns(patterns)
		if err != nil {
			return nil, fmt.Errorf("intent %q locale %q: %w", name, locale, err)
		}
		if r == nil {
			r = botdialogs.NewRegexpRecognizer(name, nil)
		}
		r.Pattern(locale, re)
	}

	if in.ScoreCap != 0 {
		if in.ScoreCap < 0 || in.ScoreCap > 1 {
			return nil, fmt.Errorf("intent %q scoreCap %v out of range (0, 1]", name, in.ScoreCap)
		}
		limit := in.ScoreCap
		return &botdialogs.RecognizerFilter{
			Recognizer: r,
			OnRecognized: func(ctx context.Context, rc spec.RecognizeContext, res spec.IntentRecognizerResult) (spec.IntentRecognizerResult, error) {
				if res.Score > limit {
					res.Score = limit
				}
				return res, nil
			},
		}, nil
	}
	return r, nil
}

// compilePatterns validates each expression individually, then combines them
// by alternation so one recognizer covers the whole list.
func compilePatterns(patterns []string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, errors.New("empty pattern")
		}
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		parts = append(parts, "(?:"+p+")")
	}
	return regexp.Compile(strings.Join(parts, "|"))
}

func readAllLimited(path string) ([]byte, error) {
	if lst, lerr := os.Lstat(path); lerr == nil {
		if lst.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("%s must not be a symlink", path)
		}
		if !lst.Mode().IsRegular() {
			return nil, fmt.Errorf("%s must be a regular file", path)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, int64(maxDefinitionBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(b) > maxDefinitionBytes {
		return nil, fmt.Errorf("%s too large (max %d bytes)", path, maxDefinitionBytes)
	}
	return b, nil
}
