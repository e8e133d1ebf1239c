// Package intent maps user text to one of the fixed wellness intents using a
// regex fast path with an LLM classifier fallback. Detection never fails
// outward: every error path collapses to the small-talk fallback.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/well-bot-agent/internal/logger"
)

const (
	// FallbackIntent routes to the LLM small-talk path.
	FallbackIntent = "small_talk"

	regexConfidence    = 0.95
	fallbackConfidence = 0.3
)

// Result is the detector's output triple.
type Result struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Args       map[string]string `json:"args"`
}

// Classifier is the external LLM classification capability. It returns the
// raw JSON object text; parsing and fail-open handling happen here.
type Classifier interface {
	ClassifyIntent(ctx context.Context, text string) (string, error)
}

type pattern struct {
	intent string
	re     *regexp.Regexp
}

var (
	reTodoAddContent   = regexp.MustCompile(`(?i)\badd\s+to-?do\s+(.+)`)
	reGratitudeContent = regexp.MustCompile(`(?i)\b(gratitude|grateful|thankful)\s+(.+)`)
	reJournalTopic     = regexp.MustCompile(`(?i)\babout\s+(.+)`)
	reCompleteItem     = regexp.MustCompile(`(?i)\b(complete|finish|done)\s+(.+)`)
	reDeleteItem       = regexp.MustCompile(`(?i)\b(delete|remove)\s+(.+)`)
)

type Detector struct {
	classifier Classifier
	log        *logger.Logger
	patterns   []pattern
}

// NewDetector compiles the fast-path patterns. Order matters: the first
// matching pattern wins.
func NewDetector(classifier Classifier, log *logger.Logger) *Detector {
	return &Detector{
		classifier: classifier,
		log:        log,
		patterns: []pattern{
			{"journal.start", regexp.MustCompile(`(?i)\bstart\s+journal\b`)},
			{"todo.list", regexp.MustCompile(`(?i)\bshow\s+(my\s+)?to-?do\b`)},
			{"todo.add", regexp.MustCompile(`(?i)\badd\s+to-?do\b`)},
			{"quote.get", regexp.MustCompile(`(?i)\b(give\s+me\s+a\s+)?quote\b`)},
			{"meditation.play", regexp.MustCompile(`(?i)\b(start\s+)?meditation\b`)},
			{"session.end", regexp.MustCompile(`(?i)\b(bye|talk\s+later|goodbye)\b`)},
		},
	}
}

// Detect runs the regex fast path first and only consults the classifier when
// no pattern matches.
func (d *Detector) Detect(ctx context.Context, text string) Result {
	start := time.Now()
	masked := logger.Mask(text)

	if res, ok := d.tryPatterns(text); ok {
		d.log.Info("intent detected via regex: intent=%s confidence=%.2f duration_ms=%d text=%s",
			res.Intent, res.Confidence, time.Since(start).Milliseconds(), masked)
		return res
	}

	d.log.Info("no regex match, using LLM classifier: text=%s", masked)

	raw, err := d.classifier.ClassifyIntent(ctx, text)
	if err != nil {
		d.log.Error("intent classification failed, defaulting to small_talk: err=%v duration_ms=%d text=%s",
			err, time.Since(start).Milliseconds(), masked)
		return fallbackResult()
	}

	res, err := parseClassifierResult(raw)
	if err != nil {
		d.log.Error("classifier returned unusable payload, defaulting to small_talk: err=%v text=%s",
			err, masked)
		return fallbackResult()
	}

	// The classifier often labels correctly but skips argument extraction;
	// fill from the same per-intent captures the regex path uses.
	if len(res.Args) == 0 {
		if extracted := extractArgs(text, res.Intent); len(extracted) > 0 {
			res.Args = extracted
		}
	}

	d.log.Info("intent detected via LLM: intent=%s confidence=%.2f duration_ms=%d text=%s",
		res.Intent, res.Confidence, time.Since(start).Milliseconds(), masked)
	return res
}

func (d *Detector) tryPatterns(text string) (Result, bool) {
	for _, p := range d.patterns {
		if !p.re.MatchString(text) {
			continue
		}
		// todo.add needs trailing content after the verb; without it the
		// detection falls through rather than returning an empty item.
		if p.intent == "todo.add" {
			m := reTodoAddContent.FindStringSubmatch(text)
			if m == nil || strings.TrimSpace(m[1]) == "" {
				continue
			}
		}
		return Result{
			Intent:     p.intent,
			Confidence: regexConfidence,
			Args:       extractArgs(text, p.intent),
		}, true
	}
	return Result{}, false
}

func fallbackResult() Result {
	return Result{
		Intent:     FallbackIntent,
		Confidence: fallbackConfidence,
		Args:       map[string]string{},
	}
}

func extractArgs(text, intentName string) map[string]string {
	args := map[string]string{}

	capture := func(re *regexp.Regexp, group int, key string) {
		if m := re.FindStringSubmatch(text); m != nil {
			if v := strings.TrimSpace(m[group]); v != "" {
				args[key] = v
			}
		}
	}

	switch intentName {
	case "todo.add":
		capture(reTodoAddContent, 1, "content")
	case "gratitude.add":
		capture(reGratitudeContent, 2, "content")
	case "journal.start":
		capture(reJournalTopic, 1, "topic")
	case "todo.complete":
		capture(reCompleteItem, 2, "item")
	case "todo.delete":
		capture(reDeleteItem, 2, "item")
	}

	return args
}

// parseClassifierResult decodes the classifier's raw JSON. All three keys are
// required; confidence accepts a number or numeric string and is clamped to
// [0,1].
func parseClassifierResult(raw string) (Result, error) {
	var payload struct {
		Intent     string         `json:"intent"`
		Confidence any            `json:"confidence"`
		Args       map[string]any `json:"args"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if payload.Intent == "" {
		return Result{}, errors.New("classifier response missing intent")
	}
	if payload.Confidence == nil {
		return Result{}, errors.New("classifier response missing confidence")
	}
	if payload.Args == nil {
		return Result{}, errors.New("classifier response missing args")
	}

	confidence, err := coerceConfidence(payload.Confidence)
	if err != nil {
		return Result{}, err
	}

	args := make(map[string]string, len(payload.Args))
	for k, v := range payload.Args {
		args[k] = fmt.Sprint(v)
	}

	return Result{Intent: payload.Intent, Confidence: confidence, Args: args}, nil
}

func coerceConfidence(v any) (float64, error) {
	var c float64
	switch t := v.(type) {
	case float64:
		c = t
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("confidence not numeric: %q", t)
		}
		c = parsed
	default:
		return 0, fmt.Errorf("confidence has unexpected type %T", v)
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c, nil
}
