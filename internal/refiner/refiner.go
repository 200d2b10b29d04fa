// Package refiner sends a cleaned transcript through a local Ollama
// model for light disfluency repair, then rejects any output that
// leaks prompt scaffolding or drifts from a transcription into a
// generated answer. Ported from
// original_source/app/transcription/text_refiner.py, which drove the
// same model (then via mlx_lm) with an equivalent system prompt and
// guard set.
package refiner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultModel names the local Ollama model pulled for refinement.
	// The original used a 3B MLX model; an equivalently-sized Ollama
	// model is substituted since refinement runs against the local
	// Ollama daemon instead of MLX.
	DefaultModel = "qwen2.5:3b-instruct"

	defaultBaseURL = "http://127.0.0.1:11434"
	maxVocabHints  = 24

	warmKeepAlive = 30 * time.Minute
)

// ErrRefiner wraps failures contacting the local refinement daemon.
var ErrRefiner = errors.New("refiner: request failed")

var questionStartRe = regexp.MustCompile(`(?i)^\s*(who|what|when|where|why|how|is|are|am|was|were|do|does|did|can|` +
	`could|should|would|will|which|whose|whom|what's|whats|isn't|aren't|` +
	`won't|can't|couldn't|shouldn't|wouldn't|wer|war|waren|wann|wo|warum|wie|` +
	`ist|sind|bin|kann|kannst|können|soll|sollte|würde|hat|haben|gibt|gibt's)\b`)

var answerStartRe = regexp.MustCompile(`(?i)^\s*(yes|no|it\s+is|it's|this\s+is|the\s+answer|you\s+can|you\s+should|` +
	`because|in\s+summary|to\s+answer|ja|nein|die\s+antwort|` +
	`du\s+kannst|sie\s+können|weil|kurz\s+gesagt)\b`)

var assistantyStartRe = regexp.MustCompile(`(?i)^\s*(sure|certainly|absolutely|here(?:'s| is)|let's|i can|` +
	`you can|to do this|first,|here are|this version)\b`)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9_']+`)

var commonWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "how": true,
	"i": true, "in": true, "is": true, "it": true, "its": true, "me": true,
	"my": true, "of": true, "on": true, "or": true, "our": true, "that": true,
	"the": true, "this": true, "to": true, "we": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true,
	"you": true, "your": true,
}

var leadingBulletRe = regexp.MustCompile(`^\s*[-*]\s+`)
var metaPrefixRe = regexp.MustCompile(`(?i)^(cleaned text|corrected text|revised text|output|answer|response|` +
	`explanation|final|result)\s*:\s*`)

var leakMarkers = []string{
	"you are a",
	"system prompt",
	"rules:",
	"self-correction examples",
	"as an ai",
	"this version is concise",
	"this version is",
	"directly addresses the question",
	"refined version",
	"rewritten version",
	"concise and directly",
}

const systemPromptTemplate = `You are a speech-to-text post-processor.
Output only cleaned transcription text.
Never answer, explain, summarize, or add content.
Keep all intended details and preserve full meaning.
Keep question intent as a question.
Handle self-corrections conservatively (replace only corrected phrase).
Remove filler words and false starts when clearly disfluent.
Use vocabulary corrections when relevant:
%s
`

// TextRefiner rewrites a cleaned transcript through a local LLM,
// guarding the output against prompt leakage and intent drift.
type TextRefiner struct {
	client *api.Client
	model  string
}

// New constructs a TextRefiner against the local Ollama daemon at
// baseURL (empty defaults to 127.0.0.1:11434) using model (empty
// defaults to DefaultModel).
func New(baseURL, model string) (*TextRefiner, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrRefiner, err)
	}
	if u.Hostname() != "127.0.0.1" && u.Hostname() != "localhost" {
		return nil, fmt.Errorf("%w: refiner is local-only, got host %q", ErrRefiner, u.Hostname())
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &TextRefiner{
		client: api.NewClient(u, httpClient),
		model:  model,
	}, nil
}

// Refine sends text through the local model along with relevant
// vocabulary hints, and returns the sanitized, drift-checked result.
// Returns "" (never an error) when the model's output is rejected by
// either guard, matching the original's "fall back to deterministic
// clean" behavior.
func (r *TextRefiner) Refine(ctx context.Context, text string, vocabulary map[string]string) (string, error) {
	hints := selectVocabHints(text, vocabulary, maxVocabHints)
	vocabLines := "  (none)"
	if len(hints) > 0 {
		lines := make([]string, len(hints))
		for i, h := range hints {
			lines[i] = fmt.Sprintf("  %q -> %q", h.wrong, h.right)
		}
		vocabLines = strings.Join(lines, "\n")
	}
	system := fmt.Sprintf(systemPromptTemplate, vocabLines)

	maxTokens := len(strings.Fields(text)) * 12 / 10
	if maxTokens < 20 {
		maxTokens = 20
	}
	if maxTokens > 80 {
		maxTokens = 80
	}

	stream := false
	temp := float32(0.0)
	req := &api.ChatRequest{
		Model: r.model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": temp,
			"num_predict": maxTokens,
		},
	}

	var result string
	err := r.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		result += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefiner, err)
	}

	candidate := sanitizeOutput(result)
	if candidate == "" {
		return "", nil
	}
	if isAnswerLike(text, candidate) {
		return "", nil
	}
	return candidate, nil
}

// WarmUp asks Ollama to load the refinement model and keep it resident
// for warmKeepAlive, so the first real refinement call doesn't pay the
// model-load cost.
func (r *TextRefiner) WarmUp(ctx context.Context) error {
	return r.keepAlive(ctx, &api.Duration{Duration: warmKeepAlive})
}

// Unload asks Ollama to evict the refinement model immediately,
// freeing its memory once this daemon no longer needs refinement hot.
func (r *TextRefiner) Unload(ctx context.Context) error {
	return r.keepAlive(ctx, &api.Duration{Duration: 0})
}

// keepAlive issues a message-less chat request whose only purpose is
// to carry a KeepAlive duration, the documented Ollama idiom for
// explicitly loading or evicting a model without running inference.
func (r *TextRefiner) keepAlive(ctx context.Context, keepAlive *api.Duration) error {
	stream := false
	req := &api.ChatRequest{
		Model:     r.model,
		Messages:  nil,
		Stream:    &stream,
		KeepAlive: keepAlive,
	}
	err := r.client.Chat(ctx, req, func(api.ChatResponse) error { return nil })
	if err != nil {
		return fmt.Errorf("%w: keep-alive: %v", ErrRefiner, err)
	}
	return nil
}

type vocabHint struct {
	wrong, right string
	overlap      int
}

// selectVocabHints narrows the dictionary down to entries whose
// tokens overlap with text, so the prompt stays small. Falls back to
// a small arbitrary slice when nothing overlaps, matching the
// original's handling of short technical phrases with no direct hit.
func selectVocabHints(text string, vocabulary map[string]string, maxHints int) []vocabHint {
	if len(vocabulary) == 0 {
		return nil
	}
	textTokens := tokenSet(text)

	var scored []vocabHint
	for wrong, right := range vocabulary {
		combined := wrong + " " + right
		vocabTokens := tokenSet(combined)
		overlap := 0
		for t := range vocabTokens {
			if len(t) > 1 && textTokens[t] {
				overlap++
			}
		}
		if overlap > 0 {
			scored = append(scored, vocabHint{wrong: wrong, right: right, overlap: overlap})
		}
	}

	if len(scored) == 0 {
		limit := maxHints / 2
		if limit > 8 {
			limit = 8
		}
		var fallback []vocabHint
		for wrong, right := range vocabulary {
			if len(fallback) >= limit {
				break
			}
			fallback = append(fallback, vocabHint{wrong: wrong, right: right})
		}
		return fallback
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].overlap != scored[j].overlap {
			return scored[i].overlap > scored[j].overlap
		}
		return len(scored[i].right) < len(scored[j].right)
	})
	if len(scored) > maxHints {
		scored = scored[:maxHints]
	}
	return scored
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(text, -1) {
		set[strings.ToLower(tok)] = true
	}
	return set
}

// sanitizeOutput strips prompt leakage and meta-response framing from
// raw model output, returning "" if nothing usable survives.
func sanitizeOutput(result string) string {
	text := strings.TrimSpace(result)
	if text == "" {
		return ""
	}

	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		lines = []string{text}
	}
	for _, line := range lines {
		candidate := strings.TrimSpace(line)
		candidate = strings.Trim(candidate, "`")
		candidate = strings.TrimSpace(candidate)
		candidate = leadingBulletRe.ReplaceAllString(candidate, "")
		candidate = metaPrefixRe.ReplaceAllString(candidate, "")
		candidate = strings.TrimSpace(candidate)
		candidate = strings.Trim(candidate, `"`)
		candidate = strings.Trim(candidate, "'")
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		lower := strings.ToLower(candidate)
		leaked := false
		for _, marker := range leakMarkers {
			if strings.Contains(lower, marker) {
				leaked = true
				break
			}
		}
		if leaked {
			continue
		}
		return candidate
	}
	return ""
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	return lines
}

func looksLikeQuestion(text string) bool {
	return LooksLikeQuestion(text)
}

// LooksLikeQuestion reports whether text ends with "?" or opens with an
// English or German question word. Exported so internal/pipeline's
// refinement gate can skip LLM refinement on question-shaped text
// without duplicating this word list.
func LooksLikeQuestion(text string) bool {
	stripped := strings.TrimSpace(text)
	return strings.HasSuffix(stripped, "?") || questionStartRe.MatchString(stripped)
}

func keywords(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(text, -1) {
		lower := strings.ToLower(tok)
		if len(lower) > 2 && !commonWords[lower] {
			set[lower] = true
		}
	}
	return set
}

// isAnswerLike detects when the model drifted from transcription
// repair into generating a response: over-long output, answer-style
// openers, converting a spoken question into a stated answer, or
// introducing too many keywords absent from the source.
func isAnswerLike(source, candidate string) bool {
	sourceWords := strings.Fields(source)
	candidateWords := strings.Fields(candidate)
	limit := len(sourceWords) * 2
	if len(sourceWords)+12 > limit {
		limit = len(sourceWords) + 12
	}
	if len(candidateWords) > limit {
		return true
	}

	lowerCandidate := strings.ToLower(strings.TrimSpace(candidate))
	if strings.HasPrefix(lowerCandidate, "answer:") ||
		strings.HasPrefix(lowerCandidate, "response:") ||
		strings.HasPrefix(lowerCandidate, "explanation:") {
		return true
	}
	if assistantyStartRe.MatchString(candidate) && !assistantyStartRe.MatchString(source) {
		return true
	}

	if looksLikeQuestion(source) {
		if answerStartRe.MatchString(lowerCandidate) {
			return true
		}
		if !looksLikeQuestion(candidate) && !questionStartRe.MatchString(lowerCandidate) {
			return true
		}
	}

	sourceKeywords := keywords(source)
	candidateKeywords := keywords(candidate)
	if len(candidateKeywords) > 0 {
		newTokens := 0
		for k := range candidateKeywords {
			if !sourceKeywords[k] {
				newTokens++
			}
		}
		noveltyRatio := float64(newTokens) / float64(len(candidateKeywords))
		if noveltyRatio > 0.45 && len(candidateKeywords) >= 6 {
			return true
		}
	}
	return false
}
