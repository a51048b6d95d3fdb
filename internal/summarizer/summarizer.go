// Package summarizer turns a member's free-form self description into a
// structured profile using a generative-text provider. Provider output is
// untrusted: anything malformed, and any provider failure, yields a
// deterministic keyword-based summary instead.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pbaille/coffeechat/internal/metrics"
	"github.com/pbaille/coffeechat/internal/similarity"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	maxPurpose   = 140
	maxIntro     = 80
	maxInterests = 6

	defaultName     = "Anonymous"
	defaultIntro    = "Happy to chat about shared interests"
	defaultInterest = "NETWORKING"
)

// fallbackKeywords are matched against the lowercased narrative when no
// provider answer is usable
var fallbackKeywords = []string{"ai", "ml", "startup", "career", "fintech", "product", "design", "marketing", "security"}

// Summary is a structured profile proposal
type Summary struct {
	Name      string   `json:"name"`
	Purpose   string   `json:"purpose"`
	Interests []string `json:"interests"`
	Intro     string   `json:"intro"`
	// Generated is false when the summary came from the keyword fallback
	Generated bool `json:"-"`
}

// Generator produces a text completion for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer wraps a Generator with parsing, sanitizing, a circuit breaker and
// the keyword fallback
type Summarizer struct {
	gen     Generator
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a Summarizer. A nil gen always uses the fallback.
func New(gen Generator, timeout time.Duration, logger *zap.Logger, m *metrics.Collector) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("summarizer")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "summarizer",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Summarizer{gen: gen, breaker: breaker, timeout: timeout, logger: logger, metrics: m}
}

// Summarize always returns a usable summary
func (s *Summarizer) Summarize(ctx context.Context, name, narrative string) Summary {
	if s.gen == nil {
		return Fallback(name, narrative)
	}

	out, err := s.breaker.Execute(func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		text, err := s.gen.Generate(cctx, BuildPrompt(name, narrative))
		if err != nil {
			return nil, err
		}
		return Parse(text, name, narrative)
	})
	if err != nil {
		s.metrics.SummarizerFellBack()
		level := s.logger.Warn
		if errors.Is(err, gobreaker.ErrOpenState) {
			level = s.logger.Debug
		}
		level("summary generation failed, using fallback", zap.Error(err))
		return Fallback(name, narrative)
	}
	return out.(Summary)
}

// BuildPrompt asks for a JSON-only profile summary
func BuildPrompt(name, narrative string) string {
	var sb strings.Builder

	sb.WriteString("Return ONLY JSON for:\n")
	sb.WriteString(`{ "name": string, "purpose": string, "interests": string[], "intro": string }`)
	sb.WriteString("\n")
	sb.WriteString("- purpose: 80-140 chars, concrete\n")
	sb.WriteString("- interests: 3-6 tags\n")
	sb.WriteString("- intro: one line 30-80 chars, friendly\n")
	sb.WriteString("Input:\n")
	sb.WriteString("name: ")
	sb.WriteString(name)
	sb.WriteString("\nnarrative:\n")
	sb.WriteString(narrative)

	return sb.String()
}

var fenced = regexp.MustCompile("(?is)```json\\s*(.*?)```")

// extractJSON pulls the JSON object out of a model answer that may wrap it in
// a code fence or prose
func extractJSON(s string) string {
	if m := fenced.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// Parse decodes and sanitizes a model answer. An answer without usable
// interests is an error so the caller falls back.
func Parse(text, name, narrative string) (Summary, error) {
	var raw struct {
		Name      string `json:"name"`
		Purpose   string `json:"purpose"`
		Interests []any  `json:"interests"`
		Intro     string `json:"intro"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return Summary{}, fmt.Errorf("parse json: %w", err)
	}

	interests := make([]string, 0, len(raw.Interests))
	for _, v := range raw.Interests {
		if s, ok := v.(string); ok {
			interests = append(interests, s)
		}
	}
	tags := similarity.NormalizeTags(interests)
	if len(tags) > maxInterests {
		tags = tags[:maxInterests]
	}
	if len(tags) == 0 {
		return Summary{}, errors.New("no interests in answer")
	}

	out := Summary{
		Name:      firstNonEmpty(raw.Name, name, defaultName),
		Purpose:   clip(firstNonEmpty(raw.Purpose, narrative), maxPurpose),
		Interests: tags,
		Intro:     clip(strings.TrimSpace(raw.Intro), maxIntro),
		Generated: true,
	}
	return out, nil
}

// Fallback derives a summary from the narrative alone
func Fallback(name, narrative string) Summary {
	lower := strings.ToLower(narrative)
	var tags []string
	for _, kw := range fallbackKeywords {
		if strings.Contains(lower, kw) {
			tags = append(tags, strings.ToUpper(kw))
		}
	}
	if len(tags) == 0 {
		tags = []string{defaultInterest}
	}
	return Summary{
		Name:      firstNonEmpty(name, defaultName),
		Purpose:   clip(strings.TrimSpace(narrative), maxPurpose),
		Interests: tags,
		Intro:     defaultIntro,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
