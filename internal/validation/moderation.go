package validation

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/storyforge/shield/internal/logging"
)

// CheckResult is the outcome of one moderation check.
type CheckResult struct {
	Reasons    []string
	Confidence float64
}

// Check is a single independent moderation signal.
type Check func(ctx context.Context, text string) (CheckResult, error)

// ModerationResult aggregates all checks: reasons are the union of
// violations, approval requires an empty union, and confidence is the
// minimum across checks so one uncertain check drags the aggregate down.
type ModerationResult struct {
	Approved   bool
	Reasons    []string
	Confidence float64
}

// Moderator fans moderation checks out in parallel and joins them all
// before aggregating. A failing or panicking check contributes zero
// violations with confidence 0 and never aborts its siblings.
type Moderator struct {
	checks []Check
	logger *logging.Logger
}

// NewModerator creates a moderator with the built-in profanity,
// toxicity, and PII checks.
func NewModerator(logger *logging.Logger) *Moderator {
	return &Moderator{
		checks: []Check{ProfanityCheck, ToxicityCheck, PIICheck},
		logger: logger,
	}
}

// NewModeratorWithChecks creates a moderator with a custom check set.
func NewModeratorWithChecks(logger *logging.Logger, checks ...Check) *Moderator {
	return &Moderator{checks: checks, logger: logger}
}

// Moderate runs every check concurrently and aggregates once all have
// settled.
func (m *Moderator) Moderate(ctx context.Context, text string) ModerationResult {
	results := make([]CheckResult, len(m.checks))

	var wg sync.WaitGroup
	for i, check := range m.checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("moderation check %d panicked: %v", i, r)
					results[i] = CheckResult{Confidence: 0}
				}
			}()

			result, err := check(ctx, text)
			if err != nil {
				m.logger.Warn("moderation check %d failed: %v", i, err)
				results[i] = CheckResult{Confidence: 0}
				return
			}
			results[i] = result
		}(i, check)
	}
	wg.Wait()

	agg := ModerationResult{Confidence: 1}
	seen := make(map[string]bool)
	for _, result := range results {
		for _, reason := range result.Reasons {
			if !seen[reason] {
				seen[reason] = true
				agg.Reasons = append(agg.Reasons, reason)
			}
		}
		if result.Confidence < agg.Confidence {
			agg.Confidence = result.Confidence
		}
	}
	agg.Approved = len(agg.Reasons) == 0
	return agg
}

var profanityTerms = []string{
	"damn", "hell", "crap", "bastard", "bloody",
}

// ProfanityCheck flags known profane terms.
func ProfanityCheck(ctx context.Context, text string) (CheckResult, error) {
	lower := strings.ToLower(text)
	for _, term := range profanityTerms {
		if containsWord(lower, term) {
			return CheckResult{Reasons: []string{"profanity"}, Confidence: 0.9}, nil
		}
	}
	return CheckResult{Confidence: 0.9}, nil
}

var toxicityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(kill|hurt|destroy)\s+(you|them|him|her|yourself)\b`),
	regexp.MustCompile(`(?i)\b(hate|despise)\s+(you|everyone|people)\b`),
	regexp.MustCompile(`(?i)\byou('re| are)\s+(worthless|stupid|pathetic)\b`),
}

// ToxicityCheck applies heuristic patterns for threatening or abusive
// phrasing. A heuristic signal, so its confidence is lower than the
// wordlist check.
func ToxicityCheck(ctx context.Context, text string) (CheckResult, error) {
	for _, pattern := range toxicityPatterns {
		if pattern.MatchString(text) {
			return CheckResult{Reasons: []string{"toxicity"}, Confidence: 0.7}, nil
		}
	}
	return CheckResult{Confidence: 0.7}, nil
}

// PIICheck flags personally identifiable information in the text.
func PIICheck(ctx context.Context, text string) (CheckResult, error) {
	labels := DetectPII(text)
	if len(labels) == 0 {
		return CheckResult{Confidence: 0.95}, nil
	}
	reasons := make([]string, len(labels))
	for i, label := range labels {
		reasons[i] = "pii:" + label
	}
	return CheckResult{Reasons: reasons, Confidence: 0.95}, nil
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
