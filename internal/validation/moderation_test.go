package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storyforge/shield/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New("validation-test", false)
}

func TestModerateCleanText(t *testing.T) {
	t.Parallel()

	m := NewModerator(testLogger())
	result := m.Moderate(context.Background(), "Once upon a time there was a brave knight.")

	assert.True(t, result.Approved)
	assert.Empty(t, result.Reasons)
	assert.InDelta(t, 0.7, result.Confidence, 0.001, "aggregate confidence is the minimum across checks")
}

func TestModerateFlagsProfanity(t *testing.T) {
	t.Parallel()

	m := NewModerator(testLogger())
	result := m.Moderate(context.Background(), "that damn dragon again")

	assert.False(t, result.Approved)
	assert.Contains(t, result.Reasons, "profanity")
}

func TestModerateFlagsPII(t *testing.T) {
	t.Parallel()

	m := NewModerator(testLogger())
	result := m.Moderate(context.Background(), "contact me at a@b.com")

	assert.False(t, result.Approved)
	assert.Contains(t, result.Reasons, "pii:email")
}

func TestModerateUnionsReasonsAcrossChecks(t *testing.T) {
	t.Parallel()

	m := NewModerator(testLogger())
	result := m.Moderate(context.Background(), "damn you, my ssn is 123-45-6789")

	assert.False(t, result.Approved)
	assert.Contains(t, result.Reasons, "profanity")
	assert.Contains(t, result.Reasons, "pii:ssn")
}

func TestModerateFailingCheckDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	failing := func(ctx context.Context, text string) (CheckResult, error) {
		return CheckResult{}, errors.New("backend unavailable")
	}
	flagging := func(ctx context.Context, text string) (CheckResult, error) {
		return CheckResult{Reasons: []string{"flagged"}, Confidence: 0.8}, nil
	}

	m := NewModeratorWithChecks(testLogger(), failing, flagging)
	result := m.Moderate(context.Background(), "anything")

	assert.False(t, result.Approved)
	assert.Equal(t, []string{"flagged"}, result.Reasons)
	assert.Zero(t, result.Confidence, "a failed check contributes confidence 0")
}

func TestModeratePanickingCheckIsIsolated(t *testing.T) {
	t.Parallel()

	panicking := func(ctx context.Context, text string) (CheckResult, error) {
		panic("boom")
	}
	clean := func(ctx context.Context, text string) (CheckResult, error) {
		return CheckResult{Confidence: 0.9}, nil
	}

	m := NewModeratorWithChecks(testLogger(), panicking, clean)
	result := m.Moderate(context.Background(), "anything")

	assert.True(t, result.Approved, "a panicking check contributes zero violations")
	assert.Zero(t, result.Confidence)
}

func TestRedactPIIEmail(t *testing.T) {
	t.Parallel()

	redacted, count := RedactPII("contact me at a@b.com")
	assert.Equal(t, 1, count)
	assert.Equal(t, "contact me at "+strings.Repeat("*", len("a@b.com")), redacted)
}

func TestRedactPIIMultipleCategories(t *testing.T) {
	t.Parallel()

	input := "ssn 123-45-6789 from host 10.0.0.1"
	redacted, count := RedactPII(input)

	assert.Equal(t, 2, count)
	assert.NotContains(t, redacted, "123-45-6789")
	assert.NotContains(t, redacted, "10.0.0.1")
	assert.Len(t, redacted, len(input), "redaction preserves span lengths")
}

func TestRedactPIINoMatches(t *testing.T) {
	t.Parallel()

	input := "a perfectly ordinary sentence"
	redacted, count := RedactPII(input)
	assert.Zero(t, count)
	assert.Equal(t, input, redacted)
}

func TestDetectPIICategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"email", "write to user@example.org today", "email"},
		{"ssn", "ssn: 123-45-6789", "ssn"},
		{"credit card", "card 4111 1111 1111 1111", "credit_card"},
		{"phone", "call 555-123-4567 now", "phone"},
		{"ipv4", "from 192.168.0.12", "ipv4"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, DetectPII(tt.input), tt.want)
		})
	}
}
