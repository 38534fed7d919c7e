package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shielderrors "github.com/storyforge/shield/internal/errors"
)

func compile(t *testing.T) *SchemaSet {
	t.Helper()
	set, err := CompileSchemas()
	require.NoError(t, err)
	return set
}

func TestValidateStoryPrompt(t *testing.T) {
	t.Parallel()
	set := compile(t)

	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{name: "simple prompt", input: "A dragon guards the bridge.", want: "A dragon guards the bridge."},
		{name: "trims whitespace", input: "  hello there  ", want: "hello there"},
		{name: "strips markup", input: "tell me a story<script>alert(1)</script>", want: "tell me a story"},
		{name: "collapses whitespace", input: "once   upon  a time", want: "once upon a time"},
		{name: "empty after sanitization", input: "<b></b>", wantErr: true},
		{name: "over length", input: strings.Repeat("a", 1001), wantErr: true},
		{name: "max length accepted", input: strings.Repeat("a", 1000), want: strings.Repeat("a", 1000)},
		{name: "disallowed characters", input: "story with emoji 🐉", wantErr: true},
		{name: "non-string input", input: 42, wantErr: true},
		{name: "nil input", input: nil, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := set.Validate("storyPrompt", tt.input)
			if tt.wantErr {
				require.Error(t, err)
				var ve shielderrors.ValidationError
				assert.ErrorAs(t, err, &ve)
				assert.Equal(t, "storyPrompt", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateStoryTheme(t *testing.T) {
	t.Parallel()
	set := compile(t)

	for _, theme := range []string{"adventure", "mystery", "fantasy", "scifi", "fable"} {
		got, err := set.Validate("storyTheme", theme)
		require.NoError(t, err)
		assert.Equal(t, theme, got)
	}

	_, err := set.Validate("storyTheme", "horror")
	require.Error(t, err)
}

func TestValidateSessionID(t *testing.T) {
	t.Parallel()
	set := compile(t)

	_, err := set.Validate("sessionId", "6f1c2a0e-9d4b-4f5a-8e3c-2b1a0d9c8e7f")
	require.NoError(t, err)

	_, err = set.Validate("sessionId", "not-a-uuid")
	require.Error(t, err)
}

func TestValidateUserID(t *testing.T) {
	t.Parallel()
	set := compile(t)

	got, err := set.Validate("userId", "user_42-a")
	require.NoError(t, err)
	assert.Equal(t, "user_42-a", got)

	_, err = set.Validate("userId", "user with spaces")
	require.Error(t, err)

	_, err = set.Validate("userId", strings.Repeat("u", 65))
	require.Error(t, err)
}

func TestValidateUnknownSchema(t *testing.T) {
	t.Parallel()
	set := compile(t)

	_, err := set.Validate("noSuchSchema", "value")
	require.Error(t, err)
}

func TestSanitizeRemovesControlCharacters(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", Sanitize("a\x00b\x1Fc\x7F"))
	assert.Equal(t, "line one", Sanitize("  line\x01 one  "))
}
