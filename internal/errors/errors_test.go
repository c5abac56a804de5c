package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseError_Formatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *BaseError
		expected string
	}{
		{
			name:     "message only",
			err:      New(ConfigurationErrorCode, "bad argument"),
			expected: "bad argument",
		},
		{
			name:     "with location",
			err:      SyntaxError("unexpected token", SourceLocation{File: "users.go", Line: 12, Column: 4}),
			expected: "users.go:12:4: unexpected token",
		},
		{
			name:     "with cause",
			err:      Wrap(ListenerErrorCode, "hook failed", fmt.Errorf("boom")),
			expected: "hook failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "ConfigurationError", ConfigurationErrorCode.String())
	assert.Equal(t, "InvariantViolation", InvariantErrorCode.String())
	assert.Equal(t, "ListenerFailure", ListenerErrorCode.String())
	assert.Equal(t, "LookupMiss", LookupMissCode.String())
	assert.Equal(t, "UnknownError", ErrorCode(99).String())
}

func TestCodeOf_ThroughWrapping(t *testing.T) {
	cause := ConfigurationErrorf("entry point %q is missing", "main.main")
	wrapped := fmt.Errorf("restart aborted: %w", cause)

	assert.Equal(t, ConfigurationErrorCode, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, ConfigurationErrorCode))
	assert.False(t, HasCode(wrapped, InvariantErrorCode))
	assert.False(t, HasCode(nil, ConfigurationErrorCode))
	assert.Equal(t, UnknownErrorCode, CodeOf(fmt.Errorf("plain")))
}

func TestBaseError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvariantViolation("route table", "2 entries left after reset"))

	assert.True(t, stderrors.Is(err, New(InvariantErrorCode, "")))
	assert.False(t, stderrors.Is(err, New(ConfigurationErrorCode, "")))
}

func TestBaseError_ContextAndHints(t *testing.T) {
	err := ListenerFailure("*livereload.Hub", "before", fmt.Errorf("closed"))

	assert.Equal(t, "*livereload.Hub", err.Context()["listener"])
	assert.Equal(t, "before", err.Context()["phase"])

	err.WithSuggestions("check the listener", "remove it")
	assert.Len(t, err.Suggestions(), 2)
	assert.Empty(t, New(UnknownErrorCode, "x").Context())
}

func TestMultipleErrors(t *testing.T) {
	multi := NewMultipleErrors()
	assert.NoError(t, multi.ErrorOrNil())

	multi.Add(nil)
	multi.Add(ConfigurationError("first"))
	multi.Add(LookupMiss("route", "GET /x"))

	require.Equal(t, 2, multi.Count())
	assert.Contains(t, multi.Error(), "multiple errors (2 total)")
	assert.True(t, HasCode(multi, ConfigurationErrorCode))

	var base *BaseError
	require.True(t, stderrors.As(multi, &base))
	assert.Equal(t, "first", base.Message)
}
