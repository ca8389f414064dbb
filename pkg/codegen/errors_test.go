package codegen

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"unauthorized", errors.New("401 Unauthorized"), ErrorTypeAuth, false},
		{"invalid key", errors.New("invalid API key provided"), ErrorTypeAuth, false},
		{"model missing", errors.New("model claude-x not found"), ErrorTypeModel, false},
		{"endpoint missing", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeEndpoint, true},
		{"rate limited", errors.New("429 Too Many Requests"), ErrorTypeUnknown, true},
		{"server error", errors.New("503 Service Unavailable"), ErrorTypeEndpoint, true},
		{"anything else", errors.New("flux capacitor misaligned"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyError(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
			assert.Equal(t, tt.retryable, classified.IsRetryable())
		})
	}
}

func TestClassifyErrorPassthrough(t *testing.T) {
	original := NewError(ErrorTypeParse, "bad payload", false, nil)
	wrapped := fmt.Errorf("generation attempt 2: %w", original)

	classified := ClassifyError(wrapped)
	assert.Same(t, original, classified)

	assert.Nil(t, ClassifyError(nil))
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Type: ErrorTypeEndpoint, Message: "server error", Model: "gpt-test", Cause: cause}

	assert.Contains(t, err.Error(), "endpoint")
	assert.Contains(t, err.Error(), "model=gpt-test")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, cause, errors.Unwrap(err))
}
