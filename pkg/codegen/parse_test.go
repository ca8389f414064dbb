package codegen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	t.Run("bare JSON object", func(t *testing.T) {
		result, err := ParseResponse(`{"code": "UPDATE t SET c = 1", "rollback_code": "UPDATE t SET c = 0"}`, "test-model")
		require.NoError(t, err)
		assert.Equal(t, "UPDATE t SET c = 1", result.Code)
		assert.Equal(t, "UPDATE t SET c = 0", result.RollbackCode)
		assert.Equal(t, "test-model", result.Model)
	})

	t.Run("JSON wrapped in markdown fences", func(t *testing.T) {
		response := "Here is the transformation:\n```json\n" +
			`{"code": "UPDATE orders SET status = 'paid'", "rollback_code": "UPDATE orders SET status = 'pending'"}` +
			"\n```\nLet me know if you need changes."
		result, err := ParseResponse(response, "test-model")
		require.NoError(t, err)
		assert.Equal(t, "UPDATE orders SET status = 'paid'", result.Code)
	})

	t.Run("braces inside string literals", func(t *testing.T) {
		response := `{"code": "UPDATE t SET c = '{\"nested\": 1}'", "rollback_code": "SELECT 1"}`
		result, err := ParseResponse(response, "m")
		require.NoError(t, err)
		assert.Contains(t, result.Code, `nested`)
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		result, err := ParseResponse(`{"code": "  SELECT 1  ", "rollback_code": "\nSELECT 2\n"}`, "m")
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", result.Code)
		assert.Equal(t, "SELECT 2", result.RollbackCode)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := ParseResponse("I cannot help with that.", "m")
		require.Error(t, err)
		var genErr *Error
		require.True(t, errors.As(err, &genErr))
		assert.Equal(t, ErrorTypeParse, genErr.Type)
		assert.False(t, genErr.IsRetryable())
	})

	t.Run("missing code field", func(t *testing.T) {
		_, err := ParseResponse(`{"rollback_code": "SELECT 1"}`, "m")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing code")
	})

	t.Run("missing rollback field", func(t *testing.T) {
		_, err := ParseResponse(`{"code": "SELECT 1"}`, "m")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rollback_code")
	})
}

func TestExtractBalancedJSON(t *testing.T) {
	t.Run("nested objects", func(t *testing.T) {
		got, ok := extractBalancedJSON(`prefix {"a": {"b": {"c": 1}}} suffix`)
		require.True(t, ok)
		assert.Equal(t, `{"a": {"b": {"c": 1}}}`, got)
	})

	t.Run("escaped quotes in strings", func(t *testing.T) {
		got, ok := extractBalancedJSON(`{"a": "say \"hi\" {ok}"}`)
		require.True(t, ok)
		assert.Equal(t, `{"a": "say \"hi\" {ok}"}`, got)
	})

	t.Run("unbalanced input", func(t *testing.T) {
		_, ok := extractBalancedJSON(`{"a": 1`)
		assert.False(t, ok)
	})

	t.Run("balanced but invalid JSON", func(t *testing.T) {
		_, ok := extractBalancedJSON(`{not json}`)
		assert.False(t, ok)
	})
}
