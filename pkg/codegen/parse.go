package codegen

import (
	"encoding/json"
	"fmt"
	"strings"
)

type generatedPayload struct {
	Code         string `json:"code"`
	RollbackCode string `json:"rollback_code"`
}

// ParseResponse extracts the code/rollback pair from a raw model response.
// Models wrap JSON in markdown fences or prose often enough that we hunt for
// the first balanced JSON object rather than unmarshalling the whole string.
func ParseResponse(response, model string) (*GenerationResult, error) {
	jsonStr, ok := extractBalancedJSON(response)
	if !ok {
		return nil, NewError(ErrorTypeParse, "no JSON object in response", false,
			fmt.Errorf("response: %s", truncate(response, 200)))
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		return nil, NewError(ErrorTypeParse, "invalid JSON in response", false, err)
	}

	if strings.TrimSpace(payload.Code) == "" {
		return nil, NewError(ErrorTypeParse, "response missing code field", false, nil)
	}
	if strings.TrimSpace(payload.RollbackCode) == "" {
		return nil, NewError(ErrorTypeParse, "response missing rollback_code field", false, nil)
	}

	return &GenerationResult{
		Code:         strings.TrimSpace(payload.Code),
		RollbackCode: strings.TrimSpace(payload.RollbackCode),
		Model:        model,
	}, nil
}

// extractBalancedJSON finds the first balanced JSON object in s, handling
// nested braces and braces inside string literals.
func extractBalancedJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					return "", false
				}
			}
		}
	}

	return "", false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
