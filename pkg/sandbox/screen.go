package sandbox

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// Statements a transformation must never contain, regardless of what the
// generator produced. The sandbox enforces its own policy too; this is the
// engine-side screen that stops obviously hostile code before dispatch.
var forbiddenStatements = []string{
	"drop table",
	"drop database",
	"drop schema",
	"truncate ",
	"grant ",
	"revoke ",
	"alter role",
	"create user",
}

// ScreenCode statically screens generated transformation code before it is
// sent anywhere. It rejects forbidden DDL/DCL statements and string literals
// that fingerprint as SQL injection payloads.
func ScreenCode(code string) error {
	lower := strings.ToLower(code)
	for _, stmt := range forbiddenStatements {
		if strings.Contains(lower, stmt) {
			return fmt.Errorf("generated code contains forbidden statement %q", strings.TrimSpace(stmt))
		}
	}

	for _, literal := range stringLiterals(code) {
		if isSQLi, fingerprint := libinjection.IsSQLi(literal); isSQLi {
			return fmt.Errorf("generated code contains injection-shaped literal (fingerprint %s)", fingerprint)
		}
	}

	return nil
}

// stringLiterals extracts single-quoted literals from SQL text.
func stringLiterals(code string) []string {
	var literals []string
	var current strings.Builder
	inLiteral := false

	for i := 0; i < len(code); i++ {
		c := code[i]
		if c != '\'' {
			if inLiteral {
				current.WriteByte(c)
			}
			continue
		}

		// Doubled quote inside a literal is an escaped quote.
		if inLiteral && i+1 < len(code) && code[i+1] == '\'' {
			current.WriteByte('\'')
			i++
			continue
		}

		if inLiteral {
			literals = append(literals, current.String())
			current.Reset()
		}
		inLiteral = !inLiteral
	}

	return literals
}
