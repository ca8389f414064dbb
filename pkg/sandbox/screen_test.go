package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenCode_AllowsBenignTransformations(t *testing.T) {
	cases := []string{
		"UPDATE customers SET phone = regexp_replace(phone, '[^0-9+]', '', 'g') WHERE phone IS NOT NULL",
		"UPDATE orders SET status = 'pending' WHERE status IS NULL",
		"UPDATE products SET name = trim(name)",
		"UPDATE events SET payload = replace(payload, 'N/A', '')",
	}

	for _, code := range cases {
		assert.NoError(t, ScreenCode(code), "code: %s", code)
	}
}

func TestScreenCode_RejectsForbiddenStatements(t *testing.T) {
	cases := map[string]string{
		"drop table":    "DROP TABLE customers",
		"drop database": "drop database prod",
		"truncate":      "TRUNCATE orders",
		"grant":         "GRANT ALL ON customers TO intruder",
		"revoke":        "REVOKE SELECT ON orders FROM app",
		"alter role":    "ALTER ROLE app SUPERUSER",
		"create user":   "CREATE USER backdoor",
	}

	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			err := ScreenCode(code)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "forbidden statement")
		})
	}
}

func TestScreenCode_RejectsInjectionShapedLiterals(t *testing.T) {
	err := ScreenCode("UPDATE users SET name = '1'' OR ''1''=''1' WHERE id = 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injection")
}

func TestScreenCode_CaseInsensitive(t *testing.T) {
	require.Error(t, ScreenCode("DrOp TaBlE customers"))
}

func TestStringLiterals(t *testing.T) {
	literals := stringLiterals("SET a = 'one', b = 'two''s', c = 3")
	require.Len(t, literals, 2)
	assert.Equal(t, "one", literals[0])
	assert.Equal(t, "two's", literals[1])
}

func TestScopeValidate(t *testing.T) {
	assert.NoError(t, SampleScope(100).Validate())
	assert.NoError(t, FullScope().Validate())
	assert.Error(t, SampleScope(0).Validate())
	assert.Error(t, Scope{Type: ScopeTypeFull, SampleSize: 5}.Validate())
	assert.Error(t, Scope{Type: "bogus"}.Validate())
}
