package styling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpression_Evaluate(t *testing.T) {
	attributes := map[string]interface{}{
		"HIGHWAY": "motorway",
		"lanes":   int64(3),
		"name":    "High Street",
		"NAME_EN": nil,
		"level":   250.0,
	}

	type testCase struct {
		name     string
		source   string
		expected interface{}
	}

	testCases := []testCase{
		{"equals string", `"HIGHWAY" = 'motorway'`, true},
		{"not equals", `"HIGHWAY" <> 'motorway'`, false},
		{"numeric compare against integer attribute", `"lanes" > 2`, true},
		{"numeric string compares as number", `"lanes" = '3'`, true},
		{"and", `"lanes" >= 3 AND "HIGHWAY" = 'motorway'`, true},
		{"or", `"lanes" < 1 OR "HIGHWAY" = 'motorway'`, true},
		{"not", `NOT "lanes" = 3`, false},
		{"null comparison is null", `"NAME_EN" = 'x'`, nil},
		{"is null", `"NAME_EN" IS NULL`, true},
		{"is not null", `"name" IS NOT NULL`, true},
		{"in", `"HIGHWAY" IN ('trunk', 'motorway')`, true},
		{"not in", `"HIGHWAY" NOT IN ('trunk', 'motorway')`, false},
		{"like", `"name" LIKE 'High%'`, true},
		{"like is case sensitive", `"name" LIKE 'high%'`, false},
		{"ilike", `"name" ILIKE 'high_street'`, true},
		{"arithmetic", `"level" / 100 + 1`, 3.5},
		{"division by zero", `"level" / 0`, nil},
		{"concatenation", `"HIGHWAY" || ': ' || "name"`, "motorway: High Street"},
		{"coalesce", `coalesce("NAME_EN", "name")`, "High Street"},
		{"upper", `upper("HIGHWAY")`, "MOTORWAY"},
		{"round", `round("level" / 3, 1)`, 83.3},
		{"attribute function", `attribute('lanes')`, 3.0},
		{"unquoted column", `lanes * 2`, 6.0},
		{"missing column", `"missing"`, nil},
		{"variable", `@map_scale`, nil},
		{"literal", `'it''s'`, "it's"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expression, err := ParseExpression(tc.source)
			require.NoError(t, err)

			assert.Equal(t, tc.expected, expression.Evaluate(attributes))
		})
	}
}

func TestExpression_ReferencedColumns(t *testing.T) {
	expression, err := ParseExpression(`coalesce("NAME_EN", "NAME") || ' ' || attribute('ref') || to_string("HIGHWAY" IN ('a', "other"))`)
	require.NoError(t, err)

	assert.Equal(t, []string{"HIGHWAY", "NAME", "NAME_EN", "other", "ref"}, expression.ReferencedColumns())
}

func TestExpression_Matches(t *testing.T) {
	expression, err := ParseExpression(`"size"`)
	require.NoError(t, err)

	assert.True(t, expression.Matches(map[string]interface{}{"size": 2}))
	assert.False(t, expression.Matches(map[string]interface{}{"size": 0}))
	assert.False(t, expression.Matches(map[string]interface{}{}))
}

func TestParseExpression_errors(t *testing.T) {
	sources := []string{
		``,
		`"a" =`,
		`("a" = 1`,
		`"a" = 1)`,
		`unknown_function(1)`,
		`upper()`,
		`'unterminated`,
		`"a" IN (1, 2`,
	}

	for _, source := range sources {
		t.Run(source, func(t *testing.T) {
			_, err := ParseExpression(source)
			assert.Error(t, err)
		})
	}
}
