package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/logger"
)

func newTestClassifier(t *testing.T, yamlDoc string) *Classifier {
	t.Helper()

	rs, err := Parse([]byte(yamlDoc))
	require.NoError(t, err)

	c, err := NewClassifier(rs, logger.NopLogger())
	require.NoError(t, err)
	return c
}

func TestClassify_IncludeMatch(t *testing.T) {
	c := newTestClassifier(t, validRulesetYAML())

	outcome := c.Classify(context.Background(), "АСУТП не видит терминал на кассе 3", GuardInput{})
	require.NotNil(t, outcome)
	assert.Equal(t, "TERMINAL_OFFLINE", outcome.Code)
	assert.Equal(t, "terminal_offline", outcome.RuleID)
	assert.Equal(t, "не видит терминал", outcome.MatchedInclude)
}

func TestClassify_EmptyText(t *testing.T) {
	c := newTestClassifier(t, validRulesetYAML())

	assert.Nil(t, c.Classify(context.Background(), "", GuardInput{}))
}

func TestClassify_NoMatch(t *testing.T) {
	c := newTestClassifier(t, validRulesetYAML())

	assert.Nil(t, c.Classify(context.Background(), "всё работает отлично", GuardInput{}))
}

func TestClassify_ExcludeSuppressesMatch(t *testing.T) {
	c := newTestClassifier(t, validRulesetYAML())

	outcome := c.Classify(context.Background(), "нужна сверка", GuardInput{})
	require.NotNil(t, outcome)
	assert.Equal(t, "RECONCILIATION", outcome.Code)

	assert.Nil(t, c.Classify(context.Background(), "нужна сверка, но уже заработало", GuardInput{}))
}

func TestClassify_HigherPriorityWins(t *testing.T) {
	c := newTestClassifier(t, `
problem_taxonomy:
  codes:
    LOW: "low"
    HIGH: "high"
problem_rules:
  - id: low_rule
    enabled: true
    code: LOW
    priority: 10
    weight: 1.0
    include_any: ["terminal"]
    exclude_any: []
  - id: high_rule
    enabled: true
    code: HIGH
    priority: 90
    weight: 0.1
    include_any: ["terminal"]
    exclude_any: []
`)

	outcome := c.Classify(context.Background(), "terminal down", GuardInput{})
	require.NotNil(t, outcome)
	assert.Equal(t, "high_rule", outcome.RuleID)
}

func TestClassify_WeightBreaksPriorityTie(t *testing.T) {
	c := newTestClassifier(t, `
problem_taxonomy:
  codes:
    A: "a"
    B: "b"
problem_rules:
  - id: lighter
    enabled: true
    code: A
    priority: 50
    weight: 0.3
    include_any: ["terminal"]
    exclude_any: []
  - id: heavier
    enabled: true
    code: B
    priority: 50
    weight: 0.8
    include_any: ["terminal"]
    exclude_any: []
`)

	outcome := c.Classify(context.Background(), "terminal down", GuardInput{})
	require.NotNil(t, outcome)
	assert.Equal(t, "heavier", outcome.RuleID)
}

func TestClassify_FileOrderBreaksFullTie(t *testing.T) {
	c := newTestClassifier(t, `
problem_taxonomy:
  codes:
    A: "a"
    B: "b"
problem_rules:
  - id: first
    enabled: true
    code: A
    priority: 50
    weight: 0.5
    include_any: ["terminal"]
    exclude_any: []
  - id: second
    enabled: true
    code: B
    priority: 50
    weight: 0.5
    include_any: ["terminal"]
    exclude_any: []
`)

	outcome := c.Classify(context.Background(), "terminal down", GuardInput{})
	require.NotNil(t, outcome)
	assert.Equal(t, "first", outcome.RuleID)
}

func TestClassify_DisabledRuleIgnored(t *testing.T) {
	c := newTestClassifier(t, `
problem_taxonomy:
  codes:
    A: "a"
problem_rules:
  - id: disabled
    enabled: false
    code: A
    priority: 100
    weight: 1.0
    include_any: ["terminal"]
    exclude_any: []
`)

	assert.Nil(t, c.Classify(context.Background(), "terminal down", GuardInput{}))
}

func TestClassify_MalformedIncludeMakesRuleNonMatch(t *testing.T) {
	c := newTestClassifier(t, `
problem_taxonomy:
  codes:
    A: "a"
    B: "b"
problem_rules:
  - id: broken
    enabled: true
    code: A
    priority: 100
    weight: 1.0
    include_any: ["[unclosed"]
    exclude_any: []
  - id: fallback
    enabled: true
    code: B
    priority: 10
    weight: 0.5
    include_any: ["terminal"]
    exclude_any: []
`)

	outcome := c.Classify(context.Background(), "terminal down", GuardInput{})
	require.NotNil(t, outcome)
	assert.Equal(t, "fallback", outcome.RuleID)
}

func TestClassify_MalformedExcludeIgnored(t *testing.T) {
	c := newTestClassifier(t, `
problem_taxonomy:
  codes:
    A: "a"
problem_rules:
  - id: r1
    enabled: true
    code: A
    priority: 100
    weight: 1.0
    include_any: ["terminal"]
    exclude_any: ["[unclosed"]
`)

	outcome := c.Classify(context.Background(), "terminal down", GuardInput{})
	require.NotNil(t, outcome)
	assert.Equal(t, "r1", outcome.RuleID)
}

func TestClassify_Deterministic(t *testing.T) {
	c := newTestClassifier(t, validRulesetYAML())

	text := "касса не видит терминал, нужна сверка"
	first := c.Classify(context.Background(), text, GuardInput{})
	require.NotNil(t, first)

	for i := 0; i < 50; i++ {
		outcome := c.Classify(context.Background(), text, GuardInput{})
		require.NotNil(t, outcome)
		assert.Equal(t, first.RuleID, outcome.RuleID)
		assert.Equal(t, first.MatchedInclude, outcome.MatchedInclude)
	}
}

func TestClassify_GuardFiltersByRole(t *testing.T) {
	c := newTestClassifier(t, `
problem_taxonomy:
  codes:
    A: "a"
problem_rules:
  - id: client_only
    enabled: true
    code: A
    priority: 100
    weight: 1.0
    include_any: ["terminal"]
    exclude_any: []
    guard: 'from_role == "client"'
`)

	outcome := c.Classify(context.Background(), "terminal down", GuardInput{FromRole: "client"})
	require.NotNil(t, outcome)
	assert.Equal(t, "client_only", outcome.RuleID)

	assert.Nil(t, c.Classify(context.Background(), "terminal down", GuardInput{FromRole: "engineer"}))
}

func TestNewClassifier_InvalidGuardFailsLoad(t *testing.T) {
	rs, err := Parse([]byte(`
problem_taxonomy:
  codes:
    A: "a"
problem_rules:
  - id: r1
    enabled: true
    code: A
    priority: 1
    weight: 0.5
    include_any: ["x"]
    exclude_any: []
    guard: 'text +'
`))
	require.NoError(t, err)

	_, err = NewClassifier(rs, logger.NopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guard")
}

func TestNewClassifier_NonBoolGuardFailsLoad(t *testing.T) {
	rs, err := Parse([]byte(`
problem_taxonomy:
  codes:
    A: "a"
problem_rules:
  - id: r1
    enabled: true
    code: A
    priority: 1
    weight: 0.5
    include_any: ["x"]
    exclude_any: []
    guard: 'text + chat_type'
`))
	require.NoError(t, err)

	_, err = NewClassifier(rs, logger.NopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return bool")
}
