package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntitiesYAML() string {
	return `
extractor: "regex:v1"
patterns:
  azs:
    - name: azs_ru
      regex: '(?i)азс\s*№?\s*(\d{1,4})'
      confidence: 0.9
  workplace:
    - name: rm_list
      regex: '(?i)рм\s*№?\s*((?:\d{1,2}\s*,\s*)*\d{1,2})'
      confidence: 0.8
  terminal:
    - name: terminal_model
      regex: '(?i)\b(ipp\s?350|vx\s?520|pax\s?s300)\b'
  sd_ticket:
    - name: sd_number
      regex: '(?i)sd[-\s]?(\d{6,8})'
      confidence: 0.95
`
}

func TestParse_ValidEntities(t *testing.T) {
	rs, err := Parse([]byte(validEntitiesYAML()))
	require.NoError(t, err)

	assert.Equal(t, "regex:v1", rs.Extractor)
	require.Len(t, rs.Groups, 4)
}

func TestParse_PreservesDeclarationOrder(t *testing.T) {
	rs, err := Parse([]byte(validEntitiesYAML()))
	require.NoError(t, err)

	types := make([]string, 0, len(rs.Groups))
	for _, g := range rs.Groups {
		types = append(types, g.Type)
	}
	assert.Equal(t, []string{"azs", "workplace", "terminal", "sd_ticket"}, types)
}

func TestParse_DefaultExtractorVersion(t *testing.T) {
	rs, err := Parse([]byte(`
patterns:
  azs:
    - name: azs_ru
      regex: '\d+'
`))
	require.NoError(t, err)
	assert.Equal(t, "regex:v1", rs.Extractor)
}

func TestParse_DefaultConfidence(t *testing.T) {
	rs, err := Parse([]byte(validEntitiesYAML()))
	require.NoError(t, err)

	var terminal *TypePatterns
	for i := range rs.Groups {
		if rs.Groups[i].Type == "terminal" {
			terminal = &rs.Groups[i]
		}
	}
	require.NotNil(t, terminal)
	require.Len(t, terminal.Patterns, 1)
	assert.InDelta(t, 0.5, terminal.Patterns[0].Confidence, 1e-9)
}

func TestParse_PatternsNotMapping(t *testing.T) {
	_, err := Parse([]byte(`patterns: [a, b]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patterns must be a mapping")
}

func TestParse_EmptyPatternList(t *testing.T) {
	_, err := Parse([]byte(`
patterns:
  azs: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-empty list")
}

func TestParse_MissingName(t *testing.T) {
	_, err := Parse([]byte(`
patterns:
  azs:
    - regex: '\d+'
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name must be non-empty")
}

func TestParse_MissingRegex(t *testing.T) {
	_, err := Parse([]byte(`
patterns:
  azs:
    - name: azs_ru
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regex must be non-empty")
}

func TestParse_ConfidenceOutOfRange(t *testing.T) {
	_, err := Parse([]byte(`
patterns:
  azs:
    - name: azs_ru
      regex: '\d+'
      confidence: 1.2
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence must be 0..1")
}
