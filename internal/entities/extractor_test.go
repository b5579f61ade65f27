package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/logger"
)

func newTestExtractor(t *testing.T, yamlDoc string) *Extractor {
	t.Helper()

	rs, err := Parse([]byte(yamlDoc))
	require.NoError(t, err)

	return NewExtractor(rs, logger.NopLogger())
}

func matchesOfType(matches []Match, entityType string) []Match {
	var out []Match
	for _, m := range matches {
		if m.Type == entityType {
			out = append(out, m)
		}
	}
	return out
}

func TestExtract_SiteNumber(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	matches := e.Extract("На АЗС №123 не работает касса")
	azs := matchesOfType(matches, "azs")
	require.Len(t, azs, 1)
	assert.Equal(t, "123", azs[0].Value)
	assert.Equal(t, "regex:v1:azs_ru", azs[0].Extractor)
	assert.InDelta(t, 0.9, azs[0].Confidence, 1e-9)
}

func TestExtract_EmptyText(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	assert.Empty(t, e.Extract(""))
}

func TestExtract_WorkplaceListSplitsIntoTokens(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	matches := e.Extract("АЗС 0123, РМ 1,2,3 не работают")

	azs := matchesOfType(matches, "azs")
	require.Len(t, azs, 1)
	assert.Equal(t, "0123", azs[0].Value)

	wp := matchesOfType(matches, "workplace")
	require.Len(t, wp, 3)
	values := []string{wp[0].Value, wp[1].Value, wp[2].Value}
	assert.Equal(t, []string{"1", "2", "3"}, values)
	for _, m := range wp {
		assert.Equal(t, "РМ 1,2,3", m.Raw)
	}
}

func TestExtract_TerminalUppercased(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	matches := e.Extract("терминал ipp350 завис")
	terminals := matchesOfType(matches, "terminal")
	require.Len(t, terminals, 1)
	assert.Equal(t, "IPP350", terminals[0].Value)
	assert.Equal(t, "ipp350", terminals[0].Raw)
}

func TestExtract_TicketDigitsOnly(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	matches := e.Extract("заявка SD-1234567 в работе")
	tickets := matchesOfType(matches, "sd_ticket")
	require.Len(t, tickets, 1)
	assert.Equal(t, "1234567", tickets[0].Value)
}

func TestExtract_MultipleOccurrencesKept(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	matches := e.Extract("АЗС 11 и АЗС 22")
	azs := matchesOfType(matches, "azs")
	require.Len(t, azs, 2)
	assert.Equal(t, "11", azs[0].Value)
	assert.Equal(t, "22", azs[1].Value)
}

func TestExtract_DuplicatesNotCollapsed(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	matches := e.Extract("АЗС 7, повторяю, АЗС 7")
	azs := matchesOfType(matches, "azs")
	assert.Len(t, azs, 2)
}

func TestExtract_GroupFallsBackToWholeMatch(t *testing.T) {
	e := newTestExtractor(t, `
patterns:
  terminal:
    - name: plain
      regex: '(?i)\bpax s300\b'
`)

	matches := e.Extract("терминал PAX S300 не включается")
	require.Len(t, matches, 1)
	assert.Equal(t, "PAX S300", matches[0].Value)
	assert.Equal(t, "PAX S300", matches[0].Raw)
}

func TestExtract_EmptyNormalizedDropped(t *testing.T) {
	e := newTestExtractor(t, `
patterns:
  azs:
    - name: word
      regex: '(?i)азс\s+(\p{L}+)'
`)

	// Normalization keeps digits only, so a word capture normalizes to "".
	assert.Empty(t, e.Extract("АЗС севернее города"))
}

func TestExtract_MalformedPatternSkipped(t *testing.T) {
	e := newTestExtractor(t, `
patterns:
  azs:
    - name: broken
      regex: '[unclosed'
    - name: ok
      regex: 'азс\s*(\d+)'
`)

	matches := e.Extract("азс 42")
	require.Len(t, matches, 1)
	assert.Equal(t, "42", matches[0].Value)
}

func TestExtract_Deterministic(t *testing.T) {
	e := newTestExtractor(t, validEntitiesYAML())

	text := "АЗС 12, РМ 3, терминал ipp350, SD-7654321"
	first := e.Extract(text)
	require.NotEmpty(t, first)

	for i := 0; i < 50; i++ {
		assert.Equal(t, first, e.Extract(text))
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "0123", Normalize("azs", " 0123 "))
	assert.Equal(t, "12", Normalize("workplace", "РМ 12"))
	assert.Equal(t, "1234567", Normalize("sd_ticket", "SD-1234567"))
	assert.Equal(t, "IPP350", Normalize("terminal", "ipp350"))
	assert.Equal(t, "12.01 14:30", Normalize("sd_dt", " 12.01 14:30 "))
	assert.Equal(t, "as written", Normalize("other", " as written "))
	assert.Equal(t, "", Normalize("azs", "no digits"))
}
