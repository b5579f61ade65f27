package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/entities"
	"triage/internal/logger"
	"triage/internal/rules"
	apperrors "triage/pkg/errors"
)

type fakeRepository struct {
	messageID int64
	err       error

	gotMsg     *InboundMessage
	gotCls     *Classification
	gotVersion string
	gotMatches []entities.Match
}

func (f *fakeRepository) Ingest(_ context.Context, msg *InboundMessage, cls *Classification, rulesetVersion string, matches []entities.Match) (int64, error) {
	f.gotMsg = msg
	f.gotCls = cls
	f.gotVersion = rulesetVersion
	f.gotMatches = matches
	if f.err != nil {
		return 0, f.err
	}
	return f.messageID, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()

	rs, err := rules.Parse([]byte(`
ruleset_version: "2026-02-01"
problem_taxonomy:
  codes:
    TERMINAL_OFFLINE: "terminal not visible"
problem_rules:
  - id: terminal_offline
    enabled: true
    code: TERMINAL_OFFLINE
    priority: 100
    weight: 0.9
    include_any: ["не видит терминал"]
    exclude_any: []
`))
	require.NoError(t, err)

	classifier, err := rules.NewClassifier(rs, logger.NopLogger())
	require.NoError(t, err)

	ers, err := entities.Parse([]byte(`
patterns:
  azs:
    - name: azs_ru
      regex: '(?i)азс\s*№?\s*(\d{1,4})'
      confidence: 0.9
`))
	require.NoError(t, err)

	extractor := entities.NewExtractor(ers, logger.NopLogger())

	return NewService(classifier, extractor, nil, repo, logger.NopLogger())
}

func TestService_IngestClassifiedMessage(t *testing.T) {
	repo := &fakeRepository{messageID: 101}
	svc := newTestService(t, repo)

	result, err := svc.Ingest(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, int64(101), result.MessageID)
	require.NotNil(t, result.Outcome)
	assert.Equal(t, "TERMINAL_OFFLINE", result.Outcome.Code)
	assert.Equal(t, "2026-02-01", result.RulesetVersion)

	require.NotNil(t, repo.gotCls)
	assert.Equal(t, "terminal_offline", repo.gotCls.RuleID)
	assert.InDelta(t, 0.9, repo.gotCls.Confidence, 1e-9)
	assert.Equal(t, "2026-02-01", repo.gotVersion)

	require.Len(t, repo.gotMatches, 1)
	assert.Equal(t, "azs", repo.gotMatches[0].Type)
	assert.Equal(t, "123", repo.gotMatches[0].Value)
}

func TestService_UnclassifiedMessageStillPersisted(t *testing.T) {
	repo := &fakeRepository{messageID: 102}
	svc := newTestService(t, repo)

	msg := testMessage()
	msg.Text = "добрый день"

	result, err := svc.Ingest(context.Background(), msg)
	require.NoError(t, err)

	assert.Nil(t, result.Outcome)
	assert.Nil(t, repo.gotCls)
	assert.Equal(t, "2026-02-01", repo.gotVersion)
}

func TestService_CaptionUsedWhenTextEmpty(t *testing.T) {
	repo := &fakeRepository{messageID: 103}
	svc := newTestService(t, repo)

	msg := testMessage()
	msg.Text = ""
	msg.Caption = "фото: АЗС 55 не видит терминал"

	result, err := svc.Ingest(context.Background(), msg)
	require.NoError(t, err)

	require.NotNil(t, result.Outcome)
	require.Len(t, repo.gotMatches, 1)
	assert.Equal(t, "55", repo.gotMatches[0].Value)
}

func TestService_RepositoryErrorPropagates(t *testing.T) {
	repo := &fakeRepository{err: apperrors.ErrPersistence}
	svc := newTestService(t, repo)

	_, err := svc.Ingest(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))
}
