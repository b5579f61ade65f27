package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/config"
	"triage/internal/logger"
	"triage/pkg/models"
)

type fakeProducer struct {
	topic    string
	envelope *models.MessageEnvelope
	err      error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	f.topic = topic
	f.envelope = &msg
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func testEnvelope() models.MessageEnvelope {
	return models.MessageEnvelope{
		ID:        uuid.NewString(),
		Source:    "telegram",
		Timestamp: time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Payload: map[string]interface{}{
			"chat_id":    float64(-100123),
			"chat_type":  "supergroup",
			"chat_title": "АЗС поддержка",
			"from_id":    float64(42),
			"username":   "operator1",
			"text":       "АЗС 123 не видит терминал",
			"message_id": float64(555),
		},
	}
}

func newTestHandler(t *testing.T, repo Repository, producer *fakeProducer, roles map[int64]string) *Handler {
	t.Helper()

	svc := newTestService(t, repo)
	return NewHandler(svc, producer, "ingested_messages", roles, nil, logger.NopLogger())
}

func TestHandle_PublishesAnnotatedEnvelope(t *testing.T) {
	repo := &fakeRepository{messageID: 200}
	producer := &fakeProducer{}
	h := newTestHandler(t, repo, producer, nil)

	err := h.Handle(context.Background(), testEnvelope())
	require.NoError(t, err)

	require.NotNil(t, producer.envelope)
	assert.Equal(t, "ingested_messages", producer.topic)

	meta := producer.envelope.Metadata
	require.NotNil(t, meta.Classification)
	assert.Equal(t, "TERMINAL_OFFLINE", meta.Classification.Code)
	assert.False(t, meta.Classification.Unclassified)
	assert.Equal(t, "2026-02-01", meta.Classification.RulesetVersion)

	require.NotNil(t, meta.Entities)
	assert.Equal(t, 1, meta.Entities.Count)
	assert.Equal(t, []string{"azs"}, meta.Entities.Types)

	require.NotNil(t, meta.Ingestion)
	assert.Equal(t, int64(200), meta.Ingestion.MessageID)
}

func TestHandle_DecodesPayloadIntoTypedMessage(t *testing.T) {
	repo := &fakeRepository{messageID: 201}
	h := newTestHandler(t, repo, &fakeProducer{}, nil)

	envelope := testEnvelope()
	envelope.Payload["reply_to_message_id"] = float64(500)
	envelope.Payload["forward_from_id"] = float64(9)

	require.NoError(t, h.Handle(context.Background(), envelope))

	msg := repo.gotMsg
	require.NotNil(t, msg)
	assert.Equal(t, int64(-100123), msg.ChatID)
	assert.Equal(t, "supergroup", msg.ChatType)
	assert.Equal(t, int64(42), msg.FromID)
	assert.Equal(t, int64(555), msg.MessageID)
	assert.Equal(t, "text", msg.ContentType)
	require.NotNil(t, msg.Reply)
	assert.Equal(t, int64(500), msg.Reply.MessageID)
	require.NotNil(t, msg.Forward)
	assert.Equal(t, int64(9), msg.Forward.FromID)
}

func TestHandle_ResolvesSenderRole(t *testing.T) {
	repo := &fakeRepository{messageID: 202}
	roles := RolesFromConfig([]config.UserConfig{{UserID: 42, Role: "engineer"}})
	h := newTestHandler(t, repo, &fakeProducer{}, roles)

	require.NoError(t, h.Handle(context.Background(), testEnvelope()))
	assert.Equal(t, "engineer", repo.gotMsg.FromRole)
}

func TestHandle_UnknownSenderDefaultsToClient(t *testing.T) {
	repo := &fakeRepository{messageID: 203}
	h := newTestHandler(t, repo, &fakeProducer{}, nil)

	require.NoError(t, h.Handle(context.Background(), testEnvelope()))
	assert.Equal(t, "client", repo.gotMsg.FromRole)
}

func TestHandle_ContentTypeInferred(t *testing.T) {
	repo := &fakeRepository{messageID: 204}
	h := newTestHandler(t, repo, &fakeProducer{}, nil)

	envelope := testEnvelope()
	delete(envelope.Payload, "text")
	envelope.Payload["caption"] = "фото терминала"

	require.NoError(t, h.Handle(context.Background(), envelope))
	assert.Equal(t, "media", repo.gotMsg.ContentType)
}

func TestHandle_ServiceErrorBubblesForRetry(t *testing.T) {
	repo := &fakeRepository{err: assert.AnError}
	h := newTestHandler(t, repo, &fakeProducer{}, nil)

	err := h.Handle(context.Background(), testEnvelope())
	require.Error(t, err)
}

func TestHandle_PublishFailureDoesNotFailIngest(t *testing.T) {
	repo := &fakeRepository{messageID: 205}
	producer := &fakeProducer{err: assert.AnError}
	h := newTestHandler(t, repo, producer, nil)

	require.NoError(t, h.Handle(context.Background(), testEnvelope()))
}
