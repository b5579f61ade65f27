package ingest

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"triage/internal/broker"
	"triage/internal/config"
	"triage/internal/constants"
	"triage/internal/logger"
	"triage/pkg/metrics"
	"triage/pkg/models"
)

// Handler adapts broker envelopes to the pipeline. It decodes the payload
// into a typed InboundMessage, resolves the sender role and publishes the
// processed envelope downstream.
type Handler struct {
	service     *Service
	producer    broker.Producer
	outputTopic string
	roles       map[int64]string
	limiter     *rate.Limiter
	logger      logger.Logger
}

func NewHandler(
	service *Service,
	producer broker.Producer,
	outputTopic string,
	roles map[int64]string,
	limiter *rate.Limiter,
	log logger.Logger,
) *Handler {
	return &Handler{
		service:     service,
		producer:    producer,
		outputTopic: outputTopic,
		roles:       roles,
		limiter:     limiter,
		logger:      log,
	}
}

// RolesFromConfig flattens the users list into a lookup map.
func RolesFromConfig(users []config.UserConfig) map[int64]string {
	roles := make(map[int64]string, len(users))
	for _, u := range users {
		roles[u.UserID] = u.Role
	}
	return roles
}

// SetProducer attaches the downstream producer. The handler is built before
// the broker comes up, so the producer arrives late.
func (h *Handler) SetProducer(producer broker.Producer) {
	h.producer = producer
}

// Handle implements broker.HandlerFunc. Errors bubble up to the consumer's
// retry and DLQ machinery.
func (h *Handler) Handle(ctx context.Context, envelope models.MessageEnvelope) error {
	if h.limiter != nil {
		if !h.limiter.Allow() {
			metrics.RateLimitWaitsTotal.Inc()
			if err := h.limiter.Wait(ctx); err != nil {
				return err
			}
		}
	}

	msg := h.decode(&envelope)

	result, err := h.service.Ingest(ctx, msg)
	if err != nil {
		return err
	}

	if h.producer == nil || h.outputTopic == "" {
		return nil
	}

	h.annotate(&envelope, result)

	if err := h.producer.Publish(ctx, h.outputTopic, envelope); err != nil {
		// The message is already persisted; losing the downstream event is
		// preferable to re-ingesting on redelivery.
		h.logger.ErrorwCtx(ctx, "Failed to publish processed envelope",
			"topic", h.outputTopic,
			"error", err,
		)
	}

	return nil
}

func (h *Handler) decode(envelope *models.MessageEnvelope) *InboundMessage {
	msg := &InboundMessage{
		TSUTC:       envelope.Timestamp,
		ChatTitle:   envelope.GetPayloadString("chat_title"),
		ChatType:    envelope.GetPayloadString("chat_type"),
		Username:    envelope.GetPayloadString("username"),
		DisplayName: envelope.GetPayloadString("display_name"),
		Text:        envelope.GetPayloadString("text"),
		Caption:     envelope.GetPayloadString("caption"),
		ContentType: envelope.GetPayloadString("content_type"),
		RawPayload:  envelope.Payload,
	}

	msg.ChatID, _ = envelope.GetPayloadInt64("chat_id")
	msg.FromID, _ = envelope.GetPayloadInt64("from_id")
	msg.MessageID, _ = envelope.GetPayloadInt64("message_id")

	if replyTo, ok := envelope.GetPayloadInt64("reply_to_message_id"); ok && replyTo != 0 {
		msg.Reply = &ReplyRef{MessageID: replyTo}
	}

	forwardFrom, fromOK := envelope.GetPayloadInt64("forward_from_id")
	forwardChat, chatOK := envelope.GetPayloadInt64("forward_from_chat_id")
	if (fromOK && forwardFrom != 0) || (chatOK && forwardChat != 0) {
		msg.Forward = &ForwardRef{FromID: forwardFrom, FromChatID: forwardChat}
	}

	if msg.ContentType == "" {
		switch {
		case msg.Text != "":
			msg.ContentType = constants.ContentTypeText
		case msg.Caption != "":
			msg.ContentType = constants.ContentTypeMedia
		default:
			msg.ContentType = constants.ContentTypeService
		}
	}

	if role, ok := h.roles[msg.FromID]; ok {
		msg.FromRole = role
	} else {
		msg.FromRole = constants.RoleClient
	}

	return msg
}

func (h *Handler) annotate(envelope *models.MessageEnvelope, result *Result) {
	now := time.Now().UTC()

	cls := &models.ClassificationInfo{
		RulesetVersion: result.RulesetVersion,
		Unclassified:   true,
		ClassifiedAt:   now,
	}
	if result.Outcome != nil {
		cls.Code = result.Outcome.Code
		cls.RuleID = result.Outcome.RuleID
		cls.Confidence = result.Outcome.Weight
		cls.Unclassified = false
	}
	envelope.Metadata.Classification = cls

	types := make([]string, 0, len(result.Matches))
	seen := make(map[string]bool)
	for _, m := range result.Matches {
		if !seen[m.Type] {
			seen[m.Type] = true
			types = append(types, m.Type)
		}
	}
	envelope.Metadata.Entities = &models.EntitiesInfo{
		Count:       len(result.Matches),
		Types:       types,
		ExtractedAt: now,
	}

	envelope.Metadata.Ingestion = &models.IngestionInfo{
		MessageID:  result.MessageID,
		IngestedAt: result.IngestedAt,
	}
}
