package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"triage/internal/directory"
	"triage/internal/entities"
	"triage/internal/logger"
	"triage/internal/rules"
	"triage/pkg/metrics"
	"triage/pkg/tracing"
)

// Service runs the full pipeline for one message: classify, extract,
// enrich, persist. Classification and extraction are pure; the repository
// call is the only write.
type Service struct {
	classifier *rules.Classifier
	extractor  *entities.Extractor
	enricher   *directory.Enricher
	repo       Repository
	logger     logger.Logger
}

// Result is what the transport layer publishes downstream.
type Result struct {
	MessageID      int64
	Outcome        *rules.Outcome
	Matches        []entities.Match
	RulesetVersion string
	IngestedAt     time.Time
}

func NewService(
	classifier *rules.Classifier,
	extractor *entities.Extractor,
	enricher *directory.Enricher,
	repo Repository,
	log logger.Logger,
) *Service {
	return &Service{
		classifier: classifier,
		extractor:  extractor,
		enricher:   enricher,
		repo:       repo,
		logger:     log,
	}
}

func (s *Service) Ingest(ctx context.Context, msg *InboundMessage) (*Result, error) {
	start := time.Now()

	tracer := tracing.GetTracer("triage-ingest")
	ctx, span := tracer.Start(ctx, "ingest.process", trace.WithAttributes(
		attribute.Int64("chat.id", msg.ChatID),
		attribute.Int64("message.id", msg.MessageID),
	))
	defer span.End()

	text := msg.ClassifiableText()

	outcome := s.classifier.Classify(ctx, text, rules.GuardInput{
		ChatType: msg.ChatType,
		FromRole: msg.FromRole,
	})

	matches := s.extractor.Extract(text)

	if s.enricher != nil {
		matches = append(matches, s.enricher.Enrich(ctx, matches)...)
	}

	var cls *Classification
	if outcome != nil {
		cls = &Classification{
			Code:       outcome.Code,
			RuleID:     outcome.RuleID,
			Confidence: outcome.Weight,
		}
	}

	messageID, err := s.repo.Ingest(ctx, msg, cls, s.classifier.Version(), matches)
	if err != nil {
		span.RecordError(err)
		metrics.IngestMessagesTotal.WithLabelValues("error").Inc()
		metrics.ObserveIngestDuration(time.Since(start), "error")
		s.logger.ErrorwCtx(ctx, "Failed to persist message",
			"chat_id", msg.ChatID,
			"error", err,
		)
		return nil, err
	}

	metrics.IngestMessagesTotal.WithLabelValues("success").Inc()
	metrics.ObserveIngestDuration(time.Since(start), "success")

	s.logger.InfowCtx(ctx, "Message ingested",
		"message_id", messageID,
		"chat_id", msg.ChatID,
		"classified", outcome != nil,
		"entities", len(matches),
	)

	return &Result{
		MessageID:      messageID,
		Outcome:        outcome,
		Matches:        matches,
		RulesetVersion: s.classifier.Version(),
		IngestedAt:     time.Now().UTC(),
	}, nil
}
