package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"triage/internal/entities"
	"triage/internal/logger"
	apperrors "triage/pkg/errors"
)

// Repository persists one message with its classification and entities.
type Repository interface {
	Ingest(ctx context.Context, msg *InboundMessage, cls *Classification, rulesetVersion string, matches []entities.Match) (int64, error)
}

type PostgresRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresRepository(db *sql.DB, log logger.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: log}
}

// Ingest writes the message, its classification row and its entities in one
// transaction. Any failure rolls the whole unit back; redelivery dedup is
// the transport's concern, not repeated here.
func (r *PostgresRepository) Ingest(ctx context.Context, msg *InboundMessage, cls *Classification, rulesetVersion string, matches []entities.Match) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.ErrPersistence.WithCause(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	messageID, err := r.insertMessage(ctx, tx, msg)
	if err != nil {
		return 0, apperrors.ErrPersistence.WithCause(err)
	}

	if err := r.upsertClassification(ctx, tx, messageID, cls, rulesetVersion); err != nil {
		return 0, apperrors.ErrPersistence.WithCause(err)
	}

	if err := r.insertEntities(ctx, tx, messageID, matches); err != nil {
		return 0, apperrors.ErrPersistence.WithCause(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.ErrPersistence.WithCause(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return messageID, nil
}

func (r *PostgresRepository) insertMessage(ctx context.Context, tx *sql.Tx, msg *InboundMessage) (int64, error) {
	rawPayload, err := json.Marshal(msg.RawPayload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal raw payload: %w", err)
	}

	var replyTo sql.NullInt64
	if msg.Reply != nil {
		replyTo = sql.NullInt64{Int64: msg.Reply.MessageID, Valid: true}
	}

	var forwardFrom, forwardFromChat sql.NullInt64
	if msg.Forward != nil {
		forwardFrom = sql.NullInt64{Int64: msg.Forward.FromID, Valid: true}
		forwardFromChat = sql.NullInt64{Int64: msg.Forward.FromChatID, Valid: true}
	}

	query := `
		INSERT INTO messages (
			ts_utc, chat_id, chat_type, chat_title,
			from_id, username, display_name, from_role,
			text, caption, content_type, message_id,
			reply_to_message_id, forward_from_id, forward_from_chat_id,
			raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	var id int64
	err = tx.QueryRowContext(ctx, query,
		msg.TSUTC, msg.ChatID, msg.ChatType, msg.ChatTitle,
		msg.FromID, msg.Username, msg.DisplayName, msg.FromRole,
		msg.Text, msg.Caption, msg.ContentType, msg.MessageID,
		replyTo, forwardFrom, forwardFromChat,
		rawPayload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	return id, nil
}

func (r *PostgresRepository) upsertClassification(ctx context.Context, tx *sql.Tx, messageID int64, cls *Classification, rulesetVersion string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO message_classification (message_id)
		VALUES ($1)
		ON CONFLICT (message_id) DO NOTHING`,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("failed to create classification row: %w", err)
	}

	if cls == nil {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE message_classification
		SET code = $2,
			rule_id = $3,
			confidence = $4,
			ruleset_version = $5,
			unclassified = FALSE,
			classified_at = NOW(),
			updated_at = NOW()
		WHERE message_id = $1`,
		messageID, cls.Code, cls.RuleID, cls.Confidence, rulesetVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}

	return nil
}

func (r *PostgresRepository) insertEntities(ctx context.Context, tx *sql.Tx, messageID int64, matches []entities.Match) error {
	if len(matches) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO message_entities (
			message_id, entity_type, entity_value, entity_raw, confidence, extractor
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, entity_type, entity_value) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := stmt.ExecContext(ctx,
			messageID, m.Type, m.Value, m.Raw, m.Confidence, m.Extractor,
		); err != nil {
			return fmt.Errorf("failed to insert entity (%s=%s): %w", m.Type, m.Value, err)
		}
	}

	return nil
}
