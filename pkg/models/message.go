package models

import "time"

// MessageEnvelope is the wire format consumed from and published to the
// broker. Payload carries the transport-level chat message fields; Metadata
// carries what the pipeline derived from them.
type MessageEnvelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID        string              `json:"trace_id,omitempty"`
	Classification *ClassificationInfo `json:"classification,omitempty"`
	Entities       *EntitiesInfo       `json:"entities,omitempty"`
	Ingestion      *IngestionInfo      `json:"ingestion,omitempty"`
	DLQ            *DLQInfo            `json:"dlq,omitempty"`
}

// DLQInfo is attached before an envelope is parked on the dead letter topic.
type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	FailedAt    time.Time `json:"failed_at"`
}

type ClassificationInfo struct {
	Code           string    `json:"code,omitempty"`
	RuleID         string    `json:"rule_id,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	RulesetVersion string    `json:"ruleset_version"`
	Unclassified   bool      `json:"unclassified"`
	ClassifiedAt   time.Time `json:"classified_at"`
}

type EntitiesInfo struct {
	Count       int       `json:"count"`
	Types       []string  `json:"types,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

type IngestionInfo struct {
	MessageID  int64     `json:"message_id"`
	IngestedAt time.Time `json:"ingested_at"`
}
