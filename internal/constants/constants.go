package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDirectory = "dir:"
)

const (
	DefaultInputTopic  = "chat_messages"
	DefaultOutputTopic = "ingested_messages"
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Entity types produced by the extractor and the directory enricher.
const (
	EntityTypeSite      = "azs"
	EntityTypeWorkplace = "workplace"
	EntityTypeTerminal  = "terminal"
	EntityTypeTicket    = "sd_ticket"
	EntityTypeDateTime  = "sd_dt"
	EntityTypeTID       = "tid"
	EntityTypeIP        = "ip"
)

const (
	ContentTypeText    = "text"
	ContentTypeMedia   = "media"
	ContentTypeService = "service"
)

// Sender roles. Users absent from the config users list default to client.
const (
	RoleClient   = "client"
	RoleEngineer = "engineer"
	RoleOperator = "operator"
	RoleBot      = "bot"
)

const (
	DefaultExtractorVersion   = "regex:v1"
	DirectoryExtractorVersion = "directory:v1"
	DefaultPatternConfidence  = 0.5
)

const (
	DefaultDirectoryCacheTTLSeconds = 3600
)
