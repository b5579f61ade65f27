package ingest

import "time"

// InboundMessage is a chat message after transport decoding, before
// classification. Optional message relations are explicit pointer groups
// rather than loose payload fields.
type InboundMessage struct {
	TSUTC       time.Time
	ChatID      int64
	ChatType    string
	ChatTitle   string
	FromID      int64
	Username    string
	DisplayName string
	FromRole    string
	Text        string
	Caption     string
	ContentType string
	MessageID   int64
	Reply       *ReplyRef
	Forward     *ForwardRef
	RawPayload  map[string]interface{}
}

type ReplyRef struct {
	MessageID int64
}

type ForwardRef struct {
	FromID     int64
	FromChatID int64
}

// ClassifiableText returns the text classification and extraction run over:
// the message text, or the media caption when there is no text.
func (m *InboundMessage) ClassifiableText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// Classification is the persisted shape of a rule outcome.
type Classification struct {
	Code       string
	RuleID     string
	Confidence float64
}
