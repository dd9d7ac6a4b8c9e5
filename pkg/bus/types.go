package bus

// InboundMessage is a single message delivered by a channel webhook.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"`
	Content   string            `json:"content"`
	MessageID string            `json:"message_id,omitempty"` // platform message ID
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a reply addressed to ChatID on Channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}
