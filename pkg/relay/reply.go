package relay

const (
	// NotUnderstoodText replaces a bot reply that carries no text.
	NotUnderstoodText = "Sorry, I didn’t understand that."
	// NoResponseText is sent when the bot has nothing new to say.
	NoResponseText = "No response from Copilot."
)

// ReplyKind says how a Reply was produced.
type ReplyKind int

const (
	// ReplyText is the text of the bot's latest activity.
	ReplyText ReplyKind = iota
	// ReplyNotUnderstood means the latest activity had no text field.
	ReplyNotUnderstood
	// ReplyNone means the transcript held at most the user's own message.
	ReplyNone
	// ReplyPollFailed means reading the transcript failed; Err holds the cause.
	ReplyPollFailed
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyText:
		return "text"
	case ReplyNotUnderstood:
		return "not_understood"
	case ReplyNone:
		return "none"
	case ReplyPollFailed:
		return "poll_failed"
	default:
		return "unknown"
	}
}

// Reply is what the forwarder hands to the dispatcher. Text is always
// sendable; placeholder kinds carry their placeholder text.
type Reply struct {
	Kind ReplyKind
	Text string
	Err  error
}
