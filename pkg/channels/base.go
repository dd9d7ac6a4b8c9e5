package channels

import (
	"context"
	"strings"
	"unicode"

	"github.com/tinyland-inc/dlrelay/pkg/bus"
)

// Channel is an outbound messaging channel the relay can reply through.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsAllowed(senderID string) bool
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithMaxMessageLength sets the maximum message length (in runes) for a channel.
// Longer replies are split into several messages. A value of 0 means no limit.
func WithMaxMessageLength(n int) BaseChannelOption {
	return func(c *BaseChannel) { c.maxMessageLength = n }
}

// WithAllowList restricts inbound senders to the given addresses.
// An empty list allows everyone.
func WithAllowList(allowList []string) BaseChannelOption {
	return func(c *BaseChannel) { c.allowList = allowList }
}

type BaseChannel struct {
	name             string
	allowList        []string
	maxMessageLength int
}

func NewBaseChannel(name string, opts ...BaseChannelOption) *BaseChannel {
	bc := &BaseChannel{name: name}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func (c *BaseChannel) Name() string {
	return c.name
}

// MaxMessageLength returns the maximum message length (in runes) for this channel.
// A value of 0 means no limit.
func (c *BaseChannel) MaxMessageLength() int {
	return c.maxMessageLength
}

// IsAllowed reports whether senderID may use the relay. Entries match either
// the full address ("whatsapp:+15551234") or the bare number ("+15551234").
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	bare := stripAddressScheme(senderID)
	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if senderID == allowed || bare == allowed || bare == stripAddressScheme(allowed) {
			return true
		}
	}
	return false
}

// Split breaks content into chunks that respect the channel's limit.
func (c *BaseChannel) Split(content string) []string {
	return SplitMessage(content, c.maxMessageLength)
}

// stripAddressScheme turns "whatsapp:+1555" into "+1555".
func stripAddressScheme(addr string) string {
	if idx := strings.Index(addr, ":"); idx >= 0 {
		return addr[idx+1:]
	}
	return addr
}

// SplitMessage splits content into chunks of at most maxLen runes, breaking
// on the last newline or space inside each window when there is one.
// maxLen <= 0 disables splitting.
func SplitMessage(content string, maxLen int) []string {
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return []string{content}
	}

	var chunks []string
	for len(runes) > maxLen {
		cut := lastBreak(runes[:maxLen])
		if cut <= 0 {
			cut = maxLen
		}
		chunk := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastBreak(window []rune) int {
	if i := lastIndexRune(window, '\n'); i > 0 {
		return i
	}
	return lastIndexRune(window, ' ')
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
