package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/tinyland-inc/dlrelay/pkg/bus"
	"github.com/tinyland-inc/dlrelay/pkg/logger"
)

// TwilioMaxMessageLength is the longest body Twilio accepts for a single
// WhatsApp message.
const TwilioMaxMessageLength = 1600

// ErrMissingSender is returned for webhook deliveries without a From field.
var ErrMissingSender = errors.New("missing From")

// MessageCreator is the slice of the Twilio REST API the channel uses.
// *twilioApi.ApiService satisfies it.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioConfig holds Twilio account configuration.
type TwilioConfig struct {
	AccountSID       string
	AuthToken        string
	From             string   // origin address, e.g. "whatsapp:+14155238886"
	AllowFrom        []string // optional sender allow-list
	MaxMessageLength int      // 0 means TwilioMaxMessageLength
}

// TwilioChannel sends replies through Twilio's Messages API and parses
// Twilio's inbound webhook deliveries.
type TwilioChannel struct {
	*BaseChannel
	from     string
	messages MessageCreator
}

// NewTwilioChannel creates a channel backed by the Twilio REST client.
func NewTwilioChannel(cfg TwilioConfig) (*TwilioChannel, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio: account SID and auth token are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewTwilioChannelWithCreator(cfg, client.Api)
}

// NewTwilioChannelWithCreator creates a channel that sends through creator.
func NewTwilioChannelWithCreator(cfg TwilioConfig, creator MessageCreator) (*TwilioChannel, error) {
	if cfg.From == "" {
		return nil, errors.New("twilio: origin address is required")
	}
	if creator == nil {
		return nil, errors.New("twilio: message creator is required")
	}
	maxLen := cfg.MaxMessageLength
	if maxLen <= 0 {
		maxLen = TwilioMaxMessageLength
	}
	return &TwilioChannel{
		BaseChannel: NewBaseChannel("twilio",
			WithAllowList(cfg.AllowFrom),
			WithMaxMessageLength(maxLen),
		),
		from:     cfg.From,
		messages: creator,
	}, nil
}

// From returns the origin address used for outbound messages.
func (c *TwilioChannel) From() string {
	return c.from
}

// Send delivers msg to msg.ChatID, split into as many Twilio messages as
// the length limit requires.
func (c *TwilioChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return errors.New("twilio send: empty destination")
	}

	chunks := c.Split(msg.Content)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("twilio send: %w", err)
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(msg.ChatID)
		params.SetFrom(c.from)
		params.SetBody(chunk)

		resp, err := c.messages.CreateMessage(params)
		if err != nil {
			return fmt.Errorf("twilio send (part %d/%d): %w", i+1, len(chunks), err)
		}

		fields := map[string]any{
			"to":   msg.ChatID,
			"part": i + 1,
		}
		if resp != nil && resp.Sid != nil {
			fields["sid"] = *resp.Sid
		}
		logger.DebugCF("twilio", "Message sent", fields)
	}
	return nil
}

// ParseInbound extracts an inbound message from a Twilio webhook request.
func (c *TwilioChannel) ParseInbound(r *http.Request) (bus.InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return bus.InboundMessage{}, fmt.Errorf("parsing webhook form: %w", err)
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	if from == "" {
		return bus.InboundMessage{}, ErrMissingSender
	}

	messageID := r.PostForm.Get("MessageSid")
	if messageID == "" {
		messageID = uuid.New().String()
	}

	msg := bus.InboundMessage{
		Channel:   c.Name(),
		SenderID:  from,
		Content:   r.PostForm.Get("Body"),
		MessageID: messageID,
	}
	if name := r.PostForm.Get("ProfileName"); name != "" {
		msg.Metadata = map[string]string{"profile_name": name}
	}
	return msg, nil
}

var _ Channel = (*TwilioChannel)(nil)
