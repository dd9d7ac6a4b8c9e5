// Package directline is a minimal client for the Bot Framework Direct Line
// 3.0 REST API: start a conversation, post an activity and list the
// conversation's activities.
package directline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://directline.botframework.com/v3/directline"
	DefaultTimeout = 30 * time.Second

	// errorBodyLimit caps how much of a failed response is kept for diagnostics.
	errorBodyLimit = 4 << 10
)

// ErrMissingConversationID is returned when the backend accepted a
// conversation request but did not say which conversation it created.
var ErrMissingConversationID = errors.New("directline: response has no conversationId")

// Config holds Direct Line client configuration.
type Config struct {
	Token   string        // Direct Line secret or token, sent as a bearer token
	BaseURL string        // defaults to DefaultBaseURL
	Timeout time.Duration // per-request timeout, defaults to DefaultTimeout

	// Transport is the underlying round tripper. nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// Conversation is the response to a start-conversation request.
type Conversation struct {
	ConversationID string `json:"conversationId"`
	Token          string `json:"token,omitempty"`
	ExpiresIn      int    `json:"expires_in,omitempty"`
	StreamURL      string `json:"streamUrl,omitempty"`
}

// ChannelAccount identifies the sender of an activity.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Activity is one entry of a conversation transcript. Text is a pointer so
// that an absent text field can be told apart from an empty one.
type Activity struct {
	Type      string         `json:"type"`
	ID        string         `json:"id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	From      ChannelAccount `json:"from"`
	Text      *string        `json:"text,omitempty"`
}

// NewMessage builds a message activity from the given account.
func NewMessage(fromID, text string) Activity {
	return Activity{
		Type: "message",
		From: ChannelAccount{ID: fromID},
		Text: &text,
	}
}

// ActivitySet is the response to a list-activities request.
type ActivitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark,omitempty"`
}

// StatusError reports a non-2xx response from the Direct Line service.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("directline %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("directline %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to a Direct Line endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Direct Line client. Every request carries the
// configured token as a bearer Authorization header.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("directline: token is required")
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid directline base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid directline base URL %q: scheme and host are required", base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	inner := cfg.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
				Base:   inner,
			},
		},
	}, nil
}

// BaseURL returns the resolved service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartConversation opens a new conversation with the bot.
func (c *Client) StartConversation(ctx context.Context) (*Conversation, error) {
	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/conversations", nil)
	if err != nil {
		return nil, fmt.Errorf("directline start conversation: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("start conversation", resp); err != nil {
		return nil, err
	}

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fmt.Errorf("directline start conversation: decoding response: %w", err)
	}
	if conv.ConversationID == "" {
		return nil, ErrMissingConversationID
	}
	return &conv, nil
}

// PostActivity sends an activity into the conversation. Only the response
// status is consulted.
func (c *Client) PostActivity(ctx context.Context, conversationID string, activity Activity) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("directline post activity: encoding activity: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.activitiesURL(conversationID), body)
	if err != nil {
		return fmt.Errorf("directline post activity: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("post activity", resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Activities lists every activity of the conversation.
func (c *Client) Activities(ctx context.Context, conversationID string) (*ActivitySet, error) {
	resp, err := c.do(ctx, http.MethodGet, c.activitiesURL(conversationID), nil)
	if err != nil {
		return nil, fmt.Errorf("directline get activities: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("get activities", resp); err != nil {
		return nil, err
	}

	var set ActivitySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("directline get activities: decoding response: %w", err)
	}
	return &set, nil
}

func (c *Client) activitiesURL(conversationID string) string {
	return c.baseURL + "/conversations/" + url.PathEscape(conversationID) + "/activities"
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
