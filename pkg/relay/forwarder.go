package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinyland-inc/dlrelay/pkg/directline"
)

// UserAccountID is the from.id of every message posted to the backend.
const UserAccountID = "user"

// ActivityClient posts and reads conversation activities.
type ActivityClient interface {
	PostActivity(ctx context.Context, conversationID string, activity directline.Activity) error
	Activities(ctx context.Context, conversationID string) (*directline.ActivitySet, error)
}

// Forwarder sends a message into a session and reads back the reply.
type Forwarder struct {
	backend ActivityClient
}

func NewForwarder(backend ActivityClient) *Forwarder {
	return &Forwarder{backend: backend}
}

// Forward posts text to the session and polls the transcript once.
// A failed post returns ErrSendFailed (rejected by the backend) or
// ErrBackendUnavailable (transport). A failed poll is not an error: it
// yields a ReplyPollFailed reply carrying the cause.
func (f *Forwarder) Forward(ctx context.Context, sessionID, text string) (Reply, error) {
	if err := f.backend.PostActivity(ctx, sessionID, directline.NewMessage(UserAccountID, text)); err != nil {
		var se *directline.StatusError
		if errors.As(err, &se) {
			return Reply{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		return Reply{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	set, err := f.backend.Activities(ctx, sessionID)
	if err != nil {
		return Reply{
			Kind: ReplyPollFailed,
			Text: NoResponseText,
			Err:  fmt.Errorf("%w: %w", ErrBackendUnavailable, err),
		}, nil
	}
	return latestReply(set.Activities), nil
}

// latestReply picks the reply out of a transcript. The first activity is
// taken to be the echo of the user's message, so a transcript of one entry
// has no reply yet.
// TODO: confirm with the bot owners that the echo is always first before
// switching to from.id filtering.
func latestReply(activities []directline.Activity) Reply {
	if len(activities) <= 1 {
		return Reply{Kind: ReplyNone, Text: NoResponseText}
	}
	last := activities[len(activities)-1]
	if last.Text == nil {
		return Reply{Kind: ReplyNotUnderstood, Text: NotUnderstoodText}
	}
	return Reply{Kind: ReplyText, Text: *last.Text}
}
