package relay

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/tinyland-inc/dlrelay/pkg/directline"
	"github.com/tinyland-inc/dlrelay/pkg/logger"
	"github.com/tinyland-inc/dlrelay/pkg/session"
)

// ConversationStarter opens backend conversations.
type ConversationStarter interface {
	StartConversation(ctx context.Context) (*directline.Conversation, error)
}

// Resolver maps senders to backend conversations, creating one on first
// contact.
type Resolver struct {
	store   session.Store
	backend ConversationStarter
	group   singleflight.Group
}

func NewResolver(store session.Store, backend ConversationStarter) *Resolver {
	return &Resolver{store: store, backend: backend}
}

// Resolve returns the session handle for senderID. Known senders never
// cause a backend call. Concurrent first-contact calls for one sender share
// a single conversation request. On failure nothing is stored.
func (r *Resolver) Resolve(ctx context.Context, senderID string) (string, error) {
	if handle, ok := r.store.Get(senderID); ok {
		return handle, nil
	}

	v, err, _ := r.group.Do(senderID, func() (any, error) {
		// another flight may have finished between Get and Do
		if handle, ok := r.store.Get(senderID); ok {
			return handle, nil
		}

		// shared flight: one caller's cancellation must not fail the others
		conv, err := r.backend.StartConversation(context.WithoutCancel(ctx))
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}

		stored, inserted := r.store.InsertIfAbsent(senderID, conv.ConversationID)
		if !inserted {
			logger.WarnCF("relay", "Discarded duplicate backend conversation", map[string]any{
				"sender":          senderID,
				"kept_session":    stored,
				"dropped_session": conv.ConversationID,
			})
		} else {
			logger.InfoCF("relay", "Session created", map[string]any{
				"sender":  senderID,
				"session": stored,
			})
		}
		return stored, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
