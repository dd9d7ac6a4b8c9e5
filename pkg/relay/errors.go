package relay

import "errors"

var (
	// ErrBackendUnavailable reports a failed or unusable call to the
	// conversational backend: transport errors, timeouts, non-2xx session
	// creation and malformed responses.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrSendFailed reports that the backend rejected the user's message.
	ErrSendFailed = errors.New("send failed")
	// ErrDispatchFailed reports that the reply could not be sent back
	// through the channel.
	ErrDispatchFailed = errors.New("dispatch failed")
)
