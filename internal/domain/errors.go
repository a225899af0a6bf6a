package domain

import "errors"

// Transport negotiation failure categories. Dialers wrap these so the caller
// can map failures onto error codes without knowing the transport.
var (
	ErrCredentialRejected = errors.New("credential rejected by peer")
	ErrSignalingFailed    = errors.New("signaling exchange failed")
	ErrNoMediaTrack       = errors.New("peer offered no compatible media track")
	ErrConnectTimeout     = errors.New("connection establishment timed out")
)
