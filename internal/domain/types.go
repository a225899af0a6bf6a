package domain

import "time"

// SessionState models the conversation connection lifecycle.
type SessionState string

const (
	SessionStateConnecting SessionState = "connecting"
	SessionStateConnected  SessionState = "connected"
	SessionStateFailed     SessionState = "failed"
	SessionStateClosed     SessionState = "closed"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonConnecting         StateReason = "connecting"
	ReasonSessionEstablished StateReason = "session_established"
	ReasonCredentialRejected StateReason = "credential_rejected"
	ReasonSignalingFailed    StateReason = "signaling_failed"
	ReasonConnectTimeout     StateReason = "connect_timeout"
	ReasonAudioUnavailable   StateReason = "audio_unavailable"
	ReasonTransportLost      StateReason = "transport_lost"
	ReasonCleanup            StateReason = "cleanup"
)

// ErrorCode identifies caller-facing error categories. Protocol anomalies and
// benign races are handled internally and never map to a code.
type ErrorCode string

const (
	ErrorCodeCredential ErrorCode = "credential"
	ErrorCodeSignaling  ErrorCode = "signaling"
	ErrorCodeTimeout    ErrorCode = "timeout"
	ErrorCodeTransport  ErrorCode = "transport"
	ErrorCodeCapture    ErrorCode = "capture"
	ErrorCodePlayback   ErrorCode = "playback"
	ErrorCodeRemote     ErrorCode = "remote"
)

// Credential is an opaque, short-lived session credential issued by the
// credential gateway. The session owns it for its lifetime and forwards it
// verbatim to the transport.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ResponseStatus tracks one AI utterance-in-progress.
type ResponseStatus string

const (
	ResponseStatusCreated   ResponseStatus = "created"
	ResponseStatusActive    ResponseStatus = "active"
	ResponseStatusDone      ResponseStatus = "done"
	ResponseStatusCancelled ResponseStatus = "cancelled"
)

// Speaker identifies which participant produced a transcript.
type Speaker string

const (
	SpeakerAssistant Speaker = "assistant"
	SpeakerUser      Speaker = "user"
)

// Transcript is one finalized utterance. Immutable once produced.
type Transcript struct {
	ItemID  string
	Speaker Speaker
	Text    string
}
