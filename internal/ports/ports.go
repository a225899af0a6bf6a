package ports

import (
	"context"
	"io"

	"voicelink/internal/domain"
	"voicelink/internal/protocol"
)

// CredentialSource issues short-lived session credentials. The core only
// consumes credentials; acquisition lives behind this port.
type CredentialSource interface {
	Issue(ctx context.Context) (domain.Credential, error)
}

// AudioConfig describes how the microphone should be captured. The processing
// flags are platform-level hints; the client configures echo cancellation, it
// never implements it.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string

	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// AudioSession is a live microphone capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions. The capture device is
// acquired once per conversation and reused for its whole lifetime.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioSink owns one audio output sink for the lifetime of a session. Ensure
// is lazy and idempotent; Teardown is safe to call any number of times, with
// or without a prior Ensure, and leaves the sink ready for the Ensure of a
// later session. Pause takes effect synchronously: once it returns, no
// further audio reaches the output.
type AudioSink interface {
	Ensure() error
	Play(pcm []byte) error
	Pause()
	Resume()
	Teardown() error
}

// Session is an established media+control session with the remote peer.
// Events delivers inbound control messages in transport order and closes when
// the transport ends; Wait then reports the terminal error, if any.
type Session interface {
	SendControl(payload any) error
	SendAudio(pcm []byte) error
	Events() <-chan protocol.ServerEvent
	Wait() error
	Close() error
}

// Dialer negotiates the media+control session using an issued credential.
type Dialer interface {
	Dial(ctx context.Context, credential domain.Credential) (Session, error)
}

// EventSink surfaces conversation output to the caller.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.StateReason)
	AssistantTranscript(fragment string)
	UserTranscript(final string)
	AudioChunk(pcm []byte)
	PlaybackComplete()
	ConversationComplete()
	SessionError(code domain.ErrorCode, detail string)
}
