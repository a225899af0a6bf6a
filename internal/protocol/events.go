package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound control-channel event types recognized by the client. Anything else
// is dropped by the interpreter.
const (
	EventSessionCreated      = "session.created"
	EventSessionUpdated      = "session.updated"
	EventResponseCreated     = "response.created"
	EventResponseDone        = "response.done"
	EventResponseCancelled   = "response.cancelled"
	EventOutputAudioStarted  = "output_audio_buffer.started"
	EventOutputAudioStopped  = "output_audio_buffer.stopped"
	EventAudioDelta          = "response.audio.delta"
	EventAudioDone           = "response.audio.done"
	EventTranscriptDelta     = "response.audio_transcript.delta"
	EventTranscriptDone      = "response.audio_transcript.done"
	EventSpeechStarted       = "input_audio_buffer.speech_started"
	EventSpeechStopped       = "input_audio_buffer.speech_stopped"
	EventInputTranscriptDone = "conversation.item.input_audio_transcription.completed"
	EventError               = "error"
)

// ServerError is the error payload carried by an "error" event.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	EventID string `json:"event_id"`
}

// ServerEvent is one parsed inbound control-channel message. Fields are
// populated according to the event type; unused fields are zero.
type ServerEvent struct {
	Type       string
	EventID    string
	SessionID  string
	ResponseID string
	ItemID     string
	Delta      string
	Transcript string
	Audio      []byte
	Error      *ServerError
}

var errMissingType = errors.New("event missing type discriminator")

type serverFrame struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`

	Session struct {
		ID string `json:"id"`
	} `json:"session"`

	Response struct {
		ID string `json:"id"`
	} `json:"response"`

	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`

	Error *ServerError `json:"error"`
}

// ParseServerEvent decodes one inbound control message. Unknown event types
// parse successfully and keep their raw type so the interpreter can decide to
// drop them; malformed payloads return an error.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ServerEvent{}, fmt.Errorf("malformed server event: %w", err)
	}

	typ := strings.TrimSpace(frame.Type)
	if typ == "" {
		return ServerEvent{}, errMissingType
	}

	event := ServerEvent{
		Type:       typ,
		EventID:    frame.EventID,
		SessionID:  frame.Session.ID,
		ResponseID: firstNonEmpty(frame.ResponseID, frame.Response.ID),
		ItemID:     frame.ItemID,
		Transcript: frame.Transcript,
		Error:      frame.Error,
	}

	if typ == EventAudioDelta {
		audio, err := base64.StdEncoding.DecodeString(frame.Delta)
		if err != nil {
			return ServerEvent{}, fmt.Errorf("malformed audio delta: %w", err)
		}
		event.Audio = audio
		return event, nil
	}

	event.Delta = frame.Delta
	return event, nil
}

// IsBenignCancelRace reports whether a remote error is the expected outcome of
// cancelling a response the peer had not yet activated. These are self-resolving
// and must never be surfaced.
func IsBenignCancelRace(serverErr *ServerError) bool {
	if serverErr == nil {
		return false
	}
	code := strings.ToLower(strings.TrimSpace(serverErr.Code))
	switch code {
	case "response_cancel_not_active", "cancel-not-active", "cancellation_failed":
		return true
	}
	return strings.Contains(strings.ToLower(serverErr.Message), "no active response")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
