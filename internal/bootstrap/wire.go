package bootstrap

import (
	"log/slog"

	"voicelink/internal/audio"
	"voicelink/internal/config"
	"voicelink/internal/handoff"
	"voicelink/internal/ports"
	"voicelink/internal/protocol"
	"voicelink/internal/providers/openai"
	"voicelink/internal/transport/webrtc"
	"voicelink/internal/transport/ws"
	"voicelink/internal/usecase"
)

// The peer-connection transport carries G.711 at its fixed clock rate; the
// fallback transport streams PCM at the configured rate.
const pcmuSampleRate = 8000

// Services is the assembled runtime graph.
type Services struct {
	Conversation *usecase.Conversation
	Config       config.Config
}

// Build wires all dependencies for the current runtime.
func Build(eventSink ports.EventSink, logger *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	detector, err := handoff.NewDetectorFromFile(cfg.Handoff.PhrasesFile)
	if err != nil {
		return Services{}, err
	}

	sampleRate := cfg.Audio.SampleRate
	if cfg.Session.Transport == config.TransportWebRTC {
		sampleRate = pcmuSampleRate
	}

	sink := audio.NewFFPlaySink(audio.SinkConfig{
		Command:    cfg.Audio.PlayerCommand,
		SampleRate: sampleRate,
		Channels:   cfg.Audio.Channels,
	})

	var dialer ports.Dialer
	switch cfg.Session.Transport {
	case config.TransportWebSocket:
		dialer = ws.NewDialer(ws.Config{
			URL:            cfg.OpenAI.RealtimeURL,
			Model:          cfg.OpenAI.Model,
			ConnectTimeout: cfg.Session.ConnectTimeout,
			Logger:         logger,
		})
	default:
		dialer = webrtc.NewDialer(webrtc.Config{
			SignalingURL:   cfg.OpenAI.SignalingURL,
			Model:          cfg.OpenAI.Model,
			ConnectTimeout: cfg.Session.ConnectTimeout,
			Logger:         logger,
		}, sink)
	}

	conversation := usecase.NewConversation(
		openai.NewCredentialSource(openai.Config{
			GatewayURL: cfg.OpenAI.GatewayURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      cfg.OpenAI.Model,
			Voice:      cfg.OpenAI.Voice,
		}),
		dialer,
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		sink,
		detector,
		eventSink,
		logger,
		usecase.Config{
			Audio: ports.AudioConfig{
				SampleRate:       sampleRate,
				Channels:         cfg.Audio.Channels,
				InputFormat:      cfg.Audio.InputFormat,
				InputDevice:      cfg.Audio.InputDevice,
				EchoCancellation: cfg.Audio.EchoCancellation,
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				AutoGainControl:  cfg.Audio.AutoGainControl,
			},
			Session: protocol.SessionConfig{
				Modalities:   []string{"text", "audio"},
				Instructions: cfg.Session.Instructions,
				Voice:        cfg.OpenAI.Voice,
				InputAudioTranscription: &protocol.TranscriptionConfig{
					Model: cfg.Session.TranscriptionModel,
				},
				TurnDetection: &protocol.TurnDetection{
					Type:              "server_vad",
					Threshold:         cfg.Session.VADThreshold,
					PrefixPaddingMS:   cfg.Session.VADPrefixMS,
					SilenceDurationMS: cfg.Session.VADSilenceMS,
				},
			},
			ChunkSize:    cfg.Session.ChunkSize,
			CancelGuard:  cfg.Session.CancelGuard,
			HandoffDelay: cfg.Handoff.Delay,
		},
	)

	return Services{Conversation: conversation, Config: cfg}, nil
}
