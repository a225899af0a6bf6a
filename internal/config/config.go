package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transport selects how the session reaches the peer.
const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

// Config stores runtime configuration for the conversation client.
type Config struct {
	OpenAI  OpenAIConfig
	Audio   AudioConfig
	Session SessionConfig
	Handoff HandoffConfig
}

type OpenAIConfig struct {
	// APIKey is optional: the credential gateway may mint without it when it
	// holds its own key (the local dev gateway does).
	APIKey       string
	GatewayURL   string
	SignalingURL string
	RealtimeURL  string
	Model        string
	Voice        string
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int

	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

type SessionConfig struct {
	Transport    string
	Instructions string

	// Server-side voice-activity detection knobs. They balance premature
	// cutoff against added latency and are deliberately tunable.
	VADThreshold       float64
	VADPrefixMS        int
	VADSilenceMS       int
	TranscriptionModel string

	ChunkSize      int
	ConnectTimeout time.Duration
	CancelGuard    time.Duration
}

type HandoffConfig struct {
	PhrasesFile string
	Delay       time.Duration
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		OpenAI: OpenAIConfig{
			APIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			GatewayURL:   envOrDefault("VOICELINK_GATEWAY_URL", "https://api.openai.com/v1/realtime/client_secrets"),
			SignalingURL: envOrDefault("VOICELINK_SIGNALING_URL", "https://api.openai.com/v1/realtime/calls"),
			RealtimeURL:  envOrDefault("VOICELINK_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
			Model:        envOrDefault("VOICELINK_MODEL", "gpt-realtime"),
			Voice:        envOrDefault("VOICELINK_VOICE", "cedar"),
		},
		Audio: AudioConfig{
			RecorderCommand:  envOrDefault("VOICELINK_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:    envOrDefault("VOICELINK_FFPLAY_COMMAND", "ffplay"),
			InputFormat:      envOrDefault("VOICELINK_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:      envOrDefault("VOICELINK_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:       envOrDefaultInt("VOICELINK_SAMPLE_RATE", 24000),
			Channels:         envOrDefaultInt("VOICELINK_CHANNELS", 1),
			EchoCancellation: envOrDefaultBool("VOICELINK_ECHO_CANCELLATION", true),
			NoiseSuppression: envOrDefaultBool("VOICELINK_NOISE_SUPPRESSION", true),
			AutoGainControl:  envOrDefaultBool("VOICELINK_AUTO_GAIN", true),
		},
		Session: SessionConfig{
			Transport:          envOrDefault("VOICELINK_TRANSPORT", TransportWebRTC),
			Instructions:       strings.TrimSpace(os.Getenv("VOICELINK_INSTRUCTIONS")),
			VADThreshold:       envOrDefaultFloat("VOICELINK_VAD_THRESHOLD", 0.5),
			VADPrefixMS:        envOrDefaultInt("VOICELINK_VAD_PREFIX_MS", 300),
			VADSilenceMS:       envOrDefaultInt("VOICELINK_VAD_SILENCE_MS", 500),
			TranscriptionModel: envOrDefault("VOICELINK_TRANSCRIPTION_MODEL", "whisper-1"),
			ChunkSize:          envOrDefaultInt("VOICELINK_AUDIO_CHUNK_SIZE", 4096),
			ConnectTimeout:     envDurationMS("VOICELINK_CONNECT_TIMEOUT_MS", 30*time.Second),
			CancelGuard:        envDurationMS("VOICELINK_CANCEL_GUARD_MS", 100*time.Millisecond),
		},
		Handoff: HandoffConfig{
			PhrasesFile: defaultPhrasesFile(),
			Delay:       envDurationMS("VOICELINK_HANDOFF_DELAY_MS", time.Second),
		},
	}

	switch cfg.Session.Transport {
	case TransportWebRTC, TransportWebSocket:
	default:
		cfg.Session.Transport = TransportWebRTC
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 24000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.VADThreshold <= 0 || cfg.Session.VADThreshold > 1 {
		cfg.Session.VADThreshold = 0.5
	}

	return cfg, nil
}

func defaultPhrasesFile() string {
	if path := strings.TrimSpace(os.Getenv("VOICELINK_HANDOFF_PHRASES_FILE")); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicelink", "handoff.phrases")
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDurationMS(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}
