// Package ws provides the fallback control+audio transport over a single
// websocket. Audio travels as base64 input_audio_buffer.append frames
// outbound and response.audio.delta events inbound; the media-track transport
// is preferred when available.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
	"voicelink/internal/protocol"
)

const defaultConnectTimeout = 30 * time.Second

// Config controls the websocket transport.
type Config struct {
	// URL is the realtime endpoint, ws(s) or http(s) scheme.
	URL   string
	Model string

	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// Dialer implements ports.Dialer over a websocket.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	if cfg.URL == "" {
		cfg.URL = "wss://api.openai.com/v1/realtime"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dialer{cfg: cfg}
}

// Dial opens the websocket session using the issued credential.
func (d *Dialer) Dial(ctx context.Context, credential domain.Credential) (ports.Session, error) {
	endpoint, err := buildEndpoint(d.cfg.URL, d.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignalingFailed, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+credential.Token)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.cfg.ConnectTimeout)
		defer cancel()
	}

	dialer := &websocket.Dialer{HandshakeTimeout: d.cfg.ConnectTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", domain.ErrCredentialRejected, resp.StatusCode)
		}
		if dialCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConnectTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSignalingFailed, err)
	}

	session := &session{
		conn:    conn,
		logger:  d.cfg.Logger,
		events:  make(chan protocol.ServerEvent, 256),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

type session struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events  chan protocol.ServerEvent
	closing chan struct{}
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (s *session) SendControl(payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *session) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return s.SendControl(protocol.NewInputAudioAppend(pcm))
}

func (s *session) Events() <-chan protocol.ServerEvent {
	return s.events
}

func (s *session) Wait() error {
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second),
		)
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	select {
	case <-s.closing:
		// Read errors after a local Close are expected.
		return
	default:
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(err)
			return
		}

		event, parseErr := protocol.ParseServerEvent(payload)
		if parseErr != nil {
			s.logger.Debug("dropping malformed control message", slog.String("error", parseErr.Error()))
			continue
		}
		select {
		case s.events <- event:
		case <-s.closing:
			return
		}
	}
}

func buildEndpoint(raw string, model string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if model != "" && u.Query().Get("model") == "" {
		query := u.Query()
		query.Set("model", model)
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}
