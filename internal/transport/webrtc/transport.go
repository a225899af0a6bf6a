// Package webrtc negotiates the preferred media+control transport: a peer
// connection carrying G.711 audio both ways plus an "oai-events" data channel
// for the control protocol. Remote audio is decoded straight into the
// playback sink; control events flow through the Session event channel.
package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"voicelink/internal/audio"
	"voicelink/internal/domain"
	"voicelink/internal/ports"
	"voicelink/internal/protocol"
)

const (
	defaultConnectTimeout = 30 * time.Second

	dataChannelName = "oai-events"

	// G.711 µ-law over RTP: 8 kHz mono, 20 ms frames.
	pcmuClockRate   = 8000
	pcmuPayloadType = 0
	frameDuration   = 20 * time.Millisecond
	framePCMBytes   = pcmuClockRate / 50 * 2
)

// Config controls the peer-connection transport. Microphone audio handed to
// SendAudio must be 8 kHz mono little-endian PCM16; the capture layer is
// configured to match.
type Config struct {
	// SignalingURL receives the SDP offer with the bearer credential.
	SignalingURL string
	Model        string

	ConnectTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Dialer implements ports.Dialer over a pion peer connection. Remote track
// audio plays through the sink; the dialer owns neither the sink nor its
// lifecycle.
type Dialer struct {
	cfg  Config
	sink ports.AudioSink
}

func NewDialer(cfg Config, sink ports.AudioSink) *Dialer {
	if cfg.SignalingURL == "" {
		cfg.SignalingURL = "https://api.openai.com/v1/realtime/calls"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.ConnectTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dialer{cfg: cfg, sink: sink}
}

// Dial runs the offer/answer exchange and waits for the connection and the
// control channel with a hard timeout. The credential authorizes exactly one
// signaling request and is not retained.
func (d *Dialer) Dial(ctx context.Context, credential domain.Credential) (ports.Session, error) {
	deadline := time.Now().Add(d.cfg.ConnectTimeout)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	pc, track, err := d.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignalingFailed, err)
	}

	s := &session{
		pc:      pc,
		track:   track,
		sink:    d.sink,
		logger:  d.cfg.Logger,
		events:  make(chan protocol.ServerEvent, 256),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	connected := make(chan struct{})
	var connectedOnce sync.Once
	pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		d.cfg.Logger.Debug("peer connection state changed", slog.String("state", state.String()))
		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			connectedOnce.Do(func() { close(connected) })
		case pionwebrtc.PeerConnectionStateFailed, pionwebrtc.PeerConnectionStateDisconnected:
			s.end(fmt.Errorf("peer connection %s", state))
		case pionwebrtc.PeerConnectionStateClosed:
			s.end(nil)
		}
	})

	pc.OnTrack(func(remote *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		if remote.Kind() != pionwebrtc.RTPCodecTypeAudio {
			return
		}
		d.cfg.Logger.Debug("remote audio track received", slog.String("codec", remote.Codec().MimeType))
		go s.readRemoteAudio(remote)
	})

	dc, err := pc.CreateDataChannel(dataChannelName, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: create data channel: %v", domain.ErrSignalingFailed, err)
	}
	s.dc = dc

	dcOpen := make(chan struct{})
	dc.OnOpen(func() { close(dcOpen) })
	dc.OnMessage(func(msg pionwebrtc.DataChannelMessage) {
		event, parseErr := protocol.ParseServerEvent(msg.Data)
		if parseErr != nil {
			d.cfg.Logger.Debug("dropping malformed control message", slog.String("error", parseErr.Error()))
			return
		}
		s.emit(event)
	})

	answer, err := d.exchangeSDP(dialCtx, pc, credential)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if !strings.Contains(answer, "m=audio") {
		_ = pc.Close()
		return nil, domain.ErrNoMediaTrack
	}
	if err := pc.SetRemoteDescription(pionwebrtc.SessionDescription{
		Type: pionwebrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("%w: apply answer: %v", domain.ErrSignalingFailed, err)
	}

	// Both the connection and the control channel must be up before the
	// session is usable.
	for _, ready := range []<-chan struct{}{connected, dcOpen} {
		select {
		case <-ready:
		case <-s.done:
			_ = pc.Close()
			return nil, fmt.Errorf("%w: %v", domain.ErrSignalingFailed, s.Wait())
		case <-dialCtx.Done():
			_ = pc.Close()
			return nil, fmt.Errorf("%w: state never reached connected", domain.ErrConnectTimeout)
		}
	}

	return s, nil
}

func (d *Dialer) newPeerConnection() (*pionwebrtc.PeerConnection, *pionwebrtc.TrackLocalStaticSample, error) {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypePCMU,
			ClockRate: pcmuClockRate,
			Channels:  1,
		},
		PayloadType: pcmuPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("register codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	pc, err := api.NewPeerConnection(pionwebrtc.Configuration{})
	if err != nil {
		return nil, nil, fmt.Errorf("create peer connection: %w", err)
	}

	track, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypePCMU,
			ClockRate: pcmuClockRate,
			Channels:  1,
		},
		"audio",
		"voicelink-mic",
	)
	if err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("create local track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("add local track: %w", err)
	}

	return pc, track, nil
}

// exchangeSDP creates the local offer, waits for ICE gathering so the offer
// is complete (no trickle), and posts it to the signaling endpoint.
func (d *Dialer) exchangeSDP(ctx context.Context, pc *pionwebrtc.PeerConnection, credential domain.Credential) (string, error) {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create offer: %v", domain.ErrSignalingFailed, err)
	}
	gathered := pionwebrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("%w: set local description: %v", domain.ErrSignalingFailed, err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", fmt.Errorf("%w: ice gathering", domain.ErrConnectTimeout)
	}

	endpoint := d.cfg.SignalingURL
	if d.cfg.Model != "" {
		separator := "?"
		if strings.Contains(endpoint, "?") {
			separator = "&"
		}
		endpoint += separator + "model=" + d.cfg.Model
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(pc.LocalDescription().SDP))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSignalingFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential.Token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := d.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: signaling exchange", domain.ErrConnectTimeout)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSignalingFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read answer: %v", domain.ErrSignalingFailed, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", domain.ErrCredentialRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrSignalingFailed, resp.StatusCode, trimBody(body))
	}
	return string(body), nil
}

func trimBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

type session struct {
	pc     *pionwebrtc.PeerConnection
	dc     *pionwebrtc.DataChannel
	track  *pionwebrtc.TrackLocalStaticSample
	sink   ports.AudioSink
	logger *slog.Logger

	events  chan protocol.ServerEvent
	done    chan struct{}
	closing chan struct{}

	emitMu     sync.Mutex
	emitClosed bool

	writeMu sync.Mutex
	pending []byte

	closeOnce sync.Once
	endOnce   sync.Once

	errMu sync.Mutex
	err   error
}

func (s *session) SendControl(payload any) error {
	data, err := marshalControl(payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.dc.SendText(string(data))
}

// SendAudio µ-law encodes the microphone PCM and writes it to the local track
// in 20 ms frames. A trailing partial frame is held until the next call.
func (s *session) SendAudio(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.pending = append(s.pending, pcm...)
	for len(s.pending) >= framePCMBytes {
		frame := s.pending[:framePCMBytes]
		s.pending = s.pending[framePCMBytes:]
		if err := s.track.WriteSample(media.Sample{
			Data:     audio.EncodeMuLawPCM(frame),
			Duration: frameDuration,
		}); err != nil {
			return fmt.Errorf("write audio frame: %w", err)
		}
	}
	return nil
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
		_ = s.pc.Close()
		s.end(nil)
	})
	return nil
}

// end terminates the session exactly once: record the error, close the event
// stream, release waiters.
func (s *session) end(err error) {
	s.endOnce.Do(func() {
		s.setErr(err)

		s.emitMu.Lock()
		s.emitClosed = true
		close(s.events)
		s.emitMu.Unlock()

		close(s.done)
	})
}

func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	select {
	case <-s.closing:
		// State churn after a local Close is expected.
		return
	default:
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// emit delivers an event without ever blocking a pion callback. A full
// channel means the consumer stalled; dropping is the lesser evil.
func (s *session) emit(event protocol.ServerEvent) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.emitClosed {
		return
	}
	select {
	case s.events <- event:
	default:
		s.logger.Warn("dropping control event, consumer not keeping up", slog.String("type", event.Type))
	}
}

// readRemoteAudio decodes inbound µ-law packets straight into the playback
// sink. The sink's pause gate decides whether they become audible.
func (s *session) readRemoteAudio(remote *pionwebrtc.TrackRemote) {
	for {
		packet, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("remote track read ended", slog.String("error", err.Error()))
			}
			return
		}
		pcm := pcmFromPacket(packet)
		if len(pcm) == 0 {
			continue
		}
		if err := s.sink.Play(pcm); err != nil {
			s.logger.Debug("sink rejected remote audio", slog.String("error", err.Error()))
			return
		}
	}
}

// pcmFromPacket decodes one inbound RTP packet to PCM16. Packets with other
// payload types (comfort noise, DTMF) are skipped.
func pcmFromPacket(packet *rtp.Packet) []byte {
	if packet == nil || packet.PayloadType != pcmuPayloadType || len(packet.Payload) == 0 {
		return nil
	}
	return audio.DecodeMuLawPCM(packet.Payload)
}

func marshalControl(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode control message: %w", err)
	}
	return data, nil
}
