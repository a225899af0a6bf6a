package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voicelink/internal/domain"
	"voicelink/internal/handoff"
	"voicelink/internal/ports"
	"voicelink/internal/protocol"
)

var ErrConversationActive = errors.New("a conversation is already active")

const (
	defaultCancelGuard  = 100 * time.Millisecond
	defaultHandoffDelay = time.Second
)

// Config controls conversation behavior.
type Config struct {
	Audio   ports.AudioConfig
	Session protocol.SessionConfig

	ChunkSize int

	// CancelGuard is the minimum response age before a barge-in sends
	// response.cancel. Younger responses terminate naturally on the peer.
	CancelGuard time.Duration

	// HandoffDelay lets trailing audio finish before the completion callback.
	HandoffDelay time.Duration
}

// Conversation orchestrates one voice conversation with the remote peer:
// credential issue, transport negotiation, session configuration, then
// continuous event dispatch until the transport ends or Close is called.
type Conversation struct {
	credentials ports.CredentialSource
	dialer      ports.Dialer
	capture     ports.AudioCapture
	sink        ports.AudioSink
	detector    *handoff.Detector
	events      ports.EventSink
	logger      *slog.Logger
	cfg         Config

	// now is a seam for lifecycle timing in tests.
	now func() time.Time

	mu      sync.Mutex
	busy    bool
	current *activeConversation
}

func NewConversation(
	credentials ports.CredentialSource,
	dialer ports.Dialer,
	capture ports.AudioCapture,
	sink ports.AudioSink,
	detector *handoff.Detector,
	events ports.EventSink,
	logger *slog.Logger,
	cfg Config,
) *Conversation {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.CancelGuard <= 0 {
		cfg.CancelGuard = defaultCancelGuard
	}
	if cfg.HandoffDelay <= 0 {
		cfg.HandoffDelay = defaultHandoffDelay
	}
	if detector == nil {
		detector = handoff.NewDetector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		credentials: credentials,
		dialer:      dialer,
		capture:     capture,
		sink:        sink,
		detector:    detector,
		events:      events,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Connect establishes the session end to end: issue a credential, acquire the
// playback sink, negotiate the transport, start microphone capture, send the
// one mandatory session.update, then hand the event stream to the dispatch
// goroutine. On failure the session is unusable and the caller decides
// whether to call Connect again.
func (c *Conversation) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.busy || c.current != nil {
		c.mu.Unlock()
		return ErrConversationActive
	}
	c.busy = true
	c.mu.Unlock()

	err := c.connect(ctx)

	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
	return err
}

func (c *Conversation) connect(ctx context.Context) error {
	c.events.SessionStateChanged(domain.SessionStateConnecting, domain.ReasonConnecting)

	credential, err := c.credentials.Issue(ctx)
	if err != nil {
		return c.failSetup(domain.ErrorCodeCredential, domain.ReasonCredentialRejected,
			fmt.Errorf("issue credential: %w", err))
	}

	if err := c.sink.Ensure(); err != nil {
		return c.failSetup(domain.ErrorCodePlayback, domain.ReasonAudioUnavailable,
			fmt.Errorf("acquire playback sink: %w", err))
	}

	session, err := c.dialer.Dial(ctx, credential)
	if err != nil {
		code, reason := classifyDialError(err)
		return c.failSetup(code, reason, fmt.Errorf("negotiate transport: %w", err))
	}

	captureCtx, cancel := context.WithCancel(ctx)
	audioSession, err := c.capture.Start(captureCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		_ = session.Close()
		return c.failSetup(domain.ErrorCodeCapture, domain.ReasonAudioUnavailable,
			fmt.Errorf("start microphone capture: %w", err))
	}

	if err := session.SendControl(c.sessionUpdate()); err != nil {
		cancel()
		_ = audioSession.Stop()
		_ = session.Close()
		return c.failSetup(domain.ErrorCodeTransport, domain.ReasonTransportLost,
			fmt.Errorf("configure session: %w", err))
	}

	active := &activeConversation{
		cancel:       cancel,
		audio:        audioSession,
		session:      session,
		pumpDone:     make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.current = active
	c.mu.Unlock()

	go pumpMicrophone(audioSession, session, c.cfg.ChunkSize, c.events, c.logger, active.pumpDone)
	go c.dispatch(active)

	c.events.SessionStateChanged(domain.SessionStateConnected, domain.ReasonSessionEstablished)
	return nil
}

// Close ends the active conversation, if any, and blocks until the pump and
// dispatch goroutines have drained. Safe to call when nothing is active.
func (c *Conversation) Close() error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return nil
	}

	active.markClosed()
	active.cancel()
	_ = active.audio.Stop()
	_ = active.session.Close()
	<-active.pumpDone
	<-active.dispatchDone
	return nil
}

// Active reports whether a conversation is currently established.
func (c *Conversation) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// sessionUpdate builds the one mandatory configuration message. An invalid
// voice never fails the session; the documented default is substituted with a
// warning.
func (c *Conversation) sessionUpdate() protocol.SessionUpdate {
	cfg := c.cfg.Session
	voice, substituted := protocol.ResolveVoice(cfg.Voice)
	if substituted {
		c.logger.Warn("requested voice not available, substituting default",
			slog.String("requested", cfg.Voice),
			slog.String("voice", voice))
	}
	cfg.Voice = voice
	return protocol.NewSessionUpdate(cfg)
}

func (c *Conversation) failSetup(code domain.ErrorCode, reason domain.StateReason, err error) error {
	c.events.SessionError(code, err.Error())
	c.events.SessionStateChanged(domain.SessionStateFailed, reason)
	return err
}

func classifyDialError(err error) (domain.ErrorCode, domain.StateReason) {
	switch {
	case errors.Is(err, domain.ErrCredentialRejected):
		return domain.ErrorCodeCredential, domain.ReasonCredentialRejected
	case errors.Is(err, domain.ErrConnectTimeout):
		return domain.ErrorCodeTimeout, domain.ReasonConnectTimeout
	default:
		return domain.ErrorCodeSignaling, domain.ReasonSignalingFailed
	}
}

// dispatchState is mutated exclusively by the dispatch goroutine; the event
// channel is the serialization point, so none of this needs locks.
type dispatchState struct {
	sessionID    string
	response     responseState
	outputActive bool
	turns        *transcriptTurns
	handoffFired bool
}

func (c *Conversation) dispatch(active *activeConversation) {
	defer close(active.dispatchDone)

	st := &dispatchState{turns: newTranscriptTurns()}
	for event := range active.session.Events() {
		c.handle(active, st, event)
	}

	err := active.session.Wait()
	if active.wasClosed() {
		c.finish(active, domain.SessionStateClosed, domain.ReasonCleanup)
		return
	}
	if err != nil {
		c.events.SessionError(domain.ErrorCodeTransport, err.Error())
		c.finish(active, domain.SessionStateFailed, domain.ReasonTransportLost)
		return
	}
	c.finish(active, domain.SessionStateClosed, domain.ReasonCleanup)
}

func (c *Conversation) finish(active *activeConversation, state domain.SessionState, reason domain.StateReason) {
	active.finishOnce.Do(func() {
		active.cancel()
		if active.handoffTimer != nil {
			active.handoffTimer.Stop()
		}
		_ = active.audio.Stop()
		_ = c.sink.Teardown()

		c.mu.Lock()
		if c.current == active {
			c.current = nil
		}
		c.mu.Unlock()

		c.events.SessionStateChanged(state, reason)
	})
}

func (c *Conversation) handle(active *activeConversation, st *dispatchState, event protocol.ServerEvent) {
	switch event.Type {
	case protocol.EventSessionCreated:
		st.sessionID = event.SessionID
		c.logger.Debug("session created", slog.String("session_id", event.SessionID))

	case protocol.EventSessionUpdated:
		c.logger.Debug("session configuration acknowledged")

	case protocol.EventResponseCreated:
		if displaced := st.response.Create(event.ResponseID, c.now()); displaced != "" {
			c.logger.Warn("response created while another is active",
				slog.String("displaced", displaced),
				slog.String("response_id", event.ResponseID))
		}
		// A barge-in leaves the sink gated. The fallback transport carries no
		// output buffer events, so the new response is what reopens it.
		c.sink.Resume()

	case protocol.EventResponseDone:
		c.finishResponse(st, domain.ResponseStatusDone, event)

	case protocol.EventResponseCancelled:
		c.finishResponse(st, domain.ResponseStatusCancelled, event)

	case protocol.EventOutputAudioStarted:
		st.outputActive = true
		c.sink.Resume()

	case protocol.EventOutputAudioStopped:
		c.markOutputStopped(st)

	case protocol.EventAudioDelta:
		// Fallback transport only; the media-track transport plays audio
		// directly off the remote track.
		st.outputActive = true
		c.events.AudioChunk(event.Audio)
		if err := c.sink.Play(event.Audio); err != nil {
			c.events.SessionError(domain.ErrorCodePlayback, err.Error())
		}

	case protocol.EventAudioDone:
		c.markOutputStopped(st)

	case protocol.EventTranscriptDelta:
		st.turns.AppendAssistant(event.ItemID, event.Delta)
		c.events.AssistantTranscript(event.Delta)

	case protocol.EventTranscriptDone:
		c.finalizeAssistant(active, st, event)

	case protocol.EventSpeechStarted:
		c.handleSpeechStarted(active, st)

	case protocol.EventSpeechStopped:
		c.logger.Debug("user stopped speaking")

	case protocol.EventInputTranscriptDone:
		if transcript, ok := st.turns.FinalizeUser(event.ItemID, event.Transcript); ok && transcript.Text != "" {
			c.events.UserTranscript(transcript.Text)
		}

	case protocol.EventError:
		c.handleRemoteError(event.Error)

	default:
		c.logger.Debug("dropping unhandled event", slog.String("type", event.Type))
	}
}

func (c *Conversation) finishResponse(st *dispatchState, status domain.ResponseStatus, event protocol.ServerEvent) {
	if !st.response.Finish(status) {
		c.logger.Warn("terminal response event with no active response",
			slog.String("type", event.Type),
			slog.String("response_id", event.ResponseID))
	}
}

func (c *Conversation) markOutputStopped(st *dispatchState) {
	if !st.outputActive {
		return
	}
	st.outputActive = false
	c.events.PlaybackComplete()
}

func (c *Conversation) finalizeAssistant(active *activeConversation, st *dispatchState, event protocol.ServerEvent) {
	transcript, ok := st.turns.FinalizeAssistant(event.ItemID, event.Transcript)
	if !ok {
		return
	}
	if st.handoffFired || !c.detector.Match(transcript.Text) {
		return
	}
	st.handoffFired = true
	// Delay lets the trailing audio of the closing sentence finish playing.
	active.handoffTimer = time.AfterFunc(c.cfg.HandoffDelay, c.events.ConversationComplete)
}

func (c *Conversation) handleRemoteError(serr *protocol.ServerError) {
	if serr == nil {
		return
	}
	if protocol.IsBenignCancelRace(serr) {
		// Expected fallout of the cancel guard's race window. Self-resolving.
		c.logger.Debug("ignoring cancel race error", slog.String("code", serr.Code))
		return
	}
	c.events.SessionError(domain.ErrorCodeRemote, serr.Message)
}
