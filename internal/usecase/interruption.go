package usecase

import (
	"log/slog"

	"voicelink/internal/protocol"
)

// handleSpeechStarted implements barge-in: the user began speaking while the
// AI's audio may still be playing. Pausing the sink happens first and
// unconditionally, so no AI audio overlaps the user's speech; only then is
// cancellation considered. Responses younger than CancelGuard are not
// cancelled: the peer may emit response.created before the response is
// cancellable on its side, and a too-early cancel draws a benign protocol
// error. Young responses terminate naturally instead.
func (c *Conversation) handleSpeechStarted(active *activeConversation, st *dispatchState) {
	if !st.outputActive {
		return
	}

	c.sink.Pause()
	st.outputActive = false

	if st.response.Idle() {
		return
	}

	elapsed := st.response.Elapsed(c.now())
	if elapsed < c.cfg.CancelGuard {
		c.logger.Debug("skipping cancel for young response",
			slog.String("response_id", st.response.id),
			slog.Duration("elapsed", elapsed))
		return
	}

	if err := active.session.SendControl(protocol.NewResponseCancel(st.response.id)); err != nil {
		c.logger.Warn("failed to send response cancel", slog.String("error", err.Error()))
	}
}
