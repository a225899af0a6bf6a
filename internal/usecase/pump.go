package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"voicelink/internal/domain"
	"voicelink/internal/ports"
)

// pumpMicrophone forwards captured audio frames to the transport until the
// capture session drains or the transport refuses a frame. Send failures are
// the normal way the pump learns the session ended, so they are not surfaced;
// transport loss is reported by the dispatch loop from Session.Wait.
func pumpMicrophone(
	audio ports.AudioSession,
	session ports.Session,
	chunkSize int,
	events ports.EventSink,
	logger *slog.Logger,
	done chan struct{},
) {
	defer close(done)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := session.SendAudio(buf[:n]); sendErr != nil {
				logger.Debug("microphone pump stopped", slog.String("error", sendErr.Error()))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				events.SessionError(domain.ErrorCodeCapture, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}
