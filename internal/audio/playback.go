package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// SinkConfig controls the ffplay output sink.
type SinkConfig struct {
	Command       string
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

var errSinkTornDown = errors.New("audio sink has been torn down")

// FFPlaySink plays raw PCM through a single ffplay process. The process is
// created lazily on first use and reused for the whole session; Pause gates
// playback synchronously and discards buffered audio so an interrupted
// response never resumes mid-utterance.
type FFPlaySink struct {
	cfg SinkConfig

	mu       sync.Mutex
	started  bool
	tornDown bool
	paused   bool
	buffer   bytes.Buffer

	stdin   io.WriteCloser
	process *os.Process
	waitErr <-chan error
	pumpErr error

	done chan struct{}
}

func NewFFPlaySink(cfg SinkConfig) *FFPlaySink {
	if cfg.Command == "" {
		cfg.Command = "ffplay"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 20 * time.Millisecond
	}
	return &FFPlaySink{cfg: cfg}
}

// Ensure lazily starts the output process. Idempotent; a sink is never
// recreated mid-session. A start that dies immediately is retried once before
// the failure is reported.
func (s *FFPlaySink) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked()
}

func (s *FFPlaySink) ensureLocked() error {
	if s.tornDown {
		return errSinkTornDown
	}
	if s.started {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if lastErr = s.startProcessLocked(); lastErr == nil {
			s.started = true
			s.done = make(chan struct{})
			go s.pump()
			return nil
		}
	}
	return fmt.Errorf("failed to start playback: %w", lastErr)
}

func (s *FFPlaySink) startProcessLocked() error {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nodisp",
		"-f", "s16le",
		"-ar", strconv.Itoa(s.cfg.SampleRate),
		"-ch_layout", channelLayout(s.cfg.Channels),
		"-i", "-",
	}

	cmd := exec.Command(s.cfg.Command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create playback stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start playback process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		_ = stdin.Close()
		if err != nil {
			return fmt.Errorf("playback process exited immediately: %w", err)
		}
		return errors.New("playback process exited immediately")
	case <-time.After(250 * time.Millisecond):
	}

	s.stdin = stdin
	s.process = cmd.Process
	s.waitErr = waitErr
	return nil
}

// Play appends PCM to the playback stream, starting the sink if needed.
// Audio handed over while paused is dropped: the response it belongs to is
// being interrupted.
func (s *FFPlaySink) Play(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return err
	}
	if s.pumpErr != nil {
		return s.pumpErr
	}
	if s.paused {
		return nil
	}
	s.buffer.Write(pcm)
	return nil
}

// Pause gates output synchronously and drops anything still buffered. When
// Pause returns, no further audio reaches the output.
func (s *FFPlaySink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.buffer.Reset()
}

// Resume reopens the playback gate for the next response.
func (s *FFPlaySink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the gate is currently closed.
func (s *FFPlaySink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Teardown stops the output process and returns the sink to its initial
// state, ready for the Ensure of a later session. Safe to call any number of
// times and safe without a prior Ensure.
func (s *FFPlaySink) Teardown() error {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return nil
	}
	s.tornDown = true
	s.paused = true
	s.buffer.Reset()
	stdin := s.stdin
	process := s.process
	waitErr := s.waitErr
	done := s.done
	s.mu.Unlock()

	// Closing stdin first unblocks the pump if it is mid-write.
	if stdin != nil {
		_ = stdin.Close()
	}
	if done != nil {
		<-done
	}
	if process != nil {
		select {
		case <-waitErr:
		case <-time.After(1200 * time.Millisecond):
			_ = process.Kill()
			<-waitErr
		}
	}

	s.mu.Lock()
	s.started = false
	s.tornDown = false
	s.paused = false
	s.pumpErr = nil
	s.stdin = nil
	s.process = nil
	s.waitErr = nil
	s.done = nil
	s.mu.Unlock()
	return nil
}

// pump feeds buffered PCM to the player in fixed frames so a closed gate
// silences output within one frame duration.
func (s *FFPlaySink) pump() {
	defer close(s.done)

	frameBytes := s.cfg.SampleRate * s.cfg.Channels * 2 * int(s.cfg.FrameDuration/time.Millisecond) / 1000
	if frameBytes <= 0 {
		frameBytes = 960
	}

	ticker := time.NewTicker(s.cfg.FrameDuration)
	defer ticker.Stop()

	frame := make([]byte, frameBytes)
	for range ticker.C {
		s.mu.Lock()
		if s.tornDown {
			s.mu.Unlock()
			return
		}
		if s.paused || s.buffer.Len() == 0 {
			s.mu.Unlock()
			continue
		}
		n, _ := s.buffer.Read(frame)
		stdin := s.stdin
		s.mu.Unlock()

		if n == 0 {
			continue
		}
		if _, err := stdin.Write(frame[:n]); err != nil {
			s.mu.Lock()
			if s.pumpErr == nil {
				s.pumpErr = fmt.Errorf("playback write failed: %w", err)
			}
			s.mu.Unlock()
			return
		}
	}
}

func channelLayout(channels int) string {
	if channels == 2 {
		return "stereo"
	}
	return "mono"
}
