package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newSinkWithScript(t *testing.T) (*FFPlaySink, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "played.pcm")
	script := filepath.Join(dir, "player.sh")
	contents := fmt.Sprintf("#!/usr/bin/env bash\nexec cat > %q\n", out)
	if err := os.WriteFile(script, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write player script: %v", err)
	}
	sink := NewFFPlaySink(SinkConfig{Command: script, FrameDuration: 5 * time.Millisecond})
	return sink, out
}

func waitForContents(t *testing.T, path string, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && strings.Contains(string(data), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	data, _ := os.ReadFile(path)
	t.Fatalf("player never received %q, got %q", want, string(data))
}

func TestFFPlaySinkPlayReachesOutput(t *testing.T) {
	t.Parallel()

	sink, out := newSinkWithScript(t)
	defer func() { _ = sink.Teardown() }()

	if err := sink.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := sink.Ensure(); err != nil {
		t.Fatalf("ensure must be idempotent: %v", err)
	}
	if err := sink.Play([]byte("audible")); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	waitForContents(t, out, "audible")
}

func TestFFPlaySinkPauseDropsBufferedAudio(t *testing.T) {
	t.Parallel()

	sink, out := newSinkWithScript(t)
	defer func() { _ = sink.Teardown() }()

	if err := sink.Play([]byte("first")); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	waitForContents(t, out, "first")

	sink.Pause()
	if !sink.Paused() {
		t.Fatalf("expected paused sink")
	}
	if err := sink.Play([]byte("dropped")); err != nil {
		t.Fatalf("play while paused must not error: %v", err)
	}

	sink.Resume()
	if err := sink.Play([]byte("second")); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	waitForContents(t, out, "second")

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Fatalf("paused audio leaked to output: %q", string(data))
	}
}

func TestFFPlaySinkTeardownIdempotentAndSafeWithoutEnsure(t *testing.T) {
	t.Parallel()

	sink, _ := newSinkWithScript(t)

	// Never ensured: teardown must still be safe, repeatedly.
	for i := 0; i < 3; i++ {
		if err := sink.Teardown(); err != nil {
			t.Fatalf("teardown %d failed: %v", i, err)
		}
	}
}

func TestFFPlaySinkEnsureAfterTeardownStartsFresh(t *testing.T) {
	t.Parallel()

	sink, out := newSinkWithScript(t)
	defer func() { _ = sink.Teardown() }()

	if err := sink.Play([]byte("first-session")); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	waitForContents(t, out, "first-session")

	// A barge-in right before the session ends leaves the gate closed.
	sink.Pause()
	if err := sink.Teardown(); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}

	// The next session reuses the sink. Teardown must have reset it so a
	// fresh process starts with an open gate.
	if err := sink.Ensure(); err != nil {
		t.Fatalf("ensure after teardown failed: %v", err)
	}
	if sink.Paused() {
		t.Fatalf("gate must reopen for the next session")
	}
	if err := sink.Play([]byte("second-session")); err != nil {
		t.Fatalf("play after restart failed: %v", err)
	}
	waitForContents(t, out, "second-session")
}

func TestFFPlaySinkTeardownAfterPlay(t *testing.T) {
	t.Parallel()

	sink, out := newSinkWithScript(t)
	if err := sink.Play([]byte("bye")); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	waitForContents(t, out, "bye")

	if err := sink.Teardown(); err != nil {
		t.Fatalf("teardown failed: %v", err)
	}
	if err := sink.Teardown(); err != nil {
		t.Fatalf("second teardown failed: %v", err)
	}
}
