package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"voicelink/internal/bootstrap"
	"voicelink/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	var debug bool
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := newConsoleSink(logger)
	services, err := bootstrap.Build(sink, logger)
	if err != nil {
		logger.Error("failed to build runtime", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("connecting",
		slog.String("transport", services.Config.Session.Transport),
		slog.String("model", services.Config.OpenAI.Model),
		slog.String("voice", services.Config.OpenAI.Voice))

	if err := services.Conversation.Connect(ctx); err != nil {
		logger.Error("connect failed", slog.String("error", err.Error()))
		return 1
	}
	defer services.Conversation.Close()

	select {
	case <-ctx.Done():
		logger.Info("interrupted, closing conversation")
	case <-sink.Done():
		logger.Info("conversation complete")
	}
	return 0
}

// consoleSink renders the conversation on stdout and signals completion.
type consoleSink struct {
	logger *slog.Logger

	mu           sync.Mutex
	assistantOut bool

	done     chan struct{}
	doneOnce sync.Once
}

func newConsoleSink(logger *slog.Logger) *consoleSink {
	return &consoleSink{logger: logger, done: make(chan struct{})}
}

func (s *consoleSink) Done() <-chan struct{} { return s.done }

func (s *consoleSink) SessionStateChanged(state domain.SessionState, reason domain.StateReason) {
	s.logger.Info("session state changed",
		slog.String("state", string(state)),
		slog.String("reason", string(reason)))
	if state == domain.SessionStateFailed || state == domain.SessionStateClosed {
		s.doneOnce.Do(func() { close(s.done) })
	}
}

func (s *consoleSink) AssistantTranscript(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.assistantOut {
		fmt.Print("assistant: ")
		s.assistantOut = true
	}
	fmt.Print(fragment)
}

func (s *consoleSink) UserTranscript(final string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assistantOut {
		fmt.Println()
		s.assistantOut = false
	}
	fmt.Printf("you: %s\n", final)
}

func (s *consoleSink) AudioChunk([]byte) {}

func (s *consoleSink) PlaybackComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assistantOut {
		fmt.Println()
		s.assistantOut = false
	}
}

func (s *consoleSink) ConversationComplete() {
	s.logger.Info("handoff phrase detected, ending conversation")
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *consoleSink) SessionError(code domain.ErrorCode, detail string) {
	s.logger.Error("session error",
		slog.String("code", string(code)),
		slog.String("detail", detail))
}
