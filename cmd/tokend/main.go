// tokend is a local credential gateway for development: it holds the real API
// key and mints short-lived session credentials for clients, so the key never
// reaches the conversation client itself.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const defaultUpstream = "https://api.openai.com/v1/realtime/client_secrets"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr     string
		upstream string
	)
	flag.StringVar(&addr, "addr", ":8089", "Listen address")
	flag.StringVar(&upstream, "upstream", defaultUpstream, "Credential mint endpoint")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		return 1
	}

	gateway := &gateway{
		upstream: upstream,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/session", gateway.mintSession)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("credential gateway listening", slog.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		logger.Info("shutdown complete")
		return 0
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return 0
		}
		logger.Error("server failed", slog.String("error", err.Error()))
		return 1
	}
}

type gateway struct {
	upstream string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

type mintRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

// mintSession forwards a mint request upstream with the server-held key and
// relays the credential back. Clients never see the API key.
func (g *gateway) mintSession(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Model == "" {
		req.Model = "gpt-realtime"
	}

	session := map[string]any{"type": "realtime", "model": req.Model}
	if req.Voice != "" {
		session["audio"] = map[string]any{
			"output": map[string]any{"voice": req.Voice},
		}
	}
	payload, err := json.Marshal(map[string]any{"session": session})
	if err != nil {
		http.Error(w, "encode upstream request", http.StatusInternalServerError)
		return
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, g.upstream, strings.NewReader(string(payload)))
	if err != nil {
		http.Error(w, "build upstream request", http.StatusInternalServerError)
		return
	}
	upstreamReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	upstreamReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(upstreamReq)
	if err != nil {
		g.logger.Error("upstream mint failed", slog.String("error", err.Error()))
		http.Error(w, "credential mint failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		http.Error(w, "read upstream response", http.StatusBadGateway)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.logger.Warn("upstream rejected mint", slog.Int("status", resp.StatusCode))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}
