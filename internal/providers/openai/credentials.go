// Package openai implements the credential gateway client for the realtime
// voice service. The core treats the issued credential as opaque and forwards
// it verbatim to the transport.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voicelink/internal/domain"
)

// Config controls the credential mint request.
type Config struct {
	// GatewayURL is the token-issuing endpoint. Defaults to the hosted mint
	// endpoint; a local dev gateway works the same way.
	GatewayURL string
	// APIKey is optional: a gateway that holds its own upstream key needs none.
	APIKey string
	Model  string
	Voice  string

	HTTPClient *http.Client
}

// CredentialSource mints short-lived session credentials.
type CredentialSource struct {
	cfg    Config
	client *http.Client
}

func NewCredentialSource(cfg Config) *CredentialSource {
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "https://api.openai.com/v1/realtime/client_secrets"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-realtime"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &CredentialSource{cfg: cfg, client: client}
}

type mintRequest struct {
	Session mintSession `json:"session"`
}

type mintSession struct {
	Type  string `json:"type"`
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

// mintResponse tolerates the shapes used by the hosted endpoint and by local
// gateways: a bare credential, or one nested under client_secret.
type mintResponse struct {
	Value      string          `json:"value"`
	Credential string          `json:"credential"`
	ExpiresAt  json.RawMessage `json:"expires_at"`

	ClientSecret struct {
		Value     string          `json:"value"`
		ExpiresAt json.RawMessage `json:"expires_at"`
	} `json:"client_secret"`
}

// Issue requests one credential from the gateway.
func (s *CredentialSource) Issue(ctx context.Context) (domain.Credential, error) {
	body, err := json.Marshal(mintRequest{Session: mintSession{
		Type:  "realtime",
		Model: s.cfg.Model,
		Voice: s.cfg.Voice,
	}})
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to encode credential request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to build credential request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("credential gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to read credential response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Credential{}, fmt.Errorf("credential gateway rejected request: status %d: %s", resp.StatusCode, summarize(payload))
	}

	var decoded mintResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return domain.Credential{}, fmt.Errorf("malformed credential response: %w", err)
	}

	token := firstToken(decoded.Value, decoded.ClientSecret.Value, decoded.Credential)
	if token == "" {
		return domain.Credential{}, errors.New("credential response carried no credential")
	}

	expiry := parseExpiry(decoded.ExpiresAt)
	if expiry.IsZero() {
		expiry = parseExpiry(decoded.ClientSecret.ExpiresAt)
	}

	return domain.Credential{Token: token, ExpiresAt: expiry}, nil
}

func firstToken(candidates ...string) string {
	for _, candidate := range candidates {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// parseExpiry accepts unix seconds or RFC 3339. The expiry is advisory; the
// session fails on its own if the credential is stale.
func parseExpiry(raw json.RawMessage) time.Time {
	trimmed := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if trimmed == "" || trimmed == "null" {
		return time.Time{}
	}
	if seconds, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return time.Unix(seconds, 0)
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts
	}
	return time.Time{}
}

func summarize(payload []byte) string {
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
