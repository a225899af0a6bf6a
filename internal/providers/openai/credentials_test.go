package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCredentialSourceIssueNestedSecret(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		session, _ := body["session"].(map[string]any)
		if session["model"] != "gpt-realtime" {
			t.Errorf("unexpected model %v", session["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"client_secret": map[string]any{
				"value":      "ek_abc123",
				"expires_at": 1767225600,
			},
		})
	}))
	defer server.Close()

	source := NewCredentialSource(Config{GatewayURL: server.URL, APIKey: "sk-test"})
	credential, err := source.Issue(context.Background())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if credential.Token != "ek_abc123" {
		t.Fatalf("unexpected token %q", credential.Token)
	}
	if credential.ExpiresAt != time.Unix(1767225600, 0) {
		t.Fatalf("unexpected expiry %v", credential.ExpiresAt)
	}
}

func TestCredentialSourceIssueFlatShapeWithoutKey(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no authorization header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"credential": "tok_local",
			"expires_at": "2026-01-01T00:00:00Z",
		})
	}))
	defer server.Close()

	source := NewCredentialSource(Config{GatewayURL: server.URL})
	credential, err := source.Issue(context.Background())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if credential.Token != "tok_local" {
		t.Fatalf("unexpected token %q", credential.Token)
	}
	if credential.ExpiresAt.Year() != 2026 {
		t.Fatalf("unexpected expiry %v", credential.ExpiresAt)
	}
}

func TestCredentialSourceIssueRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	source := NewCredentialSource(Config{GatewayURL: server.URL, APIKey: "sk-bad"})
	_, err := source.Issue(context.Background())
	if err == nil {
		t.Fatalf("expected rejection error")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCredentialSourceIssueEmptyCredential(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	source := NewCredentialSource(Config{GatewayURL: server.URL})
	if _, err := source.Issue(context.Background()); err == nil {
		t.Fatalf("expected missing credential error")
	}
}
