package ws

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voicelink/internal/domain"
	"voicelink/internal/protocol"
)

var upgrader = websocket.Upgrader{}

func TestDialerSessionRoundTrip(t *testing.T) {
	t.Parallel()

	received := make(chan map[string]any, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ek_test" {
			t.Errorf("unexpected authorization %q", got)
		}
		if !strings.Contains(r.URL.RawQuery, "model=gpt-realtime") {
			t.Errorf("missing model query: %q", r.URL.RawQuery)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"type": "session.created", "session": map[string]any{"id": "sess_1"}})
		_ = conn.WriteJSON(map[string]any{"type": "response.created", "response": map[string]any{"id": "resp_1"}})

		for i := 0; i < 2; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}

		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
	defer server.Close()

	dialer := NewDialer(Config{URL: server.URL, Model: "gpt-realtime"})
	session, err := dialer.Dial(context.Background(), domain.Credential{Token: "ek_test"})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	first := <-session.Events()
	if first.Type != protocol.EventSessionCreated || first.SessionID != "sess_1" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second := <-session.Events()
	if second.Type != protocol.EventResponseCreated || second.ResponseID != "resp_1" {
		t.Fatalf("unexpected second event: %+v", second)
	}

	update := protocol.NewSessionUpdate(protocol.SessionConfig{Modalities: []string{"text", "audio"}})
	if err := session.SendControl(update); err != nil {
		t.Fatalf("send control failed: %v", err)
	}
	if err := session.SendAudio([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}

	got := <-received
	if got["type"] != "session.update" {
		t.Fatalf("unexpected control message: %v", got)
	}
	got = <-received
	if got["type"] != "input_audio_buffer.append" {
		t.Fatalf("unexpected audio message: %v", got)
	}
	audio, _ := got["audio"].(string)
	if decoded, err := base64.StdEncoding.DecodeString(audio); err != nil || len(decoded) != 2 {
		t.Fatalf("unexpected audio payload %q", audio)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestDialerCredentialRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	dialer := NewDialer(Config{URL: server.URL})
	_, err := dialer.Dial(context.Background(), domain.Credential{Token: "bad"})
	if !errors.Is(err, domain.ErrCredentialRejected) {
		t.Fatalf("expected credential rejection, got %v", err)
	}
}

func TestDialerDropsMalformedMessages(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"no_type":true}`))
		_ = conn.WriteJSON(map[string]any{"type": "response.done", "response": map[string]any{"id": "resp_2"}})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	dialer := NewDialer(Config{URL: server.URL})
	session, err := dialer.Dial(context.Background(), domain.Credential{Token: "tok"})
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer session.Close()

	event, ok := <-session.Events()
	if !ok {
		t.Fatalf("expected an event before close")
	}
	if event.Type != protocol.EventResponseDone || event.ResponseID != "resp_2" {
		t.Fatalf("unexpected event after malformed frames: %+v", event)
	}
}

func TestBuildEndpoint(t *testing.T) {
	t.Parallel()

	got, err := buildEndpoint("https://api.example.com/v1/realtime", "gpt-realtime")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "wss://api.example.com/v1/realtime?model=gpt-realtime" {
		t.Fatalf("unexpected endpoint: %q", got)
	}

	got, err = buildEndpoint("wss://api.example.com/v1/realtime?model=custom", "gpt-realtime")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "model=custom") {
		t.Fatalf("explicit model must win: %q", got)
	}

	if _, err := buildEndpoint("ftp://nope", ""); err == nil {
		t.Fatalf("expected scheme error")
	}
}
