package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/graphwatch/pkg/config"
	"github.com/go-go-golems/graphwatch/pkg/events"
	"github.com/go-go-golems/graphwatch/pkg/graph"
	"github.com/go-go-golems/graphwatch/pkg/model"
)

// wsFrame mirrors the push channel wire envelope for the fake host.
type wsFrame struct {
	Type         string            `json:"type"`
	ConnectionID string            `json:"connectionId,omitempty"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// fakeHost plays the whole remote side: the chat REST API, the decryption
// endpoint and the websocket notification hub.
type fakeHost struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu          sync.Mutex
	conn        *websocket.Conn
	invocations chan wsFrame
}

func newFakeHost(t *testing.T) (*fakeHost, *httptest.Server) {
	t.Helper()
	h := &fakeHost{t: t, invocations: make(chan wsFrame, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/me/chats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"id":"A","topic":"General","createdDateTime":"2026-01-01T00:00:00Z"}]}`))
	})
	mux.HandleFunc("/me/chats/A", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"A","topic":"General","createdDateTime":"2026-01-01T00:00:00Z"}`))
	})
	mux.HandleFunc("/chats/A/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	})
	mux.HandleFunc("/chats/A/members", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"userId":"user-1","displayName":"User One"}]}`))
	})
	mux.HandleFunc("/api/GetChatMessageFromNotification", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id":"m1","chatId":"A","etag":"1",
			"from":{"user":{"id":"user-2","displayName":"User Two"}},
			"body":{"content":"pushed hello"}
		}`))
	})
	mux.HandleFunc("/api/notifications", h.serveWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func (h *fakeHost) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()
	_ = conn.WriteJSON(&wsFrame{Type: "welcome", ConnectionID: "conn-1"})
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		h.invocations <- f
		_ = conn.WriteJSON(&wsFrame{Type: "ack", InvocationID: f.InvocationID})
	}
}

func (h *fakeHost) push(target string, payload any) {
	b, err := json.Marshal(payload)
	require.NoError(h.t, err)
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	require.NotNil(h.t, conn)
	require.NoError(h.t, conn.WriteJSON(&wsFrame{
		Type:      "invocation",
		Target:    target,
		Arguments: []json.RawMessage{b},
	}))
}

func (h *fakeHost) nextInvocation(t *testing.T) wsFrame {
	t.Helper()
	select {
	case f := <-h.invocations:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for invocation")
		return wsFrame{}
	}
}

func TestClientEndToEndSubscribeAndReceive(t *testing.T) {
	host, srv := newFakeHost(t)

	cfg := config.Default()
	cfg.GraphBaseURL = srv.URL
	cfg.FunctionHost = srv.URL
	cfg.NotificationEndpoint = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications"

	client, err := New(cfg, graph.StaticTokenProvider("tok"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, client.PopulateAll(ctx))
	require.Len(t, client.AllThreads(), 1)

	require.NoError(t, client.Connect(ctx))

	var mu sync.Mutex
	var received []model.ChatEvent
	client.GetOrCreateRouter("A").On(events.KindMessageReceived, func(ev events.Event) {
		mu.Lock()
		received = append(received, ev.(events.MessageEvent).Message)
		mu.Unlock()
	})

	require.NoError(t, client.Subscribe(ctx, "A"))

	create := host.nextInvocation(t)
	require.Equal(t, "CreateSubscription", create.Target)
	var def model.SubscriptionDefinition
	require.NoError(t, json.Unmarshal(create.Arguments[0], &def))
	require.Equal(t, "chats/A/messages", def.Resource)
	require.Equal(t, "conn-1", def.ConnectionID)

	host.push("SubscriptionCreated", model.SubscriptionRecord{
		UserID:         "user-1",
		ID:             "S1",
		Resource:       "chats/A/messages",
		ExpirationTime: time.Now().Add(5 * time.Minute).UTC(),
	})
	host.push("newMessage", model.Notification{
		SubscriptionID:   "S1",
		EncryptedContent: "opaque-blob",
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "m1", received[0].MessageID)
	require.Equal(t, "A", received[0].ThreadID)
	require.Equal(t, "pushed hello", received[0].Content)
	require.Equal(t, "User Two", received[0].SenderDisplayName)
}

func TestClientSubscribeIsIdempotentAcrossFacade(t *testing.T) {
	host, srv := newFakeHost(t)

	cfg := config.Default()
	cfg.GraphBaseURL = srv.URL
	cfg.FunctionHost = srv.URL
	cfg.NotificationEndpoint = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications"

	client, err := New(cfg, graph.StaticTokenProvider("tok"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, client.Connect(ctx))

	require.NoError(t, client.Subscribe(ctx, "A"))
	require.NoError(t, client.Subscribe(ctx, "A"))

	host.nextInvocation(t)
	select {
	case f := <-host.invocations:
		t.Fatalf("unexpected second invocation %q", f.Target)
	case <-time.After(100 * time.Millisecond):
	}
}
