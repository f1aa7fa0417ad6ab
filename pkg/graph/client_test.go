package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestClientListChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/chats", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"value":[
			{"id":"A","topic":"General","createdDateTime":"2026-01-01T00:00:00Z","createdBy":"user-1"},
			{"id":"B","topic":"","createdDateTime":"2026-01-02T00:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenProvider("test-token"))
	threads, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 2)
	require.Equal(t, "A", threads[0].ID)
	require.Equal(t, "General", threads[0].Topic)
	require.EqualValues(t, -1, threads[0].Version)
}

func TestClientListMessagesNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chats/A/messages", r.URL.Path)
		_, _ = w.Write([]byte(`{"value":[{
			"id":"m1","etag":"3",
			"createdDateTime":"2026-01-01T10:00:00Z",
			"lastModifiedDateTime":"2026-01-01T10:05:00Z",
			"from":{"user":{"id":"user-1","displayName":"User One"}},
			"body":{"content":"hello"}
		}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenProvider("test-token"))
	msgs, err := c.ListMessages(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "A", msgs[0].ThreadID, "chat id is filled in when the wire message omits it")
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, "User One", msgs[0].SenderDisplayName)
	require.EqualValues(t, 3, msgs[0].Version)
}

func TestClientSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hi there", body["body"].(map[string]any)["content"])
		_, _ = w.Write([]byte(`{"id":"m9"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenProvider("test-token"))
	id, err := c.SendMessage(context.Background(), "A", "hi there")
	require.NoError(t, err)
	require.Equal(t, "m9", id)
}

func TestClientPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenProvider("test-token"))
	_, err := c.ListChats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestClientFailsWithoutToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", StaticTokenProvider(""))
	_, err := c.ListChats(context.Background())
	require.True(t, errors.Is(err, ErrNoToken))
}

func TestDecryptClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/GetChatMessageFromNotification", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		var payload string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "opaque-blob", payload)
		_, _ = w.Write([]byte(`{"id":"m1","chatId":"A","body":{"content":"secret"}}`))
	}))
	defer srv.Close()

	c := NewDecryptClient(srv.URL)
	msg, err := c.Decrypt(context.Background(), "test-token", "opaque-blob")
	require.NoError(t, err)
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "secret", msg.Body.Content)
}

func TestDecryptClientRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewDecryptClient(srv.URL)
	_, err := c.Decrypt(context.Background(), "test-token", "opaque-blob")
	require.Error(t, err)
}
