package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/graphwatch/pkg/model"
)

// APIError is a non-success response from the remote chat API. It is
// propagated to the caller; there is no automatic retry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph: remote API returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the remote chat/directory API over REST.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenProvider
}

func NewClient(base string, tokens TokenProvider) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		tokens: tokens,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "graph: acquire token")
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "graph: marshal request body")
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "graph: build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	log.Debug().Str("method", method).Str("path", path).Msg("graph request")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "graph: %s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "graph: decode %s %s response", method, path)
	}
	return nil
}

// ListChats returns the chats the signed-in user is part of.
func (c *Client) ListChats(ctx context.Context) ([]model.Thread, error) {
	var res wireListResponse[wireChat]
	if err := c.do(ctx, http.MethodGet, "/me/chats", nil, &res); err != nil {
		return nil, err
	}
	threads := make([]model.Thread, 0, len(res.Value))
	for _, w := range res.Value {
		threads = append(threads, model.NewThread(w.ID, w.Topic, w.CreatedDateTime, w.CreatedBy))
	}
	return threads, nil
}

// GetChat returns a single chat by id.
func (c *Client) GetChat(ctx context.Context, chatID string) (model.Thread, error) {
	var w wireChat
	if err := c.do(ctx, http.MethodGet, "/me/chats/"+chatID, nil, &w); err != nil {
		return model.Thread{}, err
	}
	if w.ID == "" {
		return model.Thread{}, errors.Errorf("graph: chat %s has no id", chatID)
	}
	return model.NewThread(w.ID, w.Topic, w.CreatedDateTime, w.CreatedBy), nil
}

// ListMessages returns the complete current message list for a chat.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error) {
	var res wireListResponse[WireChatMessage]
	if err := c.do(ctx, http.MethodGet, "/chats/"+chatID+"/messages", nil, &res); err != nil {
		return nil, err
	}
	messages := make([]model.ChatMessage, 0, len(res.Value))
	for _, w := range res.Value {
		if w.ChatID == "" {
			w.ChatID = chatID
		}
		messages = append(messages, w.ToMessage())
	}
	return messages, nil
}

// ListParticipants returns the members of a chat in the order the API
// reports them.
func (c *Client) ListParticipants(ctx context.Context, chatID string) ([]model.Participant, error) {
	var res wireListResponse[wireMember]
	if err := c.do(ctx, http.MethodGet, "/chats/"+chatID+"/members", nil, &res); err != nil {
		return nil, err
	}
	participants := make([]model.Participant, 0, len(res.Value))
	for _, w := range res.Value {
		participants = append(participants, w.toParticipant())
	}
	return participants, nil
}

// SendMessage posts a message to a chat and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (string, error) {
	body := map[string]any{"body": map[string]string{"content": content}}
	var res struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/chats/"+chatID+"/messages", body, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}
