package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DecryptClient resolves an encrypted notification payload into the
// plaintext chat message by calling the trusted decryption endpoint.
type DecryptClient struct {
	host string
	http *http.Client
}

func NewDecryptClient(host string) *DecryptClient {
	return &DecryptClient{
		host: strings.TrimRight(host, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Decrypt POSTs the opaque encrypted content with the given bearer token.
// Any non-2xx response or undecodable body is an error; the caller treats
// it as a decode failure and drops the notification.
func (c *DecryptClient) Decrypt(ctx context.Context, token, encryptedContent string) (WireChatMessage, error) {
	body, err := json.Marshal(encryptedContent)
	if err != nil {
		return WireChatMessage{}, errors.Wrap(err, "decrypt: marshal payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/GetChatMessageFromNotification", bytes.NewReader(body))
	if err != nil {
		return WireChatMessage{}, errors.Wrap(err, "decrypt: build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return WireChatMessage{}, errors.Wrap(err, "decrypt: post")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return WireChatMessage{}, errors.Errorf("decrypt: endpoint returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var msg WireChatMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return WireChatMessage{}, errors.Wrap(err, "decrypt: decode response")
	}
	return msg, nil
}
