package graph

import (
	"strconv"
	"time"

	"github.com/go-go-golems/graphwatch/pkg/model"
)

// Wire shapes as returned by the remote chat API.

type wireChat struct {
	ID              string    `json:"id"`
	Topic           string    `json:"topic"`
	CreatedDateTime time.Time `json:"createdDateTime"`
	CreatedBy       string    `json:"createdBy"`
}

type wireIdentity struct {
	User struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

// WireChatMessage is a chat message as delivered by the remote API, both
// from list calls and from the decryption endpoint.
type WireChatMessage struct {
	ID                   string       `json:"id"`
	ChatID               string       `json:"chatId"`
	Etag                 string       `json:"etag"`
	CreatedDateTime      time.Time    `json:"createdDateTime"`
	LastModifiedDateTime time.Time    `json:"lastModifiedDateTime"`
	From                 wireIdentity `json:"from"`
	Body                 struct {
		Content string `json:"content"`
	} `json:"body"`
}

type wireMember struct {
	UserID                      string    `json:"userId"`
	DisplayName                 string    `json:"displayName"`
	VisibleHistoryStartDateTime time.Time `json:"visibleHistoryStartDateTime"`
}

type wireListResponse[T any] struct {
	Value []T `json:"value"`
}

// ToMessage normalizes a wire message into the domain shape. The etag is
// the remote version counter; a missing or non-numeric etag maps to 0.
func (w WireChatMessage) ToMessage() model.ChatMessage {
	version, _ := strconv.ParseInt(w.Etag, 10, 64)
	return model.ChatMessage{
		ID:                w.ID,
		ThreadID:          w.ChatID,
		Content:           w.Body.Content,
		SenderID:          w.From.User.ID,
		SenderDisplayName: w.From.User.DisplayName,
		CreatedOn:         w.CreatedDateTime,
		UpdatedOn:         w.LastModifiedDateTime,
		Version:           version,
	}
}

// ToEvent normalizes a wire message into the event shape emitted by the
// notification decode path.
func (w WireChatMessage) ToEvent() model.ChatEvent {
	return model.EventFromMessage(w.ToMessage())
}

func (w wireMember) toParticipant() model.Participant {
	return model.Participant{
		ID:          w.UserID,
		DisplayName: w.DisplayName,
		JoinedOn:    w.VisibleHistoryStartDateTime,
	}
}
