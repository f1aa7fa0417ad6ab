package model

import (
	"time"
)

// ChatMessage is a single message inside a thread, normalized from the
// remote API's wire shape.
type ChatMessage struct {
	ID                string    `json:"id"`
	ThreadID          string    `json:"threadId"`
	Content           string    `json:"content"`
	SenderID          string    `json:"senderId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	CreatedOn         time.Time `json:"createdOn"`
	UpdatedOn         time.Time `json:"updatedOn"`
	Version           int64     `json:"version"`
}

// Participant is a member of a thread, in join order.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	JoinedOn    time.Time `json:"joinedOn"`
}

// ReadReceipt records that a participant has read up to a message.
type ReadReceipt struct {
	SenderID  string    `json:"senderId"`
	MessageID string    `json:"messageId"`
	ReadOn    time.Time `json:"readOn"`
}

// Thread is a conversation owned by the conversation model. Version starts
// at -1 ("never mutated") and increments by exactly one on every successful
// mutation; the UI uses it to decide whether to re-render.
type Thread struct {
	ID           string        `json:"id"`
	Topic        string        `json:"topic"`
	CreatedOn    time.Time     `json:"createdOn"`
	CreatedBy    string        `json:"createdBy"`
	Version      int64         `json:"version"`
	Participants []Participant `json:"participants"`
	Messages     []ChatMessage `json:"messages"`
	ReadReceipts []ReadReceipt `json:"readReceipts"`
}

// NewThread builds an unmutated thread (Version -1).
func NewThread(id, topic string, createdOn time.Time, createdBy string) Thread {
	return Thread{
		ID:        id,
		Topic:     topic,
		CreatedOn: createdOn,
		CreatedBy: createdBy,
		Version:   -1,
	}
}

// ChatEvent is the transport-agnostic representation of a remote message
// change. It is immutable once constructed; only the notification decode
// path produces these.
type ChatEvent struct {
	MessageID         string    `json:"messageId"`
	ThreadID          string    `json:"threadId"`
	Content           string    `json:"content"`
	SenderID          string    `json:"senderId"`
	SenderDisplayName string    `json:"senderDisplayName"`
	CreatedOn         time.Time `json:"createdOn"`
	UpdatedOn         time.Time `json:"updatedOn"`
	Version           int64     `json:"version"`
}

// EventFromMessage normalizes a cached message into its event shape.
func EventFromMessage(m ChatMessage) ChatEvent {
	return ChatEvent{
		MessageID:         m.ID,
		ThreadID:          m.ThreadID,
		Content:           m.Content,
		SenderID:          m.SenderID,
		SenderDisplayName: m.SenderDisplayName,
		CreatedOn:         m.CreatedOn,
		UpdatedOn:         m.UpdatedOn,
		Version:           m.Version,
	}
}
