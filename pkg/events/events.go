package events

import (
	"github.com/go-go-golems/graphwatch/pkg/model"
)

// Kind names one of the chat event channels a listener can attach to.
type Kind string

const (
	KindMessageReceived     Kind = "chatMessageReceived"
	KindMessageEdited       Kind = "chatMessageEdited"
	KindMessageDeleted      Kind = "chatMessageDeleted"
	KindTypingIndicator     Kind = "typingIndicatorReceived"
	KindReadReceipt         Kind = "readReceiptReceived"
	KindThreadCreated       Kind = "chatThreadCreated"
	KindThreadDeleted       Kind = "chatThreadDeleted"
	KindThreadUpdated       Kind = "chatThreadPropertiesUpdated"
	KindParticipantsAdded   Kind = "participantsAdded"
	KindParticipantsRemoved Kind = "participantsRemoved"
)

// Event is the payload delivered to listeners. Every event carries the id
// of the thread it belongs to.
type Event interface {
	EventKind() Kind
	ThreadID() string
}

// MessageEvent is emitted for received, edited and deleted messages.
type MessageEvent struct {
	Kind    Kind
	Message model.ChatEvent
}

func (e MessageEvent) EventKind() Kind  { return e.Kind }
func (e MessageEvent) ThreadID() string { return e.Message.ThreadID }

// TypingEvent signals that a participant is typing.
type TypingEvent struct {
	Thread            string
	SenderID          string
	SenderDisplayName string
}

func (e TypingEvent) EventKind() Kind  { return KindTypingIndicator }
func (e TypingEvent) ThreadID() string { return e.Thread }

// ReadReceiptEvent signals that a participant has read up to a message.
type ReadReceiptEvent struct {
	Thread  string
	Receipt model.ReadReceipt
}

func (e ReadReceiptEvent) EventKind() Kind  { return KindReadReceipt }
func (e ReadReceiptEvent) ThreadID() string { return e.Thread }

// ParticipantsEvent is emitted when participants are added to or removed
// from a thread.
type ParticipantsEvent struct {
	Kind         Kind
	Thread       string
	Participants []model.Participant
}

func (e ParticipantsEvent) EventKind() Kind  { return e.Kind }
func (e ParticipantsEvent) ThreadID() string { return e.Thread }

// ThreadEvent is emitted for thread lifecycle changes (created, deleted,
// properties updated).
type ThreadEvent struct {
	Kind    Kind
	Thread  string
	Topic   string
	Version int64
}

func (e ThreadEvent) EventKind() Kind  { return e.Kind }
func (e ThreadEvent) ThreadID() string { return e.Thread }
