package events

import (
	"sync"

	"github.com/go-go-golems/graphwatch/pkg/model"
)

// Listener receives events for the kind it was registered under.
type Listener func(Event)

// ListenerID identifies a registration so it can be removed later.
type ListenerID int64

// ThreadRouter fans events for a single thread out to registered
// listeners. Emission is synchronous and in registration order; every
// listener for a kind has run before the emit call returns. The router
// holds no business state.
type ThreadRouter struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[Kind][]registration
}

type registration struct {
	id ListenerID
	fn Listener
}

// NewThreadRouter builds an empty router.
func NewThreadRouter() *ThreadRouter {
	return &ThreadRouter{listeners: map[Kind][]registration{}}
}

// On registers a listener for the given kind and returns its id.
func (r *ThreadRouter) On(kind Kind, fn Listener) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.listeners[kind] = append(r.listeners[kind], registration{id: r.nextID, fn: fn})
	return r.nextID
}

// Off removes a previously registered listener. Unknown ids are ignored.
func (r *ThreadRouter) Off(kind Kind, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.listeners[kind]
	for i, reg := range regs {
		if reg.id == id {
			r.listeners[kind] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

func (r *ThreadRouter) emit(kind Kind, ev Event) {
	r.mu.RLock()
	regs := make([]registration, len(r.listeners[kind]))
	copy(regs, r.listeners[kind])
	r.mu.RUnlock()
	for _, reg := range regs {
		reg.fn(ev)
	}
}

// EmitMessageReceived delivers a newly observed message.
func (r *ThreadRouter) EmitMessageReceived(msg model.ChatEvent) {
	r.emit(KindMessageReceived, MessageEvent{Kind: KindMessageReceived, Message: msg})
}

// EmitMessageEdited delivers an edit to an existing message.
func (r *ThreadRouter) EmitMessageEdited(msg model.ChatEvent) {
	r.emit(KindMessageEdited, MessageEvent{Kind: KindMessageEdited, Message: msg})
}

// EmitMessageDeleted delivers a message deletion.
func (r *ThreadRouter) EmitMessageDeleted(msg model.ChatEvent) {
	r.emit(KindMessageDeleted, MessageEvent{Kind: KindMessageDeleted, Message: msg})
}

// EmitTypingIndicator delivers a typing indicator.
func (r *ThreadRouter) EmitTypingIndicator(ev TypingEvent) {
	r.emit(KindTypingIndicator, ev)
}

// EmitReadReceipt delivers a read receipt.
func (r *ThreadRouter) EmitReadReceipt(ev ReadReceiptEvent) {
	r.emit(KindReadReceipt, ev)
}

// EmitParticipantsAdded delivers a participant addition.
func (r *ThreadRouter) EmitParticipantsAdded(thread string, participants []model.Participant) {
	r.emit(KindParticipantsAdded, ParticipantsEvent{Kind: KindParticipantsAdded, Thread: thread, Participants: participants})
}

// EmitParticipantsRemoved delivers a participant removal.
func (r *ThreadRouter) EmitParticipantsRemoved(thread string, participants []model.Participant) {
	r.emit(KindParticipantsRemoved, ParticipantsEvent{Kind: KindParticipantsRemoved, Thread: thread, Participants: participants})
}

// EmitThreadCreated delivers a thread creation.
func (r *ThreadRouter) EmitThreadCreated(ev ThreadEvent) {
	ev.Kind = KindThreadCreated
	r.emit(KindThreadCreated, ev)
}

// EmitThreadDeleted delivers a thread deletion.
func (r *ThreadRouter) EmitThreadDeleted(ev ThreadEvent) {
	ev.Kind = KindThreadDeleted
	r.emit(KindThreadDeleted, ev)
}

// EmitThreadUpdated delivers a thread properties update.
func (r *ThreadRouter) EmitThreadUpdated(ev ThreadEvent) {
	ev.Kind = KindThreadUpdated
	r.emit(KindThreadUpdated, ev)
}
