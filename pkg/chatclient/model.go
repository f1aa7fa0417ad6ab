package chatclient

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/graphwatch/pkg/events"
	"github.com/go-go-golems/graphwatch/pkg/model"
)

// API is the slice of the remote chat API the model consumes.
type API interface {
	ListChats(ctx context.Context) ([]model.Thread, error)
	GetChat(ctx context.Context, chatID string) (model.Thread, error)
	ListMessages(ctx context.Context, chatID string) ([]model.ChatMessage, error)
	ListParticipants(ctx context.Context, chatID string) ([]model.Participant, error)
	SendMessage(ctx context.Context, chatID, content string) (string, error)
}

// MessageSyncer fetches the current message set for a thread. The default
// implementation relies on the remote API returning the complete current
// list every time (full replace and diff); a delta-query implementation
// can replace it without touching the model or router contracts.
type MessageSyncer interface {
	FetchMessages(ctx context.Context, threadID string) ([]model.ChatMessage, error)
}

type fullFetchSyncer struct {
	api API
}

func (s fullFetchSyncer) FetchMessages(ctx context.Context, threadID string) ([]model.ChatMessage, error) {
	return s.api.ListMessages(ctx, threadID)
}

// Model owns the set of known threads, applies incoming message events
// with version bumps and exposes read accessors to the UI.
type Model struct {
	api    API
	syncer MessageSyncer

	mu      sync.RWMutex
	threads map[string]model.Thread
	routers map[string]*events.ThreadRouter
}

// ModelOption customizes a Model.
type ModelOption func(*Model)

// WithMessageSyncer swaps the message fetch strategy.
func WithMessageSyncer(s MessageSyncer) ModelOption {
	return func(m *Model) { m.syncer = s }
}

func NewModel(api API, opts ...ModelOption) *Model {
	m := &Model{
		api:     api,
		syncer:  fullFetchSyncer{api: api},
		threads: map[string]model.Thread{},
		routers: map[string]*events.ThreadRouter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PopulateAll fetches the full chat list and materializes every thread,
// fetching messages and participants concurrently per chat. Any per-chat
// failure fails the whole call and leaves the model unchanged.
func (m *Model) PopulateAll(ctx context.Context) error {
	chats, err := m.api.ListChats(ctx)
	if err != nil {
		return errors.Wrap(err, "populate all threads")
	}
	fetched := make([]model.Thread, len(chats))
	g, gctx := errgroup.WithContext(ctx)
	for i, chat := range chats {
		i, chat := i, chat
		g.Go(func() error {
			t, err := m.fetchThread(gctx, chat)
			if err != nil {
				return err
			}
			fetched[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "populate all threads")
	}
	m.mu.Lock()
	for _, t := range fetched {
		m.threads[t.ID] = t
		m.ensureRouterLocked(t.ID)
	}
	m.mu.Unlock()
	log.Info().Int("threads", len(fetched)).Msg("populated all threads")
	return nil
}

// PopulateOne fetches a single thread and replaces any existing entry
// unconditionally.
func (m *Model) PopulateOne(ctx context.Context, threadID string) error {
	chat, err := m.api.GetChat(ctx, threadID)
	if err != nil {
		return errors.Wrapf(err, "populate thread %s", threadID)
	}
	t, err := m.fetchThread(ctx, chat)
	if err != nil {
		return errors.Wrapf(err, "populate thread %s", threadID)
	}
	m.mu.Lock()
	m.threads[t.ID] = t
	m.ensureRouterLocked(t.ID)
	m.mu.Unlock()
	return nil
}

func (m *Model) fetchThread(ctx context.Context, chat model.Thread) (model.Thread, error) {
	if chat.ID == "" {
		return model.Thread{}, errors.New("chat has no id")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		messages, err := m.api.ListMessages(gctx, chat.ID)
		if err != nil {
			return err
		}
		chat.Messages = messages
		return nil
	})
	g.Go(func() error {
		participants, err := m.api.ListParticipants(gctx, chat.ID)
		if err != nil {
			return err
		}
		chat.Participants = participants
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Thread{}, err
	}
	chat.Version = -1
	return chat, nil
}

// ApplyNewMessages fetches the current full message list for the thread,
// replaces the cached list, bumps the version if anything changed and
// emits a message-received event for every newly observed message.
func (m *Model) ApplyNewMessages(ctx context.Context, threadID string) error {
	msgs, err := m.syncer.FetchMessages(ctx, threadID)
	if err != nil {
		return errors.Wrapf(err, "fetch new messages for %s", threadID)
	}
	m.mu.Lock()
	thread, ok := m.threads[threadID]
	if !ok {
		m.mu.Unlock()
		return errors.Errorf("chatclient: unknown thread %s", threadID)
	}
	existing := make(map[string]bool, len(thread.Messages))
	for _, msg := range thread.Messages {
		existing[msg.ID] = true
	}
	var fresh []model.ChatMessage
	for _, msg := range msgs {
		if !existing[msg.ID] {
			fresh = append(fresh, msg)
		}
	}
	changed := m.modifyLocked(threadID, func(t model.Thread) model.Thread {
		t.Messages = msgs
		return t
	})
	router := m.ensureRouterLocked(threadID)
	m.mu.Unlock()

	if changed {
		log.Debug().Str("thread_id", threadID).Int("new_messages", len(fresh)).Msg("applied new messages")
	}
	for _, msg := range fresh {
		ev := model.EventFromMessage(msg)
		if ev.ThreadID == "" {
			ev.ThreadID = threadID
		}
		router.EmitMessageReceived(ev)
	}
	return nil
}

// modifyLocked is the single mutation point for threads: it applies the
// update to a copy, compares before and after, and bumps the version by
// exactly one only when the update actually changed the thread. A no-op
// update never advances the version.
func (m *Model) modifyLocked(threadID string, update func(model.Thread) model.Thread) bool {
	before := m.threads[threadID]
	after := update(cloneThread(before))
	after.Version = before.Version
	if reflect.DeepEqual(before, after) {
		return false
	}
	after.Version = before.Version + 1
	m.threads[threadID] = after
	return true
}

func cloneThread(t model.Thread) model.Thread {
	out := t
	out.Participants = append([]model.Participant(nil), t.Participants...)
	out.Messages = append([]model.ChatMessage(nil), t.Messages...)
	out.ReadReceipts = append([]model.ReadReceipt(nil), t.ReadReceipts...)
	return out
}

func (m *Model) ensureRouterLocked(threadID string) *events.ThreadRouter {
	if r, ok := m.routers[threadID]; ok {
		return r
	}
	r := events.NewThreadRouter()
	m.routers[threadID] = r
	return r
}

// GetThread returns the cached thread, if known.
func (m *Model) GetThread(threadID string) (model.Thread, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[threadID]
	return t, ok
}

// AllThreads returns every cached thread, ordered by creation time then id.
func (m *Model) AllThreads() []model.Thread {
	m.mu.RLock()
	out := make([]model.Thread, 0, len(m.threads))
	for _, t := range m.threads {
		out = append(out, t)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.Before(out[j].CreatedOn)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetOrCreateRouter lazily creates and caches the event router for a
// thread id.
func (m *Model) GetOrCreateRouter(threadID string) *events.ThreadRouter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureRouterLocked(threadID)
}

// SendMessage posts a message to the thread and returns its id.
func (m *Model) SendMessage(ctx context.Context, threadID, content string) (string, error) {
	return m.api.SendMessage(ctx, threadID, content)
}
