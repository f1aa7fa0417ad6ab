package chatclient

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"

	"github.com/go-go-golems/graphwatch/pkg/channel"
	"github.com/go-go-golems/graphwatch/pkg/config"
	"github.com/go-go-golems/graphwatch/pkg/events"
	"github.com/go-go-golems/graphwatch/pkg/graph"
	"github.com/go-go-golems/graphwatch/pkg/model"
	"github.com/go-go-golems/graphwatch/pkg/store"
	"github.com/go-go-golems/graphwatch/pkg/subscriptions"
)

// Client wires the conversation model, notification channel and
// subscription manager into the surface the UI consumes.
type Client struct {
	cfg     config.Settings
	api     *graph.Client
	bus     *gochannel.GoChannel
	channel *channel.Channel
	manager *subscriptions.Manager
	model   *Model

	sessionStore store.SessionStore
	closeStore   func() error
}

func New(cfg config.Settings, tokens graph.TokenProvider) (*Client, error) {
	api := graph.NewClient(cfg.GraphBaseURL, tokens)
	decryptor := graph.NewDecryptClient(cfg.FunctionHost)
	bus := channel.NewBus()
	ch := channel.NewChannel(cfg.WebsocketEndpoint(), tokens, decryptor, bus)

	var sessionStore store.SessionStore
	closeStore := func() error { return nil }
	if cfg.StorePath != "" {
		s, err := store.NewSQLiteSessionStore(cfg.StorePath)
		if err != nil {
			return nil, errors.Wrap(err, "chatclient: open session store")
		}
		sessionStore = s
		closeStore = s.Close
	} else {
		sessionStore = store.NewMemoryStore()
	}

	manager := subscriptions.NewManager(ch, sessionStore, cfg.SubscriptionSettings())
	ch.OnReconnect(func(ctx context.Context) {
		manager.RenewAll(ctx)
	})

	return &Client{
		cfg:          cfg,
		api:          api,
		bus:          bus,
		channel:      ch,
		manager:      manager,
		model:        NewModel(api),
		sessionStore: sessionStore,
		closeStore:   closeStore,
	}, nil
}

// Connect opens the push channel and attaches the subscription manager to
// the notification bus.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.manager.Run(ctx, c.bus); err != nil {
		return err
	}
	return c.channel.Connect(ctx)
}

// Subscribe asks the remote API to push change notifications for the
// thread's message collection and binds the thread's router to them.
func (c *Client) Subscribe(ctx context.Context, threadID string) error {
	resource := "chats/" + threadID + "/messages"
	router := c.model.GetOrCreateRouter(threadID)
	return c.manager.Subscribe(ctx, resource, router)
}

// PopulateAll pulls the full chat state from the remote API.
func (c *Client) PopulateAll(ctx context.Context) error {
	return c.model.PopulateAll(ctx)
}

// PopulateOne pulls a single thread, replacing any cached entry.
func (c *Client) PopulateOne(ctx context.Context, threadID string) error {
	return c.model.PopulateOne(ctx, threadID)
}

// ApplyNewMessages refreshes a thread's message list and emits events for
// newly observed messages.
func (c *Client) ApplyNewMessages(ctx context.Context, threadID string) error {
	return c.model.ApplyNewMessages(ctx, threadID)
}

// GetThread returns the cached thread, if known.
func (c *Client) GetThread(threadID string) (model.Thread, bool) {
	return c.model.GetThread(threadID)
}

// AllThreads returns every cached thread.
func (c *Client) AllThreads() []model.Thread {
	return c.model.AllThreads()
}

// GetOrCreateRouter exposes the per-thread event subscription API.
func (c *Client) GetOrCreateRouter(threadID string) *events.ThreadRouter {
	return c.model.GetOrCreateRouter(threadID)
}

// SendMessage posts a message to a thread and returns its id.
func (c *Client) SendMessage(ctx context.Context, threadID, content string) (string, error) {
	return c.model.SendMessage(ctx, threadID, content)
}

// Close shuts the channel, the renewal timer, the bus and the store.
func (c *Client) Close() error {
	c.manager.Close()
	errChannel := c.channel.Close()
	errBus := c.bus.Close()
	errStore := c.closeStore()
	if errChannel != nil {
		return errChannel
	}
	if errBus != nil {
		return errBus
	}
	return errStore
}
