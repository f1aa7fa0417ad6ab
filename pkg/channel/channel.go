package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/graphwatch/pkg/graph"
	"github.com/go-go-golems/graphwatch/pkg/model"
)

var (
	// ErrNotConnected is returned by Send when no connection is open.
	ErrNotConnected = errors.New("channel: not connected")
	// ErrTransport marks connect/handshake failures.
	ErrTransport = errors.New("channel: transport failure")
	// ErrDecodeFailure marks a push notification that could not be
	// decrypted or parsed. The notification is dropped; no event is
	// emitted.
	ErrDecodeFailure = errors.New("channel: notification decode failure")
)

// Decryptor resolves an encrypted notification payload into the plaintext
// chat message.
type Decryptor interface {
	Decrypt(ctx context.Context, token, encryptedContent string) (graph.WireChatMessage, error)
}

// Channel maintains one logical push connection to the notification
// endpoint. Inbound frames are decoded and published on the in-process
// bus; the connection is re-established transparently when the transport
// drops, triggering the configured reconnect hook.
type Channel struct {
	endpoint  string
	tokens    graph.TokenProvider
	decryptor Decryptor
	pub       message.Publisher
	dialer    *websocket.Dialer

	reconnectInitialWait time.Duration
	reconnectMaxWait     time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	connID  string
	pending map[string]chan error
	writeMu sync.Mutex

	onReconnect func(context.Context)

	runCtx    context.Context
	runCancel context.CancelFunc
}

// Option customizes a Channel.
type Option func(*Channel)

// WithReconnectWait overrides the reconnect backoff bounds.
func WithReconnectWait(initial, max time.Duration) Option {
	return func(c *Channel) {
		c.reconnectInitialWait = initial
		c.reconnectMaxWait = max
	}
}

func NewChannel(endpoint string, tokens graph.TokenProvider, decryptor Decryptor, pub message.Publisher, opts ...Option) *Channel {
	c := &Channel{
		endpoint:             endpoint,
		tokens:               tokens,
		decryptor:            decryptor,
		pub:                  pub,
		dialer:               websocket.DefaultDialer,
		reconnectInitialWait: 500 * time.Millisecond,
		reconnectMaxWait:     30 * time.Second,
		pending:              map[string]chan error{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnReconnect registers the hook run after a transport-level reconnect
// (not a fresh Connect). The subscription manager uses it to renew every
// cached subscription, because the server may have dropped state tied to
// the old connection id.
func (c *Channel) OnReconnect(fn func(context.Context)) {
	c.mu.Lock()
	c.onReconnect = fn
	c.mu.Unlock()
}

// ConnectionID returns the id assigned by the server for the current
// connection, or "" when disconnected.
func (c *Channel) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Connect acquires a token, opens the transport and starts the read loop.
func (c *Channel) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.runCtx = runCtx
	c.runCancel = cancel
	conn := c.conn
	c.mu.Unlock()
	go c.readLoop(runCtx, conn)
	return nil
}

func (c *Channel) dial(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrapf(ErrTransport, "acquire token: %v", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, header)
	if err != nil {
		return errors.Wrapf(ErrTransport, "dial %s: %v", c.endpoint, err)
	}
	var welcome frame
	if err := conn.ReadJSON(&welcome); err != nil {
		_ = conn.Close()
		return errors.Wrapf(ErrTransport, "read welcome frame: %v", err)
	}
	if welcome.Type != frameWelcome || welcome.ConnectionID == "" {
		_ = conn.Close()
		return errors.Wrapf(ErrTransport, "unexpected handshake frame %q", welcome.Type)
	}
	c.mu.Lock()
	c.conn = conn
	c.connID = welcome.ConnectionID
	c.mu.Unlock()
	log.Info().Str("connection_id", welcome.ConnectionID).Msg("notification channel connected")
	return nil
}

// Close tears the connection down for good; no reconnect is attempted.
func (c *Channel) Close() error {
	c.mu.Lock()
	cancel := c.runCancel
	conn := c.conn
	c.conn = nil
	c.connID = ""
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send invokes a named server method and waits for its acknowledgement.
// The bearer token is re-derived on every call.
func (c *Channel) Send(ctx context.Context, method string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.Wrapf(ErrNotConnected, "send %s", method)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrapf(err, "channel: send %s", method)
	}
	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return errors.Wrapf(err, "channel: marshal %s argument", method)
		}
		rawArgs = append(rawArgs, b)
	}
	invocationID := uuid.NewString()
	ack := make(chan error, 1)
	c.mu.Lock()
	c.pending[invocationID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, invocationID)
		c.mu.Unlock()
	}()

	f := frame{
		Type:         frameInvocation,
		InvocationID: invocationID,
		Target:       method,
		Arguments:    rawArgs,
		AccessToken:  token,
	}
	c.writeMu.Lock()
	err = conn.WriteJSON(&f)
	c.writeMu.Unlock()
	if err != nil {
		return errors.Wrapf(ErrTransport, "send %s: %v", method, err)
	}
	log.Debug().Str("method", method).Str("invocation_id", invocationID).Msg("invoked server method")

	select {
	case err := <-ack:
		if err != nil {
			return errors.Wrapf(err, "channel: %s rejected", method)
		}
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "channel: %s ack", method)
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Warn().Err(err).Msg("notification channel transport dropped")
			c.reconnect(ctx)
			return
		}
		switch f.Type {
		case frameAck:
			c.resolveAck(f)
		case frameInvocation:
			if err := c.dispatch(ctx, f); err != nil {
				log.Warn().Err(err).Str("target", f.Target).Msg("dropping inbound frame")
			}
		default:
			log.Debug().Str("type", f.Type).Msg("ignoring unknown frame type")
		}
	}
}

func (c *Channel) resolveAck(f frame) {
	c.mu.Lock()
	ack, ok := c.pending[f.InvocationID]
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("invocation_id", f.InvocationID).Msg("ack for unknown invocation")
		return
	}
	if f.Error != "" {
		ack <- errors.New(f.Error)
		return
	}
	ack <- nil
}

// dispatch routes a server-initiated frame. Subscription lifecycle frames
// are forwarded raw to their bus topic; new-message frames are decrypted
// and normalized first.
func (c *Channel) dispatch(ctx context.Context, f frame) error {
	switch f.Target {
	case TargetEcho:
		log.Info().RawJSON("payload", firstArgument(f)).Msg("echo from notification host")
		return nil
	case TargetNewMessage:
		var n model.Notification
		if len(f.Arguments) == 0 {
			return errors.Wrap(ErrDecodeFailure, "new-message frame has no arguments")
		}
		if err := json.Unmarshal(f.Arguments[0], &n); err != nil {
			return errors.Wrapf(ErrDecodeFailure, "parse notification: %v", err)
		}
		return c.handleNewMessage(ctx, n)
	case TargetSubscriptionCreated, TargetSubscriptionRenewed,
		TargetSubscriptionRenewalFailed, TargetSubscriptionCreationFailed,
		TargetSubscriptionRenewalIgnored:
		if len(f.Arguments) == 0 {
			return errors.Errorf("channel: %s frame has no arguments", f.Target)
		}
		return c.publish(Topic(f.Target), f.Arguments[0])
	default:
		return errors.Errorf("channel: no handler for target %q", f.Target)
	}
}

func firstArgument(f frame) []byte {
	if len(f.Arguments) == 0 {
		return []byte("null")
	}
	return f.Arguments[0]
}

// handleNewMessage decrypts an inbound notification into a chat event and
// publishes it for routing. Malformed or undecryptable payloads report a
// decode failure instead of escaping the channel boundary.
func (c *Channel) handleNewMessage(ctx context.Context, n model.Notification) error {
	if n.EncryptedContent == "" {
		return errors.Wrap(ErrDecodeFailure, "notification has no encrypted content")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrapf(ErrDecodeFailure, "acquire token: %v", err)
	}
	wireMsg, err := c.decryptor.Decrypt(ctx, token, n.EncryptedContent)
	if err != nil {
		return errors.Wrapf(ErrDecodeFailure, "decrypt notification: %v", err)
	}
	inbound := InboundMessage{
		SubscriptionID: n.SubscriptionID,
		Event:          wireMsg.ToEvent(),
	}
	payload, err := json.Marshal(inbound)
	if err != nil {
		return errors.Wrap(err, "channel: marshal inbound message")
	}
	log.Debug().
		Str("subscription_id", n.SubscriptionID).
		Str("thread_id", inbound.Event.ThreadID).
		Str("message_id", inbound.Event.MessageID).
		Msg("received new message notification")
	return c.publish(Topic(TargetNewMessage), payload)
}

func (c *Channel) publish(topic string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return errors.Wrapf(c.pub.Publish(topic, msg), "channel: publish %s", topic)
}

// reconnect re-dials with exponential backoff until the transport comes
// back or the channel is closed, then restarts the read loop and fires
// the reconnect hook.
func (c *Channel) reconnect(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnectInitialWait
	bo.MaxInterval = c.reconnectMaxWait
	bo.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		return c.dial(ctx)
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		log.Warn().Err(err).Msg("notification channel reconnect abandoned")
		return
	}
	c.mu.Lock()
	conn := c.conn
	hook := c.onReconnect
	connID := c.connID
	c.mu.Unlock()
	log.Info().Str("connection_id", connID).Msg("notification channel reconnected")
	go c.readLoop(ctx, conn)
	if hook != nil {
		hook(ctx)
	}
}
