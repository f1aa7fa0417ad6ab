package subscriptions

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/graphwatch/pkg/channel"
	"github.com/go-go-golems/graphwatch/pkg/events"
	"github.com/go-go-golems/graphwatch/pkg/model"
	"github.com/go-go-golems/graphwatch/pkg/store"
)

// Transport is the slice of the notification channel the manager needs.
type Transport interface {
	Send(ctx context.Context, method string, args ...any) error
	ConnectionID() string
}

// Settings holds the subscription timing knobs.
type Settings struct {
	// Lifetime is how far in the future create/renew requests place the
	// expiration.
	Lifetime time.Duration
	// RenewalThreshold is the time-to-expiry at or below which a record
	// triggers a renewal sweep.
	RenewalThreshold time.Duration
	// TimerInterval is how often the renewal timer scans the store.
	TimerInterval time.Duration
	// SweepRestartGrace re-arms the timer after a sweep whose sends never
	// resolved into a created/renewed confirmation.
	SweepRestartGrace time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Lifetime:          5 * time.Minute,
		RenewalThreshold:  45 * time.Second,
		TimerInterval:     10 * time.Second,
		SweepRestartGrace: 30 * time.Second,
	}
}

// sweepState tracks the renewal timer lifecycle: Idle (no timer),
// Scheduled (timer ticking), SweepInFlight (timer stopped while a renewal
// batch awaits confirmation).
type sweepState int

const (
	sweepIdle sweepState = iota
	sweepScheduled
	sweepInFlight
)

// Manager orchestrates subscription create/renew/recreate against the
// remote API over the notification channel, and owns the renewal timer.
// It holds the two router bindings: resource path to router while a create
// is pending, subscription id to router once confirmed. A router is in
// exactly one of the two maps at any time.
type Manager struct {
	transport Transport
	store     store.SessionStore
	cfg       Settings
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*events.ThreadRouter
	active  map[string]*events.ThreadRouter

	state        sweepState
	ticker       *time.Ticker
	tickerStop   chan struct{}
	renewalCount int

	onCreateFailed func(resource string)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source. Tests use this to control expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCreateFailedHook registers a callback fired when the server rejects
// a create request, after the pending binding has been discarded.
func WithCreateFailedHook(fn func(resource string)) Option {
	return func(m *Manager) { m.onCreateFailed = fn }
}

func NewManager(transport Transport, sessionStore store.SessionStore, cfg Settings, opts ...Option) *Manager {
	m := &Manager{
		transport: transport,
		store:     sessionStore,
		cfg:       cfg,
		now:       time.Now,
		pending:   map[string]*events.ThreadRouter{},
		active:    map[string]*events.ThreadRouter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close stops the renewal timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.state = sweepIdle
}

// Subscribe asks the remote API to watch resource and binds router to it.
// Idempotent: a live cached subscription or an in-flight create for the
// same resource makes this a no-op.
func (m *Manager) Subscribe(ctx context.Context, resource string, router *events.ThreadRouter) error {
	m.mu.Lock()
	if _, ok := m.pending[resource]; ok {
		m.mu.Unlock()
		log.Info().Str("resource", resource).Msg("create already in flight, ignoring subscribe")
		return nil
	}
	for _, rec := range m.store.Load(ctx) {
		if rec.Resource == resource && !rec.Expired(m.now()) {
			m.mu.Unlock()
			log.Info().
				Str("resource", resource).
				Str("subscription_id", rec.ID).
				Time("expires", rec.ExpirationTime).
				Msg("subscription already live, ignoring subscribe")
			return nil
		}
	}
	m.pending[resource] = router
	def := model.SubscriptionDefinition{
		Resource:       resource,
		ExpirationTime: m.now().Add(m.cfg.Lifetime),
		ChangeTypes:    model.AllChangeTypes(),
		ResourceData:   true,
		ConnectionID:   m.transport.ConnectionID(),
	}
	m.mu.Unlock()

	log.Info().Str("resource", resource).Msg("creating subscription")
	if err := m.transport.Send(ctx, channel.MethodCreateSubscription, def); err != nil {
		m.mu.Lock()
		delete(m.pending, resource)
		m.mu.Unlock()
		return errors.Wrapf(err, "subscriptions: create %s", resource)
	}
	return nil
}

// HandleSubscriptionCreated moves the pending binding for the record's
// resource into the active map, caches the record and (re)starts the
// renewal timer.
func (m *Manager) HandleSubscriptionCreated(ctx context.Context, rec model.SubscriptionRecord) {
	log.Info().Str("subscription_id", rec.ID).Str("resource", rec.Resource).Msg("subscription created")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remapBindingLocked(rec)
	m.upsertLocked(ctx, rec)
	m.startTimerLocked()
}

// HandleSubscriptionRenewed caches the renewed record and restarts the
// renewal timer. The binding map is already populated and is not touched.
func (m *Manager) HandleSubscriptionRenewed(ctx context.Context, rec model.SubscriptionRecord) {
	log.Info().Str("subscription_id", rec.ID).Str("resource", rec.Resource).Msg("subscription renewed")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(ctx, rec)
	m.startTimerLocked()
}

// HandleSubscriptionCreationFailed discards the pending binding for the
// rejected resource and surfaces the failure to the optional hook.
func (m *Manager) HandleSubscriptionCreationFailed(_ context.Context, def model.SubscriptionDefinition) {
	log.Warn().Str("resource", def.Resource).Msg("subscription creation failed")
	m.mu.Lock()
	delete(m.pending, def.Resource)
	hook := m.onCreateFailed
	m.mu.Unlock()
	if hook != nil {
		hook(def.Resource)
	}
}

// HandleSubscriptionRenewalFailed treats the remote subscription as gone:
// the record is dropped from the store and a fresh create is issued for
// its resource with the previously bound router.
func (m *Manager) HandleSubscriptionRenewalFailed(ctx context.Context, subscriptionID string) {
	log.Warn().Str("subscription_id", subscriptionID).Msg("subscription renewal failed, recreating")
	m.mu.Lock()
	records := m.store.Load(ctx)
	var failed *model.SubscriptionRecord
	kept := make([]model.SubscriptionRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == subscriptionID {
			r := rec
			failed = &r
			continue
		}
		kept = append(kept, rec)
	}
	if err := m.store.Save(ctx, kept); err != nil {
		log.Warn().Err(err).Msg("failed to drop subscription record")
	}
	router := m.active[subscriptionID]
	delete(m.active, subscriptionID)
	m.mu.Unlock()

	if failed == nil {
		log.Warn().Str("subscription_id", subscriptionID).Msg("renewal failed for unknown subscription")
		return
	}
	if router == nil {
		log.Warn().Str("subscription_id", subscriptionID).Str("resource", failed.Resource).
			Msg("no router bound, skipping recreation")
		return
	}
	if err := m.Subscribe(ctx, failed.Resource, router); err != nil {
		log.Warn().Err(err).Str("resource", failed.Resource).Msg("subscription recreation failed")
	}
}

// HandleSubscriptionRenewalIgnored logs the server's decision that a
// renewal was unnecessary. No state transition.
func (m *Manager) HandleSubscriptionRenewalIgnored(_ context.Context, rec model.SubscriptionRecord) {
	log.Info().Str("subscription_id", rec.ID).Msg("subscription renewal ignored by server")
}

// HandleNewMessage routes a decoded push notification to the router bound
// to its subscription.
func (m *Manager) HandleNewMessage(_ context.Context, inbound channel.InboundMessage) {
	m.mu.Lock()
	router := m.active[inbound.SubscriptionID]
	m.mu.Unlock()
	if router == nil {
		log.Warn().Str("subscription_id", inbound.SubscriptionID).Msg("message for unbound subscription dropped")
		return
	}
	router.EmitMessageReceived(inbound.Event)
}

// RenewAll stops the renewal timer and resends a renew request for every
// cached record, independent of expiry proximity. Used when the transport
// reconnects and the server may have lost per-connection state.
func (m *Manager) RenewAll(ctx context.Context) {
	m.mu.Lock()
	m.stopTimerLocked()
	m.state = sweepInFlight
	m.renewalCount++
	count := m.renewalCount
	records := m.store.Load(ctx)
	m.mu.Unlock()
	log.Info().Int("subscriptions", len(records)).Int("renewal_count", count).Msg("renewing all subscriptions")
	m.sendRenewBatch(ctx, records)
	m.armSweepSafeguard()
}

// remapBindingLocked moves the router waiting on the record's resource
// from the pending map to the permanent subscription-id keyed map.
func (m *Manager) remapBindingLocked(rec model.SubscriptionRecord) {
	if router, ok := m.pending[rec.Resource]; ok {
		m.active[rec.ID] = router
		delete(m.pending, rec.Resource)
	}
}

// upsertLocked replaces any prior record with the same subscription id or
// the same resource, so duplicate entries never accumulate.
func (m *Manager) upsertLocked(ctx context.Context, rec model.SubscriptionRecord) {
	records := m.store.Load(ctx)
	kept := make([]model.SubscriptionRecord, 0, len(records)+1)
	for _, r := range records {
		if r.ID == rec.ID || r.Resource == rec.Resource {
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, rec)
	if err := m.store.Save(ctx, kept); err != nil {
		log.Warn().Err(err).Str("subscription_id", rec.ID).Msg("failed to cache subscription record")
	}
}

func (m *Manager) startTimerLocked() {
	if m.state == sweepScheduled && m.ticker != nil {
		return
	}
	m.stopTimerLocked()
	m.state = sweepScheduled
	m.ticker = time.NewTicker(m.cfg.TimerInterval)
	stop := make(chan struct{})
	m.tickerStop = stop
	ticker := m.ticker
	log.Debug().Dur("interval", m.cfg.TimerInterval).Msg("renewal timer started")
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.tick(context.Background())
			}
		}
	}()
}

func (m *Manager) stopTimerLocked() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.tickerStop != nil {
		close(m.tickerStop)
		m.tickerStop = nil
	}
}

// tick scans the cached records. One record at or below the renewal
// threshold triggers a full renewal sweep of every cached subscription;
// the timer stays stopped until the next created/renewed confirmation.
func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	if m.state != sweepScheduled {
		m.mu.Unlock()
		return
	}
	records := m.store.Load(ctx)
	if len(records) == 0 {
		log.Debug().Msg("no cached subscriptions, stopping renewal timer")
		m.stopTimerLocked()
		m.state = sweepIdle
		m.mu.Unlock()
		return
	}
	now := m.now()
	needsSweep := false
	for _, rec := range records {
		if rec.ExpiresWithin(now, m.cfg.RenewalThreshold) {
			needsSweep = true
			break
		}
	}
	if !needsSweep {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.state = sweepInFlight
	m.renewalCount++
	count := m.renewalCount
	m.mu.Unlock()

	log.Info().Int("subscriptions", len(records)).Int("renewal_count", count).Msg("renewal sweep")
	m.sendRenewBatch(ctx, records)
	m.armSweepSafeguard()
}

// sendRenewBatch issues a renew request for every record. Errors are
// logged, not returned: sweeps run in the background with no caller.
func (m *Manager) sendRenewBatch(ctx context.Context, records []model.SubscriptionRecord) {
	expiration := m.now().Add(m.cfg.Lifetime)
	for _, rec := range records {
		if err := m.transport.Send(ctx, channel.MethodRenewSubscription, rec.ID, expiration); err != nil {
			log.Warn().Err(err).Str("subscription_id", rec.ID).Msg("renew request failed")
			continue
		}
		log.Debug().Str("subscription_id", rec.ID).Time("expiration", expiration).Msg("invoked renew")
	}
}

// armSweepSafeguard re-arms the timer if a sweep's sends never resolve
// into a created/renewed confirmation, so the renewal loop cannot halt
// permanently on silent failures.
func (m *Manager) armSweepSafeguard() {
	if m.cfg.SweepRestartGrace <= 0 {
		return
	}
	time.AfterFunc(m.cfg.SweepRestartGrace, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state == sweepInFlight {
			log.Warn().Msg("renewal sweep unconfirmed, restarting timer")
			m.state = sweepIdle
			m.startTimerLocked()
		}
	})
}

// TimerRunning reports whether the renewal timer is scheduled.
func (m *Manager) TimerRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == sweepScheduled
}
