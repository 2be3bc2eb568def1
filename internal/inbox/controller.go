// Package inbox implements InboxModel: the controller that owns the
// relay topology and the ingest loop, wiring together KeyStore,
// EventStore, CryptoUnwrap, RelayConnection, SubscriptionManager and
// EventRouter.
package inbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corvidlabs/inboxcore/internal/cryptocap"
	"github.com/corvidlabs/inboxcore/internal/keystore"
	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
	"github.com/corvidlabs/inboxcore/internal/relayconn"
	"github.com/corvidlabs/inboxcore/internal/store"
	"github.com/corvidlabs/inboxcore/internal/subscription"
)

const (
	coldStartDeadline = 10 * time.Second
	ingestBatchSize   = 256

	// maxConsecutiveStoreFailures bounds how many back-to-back
	// store.PutEvent failures the ingest loop tolerates before treating
	// the store as unavailable and halting rather than spinning forever
	// against a broken disk/transaction layer.
	maxConsecutiveStoreFailures = 5

	// defaultMaxFanOut is buildBipartiteMap's cap on how many of a
	// followed identity's outbox relays get dialed, applied when
	// Config.MaxFanOut is left at zero.
	defaultMaxFanOut = 3
)

// Config is the subset of the ambient configuration the controller
// needs (the rest — data directory, log level, etc. — lives in
// internal/config and is applied before the controller is constructed).
type Config struct {
	DefaultRelays []string
	ConnectWait   time.Duration // how long AwaitAtLeastOneConnected blocks, default below if zero
	MaxFanOut     int           // max outbox relays dialed per followed identity, default below if zero
}

// Controller owns the relay topology and the ingest loop.
type Controller struct {
	keys   keystore.KeyStore
	store  *store.EventStore
	crypto cryptocap.Crypto
	cfg    Config
	log    zerolog.Logger

	viewer nostrtypes.PubKey
	subs   *subscription.Manager

	mu          sync.Mutex
	live        map[string]*liveRelay
	connectedCh chan struct{} // closed once, the first time any relay reaches Connected

	reconfigureMu      sync.Mutex
	reconfigurePending bool

	haltMu               sync.Mutex
	consecutiveStoreErrs int
	haltErr              error

	runCtx    context.Context
	runCancel context.CancelFunc
	ingestWG  sync.WaitGroup
}

type liveRelay struct {
	conn   *relayconn.Conn
	subs   map[purpose]liveSub
	cancel context.CancelFunc
}

type liveSub struct {
	id  string
	pks []nostrtypes.PubKey
}

// New constructs a Controller. keys/es must already be loadable/opened
// and consistent with each other by the time Start is called.
func New(keys keystore.KeyStore, es *store.EventStore, crypto cryptocap.Crypto, cfg Config, log zerolog.Logger) *Controller {
	if cfg.ConnectWait == 0 {
		cfg.ConnectWait = coldStartDeadline
	}
	if cfg.MaxFanOut == 0 {
		cfg.MaxFanOut = defaultMaxFanOut
	}
	return &Controller{
		keys:        keys,
		store:       es,
		crypto:      crypto,
		cfg:         cfg,
		log:         log,
		viewer:      es.Viewer,
		subs:        subscription.New(4096),
		live:        map[string]*liveRelay{},
		connectedCh: make(chan struct{}),
	}
}

// Start bootstraps (cold start if no relay list is yet known), derives
// the initial topology, and launches the ingest loop.
func (c *Controller) Start(ctx context.Context) error {
	c.runCtx, c.runCancel = context.WithCancel(ctx)

	keys, err := c.keys.Load()
	if err != nil {
		return fmt.Errorf("inbox: start: load keys: %w", err)
	}
	if keys.PubKey != c.viewer {
		return fmt.Errorf("inbox: start: keystore identity %s does not match the store's viewer %s", keys.PubKey, c.viewer)
	}

	hasRelayList, err := c.store.HasRelayList(c.viewer)
	if err != nil {
		return fmt.Errorf("inbox: start: %w", err)
	}
	if !hasRelayList {
		if err := c.coldStart(c.runCtx); err != nil {
			c.log.Warn().Err(err).Msg("cold start did not complete cleanly; continuing with whatever was persisted")
		}
	}

	if err := c.reconcileNow(c.runCtx); err != nil {
		return fmt.Errorf("inbox: start: initial topology: %w", err)
	}

	c.ingestWG.Add(1)
	go c.ingestLoop(c.runCtx)

	return nil
}

// Stop cancels the ingest loop and every relay task, then resets pool
// state so the controller could in principle be started again.
func (c *Controller) Stop() {
	if c.runCancel != nil {
		c.runCancel()
	}
	c.ingestWG.Wait()

	c.mu.Lock()
	c.live = map[string]*liveRelay{}
	c.mu.Unlock()
}

// Done returns a channel closed when the controller's run context ends,
// whether from an explicit Stop or the ingest loop halting itself (see
// Err). Callers that need to react to a self-halt (rather than just
// their own shutdown signal) should select on this alongside their own
// context.
func (c *Controller) Done() <-chan struct{} {
	return c.runCtx.Done()
}

// Err returns the error that caused the ingest loop to halt itself, if
// any. A nil result does not imply the controller is still running —
// check it after Stop or after ctx passed to Start is done.
func (c *Controller) Err() error {
	c.haltMu.Lock()
	defer c.haltMu.Unlock()
	return c.haltErr
}

// recordStoreOutcome tracks consecutive store.PutEvent failures and, once
// maxConsecutiveStoreFailures is reached, surfaces store.ErrStoreUnavailable
// and cancels the run context so the ingest loop halts instead of
// continuing to hammer a store that isn't responding.
func (c *Controller) recordStoreOutcome(err error) {
	c.haltMu.Lock()
	defer c.haltMu.Unlock()
	if err == nil {
		c.consecutiveStoreErrs = 0
		return
	}
	c.consecutiveStoreErrs++
	if c.consecutiveStoreErrs < maxConsecutiveStoreFailures || c.haltErr != nil {
		return
	}
	c.haltErr = fmt.Errorf("inbox: %w after %d consecutive store write failures: %w", store.ErrStoreUnavailable, c.consecutiveStoreErrs, err)
	c.log.Error().Err(c.haltErr).Msg("halting ingest")
	if c.runCancel != nil {
		c.runCancel()
	}
}

// AwaitAtLeastOneConnected blocks until some relay reaches Connected or
// the configured wait elapses, returning whether one did.
func (c *Controller) AwaitAtLeastOneConnected(ctx context.Context) bool {
	timer := time.NewTimer(c.cfg.ConnectWait)
	defer timer.Stop()
	select {
	case <-c.connectedCh:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) markConnectedOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.connectedCh:
	default:
		close(c.connectedCh)
	}
}

// coldStart connects to the configured default relays, drains the
// viewer's own profile data until EOSE everywhere or the deadline, then
// persists defaults for whatever relay lists are still missing.
func (c *Controller) coldStart(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, coldStartDeadline)
	defer cancel()

	var wg sync.WaitGroup
	bootstrapSubs := map[string]string{} // relay uri -> sub id, for cleanup below

	for _, uri := range c.cfg.DefaultRelays {
		lr := c.ensureLive(uri)
		filter := profilesFilter([]nostrtypes.PubKey{c.viewer}, nil)
		subID, err := c.subs.Subscribe(uri, lr.conn, []nostrtypes.Filter{filter})
		if err != nil {
			c.log.Warn().Err(err).Str("relay", uri).Msg("cold start subscribe failed")
			continue
		}
		bootstrapSubs[uri] = subID
		wg.Add(1)
		go func(subID string) {
			defer wg.Done()
			c.waitForEose(ctx, subID)
		}(subID)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}

	for uri, subID := range bootstrapSubs {
		c.mu.Lock()
		lr, ok := c.live[uri]
		c.mu.Unlock()
		if !ok {
			continue
		}
		c.subs.Stop(lr.conn, subID)
	}

	if err := c.seedDefaultRelayLists(); err != nil {
		return err
	}
	return nil
}

// waitForEose drains the subscription's delivered events into the
// store and returns once Eose or Closed arrives for subID, or ctx is
// canceled.
func (c *Controller) waitForEose(ctx context.Context, subID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.subs.Queue:
			c.applyIngestItem(item)
			if item.SubID == subID && (item.Kind == subscription.EventEose || item.Kind == subscription.EventClosed) {
				return
			}
		}
	}
}

// seedDefaultRelayLists writes a default RelayListMetadata and
// PreferredDMRelays for the viewer if one still doesn't exist after
// cold-start draining.
func (c *Controller) seedDefaultRelayLists() error {
	var defaults []nostrtypes.Relay
	for _, uri := range c.cfg.DefaultRelays {
		defaults = append(defaults, nostrtypes.Relay{URI: uri, Role: nostrtypes.RelayBoth})
	}
	if err := c.store.PutDefaultRelayList(nostrtypes.KindRelayListMetadata, c.viewer, defaults); err != nil {
		return fmt.Errorf("inbox: seed default relay list: %w", err)
	}
	if err := c.store.PutDefaultRelayList(nostrtypes.KindPreferredDMRelays, c.viewer, defaults); err != nil {
		return fmt.Errorf("inbox: seed default dm relay list: %w", err)
	}
	return nil
}

// ensureLive returns the live relay entry for uri, dialing it if this
// is the first time it's been referenced.
func (c *Controller) ensureLive(uri string) *liveRelay {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lr, ok := c.live[uri]; ok {
		return lr
	}
	connCtx, cancel := context.WithCancel(c.runCtx)
	conn := relayconn.New(uri, c.log)
	lr := &liveRelay{conn: conn, subs: map[purpose]liveSub{}, cancel: cancel}
	c.live[uri] = lr
	go conn.Run(connCtx)
	go c.pumpFrames(connCtx, uri, conn)
	go c.watchConnected(connCtx, conn)
	return lr
}

func (c *Controller) watchConnected(ctx context.Context, conn *relayconn.Conn) {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if conn.State() == relayconn.Connected {
				c.markConnectedOnce()
				return
			}
		}
	}
}
