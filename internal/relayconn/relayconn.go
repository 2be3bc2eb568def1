// Package relayconn implements RelayConnection: one state machine per
// relay URI, with queued outbound sends, exponential back-off
// reconnect, and subscription replay across reconnects.
package relayconn

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
	"github.com/corvidlabs/inboxcore/internal/transport"
)

// State is one of the five connection states.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Disconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	backoffInitial = 500 * time.Millisecond
	backoffCap     = 60 * time.Second
	backoffJitter  = 0.25
)

// nextBackoff doubles cur (or starts at backoffInitial), caps at
// backoffCap, and jitters by ±25%.
func nextBackoff(cur time.Duration, rng *rand.Rand) time.Duration {
	next := cur * 2
	if next <= 0 {
		next = backoffInitial
	}
	if next > backoffCap {
		next = backoffCap
	}
	jitter := 1 + (rng.Float64()*2-1)*backoffJitter
	return time.Duration(float64(next) * jitter)
}

// pendingSub is a subscription RelayConnection must replay after a
// reconnect, keyed by the subscription id SubscriptionManager allocated.
type pendingSub struct {
	filters []nostrtypes.Filter
}

// Conn is one relay connection's state machine. All exported methods
// are safe for concurrent use; the read loop and the reconnect loop
// both run on goroutines owned by Run.
type Conn struct {
	url string
	log zerolog.Logger

	mu    sync.Mutex
	state State
	subs  map[string]pendingSub
	sock  *transport.Socket

	outbound chan outboundRequest
	Frames   chan transport.Frame // relay→caller delivery
}

type outboundRequest struct {
	kind    reqKind
	subID   string
	filters []nostrtypes.Filter
	event   nostrtypes.Event
}

type reqKind int

const (
	reqEvent reqKind = iota
	reqSubscribe
	reqClose
)

// New constructs a Conn for url. Call Run to start its lifecycle.
func New(url string, log zerolog.Logger) *Conn {
	return &Conn{
		url:      url,
		log:      log.With().Str("relay", url).Logger(),
		state:    Idle,
		subs:     map[string]pendingSub{},
		outbound: make(chan outboundRequest, 64),
		Frames:   make(chan transport.Frame, 256),
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.Debug().Str("state", s.String()).Msg("relay state transition")
}

// Send queues a client→relay EVENT frame; delivery order is preserved.
func (c *Conn) Send(ev nostrtypes.Event) {
	c.outbound <- outboundRequest{kind: reqEvent, event: ev}
}

// Subscribe queues a REQ and records it for reconnect replay.
func (c *Conn) Subscribe(subID string, filters []nostrtypes.Filter) {
	c.mu.Lock()
	c.subs[subID] = pendingSub{filters: filters}
	c.mu.Unlock()
	c.outbound <- outboundRequest{kind: reqSubscribe, subID: subID, filters: filters}
}

// Unsubscribe queues a CLOSE and drops the subscription from replay.
// Idempotent: unsubscribing an unknown id is still a no-op send.
func (c *Conn) Unsubscribe(subID string) {
	c.mu.Lock()
	delete(c.subs, subID)
	c.mu.Unlock()
	c.outbound <- outboundRequest{kind: reqClose, subID: subID}
}

// Run drives the connect/reconnect loop until ctx is canceled. It never
// returns early on a single connection failure; it backs off and
// retries.
func (c *Conn) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(seedFor(c.url)))
	backoff := time.Duration(0)

	for {
		if ctx.Err() != nil {
			c.setState(Idle)
			return
		}

		c.setState(Connecting)
		sock, err := transport.Dial(ctx, c.url)
		if err != nil {
			c.log.Warn().Err(err).Msg("dial failed")
			c.setState(Failed)
			backoff = nextBackoff(backoff, rng)
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.sock = sock
		c.mu.Unlock()
		c.setState(Connected)
		backoff = 0

		c.replaySubscriptions(ctx)
		c.runConnected(ctx, sock)

		c.mu.Lock()
		c.sock = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setState(Idle)
			return
		}
		c.setState(Failed)
		backoff = nextBackoff(backoff, rng)
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func (c *Conn) replaySubscriptions(ctx context.Context) {
	c.mu.Lock()
	subs := make(map[string]pendingSub, len(c.subs))
	for id, s := range c.subs {
		subs[id] = s
	}
	sock := c.sock
	c.mu.Unlock()

	for id, s := range subs {
		if err := sock.SendReq(ctx, id, s.filters); err != nil {
			c.log.Warn().Err(err).Str("sub_id", id).Msg("failed to replay subscription")
		}
	}
}

// runConnected pumps outbound requests to the socket and inbound frames
// to c.Frames until either the read loop dies or ctx is canceled.
func (c *Conn) runConnected(ctx context.Context, sock *transport.Socket) {
	readErrs := make(chan error, 1)
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			f, err := sock.Recv(connCtx)
			if err != nil {
				if errors.Is(err, transport.ErrProtocolParse) {
					// One malformed frame doesn't indict the connection:
					// log it, drop it, and keep reading.
					c.log.Warn().Err(err).Msg("dropped malformed relay frame")
					continue
				}
				readErrs <- err
				return
			}
			select {
			case c.Frames <- f:
			case <-connCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.setState(Disconnecting)
			_ = sock.Close()
			return
		case err := <-readErrs:
			c.log.Warn().Err(err).Msg("relay read loop ended")
			_ = sock.Close()
			return
		case req := <-c.outbound:
			if err := c.send(ctx, sock, req); err != nil {
				c.log.Warn().Err(err).Msg("relay write failed")
				_ = sock.Close()
				return
			}
		}
	}
}

func (c *Conn) send(ctx context.Context, sock *transport.Socket, req outboundRequest) error {
	switch req.kind {
	case reqEvent:
		return sock.SendEvent(ctx, req.event)
	case reqSubscribe:
		return sock.SendReq(ctx, req.subID, req.filters)
	case reqClose:
		return sock.SendClose(ctx, req.subID)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// seedFor derives a deterministic-per-url but distinct-across-relays
// seed so many concurrently running Conns don't share jitter phase.
func seedFor(url string) int64 {
	var h int64 = 1469598103934665603
	for _, b := range []byte(url) {
		h ^= int64(b)
		h *= 1099511628211
	}
	if h < 0 {
		h = -h
	}
	return h
}
