package inbox

import (
	"context"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
	"github.com/corvidlabs/inboxcore/internal/relayconn"
	"github.com/corvidlabs/inboxcore/internal/router"
	"github.com/corvidlabs/inboxcore/internal/subscription"
	"github.com/corvidlabs/inboxcore/internal/transport"
)

// pumpFrames translates one relay's parsed transport.Frame stream onto
// the shared subscription queue.
func (c *Controller) pumpFrames(ctx context.Context, relayURI string, conn *relayconn.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-conn.Frames:
			switch f.Kind {
			case transport.FrameEvent:
				c.subs.RecordDelivery(relayURI, f.SubID, f.Event, len(f.Event.Content))
			case transport.FrameEose:
				c.subs.RecordEose(relayURI, f.SubID)
			case transport.FrameClosed:
				c.subs.RecordClosed(relayURI, f.SubID, f.Reason)
			case transport.FrameOk, transport.FrameNotice:
				// No store effect; OK/NOTICE are transport-level acks the
				// controller doesn't currently act on beyond logging.
				c.log.Debug().Str("relay", relayURI).Int("frame_kind", int(f.Kind)).Msg("relay ack")
			}
		}
	}
}

// ingestLoop blocks for at least one item, then batch-drains, applying
// each via EventRouter.
func (c *Controller) ingestLoop(ctx context.Context) {
	defer c.ingestWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-c.subs.Queue:
			c.applyIngestItem(item)
			for _, more := range c.subs.DrainBatch(ingestBatchSize) {
				c.applyIngestItem(more)
			}
		}
	}
}

func (c *Controller) applyIngestItem(item subscription.IngestItem) {
	switch item.Kind {
	case subscription.EventAppeared:
		c.handleEventAppeared(item.Relay, item.Event)
	case subscription.EventEose:
		// no-op outside cold start.
	case subscription.EventClosed:
		c.handleClosed(item.Relay, item.SubID, item.Reason)
	}
}

func (c *Controller) handleEventAppeared(relay string, ev nostrtypes.Event) {
	decision := router.Route(c.crypto, c.viewer, relay, ev)
	if !decision.Accept {
		c.log.Debug().Str("relay", relay).Str("event", ev.ID.String()).Msg("dropped invalid event")
		return
	}

	if err := c.store.PutEvent(decision.Event, map[string]struct{}{relay: {}}); err != nil {
		c.log.Error().Err(err).Str("relay", relay).Msg("store write failed")
		c.recordStoreOutcome(err)
		return
	}
	c.recordStoreOutcome(nil)

	if decision.Reconfigure != nil {
		c.scheduleReconcile()
	}
}

// handleClosed drops the subscription's liveSub bookkeeping and its
// registration, so the next reconcile opens a fresh one in its place.
// Permanent-error reasons are not distinguished from transient ones
// here since there isn't a closed-reason taxonomy enumerated beyond
// "indicates a permanent error" — any CLOSED is treated as
// re-subscribable on the next reconcile, which is always safe (it
// either succeeds or is rejected again).
func (c *Controller) handleClosed(relay, subID, reason string) {
	c.log.Info().Str("relay", relay).Str("sub_id", subID).Str("reason", reason).Msg("subscription closed by relay")
	c.mu.Lock()
	lr, ok := c.live[relay]
	if ok {
		for p, s := range lr.subs {
			if s.id == subID {
				delete(lr.subs, p)
			}
		}
	}
	c.mu.Unlock()
	if ok {
		c.subs.Stop(lr.conn, subID)
	}
	c.scheduleReconcile()
}

// scheduleReconcile coalesces concurrent ReconfigureRequests into a
// single follow-up reconcile pass.
func (c *Controller) scheduleReconcile() {
	c.reconfigureMu.Lock()
	if c.reconfigurePending {
		c.reconfigureMu.Unlock()
		return
	}
	c.reconfigurePending = true
	c.reconfigureMu.Unlock()

	go func() {
		defer func() {
			c.reconfigureMu.Lock()
			c.reconfigurePending = false
			c.reconfigureMu.Unlock()
		}()
		if err := c.reconcileNow(c.runCtx); err != nil {
			c.log.Error().Err(err).Msg("reconcile failed")
		}
	}()
}
