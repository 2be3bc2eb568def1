package inbox

import (
	"context"
	"fmt"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// reconcileNow recomputes the desired topology and diffs it against the
// live one, connecting, disconnecting and resubscribing as needed.
func (c *Controller) reconcileNow(ctx context.Context) error {
	follows, err := c.store.GetFollows(c.viewer)
	if err != nil {
		return fmt.Errorf("inbox: reconcile: load follows: %w", err)
	}
	followPks := make([]nostrtypes.PubKey, len(follows))
	for i, f := range follows {
		followPks[i] = f.Target
	}

	viewerInbox, err := c.store.GetGeneralRelays(c.viewer)
	if err != nil {
		return fmt.Errorf("inbox: reconcile: load viewer relays: %w", err)
	}
	viewerDM, err := c.store.GetDMRelays(c.viewer)
	if err != nil {
		return fmt.Errorf("inbox: reconcile: load viewer dm relays: %w", err)
	}

	outboxOf := func(f nostrtypes.PubKey) []nostrtypes.Relay {
		relays, err := c.store.GetGeneralRelays(f)
		if err != nil {
			c.log.Warn().Err(err).Str("pubkey", f.String()).Msg("failed to load follow's relays; treating as empty")
			return nil
		}
		return relays
	}
	since := func(pks []nostrtypes.PubKey, kinds []nostrtypes.Kind) *nostrtypes.Timestamp {
		ts, ok, err := c.store.GetLatestTimestamp(pks, kinds)
		if err != nil || !ok {
			return nil
		}
		return &ts
	}

	desired := desiredTopology(c.viewer, followPks, inboxOnly(viewerInbox), viewerDM, outboxOf, since, c.cfg.MaxFanOut)

	c.mu.Lock()
	liveURIs := make([]string, 0, len(c.live))
	for uri := range c.live {
		liveURIs = append(liveURIs, uri)
	}
	c.mu.Unlock()

	for _, uri := range liveURIs {
		if _, wanted := desired[uri]; !wanted {
			c.disconnectRelay(uri)
		}
	}

	for uri, specs := range desired {
		c.reconcileRelay(uri, specs)
	}

	return nil
}

// inboxOnly filters a relay list down to those declared for inbox use
// (RelayInboxOnly or RelayBoth) — the viewer's inbox-capable relays.
func inboxOnly(relays []nostrtypes.Relay) []nostrtypes.Relay {
	var out []nostrtypes.Relay
	for _, r := range relays {
		if r.Role == nostrtypes.RelayInboxOnly || r.Role == nostrtypes.RelayBoth {
			out = append(out, r)
		}
	}
	return out
}

// reconcileRelay connects uri if new, then diffs its desired subSpecs
// against the live ones purpose-by-purpose, so a DM-relay move never
// disturbs an unrelated mentions/profiles subscription sharing the
// same socket.
func (c *Controller) reconcileRelay(uri string, specs []subSpec) {
	lr := c.ensureLive(uri)

	c.mu.Lock()
	existing := make(map[purpose]liveSub, len(lr.subs))
	for p, s := range lr.subs {
		existing[p] = s
	}
	c.mu.Unlock()

	wantedPurposes := map[purpose]struct{}{}
	for _, spec := range specs {
		wantedPurposes[spec.purpose] = struct{}{}
		cur, ok := existing[spec.purpose]
		if ok && pksEqual(cur.pks, spec.pks) {
			continue // unchanged: leave the live subscription alone.
		}
		if ok {
			c.subs.Stop(lr.conn, cur.id)
		}
		id, err := c.subs.Subscribe(uri, lr.conn, []nostrtypes.Filter{spec.filter})
		if err != nil {
			c.log.Warn().Err(err).Str("relay", uri).Msg("subscribe failed during reconcile")
			continue
		}
		c.mu.Lock()
		lr.subs[spec.purpose] = liveSub{id: id, pks: spec.pks}
		c.mu.Unlock()
	}

	for p, s := range existing {
		if _, wanted := wantedPurposes[p]; !wanted {
			c.subs.Stop(lr.conn, s.id)
			c.mu.Lock()
			delete(lr.subs, p)
			c.mu.Unlock()
		}
	}
}

func (c *Controller) disconnectRelay(uri string) {
	c.mu.Lock()
	lr, ok := c.live[uri]
	if ok {
		delete(c.live, uri)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	for _, s := range lr.subs {
		c.subs.Stop(lr.conn, s.id)
	}
	lr.cancel()
}

func pksEqual(a, b []nostrtypes.PubKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
