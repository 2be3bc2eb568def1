package inbox

import (
	"sort"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// purpose distinguishes the roles a relay can serve in the desired
// topology, so reconcile can scope DM moves independently of the rest:
// only subscriptions whose filter includes GiftWrap are stopped/moved
// when DM relays change.
type purpose int

const (
	purposeDM purpose = iota
	purposeMentions
	purposeProfiles
	purposePosts
)

// subSpec is one desired subscription on one relay. pks is nil for the
// viewer-scoped purposes (DM, Mentions); for Profiles/Posts it is the
// sorted pubkey set the filter covers, used to detect "same relay,
// different pubkey set" during reconcile.
type subSpec struct {
	purpose purpose
	filter nostrtypes.Filter
	pks []nostrtypes.PubKey
}

// outboxLookup resolves a followed identity's outbox-capable relays;
// missing is treated as empty.
type outboxLookup func(f nostrtypes.PubKey) []nostrtypes.Relay

// sinceLookup resolves lastTs(pks, kinds) for filter construction.
type sinceLookup func(pks []nostrtypes.PubKey, kinds []nostrtypes.Kind) *nostrtypes.Timestamp

// desiredTopology derives the relay topology a viewer should maintain:
// viewer DM relays get a GiftWrap subscription, viewer inbox relays get
// a mentions subscription, and a bipartite map built from each
// followed identity's top-maxFanOut-prioritized outbox relays gets a
// profiles + posts subscription per relay.
func desiredTopology(
	viewer nostrtypes.PubKey,
	follows []nostrtypes.PubKey,
	viewerInbox []nostrtypes.Relay,
	viewerDM []nostrtypes.Relay,
	outboxOf outboxLookup,
	since sinceLookup,
	maxFanOut int,
) map[string][]subSpec {
	desired := map[string][]subSpec{}

	for _, r := range viewerDM {
		uri := r.URI
		desired[uri] = append(desired[uri], subSpec{
			purpose: purposeDM,
			filter: giftWrapFilter(viewer, since([]nostrtypes.PubKey{viewer}, []nostrtypes.Kind{nostrtypes.KindGiftWrap})),
		})
	}

	inboxSet := map[string]struct{}{}
	for _, r := range viewerInbox {
		inboxSet[r.URI] = struct{}{}
	}
	mentionKinds := []nostrtypes.Kind{nostrtypes.KindShortTextNote, nostrtypes.KindRepost, nostrtypes.KindComment, nostrtypes.KindEventDeletion}
	for _, r := range viewerInbox {
		uri := r.URI
		desired[uri] = append(desired[uri], subSpec{
			purpose: purposeMentions,
			filter: mentionsFilter(viewer, since([]nostrtypes.PubKey{viewer}, mentionKinds)),
		})
	}

	bipartite := buildBipartiteMap(follows, outboxOf, inboxSet, maxFanOut)
	profileKinds := []nostrtypes.Kind{nostrtypes.KindRelayListMetadata, nostrtypes.KindPreferredDMRelays, nostrtypes.KindFollowList}
	postKinds := []nostrtypes.Kind{nostrtypes.KindShortTextNote, nostrtypes.KindRepost, nostrtypes.KindEventDeletion}
	for relayURI, pks := range bipartite {
		sortPubKeys(pks)
		desired[relayURI] = append(desired[relayURI],
			subSpec{purpose: purposeProfiles, filter: profilesFilter(pks, since(pks, profileKinds)), pks: pks},
			subSpec{purpose: purposePosts, filter: userPostsFilter(pks, since(pks, postKinds)), pks: pks},
		)
	}

	return desired
}

// buildBipartiteMap inverts, per followed identity, its top-maxFanOut
// outbox-capable relays (prioritizing relays also in the viewer's
// inbox set, stable order: prioritized-first then others) into
// relay -> set<PubKey>. maxFanOut <= 0 is treated as unlimited.
func buildBipartiteMap(follows []nostrtypes.PubKey, outboxOf outboxLookup, inboxSet map[string]struct{}, maxFanOut int) map[string][]nostrtypes.PubKey {
	out := map[string][]nostrtypes.PubKey{}

	for _, f := range follows {
		relays := outboxOf(f)
		var outboxCapable []nostrtypes.Relay
		for _, r := range relays {
			if r.Role == nostrtypes.RelayOutboxOnly || r.Role == nostrtypes.RelayBoth {
				outboxCapable = append(outboxCapable, r)
			}
		}

		prioritized := make([]nostrtypes.Relay, 0, len(outboxCapable))
		rest := make([]nostrtypes.Relay, 0, len(outboxCapable))
		for _, r := range outboxCapable {
			if _, ok := inboxSet[r.URI]; ok {
				prioritized = append(prioritized, r)
			} else {
				rest = append(rest, r)
			}
		}
		chosen := append(prioritized, rest...)
		if maxFanOut > 0 && len(chosen) > maxFanOut {
			chosen = chosen[:maxFanOut]
		}

		for _, r := range chosen {
			out[r.URI] = append(out[r.URI], f)
		}
	}

	return out
}

func sortPubKeys(pks []nostrtypes.PubKey) {
	sort.Slice(pks, func(i, j int) bool { return pks[i].String() < pks[j].String() })
}
