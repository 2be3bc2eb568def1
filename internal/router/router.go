// Package router implements EventRouter: a pure
// function from (relay, Event) to a Decision — whether the event is
// accepted for storage, plus an optional ReconfigureRequest. It
// performs no I/O; the caller (InboxModel) writes accepted events to
// the EventStore.
package router

import (
	"github.com/corvidlabs/inboxcore/internal/cryptocap"
	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// ReconfigureRequest signals that topology-relevant state changed and
// InboxModel should recompute and reconcile its relay map.
type ReconfigureRequest struct {
	Reason ReconfigureReason
	Identity nostrtypes.PubKey
}

type ReconfigureReason int

const (
	ReasonViewerFollowList ReconfigureReason = iota
	ReasonRelayListMetadata
	ReasonViewerDMRelays
)

// Decision is what EventRouter decided for one (relay, Event) pair: a
// store write to perform, and/or a reconfigure request to raise.
type Decision struct {
	// Accept is false when the event fails validation.
	Accept bool

	Event nostrtypes.Event
	FromRelay string
	Reconfigure *ReconfigureRequest
}

// Route classifies one inbound (relay, Event) pair for viewer. validate
// is the event's canonical-id check plus the crypto's
// Schnorr verification; Route runs it before anything else, exactly
// once, so every caller gets the same drop behavior for a bad event
// regardless of which kind it claims to be. Route keeps no count of
// the events it drops.
func Route(crypto cryptocap.Crypto, viewer nostrtypes.PubKey, relay string, ev nostrtypes.Event) Decision {
	if !ev.HasValidID() || !crypto.Verify(ev.ID, ev.Sig, ev.PubKey) {
		return Decision{Accept: false}
	}

	d := Decision{Accept: true, Event: ev, FromRelay: relay}

	switch ev.Kind {
	case nostrtypes.KindFollowList:
		if ev.PubKey == viewer {
			d.Reconfigure = &ReconfigureRequest{Reason: ReasonViewerFollowList, Identity: ev.PubKey}
		}
	case nostrtypes.KindRelayListMetadata:
		// Any identity's relay list changes the topology: it might be a
		// followed identity's outbox relays moving.
		d.Reconfigure = &ReconfigureRequest{Reason: ReasonRelayListMetadata, Identity: ev.PubKey}
	case nostrtypes.KindPreferredDMRelays:
		if ev.PubKey == viewer {
			d.Reconfigure = &ReconfigureRequest{Reason: ReasonViewerDMRelays, Identity: ev.PubKey}
		}
	}

	return d
}
