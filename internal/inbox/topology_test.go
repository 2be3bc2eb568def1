package inbox

import (
	"testing"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

func pk(b byte) nostrtypes.PubKey {
	var p nostrtypes.PubKey
	p[31] = b
	return p
}

func relay(uri string, role nostrtypes.RelayRole) nostrtypes.Relay {
	return nostrtypes.Relay{URI: uri, Role: role}
}

func noSince(_ []nostrtypes.PubKey, _ []nostrtypes.Kind) *nostrtypes.Timestamp { return nil }

func TestDesiredTopologyDMAndMentions(t *testing.T) {
	viewer := pk(9)
	dm := []nostrtypes.Relay{relay("wss://dm1", nostrtypes.RelayDM)}
	inbox := []nostrtypes.Relay{relay("wss://inbox1", nostrtypes.RelayInboxOnly)}

	desired := desiredTopology(viewer, nil, inbox, dm, func(nostrtypes.PubKey) []nostrtypes.Relay { return nil }, noSince, 3)

	if specs, ok := desired["wss://dm1"]; !ok || len(specs) != 1 || specs[0].purpose != purposeDM {
		t.Fatalf("expected a single DM subscription on wss://dm1, got %+v", desired["wss://dm1"])
	}
	if specs, ok := desired["wss://inbox1"]; !ok || len(specs) != 1 || specs[0].purpose != purposeMentions {
		t.Fatalf("expected a single mentions subscription on wss://inbox1, got %+v", desired["wss://inbox1"])
	}
}

func TestDesiredTopologyCapsOutboxRelaysAtThree(t *testing.T) {
	viewer := pk(9)
	f1 := pk(1)
	outbox := func(f nostrtypes.PubKey) []nostrtypes.Relay {
		return []nostrtypes.Relay{
			relay("wss://o1", nostrtypes.RelayOutboxOnly),
			relay("wss://o2", nostrtypes.RelayOutboxOnly),
			relay("wss://o3", nostrtypes.RelayOutboxOnly),
			relay("wss://o4", nostrtypes.RelayOutboxOnly),
		}
	}

	desired := desiredTopology(viewer, []nostrtypes.PubKey{f1}, nil, nil, outbox, noSince, 3)

	if _, ok := desired["wss://o4"]; ok {
		t.Fatal("expected only the first 3 outbox relays to be used, o4 should be dropped")
	}
	for _, uri := range []string{"wss://o1", "wss://o2", "wss://o3"} {
		specs, ok := desired[uri]
		if !ok || len(specs) != 2 {
			t.Fatalf("expected profiles+posts subscriptions on %s, got %+v", uri, specs)
		}
	}
}

func TestDesiredTopologyPrioritizesViewerInboxRelays(t *testing.T) {
	viewer := pk(9)
	f1 := pk(1)
	inbox := []nostrtypes.Relay{relay("wss://shared", nostrtypes.RelayInboxOnly)}
	outbox := func(f nostrtypes.PubKey) []nostrtypes.Relay {
		return []nostrtypes.Relay{
			relay("wss://a", nostrtypes.RelayOutboxOnly),
			relay("wss://b", nostrtypes.RelayOutboxOnly),
			relay("wss://shared", nostrtypes.RelayBoth),
			relay("wss://c", nostrtypes.RelayOutboxOnly),
		}
	}

	desired := desiredTopology(viewer, []nostrtypes.PubKey{f1}, inbox, nil, outbox, noSince, 3)

	if _, ok := desired["wss://c"]; ok {
		t.Fatal("expected wss://shared to be prioritized ahead of wss://c, bumping c out of the top-3")
	}
	if _, ok := desired["wss://shared"]; !ok {
		t.Fatal("expected the prioritized shared relay to be chosen")
	}
}

func TestDesiredTopologyHonorsConfiguredMaxFanOut(t *testing.T) {
	viewer := pk(9)
	f1 := pk(1)
	outbox := func(f nostrtypes.PubKey) []nostrtypes.Relay {
		return []nostrtypes.Relay{
			relay("wss://o1", nostrtypes.RelayOutboxOnly),
			relay("wss://o2", nostrtypes.RelayOutboxOnly),
			relay("wss://o3", nostrtypes.RelayOutboxOnly),
		}
	}

	desired := desiredTopology(viewer, []nostrtypes.PubKey{f1}, nil, nil, outbox, noSince, 1)

	if _, ok := desired["wss://o2"]; ok {
		t.Fatal("expected maxFanOut=1 to keep only the first outbox relay")
	}
	if _, ok := desired["wss://o1"]; !ok {
		t.Fatal("expected the first outbox relay to still be used")
	}
}

func TestBuildBipartiteMapUnlimitedWhenMaxFanOutZero(t *testing.T) {
	f1 := pk(1)
	outbox := func(f nostrtypes.PubKey) []nostrtypes.Relay {
		return []nostrtypes.Relay{
			relay("wss://o1", nostrtypes.RelayOutboxOnly),
			relay("wss://o2", nostrtypes.RelayOutboxOnly),
			relay("wss://o3", nostrtypes.RelayOutboxOnly),
			relay("wss://o4", nostrtypes.RelayOutboxOnly),
		}
	}
	m := buildBipartiteMap([]nostrtypes.PubKey{f1}, outbox, map[string]struct{}{}, 0)
	for _, uri := range []string{"wss://o1", "wss://o2", "wss://o3", "wss://o4"} {
		if len(m[uri]) != 1 {
			t.Fatalf("expected maxFanOut<=0 to leave every outbox relay unfiltered, missing %s in %v", uri, m)
		}
	}
}

func TestBuildBipartiteMapMergesFollowsOnSharedRelay(t *testing.T) {
	f1, f2 := pk(1), pk(2)
	outbox := func(f nostrtypes.PubKey) []nostrtypes.Relay {
		return []nostrtypes.Relay{relay("wss://shared", nostrtypes.RelayOutboxOnly)}
	}
	m := buildBipartiteMap([]nostrtypes.PubKey{f1, f2}, outbox, map[string]struct{}{}, 3)
	if len(m["wss://shared"]) != 2 {
		t.Fatalf("expected both follows to map onto the shared relay, got %v", m["wss://shared"])
	}
}

func TestBuildBipartiteMapIgnoresInboxOnlyAsOutbox(t *testing.T) {
	f1 := pk(1)
	outbox := func(f nostrtypes.PubKey) []nostrtypes.Relay {
		return []nostrtypes.Relay{relay("wss://inbox-only", nostrtypes.RelayInboxOnly)}
	}
	m := buildBipartiteMap([]nostrtypes.PubKey{f1}, outbox, map[string]struct{}{}, 3)
	if len(m) != 0 {
		t.Fatalf("an inbox-only relay must not be selected as an outbox relay, got %v", m)
	}
}
