package relayconn

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextBackoffGrowsAndCaps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := time.Duration(0)
	for i := 0; i < 20; i++ {
		d = nextBackoff(d, rng)
		if d <= 0 {
			t.Fatalf("iteration %d: backoff must be positive, got %v", i, d)
		}
		max := time.Duration(float64(backoffCap) * (1 + backoffJitter))
		if d > max {
			t.Fatalf("iteration %d: backoff %v exceeds jittered cap %v", i, d, max)
		}
	}
}

func TestNextBackoffFirstCallNearInitial(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d := nextBackoff(0, rng)
	lo := time.Duration(float64(backoffInitial) * (1 - backoffJitter))
	hi := time.Duration(float64(backoffInitial) * (1 + backoffJitter))
	if d < lo || d > hi {
		t.Fatalf("expected first backoff within [%v,%v], got %v", lo, hi, d)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Idle: "idle", Connecting: "connecting", Connected: "connected",
		Disconnecting: "disconnecting", Failed: "failed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String = %q, want %q", s, got, want)
		}
	}
}

func TestSeedForDeterministicAndDistinct(t *testing.T) {
	a1 := seedFor("wss://relay.one")
	a2 := seedFor("wss://relay.one")
	b := seedFor("wss://relay.two")
	if a1 != a2 {
		t.Fatal("seedFor must be deterministic for the same url")
	}
	if a1 == b {
		t.Fatal("seedFor should (with overwhelming likelihood) differ across urls")
	}
}

func TestConnSubscribeTracksPendingForReplay(t *testing.T) {
	c := New("wss://relay.example", zerolog.Nop())
	c.Subscribe("abc123", nil)
	c.mu.Lock()
	_, ok := c.subs["abc123"]
	c.mu.Unlock()
	if !ok {
		t.Fatal("Subscribe must record the subscription for reconnect replay")
	}

	<-c.outbound // drain the queued REQ so the test doesn't leak a goroutine block

	c.Unsubscribe("abc123")
	c.mu.Lock()
	_, stillThere := c.subs["abc123"]
	c.mu.Unlock()
	if stillThere {
		t.Fatal("Unsubscribe must drop the subscription from replay tracking")
	}
	<-c.outbound
}
