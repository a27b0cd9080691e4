package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aisquery/internal/domain"
)

var (
	kolkata = domain.Vessel{VesselID: "v1", MMSI: "419000001", Name: "INS KOLKATA"}
	chennai = domain.Vessel{VesselID: "v2", MMSI: "419000002", Name: "INS CHENNAI"}
)

func TestResolveEmptyMemoryLeavesMarkers(t *testing.T) {
	r := NewReferenceResolver()
	got := r.Resolve("Show its trajectory", Conversation{})
	assert.Equal(t, "Show its trajectory", got.Text)
	assert.Equal(t, []string{"its"}, got.Unresolved)
	assert.Empty(t, got.Bound)
}

func TestResolveSingularUsesMostRecent(t *testing.T) {
	conv := Conversation{LastVessels: []domain.Vessel{chennai, kolkata}}
	got := NewReferenceResolver().Resolve("Is it loitering? Show its track", conv)
	assert.Equal(t, "Is vessel MMSI 419000001 loitering? Show vessel MMSI 419000001's track", got.Text)
	assert.Equal(t, []domain.Vessel{kolkata}, got.Bound)
	assert.Empty(t, got.Unresolved)
}

func TestResolvePluralUsesWholeSet(t *testing.T) {
	conv := Conversation{LastVessels: []domain.Vessel{chennai, kolkata}}
	got := NewReferenceResolver().Resolve("compare Those  Vessels over the last day", conv)
	assert.Equal(t, "compare vessels MMSI 419000002 and MMSI 419000001 over the last day", got.Text)
	assert.Equal(t, []string{"those vessels"}, got.Markers)
	assert.Len(t, got.Bound, 2)
}

func TestResolveIgnoresWordsContainingMarkers(t *testing.T) {
	got := NewReferenceResolver().Resolve("list vessels with item counts in Italy", Conversation{LastVessels: []domain.Vessel{kolkata}})
	assert.Equal(t, "list vessels with item counts in Italy", got.Text)
	assert.Empty(t, got.Markers)
}

func TestResolveIsIdempotent(t *testing.T) {
	conv := Conversation{LastVessels: []domain.Vessel{kolkata}}
	r := NewReferenceResolver()
	a := r.Resolve("show its trajectory", conv)
	b := r.Resolve("show its trajectory", conv)
	assert.Equal(t, a, b)
}

func TestIsMarker(t *testing.T) {
	assert.True(t, IsMarker("Its"))
	assert.True(t, IsMarker(" that  vessel "))
	assert.False(t, IsMarker("INS KOLKATA"))
}

func TestLeaseCommitAndSnapshot(t *testing.T) {
	s := NewStore(time.Hour)
	lease, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)

	conv := lease.Conversation()
	assert.Empty(t, conv.Turns)

	now := time.Now()
	lease.Commit(Update{
		Turns:     []Turn{NewTurn("r1", RoleUser, "show INS KOLKATA", true, now), NewTurn("r1", RoleAssistant, "found 3 points", true, now)},
		Mentioned: []domain.Vessel{kolkata},
	})
	lease.Release()
	lease.Release()

	snap, ok := s.Snapshot("s1")
	require.True(t, ok)
	require.Len(t, snap.Turns, 2)
	assert.NotEqual(t, snap.Turns[0].ID, snap.Turns[1].ID)
	last, ok := snap.LastVessel()
	require.True(t, ok)
	assert.Equal(t, kolkata, last)

	// A failed turn keeps the previous vessel set.
	lease, err = s.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	lease.Commit(Update{Turns: []Turn{NewTurn("r2", RoleUser, "show it", false, now)}})
	lease.Release()
	snap, _ = s.Snapshot("s1")
	assert.Len(t, snap.Turns, 3)
	assert.Equal(t, []domain.Vessel{kolkata}, snap.LastVessels)

	// Snapshots are copies.
	snap.Turns[0].Content = "changed"
	again, _ := s.Snapshot("s1")
	assert.Equal(t, "show INS KOLKATA", again.Turns[0].Content)
}

func TestCommitAfterReleaseIsIgnored(t *testing.T) {
	s := NewStore(time.Hour)
	lease, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	lease.Release()
	lease.Commit(Update{Turns: []Turn{NewTurn("r", RoleUser, "x", true, time.Now())}})
	snap, _ := s.Snapshot("s1")
	assert.Empty(t, snap.Turns)
}

func TestAcquireSerializesSession(t *testing.T) {
	s := NewStore(time.Hour)
	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := s.Acquire(context.Background(), "shared")
			if err != nil {
				t.Error(err)
				return
			}
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			lease.Commit(Update{Turns: []Turn{NewTurn("r", RoleUser, "q", true, time.Now())}})
			inFlight.Add(-1)
			lease.Release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
	snap, _ := s.Snapshot("shared")
	assert.Len(t, snap.Turns, 8)
}

func TestAcquireHonoursContext(t *testing.T) {
	s := NewStore(time.Hour)
	lease, err := s.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Other sessions are independent.
	other, err := s.Acquire(context.Background(), "s2")
	require.NoError(t, err)
	other.Release()
}

func TestResetClearsSession(t *testing.T) {
	s := NewStore(time.Hour)
	lease, _ := s.Acquire(context.Background(), "s1")
	lease.Commit(Update{Turns: []Turn{NewTurn("r", RoleUser, "q", true, time.Now())}, Mentioned: []domain.Vessel{kolkata}})
	lease.Release()

	require.NoError(t, s.Reset(context.Background(), "s1"))
	snap, ok := s.Snapshot("s1")
	require.True(t, ok)
	assert.Empty(t, snap.Turns)
	assert.Empty(t, snap.LastVessels)
}

func TestSweepEvictsIdleSessionsOnly(t *testing.T) {
	s := NewStore(time.Minute)
	clock := time.Now()
	s.now = func() time.Time { return clock }

	idle, _ := s.Acquire(context.Background(), "idle")
	idle.Release()
	busy, _ := s.Acquire(context.Background(), "busy")

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	_, ok := s.Snapshot("idle")
	assert.False(t, ok)
	_, ok = s.Snapshot("busy")
	assert.True(t, ok)
	busy.Release()
}

func TestRecentMessages(t *testing.T) {
	now := time.Now()
	conv := Conversation{Turns: []Turn{
		NewTurn("1", RoleUser, "a", true, now),
		NewTurn("1", RoleAssistant, "b", true, now),
		NewTurn("2", RoleUser, "c", true, now),
	}}
	msgs := conv.RecentMessages(2)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].Content)
	assert.Nil(t, conv.RecentMessages(0))
}

func TestConversationSummary(t *testing.T) {
	assert.Equal(t, "No queries yet.", Conversation{}.Summary())

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Conversation{
		Turns: []Turn{
			NewTurn("r1", RoleUser, "Show INS KOLKATA", true, at),
			NewTurn("r1", RoleAssistant, "Found 12 points.", true, at),
			NewTurn("r2", RoleUser, "Show its speed", false, at),
			NewTurn("r2", RoleAssistant, "parse_intent failed", false, at),
		},
		LastVessels: []domain.Vessel{kolkata},
	}
	assert.Equal(t, "2 queries, 1 answered. Last vessels: INS KOLKATA (MMSI 419000001).", c.Summary())
}
