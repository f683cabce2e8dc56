package statemanager_test

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Gotyqqq/Rucord/pkg/state"
	"github.com/Gotyqqq/Rucord/pkg/state/statemanager"
	"github.com/google/uuid"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

type fakePeer struct {
	id   uuid.UUID
	mu   sync.Mutex
	sent [][]byte
}

func newFakePeer() *fakePeer { return &fakePeer{id: uuid.New()} }

func (p *fakePeer) ID() uuid.UUID { return p.id }

func (p *fakePeer) Send(message []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, message)
}

func (p *fakePeer) Close(err error) {}

// --- Session Lifecycle Tests ---

func TestSessionLifecycle(t *testing.T) {
	m := newTestManager()
	peer := newFakePeer()

	sess, err := m.Register(peer, 1, "alice")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sess.ID != peer.ID() {
		t.Errorf("Registered session ID mismatch")
	}

	got, found := m.Get(peer.ID())
	if !found {
		t.Fatal("Get failed to find registered session")
	}
	if got.UserID != 1 || got.Username != "alice" {
		t.Errorf("Session identity mismatch: %+v", got)
	}

	if _, err := m.Register(peer, 1, "alice"); err == nil {
		t.Error("expected error registering the same peer twice")
	}

	_, _, err = m.Deregister(peer.ID())
	if err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	if _, found := m.Get(peer.ID()); found {
		t.Error("Found session after it should have been deregistered")
	}
}

func TestUserSessionCount(t *testing.T) {
	m := newTestManager()
	peer1, peer2 := newFakePeer(), newFakePeer()

	m.Register(peer1, 7, "bob")
	m.Register(peer2, 7, "bob")

	count, _ := m.UserSessionCount(7)
	if count != 2 {
		t.Errorf("Expected session count 2, got %d", count)
	}

	m.Deregister(peer1.ID())
	count, _ = m.UserSessionCount(7)
	if count != 1 {
		t.Errorf("Expected session count 1 after deregister, got %d", count)
	}
}

func TestOldestUserSession(t *testing.T) {
	m := newTestManager()
	peer1 := newFakePeer()
	m.Register(peer1, 9, "carol")
	time.Sleep(5 * time.Millisecond) // Ensure timestamps are different
	peer2 := newFakePeer()
	m.Register(peer2, 9, "carol")

	oldest, found := m.OldestUserSession(9)
	if !found {
		t.Fatal("Expected to find oldest session, but did not")
	}
	if oldest.ID != peer1.ID() {
		t.Errorf("Expected oldest session to be %s, got %s", peer1.ID(), oldest.ID)
	}
}

// --- Room Membership Tests ---

func TestRoomMembership(t *testing.T) {
	m := newTestManager()
	peer1, peer2 := newFakePeer(), newFakePeer()
	m.Register(peer1, 1, "alice")
	m.Register(peer2, 2, "bob")
	room := state.ChannelRoom(100)

	if _, err := m.Join(peer1.ID(), room); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := m.Join(peer2.ID(), room); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	members := m.RoomSessions(room)
	if len(members) != 2 {
		t.Fatalf("Expected 2 sessions in room, got %d", len(members))
	}

	if err := m.Leave(peer1.ID(), room); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	members = m.RoomSessions(room)
	if len(members) != 1 {
		t.Fatalf("Expected 1 session after leave, got %d", len(members))
	}
	if members[0].UserID != 2 {
		t.Errorf("Expected remaining session to belong to user 2, got %d", members[0].UserID)
	}

	// Empty room cleanup: the index must not keep empty entries around.
	m.Leave(peer2.ID(), room)
	if ids := m.RoomUserIDs(room); len(ids) != 0 {
		t.Errorf("Expected empty room after last leave, got %d users", len(ids))
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	m := newTestManager()
	peer := newFakePeer()
	m.Register(peer, 1, "alice")
	room := state.ServerRoom(5)

	m.Join(peer.ID(), room)
	left, err := m.Join(peer.ID(), room)
	if err != nil {
		t.Fatalf("second Join failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("idempotent join must not leave rooms, left %v", left)
	}
	if got := len(m.RoomSessions(room)); got != 1 {
		t.Errorf("session registered twice in the same room: %d entries", got)
	}
}

func TestChannelRoomExclusivity(t *testing.T) {
	m := newTestManager()
	peer := newFakePeer()
	m.Register(peer, 1, "alice")

	a, b := state.ChannelRoom(10), state.ChannelRoom(11)
	m.Join(peer.ID(), a)
	left, err := m.Join(peer.ID(), b)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if len(left) != 1 || left[0] != a {
		t.Fatalf("expected implicit leave of %s, got %v", a, left)
	}
	if m.InRoom(peer.ID(), a) {
		t.Error("session still in old channel room after switching")
	}
	if !m.InRoom(peer.ID(), b) {
		t.Error("session not in new channel room")
	}

	// Voice rooms are exclusive within their own category but do not
	// interfere with the channel room.
	v := state.VoiceRoom(20)
	m.Join(peer.ID(), v)
	if !m.InRoom(peer.ID(), b) || !m.InRoom(peer.ID(), v) {
		t.Error("voice join must not evict the channel membership")
	}
}

func TestDeregisterReleasesAllRooms(t *testing.T) {
	m := newTestManager()
	peer := newFakePeer()
	m.Register(peer, 3, "dave")
	rooms := []state.RoomID{state.UserRoom(3), state.ServerRoom(1), state.ChannelRoom(4)}
	for _, r := range rooms {
		m.Join(peer.ID(), r)
	}

	_, left, err := m.Deregister(peer.ID())
	if err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	if len(left) != len(rooms) {
		t.Fatalf("expected %d released rooms, got %d", len(rooms), len(left))
	}
	for _, r := range rooms {
		if len(m.RoomSessions(r)) != 0 {
			t.Errorf("room %s still holds the deregistered session", r)
		}
	}
}

func TestRoomUserIDsDeduplicatesSessions(t *testing.T) {
	m := newTestManager()
	peer1, peer2 := newFakePeer(), newFakePeer()
	m.Register(peer1, 5, "eve")
	m.Register(peer2, 5, "eve")
	room := state.ServerRoom(9)
	m.Join(peer1.ID(), room)
	m.Join(peer2.ID(), room)

	ids := m.RoomUserIDs(room)
	if len(ids) != 1 {
		t.Errorf("expected 1 distinct user, got %d", len(ids))
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup
	peers := make([]*fakePeer, 50)
	for i := range peers {
		peers[i] = newFakePeer()
		m.Register(peers[i], int64(i), "user")
	}

	for i, p := range peers {
		wg.Add(1)
		go func(i int, p *fakePeer) {
			defer wg.Done()
			room := state.ChannelRoom(int64(i % 5))
			m.Join(p.ID(), room)
			m.RoomSessions(room)
			m.Leave(p.ID(), room)
		}(i, p)
	}
	wg.Wait()
}
