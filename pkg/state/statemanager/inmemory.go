package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Gotyqqq/Rucord/pkg/state"
	"github.com/google/uuid"
)

// InMemoryManager keeps the session registry and the room index as plain
// maps behind a single mutex. The room->sessions and session->rooms maps
// are only ever mutated together, under that one lock.
type InMemoryManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*state.Session
	rooms    map[state.RoomID]map[uuid.UUID]*state.Session
	byUser   map[int64]map[uuid.UUID]*state.Session

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		sessions: make(map[uuid.UUID]*state.Session),
		rooms:    make(map[state.RoomID]map[uuid.UUID]*state.Session),
		byUser:   make(map[int64]map[uuid.UUID]*state.Session),
		logger:   logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Register(peer state.Peer, userID int64, username string) (*state.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessID := peer.ID()
	if _, exists := m.sessions[sessID]; exists {
		return nil, errors.New("session is already registered")
	}
	sess := &state.Session{
		ID:        sessID,
		UserID:    userID,
		Username:  username,
		Peer:      peer,
		Rooms:     make(map[state.RoomID]struct{}),
		CreatedAt: time.Now(),
	}
	m.sessions[sessID] = sess

	userSet, ok := m.byUser[userID]
	if !ok {
		userSet = make(map[uuid.UUID]*state.Session)
		m.byUser[userID] = userSet
	}
	userSet[sessID] = sess

	m.logger.Debug("Session registered", slog.String("sessID", sessID.String()), slog.Int64("userID", userID))
	return sess, nil
}

func (m *InMemoryManager) Deregister(sessID uuid.UUID) (*state.Session, []state.RoomID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessID]
	if !ok {
		// already deregistered
		return nil, nil, nil
	}

	left := make([]state.RoomID, 0, len(sess.Rooms))
	for roomID := range sess.Rooms {
		m.removeFromRoomLocked(sess, roomID)
		left = append(left, roomID)
	}

	delete(m.sessions, sessID)
	if userSet, ok := m.byUser[sess.UserID]; ok {
		delete(userSet, sessID)
		if len(userSet) == 0 {
			delete(m.byUser, sess.UserID)
		}
	}

	m.logger.Debug("Session deregistered", slog.String("sessID", sessID.String()), slog.Int64("userID", sess.UserID))
	return sess, left, nil
}

func (m *InMemoryManager) Get(sessID uuid.UUID) (*state.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessID]
	return sess, ok
}

func (m *InMemoryManager) UserSessions(userID int64) []*state.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userSet := m.byUser[userID]
	sessions := make([]*state.Session, 0, len(userSet))
	for _, s := range userSet {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *InMemoryManager) UserSessionCount(userID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID]), nil
}

func (m *InMemoryManager) OldestUserSession(userID int64) (*state.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var oldest *state.Session
	for _, s := range m.byUser[userID] {
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	return oldest, oldest != nil
}

func (m *InMemoryManager) AllSessions() []*state.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*state.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *InMemoryManager) Join(sessID uuid.UUID, roomID state.RoomID) ([]state.RoomID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessID]
	if !ok {
		return nil, errors.New("cannot join room: session not found")
	}

	// A session is never registered twice in the same room.
	if _, joined := sess.Rooms[roomID]; joined {
		return nil, nil
	}

	var left []state.RoomID
	if roomID.Exclusive() {
		cat := roomID.Category()
		for held := range sess.Rooms {
			if held.Category() == cat {
				m.removeFromRoomLocked(sess, held)
				left = append(left, held)
			}
		}
	}

	room, ok := m.rooms[roomID]
	if !ok {
		room = make(map[uuid.UUID]*state.Session)
		m.rooms[roomID] = room
	}
	room[sessID] = sess
	sess.Rooms[roomID] = struct{}{}

	m.logger.Debug("Session joined room", slog.String("sessID", sessID.String()), slog.String("roomID", string(roomID)))
	return left, nil
}

func (m *InMemoryManager) Leave(sessID uuid.UUID, roomID state.RoomID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessID]
	if !ok {
		// Session is gone, so it holds no memberships.
		return nil
	}
	if _, joined := sess.Rooms[roomID]; !joined {
		return nil
	}
	m.removeFromRoomLocked(sess, roomID)

	m.logger.Debug("Session left room", slog.String("sessID", sessID.String()), slog.String("roomID", string(roomID)))
	return nil
}

func (m *InMemoryManager) SessionRooms(sessID uuid.UUID) []state.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessID]
	if !ok {
		return nil
	}
	rooms := make([]state.RoomID, 0, len(sess.Rooms))
	for roomID := range sess.Rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (m *InMemoryManager) InRoom(sessID uuid.UUID, roomID state.RoomID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	_, joined := room[sessID]
	return joined
}

func (m *InMemoryManager) RoomSessions(roomID state.RoomID) []*state.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room := m.rooms[roomID]
	sessions := make([]*state.Session, 0, len(room))
	for _, s := range room {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *InMemoryManager) RoomUserIDs(roomID state.RoomID) map[int64]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make(map[int64]struct{})
	for _, s := range m.rooms[roomID] {
		users[s.UserID] = struct{}{}
	}
	return users
}

// removeFromRoomLocked unlinks both directions of the membership and drops
// the room once empty. Caller holds m.mu.
func (m *InMemoryManager) removeFromRoomLocked(sess *state.Session, roomID state.RoomID) {
	delete(sess.Rooms, roomID)
	if room, ok := m.rooms[roomID]; ok {
		delete(room, sess.ID)
		if len(room) == 0 {
			delete(m.rooms, roomID)
			m.logger.Debug("Removed empty room", slog.String("roomID", string(roomID)))
		}
	}
}
