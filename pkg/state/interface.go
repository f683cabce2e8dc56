package state

import "github.com/google/uuid"

// Manager tracks live sessions and the many-to-many session/room index.
type Manager interface {
	// --- Session Lifecycle ---
	Register(peer Peer, userID int64, username string) (*Session, error)
	// Deregister atomically releases every room membership of the session
	// and returns the rooms it was joined to at the time.
	Deregister(sessID uuid.UUID) (*Session, []RoomID, error)
	Get(sessID uuid.UUID) (*Session, bool)

	// --- Per-User Views ---
	UserSessions(userID int64) []*Session
	UserSessionCount(userID int64) (int, error)
	OldestUserSession(userID int64) (*Session, bool)
	AllSessions() []*Session

	// --- Room Membership ---
	// Join adds the session to a room. Joining a room the session already
	// holds is a no-op. For exclusive categories (channel, voice) the
	// previously held room of the same category is left implicitly; the
	// returned slice names the rooms that were left.
	Join(sessID uuid.UUID, roomID RoomID) ([]RoomID, error)
	Leave(sessID uuid.UUID, roomID RoomID) error
	InRoom(sessID uuid.UUID, roomID RoomID) bool
	// SessionRooms returns a snapshot of the rooms the session holds.
	SessionRooms(sessID uuid.UUID) []RoomID

	// --- Broadcast Support ---
	RoomSessions(roomID RoomID) []*Session
	// RoomUserIDs returns the set of distinct users with a session in the room.
	RoomUserIDs(roomID RoomID) map[int64]struct{}
}
