package state

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Peer is the transport side of a session. Implemented by
// *transport.Connection; tests substitute an in-memory fake.
type Peer interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// RoomID is a tagged room identifier: "user:<id>", "server:<id>",
// "channel:<id>" or "voice:<id>".
type RoomID string

func UserRoom(userID int64) RoomID {
	return RoomID("user:" + strconv.FormatInt(userID, 10))
}

func ServerRoom(serverID int64) RoomID {
	return RoomID("server:" + strconv.FormatInt(serverID, 10))
}

func ChannelRoom(channelID int64) RoomID {
	return RoomID("channel:" + strconv.FormatInt(channelID, 10))
}

func VoiceRoom(channelID int64) RoomID {
	return RoomID("voice:" + strconv.FormatInt(channelID, 10))
}

// Category returns the tag before the colon.
func (r RoomID) Category() string {
	if i := strings.IndexByte(string(r), ':'); i >= 0 {
		return string(r[:i])
	}
	return string(r)
}

// Exclusive reports whether a session may hold at most one room of this
// category at a time. Joining a new channel or voice room implicitly
// leaves the previous one.
func (r RoomID) Exclusive() bool {
	cat := r.Category()
	return cat == "channel" || cat == "voice"
}

// EntityID returns the numeric part of the identifier, 0 if malformed.
func (r RoomID) EntityID() int64 {
	i := strings.IndexByte(string(r), ':')
	if i < 0 {
		return 0
	}
	n, _ := strconv.ParseInt(string(r[i+1:]), 10, 64)
	return n
}

// Session is one authenticated connection. It is owned exclusively by the
// state manager: Rooms is mutated only through Join/Leave/Deregister so the
// room index and the session's own set can never diverge.
type Session struct {
	ID        uuid.UUID
	UserID    int64
	Username  string
	Peer      Peer
	Rooms     map[RoomID]struct{}
	CreatedAt time.Time
}
