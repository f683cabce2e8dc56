package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: record not found")

// ErrBanned is returned by JoinByInvite when the user holds a standing ban
// on the invite's server.
var ErrBanned = errors.New("store: user is banned from this server")

// Store is the boundary with the durable backend. Calls are synchronous
// from the caller's perspective; each session runs on its own goroutine so
// a blocked store call never stalls unrelated sessions.
type Store interface {
	// --- Users ---
	GetUser(ctx context.Context, id int64) (*User, error)
	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// --- Servers & Channels ---
	GetServer(ctx context.Context, id int64) (*Server, error)
	GetServerByInvite(ctx context.Context, inviteCode string) (*Server, error)
	// JoinByInvite enrolls the user on the invite's server. A standing ban
	// returns ErrBanned; an existing membership is returned as-is.
	JoinByInvite(ctx context.Context, inviteCode string, userID int64) (*Server, *Membership, error)
	// CreateServer bootstraps the server: owner membership, a default text
	// channel, the synthetic "everyone" role at the lowest rank and an
	// owner role at the top rank assigned to the creator.
	CreateServer(ctx context.Context, name string, ownerID int64) (*Server, error)
	GetChannel(ctx context.Context, id int64) (*Channel, error)
	CreateChannel(ctx context.Context, serverID int64, name, channelType string) (*Channel, error)
	SetChannelSlowmode(ctx context.Context, channelID int64, seconds int) error

	// --- Memberships ---
	GetMembership(ctx context.Context, serverID, userID int64) (*Membership, error)
	// CreateMembership is idempotent: a duplicate returns the existing row.
	CreateMembership(ctx context.Context, serverID, userID int64) (*Membership, error)
	DeleteMembership(ctx context.Context, serverID, userID int64) error
	ListMembersOfServer(ctx context.Context, serverID int64) ([]Membership, error)
	ListServersOfUser(ctx context.Context, userID int64) ([]int64, error)

	// --- Roles ---
	GetRole(ctx context.Context, roleID int64) (*Role, error)
	GetRolesOfMember(ctx context.Context, membershipID int64) ([]Role, error)
	ListRolesOfServer(ctx context.Context, serverID int64) ([]Role, error)
	FindRoleByName(ctx context.Context, serverID int64, name string) (*Role, error)
	CreateRole(ctx context.Context, serverID int64, name, color string, permissions []byte, rank int) (*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, roleID int64) error
	ReorderRoles(ctx context.Context, serverID int64, orderedRoleIDs []int64) error
	// AssignRole is idempotent.
	AssignRole(ctx context.Context, membershipID, roleID int64) error
	UnassignRole(ctx context.Context, membershipID, roleID int64) error

	// --- Messages ---
	CreateMessage(ctx context.Context, channelID, userID int64, content string) (*Message, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	UpdateMessage(ctx context.Context, id int64, content string) (*Message, error)
	// DeleteMessage cascades reactions and attachments.
	DeleteMessage(ctx context.Context, id int64) error
	GetMessagesPage(ctx context.Context, channelID, beforeID int64, limit int) ([]Message, error)
	CreateAttachment(ctx context.Context, att *Attachment) error
	ListAttachments(ctx context.Context, messageID int64) ([]Attachment, error)

	// --- Reactions ---
	// AddReaction is idempotent: a duplicate (message, emoji, user) is a no-op.
	AddReaction(ctx context.Context, messageID, userID int64, emoji string) error
	RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error
	ListReactions(ctx context.Context, messageID int64) ([]Reaction, error)

	// --- Direct Messages ---
	CreateDirectMessage(ctx context.Context, fromUserID, toUserID int64, content string) (*DirectMessage, error)

	// --- Moderation ---
	GetMute(ctx context.Context, serverID, userID int64) (*Mute, error)
	// CreateMute upserts: an existing mute gets its expiry and actor replaced.
	CreateMute(ctx context.Context, serverID, userID, actorID int64, reason string, expiresAt time.Time) error
	DeleteMute(ctx context.Context, serverID, userID int64) error
	GetBan(ctx context.Context, serverID, userID int64) (*Ban, error)
	// CreateBan is idempotent.
	CreateBan(ctx context.Context, serverID, userID, actorID int64, reason string) error
	DeleteBan(ctx context.Context, serverID, userID int64) error
	ListBansOfServer(ctx context.Context, serverID int64) ([]Ban, error)
}
