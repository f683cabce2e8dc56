package store

import "time"

// Models mirror the durable schema. IDs are integer autoincrement keys.

type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement;not null"`
	Username     string `gorm:"uniqueIndex;not null;size:32"`
	Email        string `gorm:"uniqueIndex;not null;size:255"`
	PasswordHash string `gorm:"not null"`
	AvatarURL    string
	CreatedAt    time.Time
}

type Server struct {
	ID         int64  `gorm:"primaryKey;autoIncrement;not null"`
	Name       string `gorm:"not null;size:100"`
	Icon       string
	InviteCode string `gorm:"uniqueIndex;not null;size:16"`
	OwnerID    int64  `gorm:"not null;index"`
	CreatedAt  time.Time
}

type Channel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement;not null"`
	ServerID  int64  `gorm:"not null;index"`
	Name      string `gorm:"not null;size:100"`
	Type      string `gorm:"not null;default:text;size:16"` // "text" or "voice"
	Slowmode  int    `gorm:"not null;default:0"`            // seconds, 0 = disabled
	CreatedAt time.Time
}

// Membership is the (server, user) pair; exactly one row per pair.
type Membership struct {
	ID       int64 `gorm:"primaryKey;autoIncrement;not null"`
	ServerID int64 `gorm:"not null;uniqueIndex:idx_member_server_user"`
	UserID   int64 `gorm:"not null;uniqueIndex:idx_member_server_user"`
	JoinedAt time.Time
}

type Role struct {
	ID       int64  `gorm:"primaryKey;autoIncrement;not null"`
	ServerID int64  `gorm:"not null;index"`
	Name     string `gorm:"not null;size:100"`
	Color    string `gorm:"not null;default:#99aab5;size:16"`
	// Permissions holds the serialized fixed-schema capability record;
	// pkg/perm.Decode applies the legacy defaults when reading it.
	Permissions []byte `gorm:"not null"`
	Rank        int    `gorm:"not null;default:0"`
}

type MemberRole struct {
	MembershipID int64 `gorm:"primaryKey;autoIncrement:false"`
	RoleID       int64 `gorm:"primaryKey;autoIncrement:false"`
}

type Message struct {
	ID        int64  `gorm:"primaryKey;autoIncrement;not null"`
	ChannelID int64  `gorm:"not null;index"`
	UserID    int64  `gorm:"not null"`
	Content   string `gorm:"not null;size:4000"`
	Edited    bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Attachment struct {
	ID           int64  `gorm:"primaryKey;autoIncrement;not null"`
	MessageID    int64  `gorm:"not null;index"`
	FilePath     string `gorm:"not null"`
	OriginalName string `gorm:"not null"`
	MimeType     string `gorm:"not null;size:127"`
	FileSize     int64  `gorm:"not null;default:0"`
}

type Reaction struct {
	ID        int64  `gorm:"primaryKey;autoIncrement;not null"`
	MessageID int64  `gorm:"not null;uniqueIndex:idx_reaction_unique"`
	Emoji     string `gorm:"not null;size:32;uniqueIndex:idx_reaction_unique"`
	UserID    int64  `gorm:"not null;uniqueIndex:idx_reaction_unique"`
}

type DirectMessage struct {
	ID         int64  `gorm:"primaryKey;autoIncrement;not null"`
	FromUserID int64  `gorm:"not null;index"`
	ToUserID   int64  `gorm:"not null;index"`
	Content    string `gorm:"not null;size:4000"`
	CreatedAt  time.Time
}

// Mute is time-bounded; at most one active row per (server, user).
type Mute struct {
	ID        int64 `gorm:"primaryKey;autoIncrement;not null"`
	ServerID  int64 `gorm:"not null;uniqueIndex:idx_mute_server_user"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_mute_server_user"`
	MutedBy   int64 `gorm:"not null"`
	Reason    string
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

// Ban is permanent until lifted; at most one row per (server, user).
type Ban struct {
	ID        int64 `gorm:"primaryKey;autoIncrement;not null"`
	ServerID  int64 `gorm:"not null;uniqueIndex:idx_ban_server_user"`
	UserID    int64 `gorm:"not null;uniqueIndex:idx_ban_server_user"`
	BannedBy  int64 `gorm:"not null"`
	Reason    string
	CreatedAt time.Time
}
