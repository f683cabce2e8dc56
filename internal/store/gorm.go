package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gotyqqq/Rucord/pkg/config"
	"github.com/Gotyqqq/Rucord/pkg/perm"
	"github.com/google/uuid"
	mysqldriver "gorm.io/driver/mysql"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// GormStore implements Store on top of gorm.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ Store = (*GormStore)(nil)

// Open connects to the configured database and runs migrations.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysqldriver.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlitedriver.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database connect: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return New(db, logger), nil
}

// New wraps an existing gorm handle; used by tests.
func New(db *gorm.DB, logger *slog.Logger) *GormStore {
	return &GormStore{db: db, logger: logger.With(slog.String("component", "store"))}
}

// Migrate runs the schema migrations.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{}, &Server{}, &Channel{}, &Membership{}, &Role{}, &MemberRole{},
		&Message{}, &Attachment{}, &Reaction{}, &DirectMessage{}, &Mute{}, &Ban{},
	)
	if err != nil {
		return fmt.Errorf("database migrations: %w", err)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Users ---

func (s *GormStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	if res := s.db.WithContext(ctx).First(&user, id); res.Error != nil {
		return nil, translate(res.Error)
	}
	return &user, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	res := s.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&user)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return &user, nil
}

func (s *GormStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	user := User{Username: username, Email: email, PasswordHash: passwordHash}
	if res := s.db.WithContext(ctx).Create(&user); res.Error != nil {
		return nil, res.Error
	}
	return &user, nil
}

// --- Servers & Channels ---

func (s *GormStore) GetServer(ctx context.Context, id int64) (*Server, error) {
	var server Server
	if res := s.db.WithContext(ctx).First(&server, id); res.Error != nil {
		return nil, translate(res.Error)
	}
	return &server, nil
}

func (s *GormStore) GetServerByInvite(ctx context.Context, inviteCode string) (*Server, error) {
	var server Server
	res := s.db.WithContext(ctx).Where("invite_code = ?", inviteCode).First(&server)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return &server, nil
}

func (s *GormStore) CreateServer(ctx context.Context, name string, ownerID int64) (*Server, error) {
	server := Server{
		Name:       name,
		InviteCode: uuid.NewString()[:8],
		OwnerID:    ownerID,
	}

	everyonePerms, err := perm.Encode(perm.SendMessages | perm.ReadMessages | perm.SendGIFs | perm.SendMedia | perm.DeleteMessages)
	if err != nil {
		return nil, err
	}
	ownerPerms, err := perm.Encode(perm.SendMessages | perm.ReadMessages | perm.SendGIFs | perm.SendMedia |
		perm.DeleteMessages | perm.ManageServer | perm.ManageChannels | perm.ManageRoles | perm.KickMembers)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Create(&server); res.Error != nil {
			return res.Error
		}
		membership := Membership{ServerID: server.ID, UserID: ownerID, JoinedAt: time.Now()}
		if res := tx.Create(&membership); res.Error != nil {
			return res.Error
		}
		if res := tx.Create(&Channel{ServerID: server.ID, Name: "general", Type: "text"}); res.Error != nil {
			return res.Error
		}
		if res := tx.Create(&Role{ServerID: server.ID, Name: "everyone", Permissions: everyonePerms, Rank: 0}); res.Error != nil {
			return res.Error
		}
		ownerRole := Role{ServerID: server.ID, Name: "Owner", Color: "#e74c3c", Permissions: ownerPerms, Rank: 100}
		if res := tx.Create(&ownerRole); res.Error != nil {
			return res.Error
		}
		return tx.Create(&MemberRole{MembershipID: membership.ID, RoleID: ownerRole.ID}).Error
	})
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// JoinByInvite resolves an invite code to its server and enrolls the user.
// A standing ban blocks the join; a user who is already a member gets their
// existing membership back.
func (s *GormStore) JoinByInvite(ctx context.Context, inviteCode string, userID int64) (*Server, *Membership, error) {
	server, err := s.GetServerByInvite(ctx, inviteCode)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.GetBan(ctx, server.ID, userID); err == nil {
		return nil, nil, ErrBanned
	} else if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}
	membership, err := s.CreateMembership(ctx, server.ID, userID)
	if err != nil {
		return nil, nil, err
	}
	return server, membership, nil
}

func (s *GormStore) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	var channel Channel
	if res := s.db.WithContext(ctx).First(&channel, id); res.Error != nil {
		return nil, translate(res.Error)
	}
	return &channel, nil
}

func (s *GormStore) CreateChannel(ctx context.Context, serverID int64, name, channelType string) (*Channel, error) {
	channel := Channel{ServerID: serverID, Name: name, Type: channelType}
	if res := s.db.WithContext(ctx).Create(&channel); res.Error != nil {
		return nil, res.Error
	}
	return &channel, nil
}

func (s *GormStore) SetChannelSlowmode(ctx context.Context, channelID int64, seconds int) error {
	res := s.db.WithContext(ctx).Model(&Channel{}).Where("id = ?", channelID).Update("slowmode", seconds)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Memberships ---

func (s *GormStore) GetMembership(ctx context.Context, serverID, userID int64) (*Membership, error) {
	var m Membership
	res := s.db.WithContext(ctx).Where("server_id = ? AND user_id = ?", serverID, userID).First(&m)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return &m, nil
}

func (s *GormStore) CreateMembership(ctx context.Context, serverID, userID int64) (*Membership, error) {
	m := Membership{ServerID: serverID, UserID: userID, JoinedAt: time.Now()}
	res := s.db.WithContext(ctx).Create(&m)
	if res.Error != nil {
		// Membership is unique per (server, user): treat a duplicate as
		// already satisfied and hand back the existing row.
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return s.GetMembership(ctx, serverID, userID)
		}
		return nil, res.Error
	}
	return &m, nil
}

func (s *GormStore) DeleteMembership(ctx context.Context, serverID, userID int64) error {
	return s.db.WithContext(ctx).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Delete(&Membership{}).Error
}

func (s *GormStore) ListMembersOfServer(ctx context.Context, serverID int64) ([]Membership, error) {
	var members []Membership
	res := s.db.WithContext(ctx).Where("server_id = ?", serverID).Order("joined_at ASC").Find(&members)
	if res.Error != nil {
		return nil, res.Error
	}
	return members, nil
}

func (s *GormStore) ListServersOfUser(ctx context.Context, userID int64) ([]int64, error) {
	var serverIDs []int64
	res := s.db.WithContext(ctx).Model(&Membership{}).
		Where("user_id = ?", userID).Pluck("server_id", &serverIDs)
	if res.Error != nil {
		return nil, res.Error
	}
	return serverIDs, nil
}

// --- Roles ---

func (s *GormStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	var role Role
	if res := s.db.WithContext(ctx).First(&role, roleID); res.Error != nil {
		return nil, translate(res.Error)
	}
	return &role, nil
}

func (s *GormStore) GetRolesOfMember(ctx context.Context, membershipID int64) ([]Role, error) {
	var roles []Role
	res := s.db.WithContext(ctx).
		Joins("JOIN member_roles mr ON mr.role_id = roles.id").
		Where("mr.membership_id = ?", membershipID).
		Order("roles.rank DESC").
		Find(&roles)
	if res.Error != nil {
		return nil, res.Error
	}
	return roles, nil
}

func (s *GormStore) ListRolesOfServer(ctx context.Context, serverID int64) ([]Role, error) {
	var roles []Role
	res := s.db.WithContext(ctx).Where("server_id = ?", serverID).Order("rank DESC").Find(&roles)
	if res.Error != nil {
		return nil, res.Error
	}
	return roles, nil
}

func (s *GormStore) FindRoleByName(ctx context.Context, serverID int64, name string) (*Role, error) {
	var role Role
	res := s.db.WithContext(ctx).Where("server_id = ? AND name = ?", serverID, name).First(&role)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return &role, nil
}

func (s *GormStore) CreateRole(ctx context.Context, serverID int64, name, color string, permissions []byte, rank int) (*Role, error) {
	role := Role{ServerID: serverID, Name: name, Permissions: permissions, Rank: rank}
	if color != "" {
		role.Color = color
	}
	if res := s.db.WithContext(ctx).Create(&role); res.Error != nil {
		return nil, res.Error
	}
	return &role, nil
}

func (s *GormStore) UpdateRole(ctx context.Context, role *Role) error {
	res := s.db.WithContext(ctx).Save(role)
	return res.Error
}

func (s *GormStore) DeleteRole(ctx context.Context, roleID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&MemberRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Role{}, roleID).Error
	})
}

func (s *GormStore) ReorderRoles(ctx context.Context, serverID int64, orderedRoleIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, roleID := range orderedRoleIDs {
			rank := len(orderedRoleIDs) - i
			res := tx.Model(&Role{}).
				Where("id = ? AND server_id = ?", roleID, serverID).
				Update("rank", rank)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
}

func (s *GormStore) AssignRole(ctx context.Context, membershipID, roleID int64) error {
	res := s.db.WithContext(ctx).Create(&MemberRole{MembershipID: membershipID, RoleID: roleID})
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return res.Error
	}
	return nil
}

func (s *GormStore) UnassignRole(ctx context.Context, membershipID, roleID int64) error {
	return s.db.WithContext(ctx).
		Where("membership_id = ? AND role_id = ?", membershipID, roleID).
		Delete(&MemberRole{}).Error
}

// --- Messages ---

func (s *GormStore) CreateMessage(ctx context.Context, channelID, userID int64, content string) (*Message, error) {
	msg := Message{ChannelID: channelID, UserID: userID, Content: content}
	if res := s.db.WithContext(ctx).Create(&msg); res.Error != nil {
		return nil, res.Error
	}
	return &msg, nil
}

func (s *GormStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	if res := s.db.WithContext(ctx).First(&msg, id); res.Error != nil {
		return nil, translate(res.Error)
	}
	return &msg, nil
}

func (s *GormStore) UpdateMessage(ctx context.Context, id int64, content string) (*Message, error) {
	res := s.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).
		Updates(map[string]any{"content": content, "edited": true})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

func (s *GormStore) DeleteMessage(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Message{}, id).Error
	})
}

func (s *GormStore) GetMessagesPage(ctx context.Context, channelID, beforeID int64, limit int) ([]Message, error) {
	q := s.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var messages []Message
	res := q.Order("id DESC").Limit(limit).Find(&messages)
	if res.Error != nil {
		return nil, res.Error
	}
	return messages, nil
}

func (s *GormStore) CreateAttachment(ctx context.Context, att *Attachment) error {
	return s.db.WithContext(ctx).Create(att).Error
}

func (s *GormStore) ListAttachments(ctx context.Context, messageID int64) ([]Attachment, error) {
	var atts []Attachment
	res := s.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&atts)
	if res.Error != nil {
		return nil, res.Error
	}
	return atts, nil
}

// --- Reactions ---

func (s *GormStore) AddReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	res := s.db.WithContext(ctx).Create(&Reaction{MessageID: messageID, UserID: userID, Emoji: emoji})
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return res.Error
	}
	return nil
}

func (s *GormStore) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	return s.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&Reaction{}).Error
}

func (s *GormStore) ListReactions(ctx context.Context, messageID int64) ([]Reaction, error) {
	var reactions []Reaction
	res := s.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&reactions)
	if res.Error != nil {
		return nil, res.Error
	}
	return reactions, nil
}

// --- Direct Messages ---

func (s *GormStore) CreateDirectMessage(ctx context.Context, fromUserID, toUserID int64, content string) (*DirectMessage, error) {
	dm := DirectMessage{FromUserID: fromUserID, ToUserID: toUserID, Content: content}
	if res := s.db.WithContext(ctx).Create(&dm); res.Error != nil {
		return nil, res.Error
	}
	return &dm, nil
}

// --- Moderation ---

func (s *GormStore) GetMute(ctx context.Context, serverID, userID int64) (*Mute, error) {
	var mute Mute
	res := s.db.WithContext(ctx).Where("server_id = ? AND user_id = ?", serverID, userID).First(&mute)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return &mute, nil
}

func (s *GormStore) CreateMute(ctx context.Context, serverID, userID, actorID int64, reason string, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Mute
		res := tx.Where("server_id = ? AND user_id = ?", serverID, userID).First(&existing)
		if res.Error == nil {
			// Replace the expiry; mutes never stack.
			return tx.Model(&existing).Updates(map[string]any{
				"expires_at": expiresAt,
				"muted_by":   actorID,
				"reason":     reason,
			}).Error
		}
		if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return res.Error
		}
		return tx.Create(&Mute{
			ServerID: serverID, UserID: userID, MutedBy: actorID,
			Reason: reason, ExpiresAt: expiresAt,
		}).Error
	})
}

func (s *GormStore) DeleteMute(ctx context.Context, serverID, userID int64) error {
	return s.db.WithContext(ctx).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Delete(&Mute{}).Error
}

func (s *GormStore) GetBan(ctx context.Context, serverID, userID int64) (*Ban, error) {
	var ban Ban
	res := s.db.WithContext(ctx).Where("server_id = ? AND user_id = ?", serverID, userID).First(&ban)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	return &ban, nil
}

func (s *GormStore) CreateBan(ctx context.Context, serverID, userID, actorID int64, reason string) error {
	res := s.db.WithContext(ctx).Create(&Ban{ServerID: serverID, UserID: userID, BannedBy: actorID, Reason: reason})
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return res.Error
	}
	return nil
}

func (s *GormStore) DeleteBan(ctx context.Context, serverID, userID int64) error {
	return s.db.WithContext(ctx).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Delete(&Ban{}).Error
}

func (s *GormStore) ListBansOfServer(ctx context.Context, serverID int64) ([]Ban, error) {
	var bans []Ban
	res := s.db.WithContext(ctx).Where("server_id = ?", serverID).Order("created_at DESC").Find(&bans)
	if res.Error != nil {
		return nil, res.Error
	}
	return bans, nil
}
