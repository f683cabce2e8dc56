package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/Gotyqqq/Rucord/internal/access"
	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/state"
)

// channelRef parses the polymorphic join_channel payload: either a bare
// numeric id or an object {channelId, preview}.
func channelRef(payload gjson.Result) (channelID int64, preview bool) {
	if payload.IsObject() {
		return payload.Get("channelId").Int(), payload.Get("preview").Bool()
	}
	return payload.Int(), false
}

func (g *Gateway) handleJoinChannel(ctx context.Context, sess *state.Session, payload gjson.Result) {
	channelID, preview := channelRef(payload)
	channel, err := g.store.GetChannel(ctx, channelID)
	if err != nil {
		return
	}
	if _, err := g.resolver.EnsureMember(ctx, channel.ServerID, sess.UserID, preview); err != nil {
		if !errors.Is(err, access.ErrNotMember) {
			g.logger.Error("join_channel membership check failed", slog.Any("error", err))
		}
		return
	}
	// Exclusive category: joining implicitly leaves the previous channel room.
	if _, err := g.state.Join(sess.ID, state.ChannelRoom(channelID)); err != nil {
		g.logger.Warn("join_channel failed", slog.Int64("channelID", channelID), slog.Any("error", err))
	}
}

func (g *Gateway) handleLeaveChannel(_ context.Context, sess *state.Session, payload gjson.Result) {
	channelID, _ := channelRef(payload)
	_ = g.state.Leave(sess.ID, state.ChannelRoom(channelID))
}

// handleJoinServer subscribes the session to a server's broadcast room. A
// standing ban rejects the join with a named event; the master identity
// passes through bans and is enrolled on first contact.
func (g *Gateway) handleJoinServer(ctx context.Context, sess *state.Session, payload gjson.Result) {
	serverID := payload.Int()
	if serverID == 0 {
		return
	}
	banned, err := g.moderation.IsBanned(ctx, serverID, sess.UserID)
	if err != nil {
		g.logger.Error("join_server ban check failed", slog.Any("error", err))
		return
	}
	if banned && !g.resolver.IsMaster(sess.UserID) {
		g.emit(sess, "server_banned", serverBanned{ServerID: serverID})
		return
	}
	if _, err := g.resolver.EnsureMember(ctx, serverID, sess.UserID, false); err != nil {
		if !errors.Is(err, access.ErrNotMember) {
			g.logger.Error("join_server membership check failed", slog.Any("error", err))
		}
		return
	}
	if _, err := g.state.Join(sess.ID, state.ServerRoom(serverID)); err != nil {
		g.logger.Warn("join_server failed", slog.Int64("serverID", serverID), slog.Any("error", err))
	}
}

// handleGetOnlineUsers answers with the presence status of every member of
// the server; members without a presence record report offline.
func (g *Gateway) handleGetOnlineUsers(ctx context.Context, sess *state.Session, payload gjson.Result) {
	serverID := payload.Int()
	if serverID == 0 {
		return
	}
	members, err := g.store.ListMembersOfServer(ctx, serverID)
	if err != nil {
		g.logger.Error("get_online_users member list failed", slog.Any("error", err))
		return
	}
	users := make(map[string]string, len(members))
	for _, m := range members {
		users[strconv.FormatInt(m.UserID, 10)] = string(g.presence.Status(m.UserID))
	}
	g.emit(sess, "online_users", onlineUsers{ServerID: serverID, Users: users})
}

// membershipOf is the common guard for channel-scoped actions: the session's
// user must already hold a membership on the channel's server.
func (g *Gateway) membershipOf(ctx context.Context, sess *state.Session, serverID int64) (*store.Membership, bool) {
	membership, err := g.store.GetMembership(ctx, serverID, sess.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Error("membership lookup failed", slog.Any("error", err))
		}
		return nil, false
	}
	return membership, true
}
