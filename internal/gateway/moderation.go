package gateway

import (
	"context"
	"time"

	"github.com/Gotyqqq/Rucord/pkg/state"
)

// Moderation commands arrive through the request/response surface rather
// than socket events; the gateway wraps them so the live side effects
// (room revocation, members_updated fan-out) happen in one place.

// MuteMember imposes or refreshes a mute and announces the roster change.
func (g *Gateway) MuteMember(ctx context.Context, serverID, actorID, targetID int64, duration time.Duration, reason string) (time.Time, error) {
	expiresAt, err := g.moderation.Mute(ctx, serverID, actorID, targetID, duration, reason)
	if err != nil {
		return time.Time{}, err
	}
	g.notifyMembersUpdated(serverID)
	return expiresAt, nil
}

func (g *Gateway) UnmuteMember(ctx context.Context, serverID, actorID, targetID int64) error {
	if err := g.moderation.Unmute(ctx, serverID, actorID, targetID); err != nil {
		return err
	}
	g.notifyMembersUpdated(serverID)
	return nil
}

// BanMember bans the target, revokes their membership and evicts their live
// sessions from the server's rooms. Each evicted session is told why.
func (g *Gateway) BanMember(ctx context.Context, serverID, actorID, targetID int64, reason string) error {
	if err := g.moderation.Ban(ctx, serverID, actorID, targetID, reason); err != nil {
		return err
	}
	g.evictFromServer(ctx, serverID, targetID, true)
	g.notifyMembersUpdated(serverID)
	return nil
}

func (g *Gateway) UnbanMember(ctx context.Context, serverID, actorID, targetID int64) error {
	if err := g.moderation.Unban(ctx, serverID, actorID, targetID); err != nil {
		return err
	}
	g.notifyMembersUpdated(serverID)
	return nil
}

// KickMember removes the target's membership and their live room presence.
func (g *Gateway) KickMember(ctx context.Context, serverID, actorID, targetID int64) error {
	if err := g.moderation.Kick(ctx, serverID, actorID, targetID); err != nil {
		return err
	}
	g.evictFromServer(ctx, serverID, targetID, false)
	g.notifyMembersUpdated(serverID)
	return nil
}

func (g *Gateway) notifyMembersUpdated(serverID int64) {
	g.broadcast(state.ServerRoom(serverID), "members_updated", membersUpdated{ServerID: serverID})
}

// evictFromServer removes every live session of the user from the server's
// rooms: the server room itself plus any channel or voice room that belongs
// to the server.
func (g *Gateway) evictFromServer(ctx context.Context, serverID, userID int64, banned bool) {
	for _, sess := range g.state.UserSessions(userID) {
		for _, room := range g.state.SessionRooms(sess.ID) {
			switch room.Category() {
			case "server":
				if room.EntityID() == serverID {
					_ = g.state.Leave(sess.ID, room)
				}
			case "channel", "voice":
				channel, err := g.store.GetChannel(ctx, room.EntityID())
				if err != nil || channel.ServerID != serverID {
					continue
				}
				if room.Category() == "voice" {
					g.broadcast(room, "voice_participant_left", voiceParticipantLeft{
						ChannelID: room.EntityID(),
						UserID:    userID,
					})
				}
				_ = g.state.Leave(sess.ID, room)
			}
		}
		if banned {
			g.emit(sess, "server_banned", serverBanned{ServerID: serverID})
		}
	}
}
