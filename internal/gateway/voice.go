package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/Gotyqqq/Rucord/internal/access"
	"github.com/Gotyqqq/Rucord/pkg/state"
)

// handleJoinVoice places the session in a voice room. The joiner receives
// the current roster; everyone already present learns of the arrival. A
// session holds at most one voice room, so any previous one is left and its
// participants notified.
func (g *Gateway) handleJoinVoice(ctx context.Context, sess *state.Session, payload gjson.Result) {
	channelID, _ := channelRef(payload)
	channel, err := g.store.GetChannel(ctx, channelID)
	if err != nil || channel.Type != "voice" {
		return
	}
	if _, err := g.resolver.EnsureMember(ctx, channel.ServerID, sess.UserID, false); err != nil {
		if !errors.Is(err, access.ErrNotMember) {
			g.logger.Error("join_voice membership check failed", slog.Any("error", err))
		}
		return
	}

	room := state.VoiceRoom(channelID)
	left, err := g.state.Join(sess.ID, room)
	if err != nil {
		return
	}
	for _, prev := range left {
		g.broadcast(prev, "voice_participant_left", voiceParticipantLeft{
			ChannelID: prev.EntityID(),
			UserID:    sess.UserID,
		})
	}

	roster := make([]voiceParticipant, 0)
	seen := make(map[int64]struct{})
	for _, other := range g.state.RoomSessions(room) {
		if other.UserID == sess.UserID {
			continue
		}
		if _, dup := seen[other.UserID]; dup {
			continue
		}
		seen[other.UserID] = struct{}{}
		roster = append(roster, voiceParticipant{UserID: other.UserID, Username: other.Username})
	}
	g.emit(sess, "voice_participants", voiceParticipants{ChannelID: channelID, Participants: roster})
	g.broadcastExcept(room, sess.ID, "voice_participant_joined", voiceParticipantJoined{
		ChannelID: channelID,
		UserID:    sess.UserID,
		Username:  sess.Username,
	})
}

func (g *Gateway) handleLeaveVoice(_ context.Context, sess *state.Session, payload gjson.Result) {
	channelID, _ := channelRef(payload)
	room := state.VoiceRoom(channelID)
	if err := g.state.Leave(sess.ID, room); err != nil {
		return
	}
	g.broadcast(room, "voice_participant_left", voiceParticipantLeft{
		ChannelID: channelID,
		UserID:    sess.UserID,
	})
}

// handleVoiceSignal relays a negotiation payload verbatim to the named
// recipient's inbox. The payload is never inspected; only the sender
// identity on the outbound event is authoritative.
func (g *Gateway) handleVoiceSignal(_ context.Context, sess *state.Session, payload gjson.Result) {
	toUserID := payload.Get("toUserId").Int()
	signal := payload.Get("signal")
	if toUserID == 0 || !signal.Exists() {
		return
	}
	g.emitToUser(toUserID, "voice_signal", voiceSignal{
		FromUserID:   sess.UserID,
		FromUsername: sess.Username,
		Signal:       json.RawMessage(signal.Raw),
	})
}
