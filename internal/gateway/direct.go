package gateway

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Gotyqqq/Rucord/pkg/state"
)

// handleSendDM persists a direct message and delivers it to both inbox
// rooms; the recipient additionally gets a notification ping.
func (g *Gateway) handleSendDM(ctx context.Context, sess *state.Session, payload gjson.Result) {
	toUserID := payload.Get("toUserId").Int()
	content := strings.TrimSpace(payload.Get("content").String())
	if toUserID == 0 || content == "" {
		return
	}
	recipient, err := g.store.GetUser(ctx, toUserID)
	if err != nil {
		return
	}

	dm, err := g.store.CreateDirectMessage(ctx, sess.UserID, toUserID, content)
	if err != nil {
		g.logger.Error("persisting direct message failed", slog.Any("error", err))
		return
	}

	view := directMessageView{
		ID:           dm.ID,
		FromUserID:   sess.UserID,
		FromUsername: sess.Username,
		ToUserID:     toUserID,
		ToUsername:   recipient.Username,
		Content:      content,
		CreatedAt:    dm.CreatedAt,
	}
	g.emitToUser(sess.UserID, "new_dm", view)
	g.emitToUser(toUserID, "new_dm", view)
	g.emitToUser(toUserID, "dm_notification", dmNotification{
		FromUserID:   sess.UserID,
		FromUsername: sess.Username,
		Content:      content,
	})
}

// handleTyping relays a typing indicator to everyone else in the channel.
func (g *Gateway) handleTyping(_ context.Context, sess *state.Session, payload gjson.Result) {
	channelID := payload.Get("channelId").Int()
	if channelID == 0 {
		return
	}
	g.broadcastExcept(state.ChannelRoom(channelID), sess.ID, "user_typing", userTyping{
		ChannelID: channelID,
		UserID:    sess.UserID,
		Username:  sess.Username,
	})
}
