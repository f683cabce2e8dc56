package gateway

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Gotyqqq/Rucord/internal/moderation"
	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/perm"
	"github.com/Gotyqqq/Rucord/pkg/state"
)

var mentionPattern = regexp.MustCompile(`@(\S+)`)

const (
	mentionAll    = "@everyone"
	mentionOnline = "@here"
)

// handleSendMessage runs the full acceptance pipeline: membership, mute,
// attachment capabilities, slowmode, persist, broadcast, mention fan-out.
// A rejection never mutates state.
func (g *Gateway) handleSendMessage(ctx context.Context, sess *state.Session, payload gjson.Result) {
	channelID := payload.Get("channelId").Int()
	content := strings.TrimSpace(payload.Get("content").String())
	attachments := payload.Get("attachments").Array()
	if content == "" && len(attachments) == 0 {
		return
	}

	channel, err := g.store.GetChannel(ctx, channelID)
	if err != nil {
		return
	}
	if _, ok := g.membershipOf(ctx, sess, channel.ServerID); !ok {
		return
	}

	muted, err := g.moderation.IsMuted(ctx, channel.ServerID, sess.UserID)
	if err != nil {
		g.logger.Error("mute check failed", slog.Any("error", err))
		return
	}
	if muted {
		g.emit(sess, "muted_error", errorMessage{Message: "you are muted on this server"})
		return
	}

	if len(attachments) > 0 {
		caps, err := g.resolver.Resolve(ctx, channel.ServerID, sess.UserID)
		if err != nil {
			g.logger.Error("capability resolve failed", slog.Any("error", err))
			return
		}
		for _, att := range attachments {
			mime := strings.ToLower(att.Get("mimeType").String())
			if mime == "image/gif" && !caps.Has(perm.SendGIFs) {
				g.emit(sess, "permission_error", errorMessage{Message: "no permission to send GIFs"})
				return
			}
			if (strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/")) && !caps.Has(perm.SendMedia) {
				g.emit(sess, "permission_error", errorMessage{Message: "no permission to send audio or video"})
				return
			}
		}
	}

	if channel.Slowmode > 0 {
		server, err := g.store.GetServer(ctx, channel.ServerID)
		if err != nil {
			return
		}
		if server.OwnerID != sess.UserID {
			interval := time.Duration(channel.Slowmode) * time.Second
			if err := g.slowmode.Check(sess.UserID, channelID, interval); err != nil {
				var wait *moderation.SlowmodeError
				if errors.As(err, &wait) {
					g.emit(sess, "slowmode_wait", slowmodeWait{ChannelID: channelID, Remaining: wait.Remaining})
				}
				return
			}
		}
	}

	message, err := g.store.CreateMessage(ctx, channelID, sess.UserID, content)
	if err != nil {
		g.logger.Error("persisting message failed", slog.Any("error", err))
		return
	}
	attViews := make([]attachmentView, 0, len(attachments))
	for _, att := range attachments {
		url := att.Get("url").String()
		if url == "" {
			continue
		}
		record := &store.Attachment{
			MessageID:    message.ID,
			FilePath:     url,
			OriginalName: firstNonEmpty(att.Get("filename").String(), att.Get("originalName").String(), "file"),
			MimeType:     firstNonEmpty(strings.ToLower(att.Get("mimeType").String()), "application/octet-stream"),
		}
		if err := g.store.CreateAttachment(ctx, record); err != nil {
			g.logger.Error("persisting attachment failed", slog.Any("error", err))
			continue
		}
		attViews = append(attViews, attachmentView{
			URL:          record.FilePath,
			OriginalName: record.OriginalName,
			MimeType:     record.MimeType,
		})
	}

	g.broadcast(state.ChannelRoom(channelID), "new_message", messageView{
		ID:          message.ID,
		ChannelID:   channelID,
		UserID:      sess.UserID,
		Username:    sess.Username,
		AvatarURL:   g.avatarOf(ctx, sess.UserID),
		Content:     content,
		Edited:      false,
		CreatedAt:   message.CreatedAt,
		Attachments: attViews,
		Reactions:   []reactionGroup{},
	})

	g.fanOutMentions(ctx, sess, channel, content)
}

// fanOutMentions resolves mention targets and pings each one's inbox room.
// The sender and anyone currently viewing the channel are never pinged.
func (g *Gateway) fanOutMentions(ctx context.Context, sess *state.Session, channel *store.Channel, content string) {
	if content == "" {
		return
	}
	viewing := g.state.RoomUserIDs(state.ChannelRoom(channel.ID))

	server, err := g.store.GetServer(ctx, channel.ServerID)
	if err != nil {
		return
	}
	note := mentionNotification{
		ServerID:    channel.ServerID,
		ServerName:  server.Name,
		ChannelID:   channel.ID,
		ChannelName: channel.Name,
		FromUser:    sess.Username,
		Content:     content,
	}
	ping := func(targetUserID int64) {
		if targetUserID == sess.UserID {
			return
		}
		if _, inChannel := viewing[targetUserID]; inChannel {
			return
		}
		g.emitToUser(targetUserID, "mention_notification", note)
	}

	switch {
	case strings.Contains(content, mentionAll):
		members, err := g.store.ListMembersOfServer(ctx, channel.ServerID)
		if err != nil {
			return
		}
		for _, m := range members {
			ping(m.UserID)
		}
	case strings.Contains(content, mentionOnline):
		members, err := g.store.ListMembersOfServer(ctx, channel.ServerID)
		if err != nil {
			return
		}
		for _, m := range members {
			if g.presence.IsOnline(m.UserID) {
				ping(m.UserID)
			}
		}
	default:
		for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
			user, err := g.store.GetUserByUsername(ctx, match[1])
			if err != nil {
				continue
			}
			if _, err := g.store.GetMembership(ctx, channel.ServerID, user.ID); err != nil {
				continue
			}
			ping(user.ID)
		}
	}
}

// handleEditMessage updates content for the author, the master identity,
// the server owner or a member holding edit_messages.
func (g *Gateway) handleEditMessage(ctx context.Context, sess *state.Session, payload gjson.Result) {
	messageID := payload.Get("messageId").Int()
	content := strings.TrimSpace(payload.Get("content").String())
	if messageID == 0 || content == "" {
		return
	}
	message, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		return
	}
	channel, err := g.store.GetChannel(ctx, message.ChannelID)
	if err != nil {
		return
	}
	if !g.mayModerateMessage(ctx, sess, message, channel, perm.EditMessages) {
		return
	}

	updated, err := g.store.UpdateMessage(ctx, messageID, content)
	if err != nil {
		g.logger.Error("updating message failed", slog.Any("error", err))
		return
	}
	author, err := g.store.GetUser(ctx, updated.UserID)
	if err != nil {
		return
	}
	g.broadcast(state.ChannelRoom(channel.ID), "message_edited", messageView{
		ID:          updated.ID,
		ChannelID:   channel.ID,
		UserID:      updated.UserID,
		Username:    author.Username,
		AvatarURL:   author.AvatarURL,
		Content:     updated.Content,
		Edited:      true,
		CreatedAt:   updated.CreatedAt,
		Attachments: g.attachmentViews(ctx, messageID),
		Reactions:   g.reactionGroups(ctx, messageID),
	})
}

// handleDeleteMessage removes the message with its reactions and
// attachments, then announces the deletion to the channel.
func (g *Gateway) handleDeleteMessage(ctx context.Context, sess *state.Session, payload gjson.Result) {
	messageID := payload.Get("messageId").Int()
	if messageID == 0 {
		return
	}
	message, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		return
	}
	channel, err := g.store.GetChannel(ctx, message.ChannelID)
	if err != nil {
		return
	}
	if !g.mayModerateMessage(ctx, sess, message, channel, perm.DeleteMessages) {
		return
	}
	if err := g.store.DeleteMessage(ctx, messageID); err != nil {
		g.logger.Error("deleting message failed", slog.Any("error", err))
		return
	}
	g.broadcast(state.ChannelRoom(channel.ID), "message_deleted", messageDeleted{
		MessageID: messageID,
		ChannelID: channel.ID,
	})
}

// mayModerateMessage is the edit/delete authorization ladder: author, then
// master, then server owner, then a member holding the given capability. A
// member who fails the capability check gets a permission_error; non-members
// are dropped silently.
func (g *Gateway) mayModerateMessage(ctx context.Context, sess *state.Session, message *store.Message, channel *store.Channel, flag perm.Capability) bool {
	if message.UserID == sess.UserID {
		return true
	}
	if g.resolver.IsMaster(sess.UserID) {
		return true
	}
	server, err := g.store.GetServer(ctx, channel.ServerID)
	if err != nil {
		return false
	}
	if server.OwnerID == sess.UserID {
		return true
	}
	if _, ok := g.membershipOf(ctx, sess, channel.ServerID); !ok {
		return false
	}
	allowed, err := g.resolver.HasCapability(ctx, channel.ServerID, sess.UserID, flag)
	if err != nil {
		g.logger.Error("capability check failed", slog.Any("error", err))
		return false
	}
	if !allowed {
		g.emit(sess, "permission_error", errorMessage{Message: "no permission to manage this message"})
		return false
	}
	return true
}

func (g *Gateway) handleReactionAdd(ctx context.Context, sess *state.Session, payload gjson.Result) {
	g.handleReaction(ctx, sess, payload, true)
}

func (g *Gateway) handleReactionRemove(ctx context.Context, sess *state.Session, payload gjson.Result) {
	g.handleReaction(ctx, sess, payload, false)
}

// handleReaction toggles a reaction and rebroadcasts the full grouped set
// for the message. Duplicate adds are already-satisfied no-ops.
func (g *Gateway) handleReaction(ctx context.Context, sess *state.Session, payload gjson.Result, add bool) {
	messageID := payload.Get("messageId").Int()
	emoji := payload.Get("emoji").String()
	if messageID == 0 || emoji == "" {
		return
	}
	message, err := g.store.GetMessage(ctx, messageID)
	if err != nil {
		return
	}
	channel, err := g.store.GetChannel(ctx, message.ChannelID)
	if err != nil {
		return
	}
	if _, ok := g.membershipOf(ctx, sess, channel.ServerID); !ok {
		return
	}

	if add {
		err = g.store.AddReaction(ctx, messageID, sess.UserID, emoji)
	} else {
		err = g.store.RemoveReaction(ctx, messageID, sess.UserID, emoji)
	}
	if err != nil {
		g.logger.Error("reaction write failed", slog.Any("error", err))
		return
	}
	g.broadcast(state.ChannelRoom(channel.ID), "reaction_updated", reactionUpdated{
		MessageID: messageID,
		ChannelID: channel.ID,
		Reactions: g.reactionGroups(ctx, messageID),
	})
}

// reactionGroups loads a message's reactions grouped by emoji, preserving
// first-seen emoji order.
func (g *Gateway) reactionGroups(ctx context.Context, messageID int64) []reactionGroup {
	rows, err := g.store.ListReactions(ctx, messageID)
	if err != nil {
		g.logger.Error("listing reactions failed", slog.Any("error", err))
		return []reactionGroup{}
	}
	index := make(map[string]int)
	groups := make([]reactionGroup, 0, len(rows))
	for _, row := range rows {
		i, ok := index[row.Emoji]
		if !ok {
			i = len(groups)
			index[row.Emoji] = i
			groups = append(groups, reactionGroup{Emoji: row.Emoji})
		}
		groups[i].Count++
		groups[i].UserIDs = append(groups[i].UserIDs, row.UserID)
	}
	return groups
}

func (g *Gateway) attachmentViews(ctx context.Context, messageID int64) []attachmentView {
	rows, err := g.store.ListAttachments(ctx, messageID)
	if err != nil {
		return []attachmentView{}
	}
	views := make([]attachmentView, 0, len(rows))
	for _, row := range rows {
		views = append(views, attachmentView{
			URL:          row.FilePath,
			OriginalName: row.OriginalName,
			MimeType:     row.MimeType,
		})
	}
	return views
}

func (g *Gateway) avatarOf(ctx context.Context, userID int64) string {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return ""
	}
	return user.AvatarURL
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
