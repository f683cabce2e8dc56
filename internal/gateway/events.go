package gateway

import (
	"encoding/json"
	"time"
)

// Outbound payload shapes. Field names are part of the client protocol.

type presenceUpdate struct {
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

type serverBanned struct {
	ServerID int64 `json:"serverId"`
}

type onlineUsers struct {
	ServerID int64             `json:"serverId"`
	Users    map[string]string `json:"users"`
}

type attachmentView struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
}

// reactionGroup aggregates one emoji's reactions on a message.
type reactionGroup struct {
	Emoji   string  `json:"emoji"`
	Count   int     `json:"count"`
	UserIDs []int64 `json:"userIds"`
}

type messageView struct {
	ID          int64            `json:"id"`
	ChannelID   int64            `json:"channelId"`
	UserID      int64            `json:"userId"`
	Username    string           `json:"username"`
	AvatarURL   string           `json:"avatarUrl,omitempty"`
	Content     string           `json:"content"`
	Edited      bool             `json:"edited"`
	CreatedAt   time.Time        `json:"createdAt"`
	Attachments []attachmentView `json:"attachments"`
	Reactions   []reactionGroup  `json:"reactions"`
}

type messageDeleted struct {
	MessageID int64 `json:"messageId"`
	ChannelID int64 `json:"channelId"`
}

type reactionUpdated struct {
	MessageID int64           `json:"messageId"`
	ChannelID int64           `json:"channelId"`
	Reactions []reactionGroup `json:"reactions"`
}

type mentionNotification struct {
	ServerID    int64  `json:"serverId"`
	ServerName  string `json:"serverName"`
	ChannelID   int64  `json:"channelId"`
	ChannelName string `json:"channelName"`
	FromUser    string `json:"fromUser"`
	Content     string `json:"content"`
}

type directMessageView struct {
	ID           int64     `json:"id"`
	FromUserID   int64     `json:"fromUserId"`
	FromUsername string    `json:"fromUsername"`
	ToUserID     int64     `json:"toUserId"`
	ToUsername   string    `json:"toUsername"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"createdAt"`
}

type dmNotification struct {
	FromUserID   int64  `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
	Content      string `json:"content"`
}

type userTyping struct {
	ChannelID int64  `json:"channelId"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
}

type voiceParticipant struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type voiceParticipants struct {
	ChannelID    int64              `json:"channelId"`
	Participants []voiceParticipant `json:"participants"`
}

type voiceParticipantJoined struct {
	ChannelID int64  `json:"channelId"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
}

type voiceParticipantLeft struct {
	ChannelID int64 `json:"channelId"`
	UserID    int64 `json:"userId"`
}

// voiceSignal relays the negotiation payload untouched.
type voiceSignal struct {
	FromUserID   int64           `json:"fromUserId"`
	FromUsername string          `json:"fromUsername"`
	Signal       json.RawMessage `json:"signal"`
}

type slowmodeWait struct {
	ChannelID int64 `json:"channelId"`
	Remaining int   `json:"remaining"`
}

type errorMessage struct {
	Message string `json:"message"`
}

type membersUpdated struct {
	ServerID int64 `json:"serverId"`
}
