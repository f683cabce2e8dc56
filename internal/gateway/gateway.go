package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/Gotyqqq/Rucord/internal/access"
	"github.com/Gotyqqq/Rucord/internal/moderation"
	"github.com/Gotyqqq/Rucord/internal/presence"
	"github.com/Gotyqqq/Rucord/internal/roles"
	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/state"
)

// storeCallTimeout bounds fan-out helpers that run outside a session's
// connection context, such as presence transitions fired by the idle sweep.
const storeCallTimeout = 5 * time.Second

type handlerFunc func(ctx context.Context, sess *state.Session, payload gjson.Result)

// Gateway is the per-session dispatch layer. Authenticated sessions are
// handed to it by the server; inbound events pass moderation checks, then
// capability checks, then commit to the store and fan out through the room
// index. A fault in one session's handling never reaches another session.
type Gateway struct {
	state      state.Manager
	store      store.Store
	resolver   *access.Resolver
	moderation *moderation.Service
	roles      *roles.Service
	slowmode   *moderation.SlowmodeLimiter
	presence   *presence.Tracker
	logger     *slog.Logger

	handlers map[string]handlerFunc
}

func New(
	st state.Manager,
	db store.Store,
	resolver *access.Resolver,
	mod *moderation.Service,
	roleSvc *roles.Service,
	idleAfter, sweepInterval time.Duration,
	logger *slog.Logger,
) *Gateway {
	g := &Gateway{
		state:      st,
		store:      db,
		resolver:   resolver,
		moderation: mod,
		roles:      roleSvc,
		slowmode:   moderation.NewSlowmodeLimiter(),
		logger:     logger.With(slog.String("component", "gateway")),
	}
	g.presence = presence.NewTracker(idleAfter, sweepInterval, g.broadcastPresence, logger)
	g.handlers = map[string]handlerFunc{
		"activity":            g.handleActivity,
		"join_channel":        g.handleJoinChannel,
		"leave_channel":       g.handleLeaveChannel,
		"join_server":         g.handleJoinServer,
		"get_online_users":    g.handleGetOnlineUsers,
		"send_message":        g.handleSendMessage,
		"edit_message":        g.handleEditMessage,
		"delete_message":      g.handleDeleteMessage,
		"reaction_add":        g.handleReactionAdd,
		"reaction_remove":     g.handleReactionRemove,
		"send_dm":             g.handleSendDM,
		"typing":              g.handleTyping,
		"join_voice_channel":  g.handleJoinVoice,
		"leave_voice_channel": g.handleLeaveVoice,
		"voice_signal":        g.handleVoiceSignal,
	}
	return g
}

// Presence exposes the tracker so the process can run its sweep loop.
func (g *Gateway) Presence() *presence.Tracker { return g.presence }

// Slowmode exposes the limiter for tests.
func (g *Gateway) Slowmode() *moderation.SlowmodeLimiter { return g.slowmode }

// HandleConnect registers an authenticated peer: the session auto-joins its
// private inbox room and one room per server membership, and the user goes
// online.
func (g *Gateway) HandleConnect(ctx context.Context, peer state.Peer, userID int64, username string) (*state.Session, error) {
	sess, err := g.state.Register(peer, userID, username)
	if err != nil {
		return nil, err
	}

	if _, err := g.state.Join(sess.ID, state.UserRoom(userID)); err != nil {
		return nil, err
	}
	serverIDs, err := g.store.ListServersOfUser(ctx, userID)
	if err != nil {
		g.logger.Error("listing memberships on connect", slog.Int64("userID", userID), slog.Any("error", err))
	}
	for _, serverID := range serverIDs {
		if _, err := g.state.Join(sess.ID, state.ServerRoom(serverID)); err != nil {
			g.logger.Warn("auto-join failed", slog.Int64("serverID", serverID), slog.Any("error", err))
		}
	}

	g.presence.Connect(userID)
	g.logger.Info("session connected",
		slog.String("sessionID", sess.ID.String()),
		slog.Int64("userID", userID),
		slog.String("username", username))
	return sess, nil
}

// HandleMessage is the inbound dispatch point, shaped to fit the transport
// message callback. Unknown events and malformed envelopes are dropped.
func (g *Gateway) HandleMessage(ctx context.Context, connID uuid.UUID, raw []byte) {
	sess, ok := g.state.Get(connID)
	if !ok {
		return
	}
	if !gjson.ValidBytes(raw) {
		g.logger.Debug("dropping malformed frame", slog.String("sessionID", connID.String()))
		return
	}
	parsed := gjson.ParseBytes(raw)
	event := parsed.Get("event").String()
	handler, ok := g.handlers[event]
	if !ok {
		g.logger.Debug("dropping unknown event", slog.String("event", event))
		return
	}
	handler(ctx, sess, parsed.Get("payload"))
}

// HandleDisconnect releases every room the session held, notifies voice
// rooms of the departure and takes the user offline when their last session
// is gone.
func (g *Gateway) HandleDisconnect(connID uuid.UUID, reason error) {
	sess, rooms, err := g.state.Deregister(connID)
	if err != nil {
		return
	}
	for _, room := range rooms {
		if room.Category() == "voice" {
			g.broadcast(room, "voice_participant_left", voiceParticipantLeft{
				ChannelID: room.EntityID(),
				UserID:    sess.UserID,
			})
		}
	}

	// Slowmode cooldowns survive the disconnect; clearing them here would
	// let a sender reset the window by reconnecting.
	remaining, _ := g.state.UserSessionCount(sess.UserID)
	if remaining == 0 {
		g.presence.Disconnect(sess.UserID)
	}
	g.logger.Info("session disconnected",
		slog.String("sessionID", connID.String()),
		slog.Int64("userID", sess.UserID),
		slog.Any("reason", reason))
}

func (g *Gateway) handleActivity(_ context.Context, sess *state.Session, _ gjson.Result) {
	g.presence.Touch(sess.UserID)
}

// broadcastPresence is the tracker's transition callback. It runs outside
// the tracker lock and may be fired by the sweep goroutine.
func (g *Gateway) broadcastPresence(userID int64, status presence.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()
	serverIDs, err := g.store.ListServersOfUser(ctx, userID)
	if err != nil {
		g.logger.Error("presence fan-out lookup failed", slog.Int64("userID", userID), slog.Any("error", err))
		return
	}
	payload := presenceUpdate{UserID: userID, Status: string(status)}
	for _, serverID := range serverIDs {
		g.broadcast(state.ServerRoom(serverID), "presence_update", payload)
	}
}

// --- fan-out primitives ---

type envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func (g *Gateway) encode(event string, payload any) ([]byte, bool) {
	frame, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		g.logger.Error("encoding outbound event", slog.String("event", event), slog.Any("error", err))
		return nil, false
	}
	return frame, true
}

func (g *Gateway) emit(sess *state.Session, event string, payload any) {
	frame, ok := g.encode(event, payload)
	if !ok {
		return
	}
	sess.Peer.Send(frame)
}

// broadcast delivers to every session in the room. Encoding happens once;
// delivery is fire-and-forget.
func (g *Gateway) broadcast(roomID state.RoomID, event string, payload any) {
	g.broadcastExcept(roomID, uuid.Nil, event, payload)
}

func (g *Gateway) broadcastExcept(roomID state.RoomID, except uuid.UUID, event string, payload any) {
	frame, ok := g.encode(event, payload)
	if !ok {
		return
	}
	for _, sess := range g.state.RoomSessions(roomID) {
		if sess.ID == except {
			continue
		}
		sess.Peer.Send(frame)
	}
}

func (g *Gateway) emitToUser(userID int64, event string, payload any) {
	g.broadcast(state.UserRoom(userID), event, payload)
}
