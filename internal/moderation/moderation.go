package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Gotyqqq/Rucord/internal/access"
	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/perm"
)

// ErrMuted signals an active mute. It is deliberately distinct from
// access.ErrDenied so clients can render a specific message.
var ErrMuted = errors.New("user is muted on this server")

// ErrBanned signals an active ban at join time.
var ErrBanned = errors.New("user is banned from this server")

// Mute durations are clamped to this range.
const (
	MinMuteDuration = time.Minute
	MaxMuteDuration = 30 * 24 * time.Hour
)

// Service owns the mute/ban/kick state transitions. Every action that
// targets another member runs the full capability and hierarchy checks
// before touching the store.
type Service struct {
	store    store.Store
	resolver *access.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(st store.Store, resolver *access.Resolver, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "moderation")),
		now:      time.Now,
	}
}

// SetClock overrides the time source; tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// IsMuted checks for an active mute. An expired mute row is deleted on
// read; this check is the canonical authority on mute state and any
// periodic sweep is advisory only.
func (s *Service) IsMuted(ctx context.Context, serverID, userID int64) (bool, error) {
	mute, err := s.store.GetMute(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !mute.ExpiresAt.After(s.now()) {
		if err := s.store.DeleteMute(ctx, serverID, userID); err != nil {
			return false, fmt.Errorf("expire mute: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// IsBanned reports whether the user has an active ban on the server.
func (s *Service) IsBanned(ctx context.Context, serverID, userID int64) (bool, error) {
	_, err := s.store.GetBan(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Mute imposes or refreshes a mute. A second mute replaces the expiry
// rather than stacking. Returns the expiry instant.
func (s *Service) Mute(ctx context.Context, serverID, actorID, targetID int64, duration time.Duration, reason string) (time.Time, error) {
	if err := s.authorizeTargeted(ctx, serverID, actorID, targetID, perm.MuteMembers, true); err != nil {
		return time.Time{}, err
	}

	if duration < MinMuteDuration {
		duration = MinMuteDuration
	}
	if duration > MaxMuteDuration {
		duration = MaxMuteDuration
	}
	expiresAt := s.now().Add(duration)

	if err := s.store.CreateMute(ctx, serverID, targetID, actorID, reason, expiresAt); err != nil {
		return time.Time{}, err
	}
	s.logger.Info("member muted",
		slog.Int64("serverID", serverID), slog.Int64("targetID", targetID),
		slog.Int64("actorID", actorID), slog.Time("expiresAt", expiresAt))
	return expiresAt, nil
}

// Unmute lifts a mute. Lifting a mute that does not exist is a no-op.
func (s *Service) Unmute(ctx context.Context, serverID, actorID, targetID int64) error {
	ok, err := s.resolver.HasCapability(ctx, serverID, actorID, perm.MuteMembers)
	if err != nil {
		return err
	}
	if !ok {
		return access.ErrDenied
	}
	return s.store.DeleteMute(ctx, serverID, targetID)
}

// Ban is idempotent and immediately revokes the target's membership.
func (s *Service) Ban(ctx context.Context, serverID, actorID, targetID int64, reason string) error {
	if err := s.authorizeTargeted(ctx, serverID, actorID, targetID, perm.BanMembers, true); err != nil {
		return err
	}
	if err := s.store.DeleteMembership(ctx, serverID, targetID); err != nil {
		return err
	}
	if err := s.store.CreateBan(ctx, serverID, targetID, actorID, reason); err != nil {
		return err
	}
	s.logger.Info("member banned",
		slog.Int64("serverID", serverID), slog.Int64("targetID", targetID), slog.Int64("actorID", actorID))
	return nil
}

// Unban lifts a ban; lifting an absent ban is a no-op.
func (s *Service) Unban(ctx context.Context, serverID, actorID, targetID int64) error {
	ok, err := s.resolver.HasCapability(ctx, serverID, actorID, perm.BanMembers)
	if err != nil {
		return err
	}
	if !ok {
		return access.ErrDenied
	}
	return s.store.DeleteBan(ctx, serverID, targetID)
}

// Kick removes the target's membership. Unlike ban, kicking yourself is
// allowed to fall through to the generic leave path elsewhere, so only the
// hierarchy and capability rules apply here.
func (s *Service) Kick(ctx context.Context, serverID, actorID, targetID int64) error {
	if err := s.authorizeTargeted(ctx, serverID, actorID, targetID, perm.KickMembers, false); err != nil {
		return err
	}
	if err := s.store.DeleteMembership(ctx, serverID, targetID); err != nil {
		return err
	}
	s.logger.Info("member kicked",
		slog.Int64("serverID", serverID), slog.Int64("targetID", targetID), slog.Int64("actorID", actorID))
	return nil
}

// authorizeTargeted runs the shared checks for actions aimed at another
// member: the owner is never a valid target, self-targeting is rejected
// where forbidSelf holds, the actor needs the capability, and the actor
// must strictly outrank the target.
func (s *Service) authorizeTargeted(ctx context.Context, serverID, actorID, targetID int64, flag perm.Capability, forbidSelf bool) error {
	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return err
	}
	if server.OwnerID == targetID {
		return access.ErrDenied
	}
	if forbidSelf && actorID == targetID {
		return access.ErrDenied
	}
	ok, err := s.resolver.HasCapability(ctx, serverID, actorID, flag)
	if err != nil {
		return err
	}
	if !ok {
		return access.ErrDenied
	}
	outranks, err := s.resolver.Outranks(ctx, serverID, actorID, targetID)
	if err != nil {
		return err
	}
	if !outranks {
		return access.ErrDenied
	}
	return nil
}
