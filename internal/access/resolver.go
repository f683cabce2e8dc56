package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/perm"
)

// ErrDenied is returned when a capability or hierarchy check fails. The
// action is not committed and no state is mutated.
var ErrDenied = errors.New("permission denied")

// ErrNotMember is returned when the acting user has no membership on the
// server and no override applies.
var ErrNotMember = errors.New("not a member of this server")

const (
	// RankUnbounded is the effective rank of the owner and of master
	// identities; no role can outrank it.
	RankUnbounded = math.MaxInt
	// RankNone is the effective rank of a user with no membership.
	RankNone = -1
)

// masterRoleRank places the lazily-created master role above every
// user-manageable role (owner-created roles cap at 100 by convention).
const masterRoleRank = 99

// Resolver computes capability snapshots from membership and role state.
// It holds no mutable state of its own: calling Resolve twice without an
// intervening mutation yields identical results.
type Resolver struct {
	store   store.Store
	masters map[int64]struct{}
	logger  *slog.Logger
}

func NewResolver(st store.Store, masterUserIDs []int64, logger *slog.Logger) *Resolver {
	masters := make(map[int64]struct{}, len(masterUserIDs))
	for _, id := range masterUserIDs {
		masters[id] = struct{}{}
	}
	return &Resolver{
		store:   st,
		masters: masters,
		logger:  logger.With(slog.String("component", "perm_resolver")),
	}
}

// IsMaster reports whether the user is on the out-of-band master list.
func (r *Resolver) IsMaster(userID int64) bool {
	_, ok := r.masters[userID]
	return ok
}

// Resolve returns the merged capability set of a user on a server. The
// master override is evaluated first, then server ownership, then the
// union of all held roles; an administrator flag on any held role implies
// the full set. A missing membership resolves to the empty set.
func (r *Resolver) Resolve(ctx context.Context, serverID, userID int64) (perm.Capability, error) {
	if r.IsMaster(userID) {
		return perm.All(), nil
	}

	server, err := r.store.GetServer(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if server.OwnerID == userID {
		return perm.All(), nil
	}

	membership, err := r.store.GetMembership(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	roles, err := r.store.GetRolesOfMember(ctx, membership.ID)
	if err != nil {
		return 0, err
	}
	// A roleless membership reads like a single empty legacy record, so the
	// compatibility defaults still apply.
	if len(roles) == 0 {
		return perm.Decode([]byte(`{}`))
	}

	var merged perm.Capability
	for _, role := range roles {
		caps, err := perm.Decode(role.Permissions)
		if err != nil {
			r.logger.Warn("skipping role with malformed permissions",
				slog.Int64("roleID", role.ID), slog.Any("error", err))
			continue
		}
		merged |= caps
	}
	if merged.Has(perm.Administrator) {
		return perm.All(), nil
	}
	return merged, nil
}

// HasCapability reports whether the user holds the given capability.
func (r *Resolver) HasCapability(ctx context.Context, serverID, userID int64, flag perm.Capability) (bool, error) {
	caps, err := r.Resolve(ctx, serverID, userID)
	if err != nil {
		return false, err
	}
	return caps.Has(flag), nil
}

// HighestRank returns the user's highest role rank on the server. The
// owner and master identities rank unbounded; a user without membership
// ranks RankNone.
func (r *Resolver) HighestRank(ctx context.Context, serverID, userID int64) (int, error) {
	if r.IsMaster(userID) {
		return RankUnbounded, nil
	}
	server, err := r.store.GetServer(ctx, serverID)
	if err != nil {
		return RankNone, err
	}
	if server.OwnerID == userID {
		return RankUnbounded, nil
	}
	membership, err := r.store.GetMembership(ctx, serverID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RankNone, nil
		}
		return RankNone, err
	}
	roles, err := r.store.GetRolesOfMember(ctx, membership.ID)
	if err != nil {
		return RankNone, err
	}
	highest := 0
	for _, role := range roles {
		if role.Rank > highest {
			highest = role.Rank
		}
	}
	return highest, nil
}

// Outranks reports whether the actor strictly outranks the target. Equal
// rank is never sufficient, which also covers two unbounded identities
// facing each other.
func (r *Resolver) Outranks(ctx context.Context, serverID, actorID, targetID int64) (bool, error) {
	actorRank, err := r.HighestRank(ctx, serverID, actorID)
	if err != nil {
		return false, err
	}
	targetRank, err := r.HighestRank(ctx, serverID, targetID)
	if err != nil {
		return false, err
	}
	return actorRank > targetRank, nil
}

// EnsureMember resolves the user's membership, lazily enrolling a master
// identity on first non-preview access: the master gets a membership and a
// dedicated all-capability role. Preview access never mutates membership;
// for a master previewing, both return values are nil.
func (r *Resolver) EnsureMember(ctx context.Context, serverID, userID int64, preview bool) (*store.Membership, error) {
	membership, err := r.store.GetMembership(ctx, serverID, userID)
	if err == nil {
		return membership, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if !r.IsMaster(userID) {
		return nil, ErrNotMember
	}
	if preview {
		return nil, nil
	}
	return r.enrollMaster(ctx, serverID, userID)
}

func (r *Resolver) enrollMaster(ctx context.Context, serverID, userID int64) (*store.Membership, error) {
	membership, err := r.store.CreateMembership(ctx, serverID, userID)
	if err != nil {
		return nil, fmt.Errorf("enroll master membership: %w", err)
	}

	role, err := r.store.FindRoleByName(ctx, serverID, "Master")
	if errors.Is(err, store.ErrNotFound) {
		raw, encErr := perm.Encode(perm.All())
		if encErr != nil {
			return nil, encErr
		}
		role, err = r.store.CreateRole(ctx, serverID, "Master", "#9b59b6", raw, masterRoleRank)
	}
	if err != nil {
		return nil, fmt.Errorf("enroll master role: %w", err)
	}
	if err := r.store.AssignRole(ctx, membership.ID, role.ID); err != nil {
		return nil, fmt.Errorf("assign master role: %w", err)
	}
	r.logger.Info("master enrolled on server",
		slog.Int64("serverID", serverID), slog.Int64("userID", userID))
	return membership, nil
}
