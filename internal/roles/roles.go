package roles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Gotyqqq/Rucord/internal/access"
	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/perm"
)

// EveryoneRoleName is the synthetic base role present on every server. It
// can never be deleted.
const EveryoneRoleName = "everyone"

// OwnerRoleName is the role created for the server owner at bootstrap. It
// can never be deleted or reordered.
const OwnerRoleName = "Owner"

// ownerRankCeiling keeps owner-managed roles below the bootstrap owner role.
const ownerRankCeiling = 100

// Service owns role lifecycle and assignment under the rank hierarchy.
type Service struct {
	store    store.Store
	resolver *access.Resolver
	logger   *slog.Logger
}

func NewService(st store.Store, resolver *access.Resolver, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		logger:   logger.With(slog.String("component", "roles")),
	}
}

func (s *Service) isOwner(ctx context.Context, serverID, userID int64) (bool, error) {
	server, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return false, err
	}
	return server.OwnerID == userID, nil
}

func (s *Service) requireManageRoles(ctx context.Context, serverID, actorID int64) error {
	ok, err := s.resolver.HasCapability(ctx, serverID, actorID, perm.ManageRoles)
	if err != nil {
		return err
	}
	if !ok {
		return access.ErrDenied
	}
	return nil
}

// Create adds a role. Non-owners may not mint capabilities they do not
// hold themselves, and new roles always land below the creator's rank.
func (s *Service) Create(ctx context.Context, serverID, actorID int64, name, color string, caps perm.Capability) (*store.Role, error) {
	if err := s.requireManageRoles(ctx, serverID, actorID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("role name is required")
	}

	owner, err := s.isOwner(ctx, serverID, actorID)
	if err != nil {
		return nil, err
	}
	if !owner {
		if err := s.checkGrantable(ctx, serverID, actorID, caps); err != nil {
			return nil, err
		}
	}

	rank := 1
	if owner {
		existing, err := s.store.ListRolesOfServer(ctx, serverID)
		if err != nil {
			return nil, err
		}
		for _, r := range existing {
			if r.Rank < ownerRankCeiling && r.Rank >= rank {
				rank = r.Rank + 1
			}
		}
	}

	raw, err := perm.Encode(caps)
	if err != nil {
		return nil, err
	}
	role, err := s.store.CreateRole(ctx, serverID, name, color, raw, rank)
	if err != nil {
		return nil, err
	}
	s.logger.Info("role created", slog.Int64("serverID", serverID), slog.String("name", name), slog.Int("rank", rank))
	return role, nil
}

// Update changes a role's name, color or capability set. A non-owner may
// only touch roles strictly below their own rank and may not grant
// dangerous capabilities they do not hold.
func (s *Service) Update(ctx context.Context, serverID, actorID, roleID int64, name, color string, caps *perm.Capability) (*store.Role, error) {
	if err := s.requireManageRoles(ctx, serverID, actorID); err != nil {
		return nil, err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.ServerID != serverID {
		return nil, store.ErrNotFound
	}

	owner, err := s.isOwner(ctx, serverID, actorID)
	if err != nil {
		return nil, err
	}
	if !owner {
		actorRank, err := s.resolver.HighestRank(ctx, serverID, actorID)
		if err != nil {
			return nil, err
		}
		if role.Rank >= actorRank {
			return nil, access.ErrDenied
		}
		if caps != nil {
			if err := s.checkGrantable(ctx, serverID, actorID, *caps); err != nil {
				return nil, err
			}
		}
	}

	if name = strings.TrimSpace(name); name != "" {
		role.Name = name
	}
	if color != "" {
		role.Color = color
	}
	if caps != nil {
		raw, err := perm.Encode(*caps)
		if err != nil {
			return nil, err
		}
		role.Permissions = raw
	}
	if err := s.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Delete removes a role. The synthetic everyone role and the owner role
// are permanent.
func (s *Service) Delete(ctx context.Context, serverID, actorID, roleID int64) error {
	if err := s.requireManageRoles(ctx, serverID, actorID); err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.ServerID != serverID {
		return store.ErrNotFound
	}
	if role.Name == EveryoneRoleName || role.Name == OwnerRoleName {
		return access.ErrDenied
	}

	owner, err := s.isOwner(ctx, serverID, actorID)
	if err != nil {
		return err
	}
	if !owner {
		actorRank, err := s.resolver.HighestRank(ctx, serverID, actorID)
		if err != nil {
			return err
		}
		if role.Rank >= actorRank {
			return access.ErrDenied
		}
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.logger.Info("role deleted", slog.Int64("serverID", serverID), slog.Int64("roleID", roleID))
	return nil
}

// Reorder rewrites role ranks from an ordered ID list (first = highest).
// A non-owner may not move any role to or above their own rank; the owner
// role itself never moves.
func (s *Service) Reorder(ctx context.Context, serverID, actorID int64, orderedRoleIDs []int64) error {
	if err := s.requireManageRoles(ctx, serverID, actorID); err != nil {
		return err
	}
	owner, err := s.isOwner(ctx, serverID, actorID)
	if err != nil {
		return err
	}
	actorRank, err := s.resolver.HighestRank(ctx, serverID, actorID)
	if err != nil {
		return err
	}

	filtered := make([]int64, 0, len(orderedRoleIDs))
	for _, roleID := range orderedRoleIDs {
		role, err := s.store.GetRole(ctx, roleID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return err
		}
		if role.ServerID != serverID {
			continue
		}
		if !owner && role.Rank >= actorRank {
			return access.ErrDenied
		}
		if role.Name == OwnerRoleName {
			continue
		}
		filtered = append(filtered, roleID)
	}
	return s.store.ReorderRoles(ctx, serverID, filtered)
}

// Assign grants a role to a member. Unless the actor is the owner, their
// rank must exceed both the role's own rank and the target's highest rank.
// Re-assigning is a no-op.
func (s *Service) Assign(ctx context.Context, serverID, actorID, targetUserID, roleID int64) error {
	if err := s.requireManageRoles(ctx, serverID, actorID); err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.ServerID != serverID {
		return store.ErrNotFound
	}

	owner, err := s.isOwner(ctx, serverID, actorID)
	if err != nil {
		return err
	}
	if !owner {
		actorRank, err := s.resolver.HighestRank(ctx, serverID, actorID)
		if err != nil {
			return err
		}
		if role.Rank >= actorRank {
			return access.ErrDenied
		}
		above, err := s.resolver.Outranks(ctx, serverID, actorID, targetUserID)
		if err != nil {
			return err
		}
		if !above {
			return access.ErrDenied
		}
	}

	membership, err := s.store.GetMembership(ctx, serverID, targetUserID)
	if err != nil {
		return err
	}
	return s.store.AssignRole(ctx, membership.ID, role.ID)
}

// Unassign removes a role from a member under the same rank rules as
// Assign. The everyone role is never held through assignment and so can
// never be taken away.
func (s *Service) Unassign(ctx context.Context, serverID, actorID, targetUserID, roleID int64) error {
	if err := s.requireManageRoles(ctx, serverID, actorID); err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.ServerID != serverID || role.Name == EveryoneRoleName {
		return store.ErrNotFound
	}

	owner, err := s.isOwner(ctx, serverID, actorID)
	if err != nil {
		return err
	}
	if !owner {
		actorRank, err := s.resolver.HighestRank(ctx, serverID, actorID)
		if err != nil {
			return err
		}
		if role.Rank >= actorRank {
			return access.ErrDenied
		}
		above, err := s.resolver.Outranks(ctx, serverID, actorID, targetUserID)
		if err != nil {
			return err
		}
		if !above {
			return access.ErrDenied
		}
	}

	membership, err := s.store.GetMembership(ctx, serverID, targetUserID)
	if err != nil {
		return err
	}
	return s.store.UnassignRole(ctx, membership.ID, role.ID)
}

// checkGrantable rejects granting any dangerous capability the actor does
// not hold.
func (s *Service) checkGrantable(ctx context.Context, serverID, actorID int64, caps perm.Capability) error {
	actorCaps, err := s.resolver.Resolve(ctx, serverID, actorID)
	if err != nil {
		return err
	}
	for _, flag := range perm.Dangerous {
		if caps.Has(flag) && !actorCaps.Has(flag) {
			return access.ErrDenied
		}
	}
	return nil
}
