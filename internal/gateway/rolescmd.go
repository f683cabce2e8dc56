package gateway

import (
	"context"

	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/perm"
)

// Role commands mirror the moderation command surface: the gateway wraps
// the role service so assignment changes reach connected clients.

func (g *Gateway) CreateRole(ctx context.Context, serverID, actorID int64, name, color string, caps perm.Capability) (*store.Role, error) {
	role, err := g.roles.Create(ctx, serverID, actorID, name, color, caps)
	if err != nil {
		return nil, err
	}
	g.notifyMembersUpdated(serverID)
	return role, nil
}

func (g *Gateway) UpdateRole(ctx context.Context, serverID, actorID, roleID int64, name, color string, caps *perm.Capability) (*store.Role, error) {
	role, err := g.roles.Update(ctx, serverID, actorID, roleID, name, color, caps)
	if err != nil {
		return nil, err
	}
	g.notifyMembersUpdated(serverID)
	return role, nil
}

func (g *Gateway) DeleteRole(ctx context.Context, serverID, actorID, roleID int64) error {
	if err := g.roles.Delete(ctx, serverID, actorID, roleID); err != nil {
		return err
	}
	g.notifyMembersUpdated(serverID)
	return nil
}

func (g *Gateway) ReorderRoles(ctx context.Context, serverID, actorID int64, orderedRoleIDs []int64) error {
	if err := g.roles.Reorder(ctx, serverID, actorID, orderedRoleIDs); err != nil {
		return err
	}
	g.notifyMembersUpdated(serverID)
	return nil
}

func (g *Gateway) AssignRole(ctx context.Context, serverID, actorID, targetUserID, roleID int64) error {
	if err := g.roles.Assign(ctx, serverID, actorID, targetUserID, roleID); err != nil {
		return err
	}
	g.notifyMembersUpdated(serverID)
	return nil
}

func (g *Gateway) UnassignRole(ctx context.Context, serverID, actorID, targetUserID, roleID int64) error {
	if err := g.roles.Unassign(ctx, serverID, actorID, targetUserID, roleID); err != nil {
		return err
	}
	g.notifyMembersUpdated(serverID)
	return nil
}
