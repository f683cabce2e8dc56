package roles_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gotyqqq/Rucord/internal/access"
	"github.com/Gotyqqq/Rucord/internal/roles"
	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/config"
	"github.com/Gotyqqq/Rucord/pkg/perm"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fixture struct {
	store   *store.GormStore
	svc     *roles.Service
	owner   *store.User
	manager *store.User
	member  *store.User
	server  *store.Server
}

// newFixture builds a server with three users: the owner, a "manager" who
// holds ManageRoles at rank 5, and a plain member.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "roles_test.db")
	db, err := store.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, newTestLogger())
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}

	f := &fixture{store: db}
	f.owner = f.mustUser(t, "owner")
	f.manager = f.mustUser(t, "manager")
	f.member = f.mustUser(t, "member")
	f.server, err = db.CreateServer(ctx, "home", f.owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range []*store.User{f.manager, f.member} {
		if _, err := db.CreateMembership(ctx, f.server.ID, u.ID); err != nil {
			t.Fatal(err)
		}
	}

	f.grantRole(t, f.manager, "manager", 5, perm.ManageRoles|perm.SendMessages|perm.KickMembers)

	resolver := access.NewResolver(db, nil, newTestLogger())
	f.svc = roles.NewService(db, resolver, newTestLogger())
	return f
}

func (f *fixture) mustUser(t *testing.T, name string) *store.User {
	t.Helper()
	user, err := f.store.CreateUser(context.Background(), name, name+"@example.com", "hash")
	if err != nil {
		t.Fatal(err)
	}
	return user
}

func (f *fixture) grantRole(t *testing.T, user *store.User, name string, rank int, caps perm.Capability) *store.Role {
	t.Helper()
	ctx := context.Background()
	raw, err := perm.Encode(caps)
	if err != nil {
		t.Fatal(err)
	}
	role, err := f.store.CreateRole(ctx, f.server.ID, name, "", raw, rank)
	if err != nil {
		t.Fatal(err)
	}
	membership, err := f.store.GetMembership(ctx, f.server.ID, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.AssignRole(ctx, membership.ID, role.ID); err != nil {
		t.Fatal(err)
	}
	return role
}

func TestCreateRequiresManageRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.server.ID, f.member.ID, "sneaky", "", perm.SendMessages)
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.server.ID, f.manager.ID, "helpers", "#00ff00", perm.SendMessages); err != nil {
		t.Fatalf("manager create: %v", err)
	}
}

func TestCreateRejectsUnheldDangerousCapabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The manager holds KickMembers but not BanMembers.
	_, err := f.svc.Create(ctx, f.server.ID, f.manager.ID, "banhammer", "", perm.BanMembers)
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied for unheld dangerous capability, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.server.ID, f.manager.ID, "bouncers", "", perm.KickMembers); err != nil {
		t.Fatalf("held dangerous capability must be grantable: %v", err)
	}

	// The owner is exempt from the grant check.
	if _, err := f.svc.Create(ctx, f.server.ID, f.owner.ID, "admins", "", perm.Administrator); err != nil {
		t.Fatalf("owner create: %v", err)
	}
}

func TestCreateRankPlacement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.server.ID, f.manager.ID, "helpers", "", perm.SendMessages)
	if err != nil {
		t.Fatal(err)
	}
	if created.Rank != 1 {
		t.Errorf("non-owner roles land at rank 1, got %d", created.Rank)
	}

	ownerMade, err := f.svc.Create(ctx, f.server.ID, f.owner.ID, "mods", "", perm.SendMessages)
	if err != nil {
		t.Fatal(err)
	}
	if ownerMade.Rank <= 5 || ownerMade.Rank >= 100 {
		t.Errorf("owner roles stack above existing ranks but below the owner role, got %d", ownerMade.Rank)
	}
}

func TestUpdateRankBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	peer := f.grantRole(t, f.member, "peer", 5, perm.SendMessages)
	below := f.grantRole(t, f.member, "below", 2, perm.SendMessages)

	// Rank 5 actor cannot touch a rank 5 role.
	if _, err := f.svc.Update(ctx, f.server.ID, f.manager.ID, peer.ID, "renamed", "", nil); !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied for equal rank, got %v", err)
	}

	updated, err := f.svc.Update(ctx, f.server.ID, f.manager.ID, below.ID, "renamed", "#ffffff", nil)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Name != "renamed" || updated.Color != "#ffffff" {
		t.Errorf("unexpected role after update: %+v", updated)
	}

	// The owner outranks everything.
	if _, err := f.svc.Update(ctx, f.server.ID, f.owner.ID, peer.ID, "peer2", "", nil); err != nil {
		t.Errorf("owner update: %v", err)
	}
}

func TestUpdateCapabilitiesChecksGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	below := f.grantRole(t, f.member, "below", 2, perm.SendMessages)

	caps := perm.BanMembers
	if _, err := f.svc.Update(ctx, f.server.ID, f.manager.ID, below.ID, "", "", &caps); !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied escalating an unheld capability, got %v", err)
	}

	caps = perm.KickMembers | perm.SendMessages
	updated, err := f.svc.Update(ctx, f.server.ID, f.manager.ID, below.ID, "", "", &caps)
	if err != nil {
		t.Fatal(err)
	}
	got, err := perm.Decode(updated.Permissions)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Has(perm.KickMembers) || got.Has(perm.BanMembers) {
		t.Errorf("unexpected capabilities after update: %v", got)
	}
}

func TestDeleteProtectsBuiltinRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	everyone, err := f.store.FindRoleByName(ctx, f.server.ID, roles.EveryoneRoleName)
	if err != nil {
		t.Fatal(err)
	}
	ownerRole, err := f.store.FindRoleByName(ctx, f.server.ID, roles.OwnerRoleName)
	if err != nil {
		t.Fatal(err)
	}

	for _, role := range []*store.Role{everyone, ownerRole} {
		if err := f.svc.Delete(ctx, f.server.ID, f.owner.ID, role.ID); !errors.Is(err, access.ErrDenied) {
			t.Errorf("deleting %q must be denied, got %v", role.Name, err)
		}
	}

	disposable := f.grantRole(t, f.member, "disposable", 2, perm.SendMessages)
	if err := f.svc.Delete(ctx, f.server.ID, f.manager.ID, disposable.ID); err != nil {
		t.Fatalf("deleting a regular role: %v", err)
	}
	if _, err := f.store.GetRole(ctx, disposable.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("role must be gone")
	}
}

func TestDeleteRespectsRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	peer := f.grantRole(t, f.member, "peer", 5, perm.SendMessages)

	if err := f.svc.Delete(ctx, f.server.ID, f.manager.ID, peer.ID); !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied deleting an equal-rank role, got %v", err)
	}
}

func TestReorderSkipsOwnerAndUnknownRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.grantRole(t, f.member, "a", 1, perm.SendMessages)
	b := f.grantRole(t, f.member, "b", 2, perm.SendMessages)
	ownerRole, err := f.store.FindRoleByName(ctx, f.server.ID, roles.OwnerRoleName)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Reorder(ctx, f.server.ID, f.owner.ID, []int64{a.ID, ownerRole.ID, b.ID, 999999}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}

	gotA, _ := f.store.GetRole(ctx, a.ID)
	gotB, _ := f.store.GetRole(ctx, b.ID)
	if gotA.Rank <= gotB.Rank {
		t.Errorf("first listed role must outrank the second: a=%d b=%d", gotA.Rank, gotB.Rank)
	}
	gotOwner, _ := f.store.GetRole(ctx, ownerRole.ID)
	if gotOwner.Rank != ownerRole.Rank {
		t.Errorf("the owner role must never move: was %d, now %d", ownerRole.Rank, gotOwner.Rank)
	}
}

func TestReorderDeniedAtOrAboveActorRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	peer := f.grantRole(t, f.member, "peer", 5, perm.SendMessages)
	below := f.grantRole(t, f.member, "below", 1, perm.SendMessages)

	err := f.svc.Reorder(ctx, f.server.ID, f.manager.ID, []int64{peer.ID, below.ID})
	if !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied touching an equal-rank role, got %v", err)
	}
}

func TestAssignAndUnassignRespectRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	below := f.grantRole(t, f.owner, "below", 2, perm.SendMessages)
	peer, err := f.store.CreateRole(ctx, f.server.ID, "peer", "", mustEncode(t, perm.SendMessages), 5)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Assign(ctx, f.server.ID, f.manager.ID, f.member.ID, peer.ID); !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied assigning an equal-rank role, got %v", err)
	}
	if err := f.svc.Assign(ctx, f.server.ID, f.manager.ID, f.member.ID, below.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	// Idempotent.
	if err := f.svc.Assign(ctx, f.server.ID, f.manager.ID, f.member.ID, below.ID); err != nil {
		t.Fatalf("re-Assign: %v", err)
	}

	membership, err := f.store.GetMembership(ctx, f.server.ID, f.member.ID)
	if err != nil {
		t.Fatal(err)
	}
	held, err := f.store.GetRolesOfMember(ctx, membership.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 1 || held[0].ID != below.ID {
		t.Fatalf("expected member to hold exactly the assigned role, got %+v", held)
	}

	if err := f.svc.Unassign(ctx, f.server.ID, f.manager.ID, f.member.ID, below.ID); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	held, _ = f.store.GetRolesOfMember(ctx, membership.ID)
	if len(held) != 0 {
		t.Errorf("expected no roles after unassign, got %+v", held)
	}
}

func TestAssignRequiresOutrankingTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// The target already holds a rank far above the manager's.
	f.grantRole(t, f.member, "elder", 50, perm.SendMessages)
	low, err := f.store.CreateRole(ctx, f.server.ID, "low", "", mustEncode(t, perm.SendMessages), 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Assign(ctx, f.server.ID, f.manager.ID, f.member.ID, low.ID); !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied assigning to a higher-ranked target, got %v", err)
	}
	if err := f.svc.Unassign(ctx, f.server.ID, f.manager.ID, f.member.ID, low.ID); !errors.Is(err, access.ErrDenied) {
		t.Fatalf("expected ErrDenied unassigning from a higher-ranked target, got %v", err)
	}

	// The owner outranks everyone.
	if err := f.svc.Assign(ctx, f.server.ID, f.owner.ID, f.member.ID, low.ID); err != nil {
		t.Fatalf("owner assign: %v", err)
	}
	if err := f.svc.Unassign(ctx, f.server.ID, f.owner.ID, f.member.ID, low.ID); err != nil {
		t.Fatalf("owner unassign: %v", err)
	}
}

func TestEveryoneRoleCannotBeUnassigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	everyone, err := f.store.FindRoleByName(ctx, f.server.ID, roles.EveryoneRoleName)
	if err != nil {
		t.Fatal(err)
	}

	err = f.svc.Unassign(ctx, f.server.ID, f.owner.ID, f.member.ID, everyone.ID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for the everyone role, got %v", err)
	}
}

func TestRolesAreServerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.store.CreateServer(ctx, "elsewhere", f.owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := f.store.CreateRole(ctx, other.ID, "foreign", "", mustEncode(t, perm.SendMessages), 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Update(ctx, f.server.ID, f.owner.ID, foreign.ID, "stolen", "", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("updating a foreign role must be ErrNotFound, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.server.ID, f.owner.ID, foreign.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleting a foreign role must be ErrNotFound, got %v", err)
	}
	if err := f.svc.Assign(ctx, f.server.ID, f.owner.ID, f.member.ID, foreign.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("assigning a foreign role must be ErrNotFound, got %v", err)
	}
}

func mustEncode(t *testing.T, caps perm.Capability) []byte {
	t.Helper()
	raw, err := perm.Encode(caps)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}
