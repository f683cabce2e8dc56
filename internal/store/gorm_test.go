package store_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gotyqqq/Rucord/internal/store"
	"github.com/Gotyqqq/Rucord/pkg/config"
	"github.com/Gotyqqq/Rucord/pkg/perm"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "rucord_test.db")
	s, err := store.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, newTestLogger())
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	return s
}

func mustCreateUser(t *testing.T, s *store.GormStore, username string) *store.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), username, username+"@example.com", "hash")
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return user
}

func mustCreateServer(t *testing.T, s *store.GormStore, name string, ownerID int64) *store.Server {
	t.Helper()
	server, err := s.CreateServer(context.Background(), name, ownerID)
	if err != nil {
		t.Fatalf("creating server %s: %v", name, err)
	}
	return server
}

func TestGetUserByUsernameIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := mustCreateUser(t, s, "Alice")

	got, err := s.GetUserByUsername(ctx, "aLiCe")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected user %d, got %d", created.ID, got.ID)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJoinByInvite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	joiner := mustCreateUser(t, s, "joiner")
	banned := mustCreateUser(t, s, "banned")
	server := mustCreateServer(t, s, "home", owner.ID)

	got, membership, err := s.JoinByInvite(ctx, server.InviteCode, joiner.ID)
	if err != nil {
		t.Fatalf("JoinByInvite: %v", err)
	}
	if got.ID != server.ID || membership.UserID != joiner.ID {
		t.Fatalf("unexpected join result: server %d membership %+v", got.ID, membership)
	}

	// Joining again hands back the same membership.
	_, again, err := s.JoinByInvite(ctx, server.InviteCode, joiner.ID)
	if err != nil {
		t.Fatalf("repeat JoinByInvite: %v", err)
	}
	if again.ID != membership.ID {
		t.Errorf("expected the existing membership %d, got %d", membership.ID, again.ID)
	}

	if err := s.CreateBan(ctx, server.ID, banned.ID, owner.ID, "rules"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.JoinByInvite(ctx, server.InviteCode, banned.ID); !errors.Is(err, store.ErrBanned) {
		t.Errorf("expected ErrBanned, got %v", err)
	}
	if _, err := s.GetMembership(ctx, server.ID, banned.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("a rejected join must not create a membership")
	}

	if _, _, err := s.JoinByInvite(ctx, "no-such-code", joiner.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown invite, got %v", err)
	}
}

func TestCreateServerBootstrap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	server := mustCreateServer(t, s, "home", owner.ID)

	if len(server.InviteCode) != 8 {
		t.Errorf("expected 8-char invite code, got %q", server.InviteCode)
	}
	if _, err := s.GetServerByInvite(ctx, server.InviteCode); err != nil {
		t.Errorf("invite lookup failed: %v", err)
	}

	// Owner membership exists and holds the owner role.
	membership, err := s.GetMembership(ctx, server.ID, owner.ID)
	if err != nil {
		t.Fatalf("owner membership missing: %v", err)
	}
	held, err := s.GetRolesOfMember(ctx, membership.ID)
	if err != nil {
		t.Fatalf("GetRolesOfMember: %v", err)
	}
	if len(held) != 1 || held[0].Name != "Owner" || held[0].Rank != 100 {
		t.Errorf("expected the Owner role at rank 100, got %+v", held)
	}

	// The synthetic everyone role sits at the lowest rank.
	everyone, err := s.FindRoleByName(ctx, server.ID, "everyone")
	if err != nil {
		t.Fatalf("everyone role missing: %v", err)
	}
	if everyone.Rank != 0 {
		t.Errorf("expected everyone at rank 0, got %d", everyone.Rank)
	}
	caps, err := perm.Decode(everyone.Permissions)
	if err != nil {
		t.Fatalf("decoding everyone permissions: %v", err)
	}
	if !caps.Has(perm.SendMessages) || caps.Has(perm.BanMembers) {
		t.Errorf("unexpected everyone capability set: %v", caps)
	}
}

func TestCreateMembershipIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	member := mustCreateUser(t, s, "member")
	server := mustCreateServer(t, s, "home", owner.ID)

	first, err := s.CreateMembership(ctx, server.ID, member.ID)
	if err != nil {
		t.Fatalf("first CreateMembership: %v", err)
	}
	second, err := s.CreateMembership(ctx, server.ID, member.ID)
	if err != nil {
		t.Fatalf("duplicate CreateMembership must not error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("duplicate membership created: %d vs %d", first.ID, second.ID)
	}

	servers, err := s.ListServersOfUser(ctx, member.ID)
	if err != nil {
		t.Fatalf("ListServersOfUser: %v", err)
	}
	if len(servers) != 1 || servers[0] != server.ID {
		t.Errorf("expected exactly server %d, got %v", server.ID, servers)
	}
}

func TestMuteUpsertReplacesExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	target := mustCreateUser(t, s, "target")
	server := mustCreateServer(t, s, "home", owner.ID)

	firstExpiry := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	if err := s.CreateMute(ctx, server.ID, target.ID, owner.ID, "spam", firstExpiry); err != nil {
		t.Fatalf("CreateMute: %v", err)
	}
	secondExpiry := firstExpiry.Add(time.Hour)
	if err := s.CreateMute(ctx, server.ID, target.ID, owner.ID, "more spam", secondExpiry); err != nil {
		t.Fatalf("second CreateMute: %v", err)
	}

	mute, err := s.GetMute(ctx, server.ID, target.ID)
	if err != nil {
		t.Fatalf("GetMute: %v", err)
	}
	if !mute.ExpiresAt.Equal(secondExpiry) {
		t.Errorf("expected replaced expiry %v, got %v", secondExpiry, mute.ExpiresAt)
	}
	if mute.Reason != "more spam" {
		t.Errorf("expected replaced reason, got %q", mute.Reason)
	}

	if err := s.DeleteMute(ctx, server.ID, target.ID); err != nil {
		t.Fatalf("DeleteMute: %v", err)
	}
	if _, err := s.GetMute(ctx, server.ID, target.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestBanIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	target := mustCreateUser(t, s, "target")
	server := mustCreateServer(t, s, "home", owner.ID)

	if err := s.CreateBan(ctx, server.ID, target.ID, owner.ID, "rules"); err != nil {
		t.Fatalf("CreateBan: %v", err)
	}
	if err := s.CreateBan(ctx, server.ID, target.ID, owner.ID, "rules"); err != nil {
		t.Fatalf("duplicate CreateBan must not error: %v", err)
	}
	bans, err := s.ListBansOfServer(ctx, server.ID)
	if err != nil {
		t.Fatalf("ListBansOfServer: %v", err)
	}
	if len(bans) != 1 {
		t.Errorf("expected a single ban row, got %d", len(bans))
	}
}

func TestAddReactionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	server := mustCreateServer(t, s, "home", owner.ID)
	channel, err := s.CreateChannel(ctx, server.ID, "random", "text")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	msg, err := s.CreateMessage(ctx, channel.ID, owner.ID, "hello")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.AddReaction(ctx, msg.ID, owner.ID, "thumbs"); err != nil {
			t.Fatalf("AddReaction attempt %d: %v", i, err)
		}
	}
	reactions, err := s.ListReactions(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListReactions: %v", err)
	}
	if len(reactions) != 1 {
		t.Errorf("expected one reaction row, got %d", len(reactions))
	}
}

func TestDeleteMessageCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	server := mustCreateServer(t, s, "home", owner.ID)
	channel, err := s.CreateChannel(ctx, server.ID, "random", "text")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	msg, err := s.CreateMessage(ctx, channel.ID, owner.ID, "bye")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if err := s.AddReaction(ctx, msg.ID, owner.ID, "wave"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	att := &store.Attachment{MessageID: msg.ID, FilePath: "f.png", OriginalName: "f.png", MimeType: "image/png"}
	if err := s.CreateAttachment(ctx, att); err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	if err := s.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if _, err := s.GetMessage(ctx, msg.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected message gone, got %v", err)
	}
	if reactions, _ := s.ListReactions(ctx, msg.ID); len(reactions) != 0 {
		t.Errorf("reactions survived message deletion")
	}
	if atts, _ := s.ListAttachments(ctx, msg.ID); len(atts) != 0 {
		t.Errorf("attachments survived message deletion")
	}
}

func TestReorderRolesRewritesRanks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	server := mustCreateServer(t, s, "home", owner.ID)

	raw, err := perm.Encode(perm.SendMessages)
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.CreateRole(ctx, server.ID, "alpha", "", raw, 1)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	b, err := s.CreateRole(ctx, server.ID, "beta", "", raw, 2)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	// alpha first means alpha ends up with the higher rank.
	if err := s.ReorderRoles(ctx, server.ID, []int64{a.ID, b.ID}); err != nil {
		t.Fatalf("ReorderRoles: %v", err)
	}
	gotA, _ := s.GetRole(ctx, a.ID)
	gotB, _ := s.GetRole(ctx, b.ID)
	if gotA.Rank <= gotB.Rank {
		t.Errorf("expected alpha above beta, got %d vs %d", gotA.Rank, gotB.Rank)
	}
}

func TestGetMessagesPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner")
	server := mustCreateServer(t, s, "home", owner.ID)
	channel, err := s.CreateChannel(ctx, server.ID, "random", "text")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}

	var ids []int64
	for i := 0; i < 5; i++ {
		msg, err := s.CreateMessage(ctx, channel.ID, owner.ID, "m")
		if err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	page, err := s.GetMessagesPage(ctx, channel.ID, ids[3], 2)
	if err != nil {
		t.Fatalf("GetMessagesPage: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}
	if page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Errorf("expected newest-first page before %d, got %d, %d", ids[3], page[0].ID, page[1].ID)
	}
}
