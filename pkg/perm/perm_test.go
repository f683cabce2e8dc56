package perm_test

import (
	"testing"

	"github.com/Gotyqqq/Rucord/pkg/perm"
)

func TestAllContainsEveryNamedCapability(t *testing.T) {
	all := perm.All()
	for name, flag := range perm.Names {
		if !all.Has(flag) {
			t.Errorf("All() is missing capability %q", name)
		}
	}
}

func TestHas(t *testing.T) {
	c := perm.SendMessages | perm.KickMembers
	if !c.Has(perm.SendMessages) {
		t.Error("expected send_messages to be set")
	}
	if c.Has(perm.BanMembers) {
		t.Error("did not expect ban_members to be set")
	}
}

func TestDecodeLegacyDefaults(t *testing.T) {
	// A role written before send_gifs/send_media/delete_messages existed.
	raw := []byte(`{"send_messages": true, "read_messages": true}`)
	c, err := perm.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !c.Has(perm.SendGIFs) {
		t.Error("absent send_gifs should default to granted")
	}
	if !c.Has(perm.SendMedia) {
		t.Error("absent send_media should default to granted")
	}
	if c.Has(perm.DeleteMessages) {
		t.Error("absent delete_messages should default to denied")
	}
	if !c.Has(perm.SendMessages) || !c.Has(perm.ReadMessages) {
		t.Error("explicit grants were lost in decode")
	}
}

func TestDecodeExplicitFalseBeatsDefault(t *testing.T) {
	raw := []byte(`{"send_gifs": false, "send_media": false, "delete_messages": true}`)
	c, err := perm.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if c.Has(perm.SendGIFs) || c.Has(perm.SendMedia) {
		t.Error("explicit false must not be overridden by the legacy default")
	}
	if !c.Has(perm.DeleteMessages) {
		t.Error("explicit delete_messages grant was dropped")
	}
}

func TestDecodeEmptyObject(t *testing.T) {
	c, err := perm.Decode([]byte(`{}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := perm.SendGIFs | perm.SendMedia
	if c != want {
		t.Errorf("empty role object should decode to exactly the legacy grants, got %b", c)
	}
}

func TestEncodeDecodeIsExplicit(t *testing.T) {
	c := perm.SendMessages | perm.ReadMessages
	raw, err := perm.Encode(c)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := perm.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	// An encoded record carries explicit false for the legacy fields, so
	// the defaults must not resurrect them.
	if got != c {
		t.Errorf("round trip changed capability set: want %b, got %b", c, got)
	}
}
