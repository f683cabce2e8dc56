package perm

import "encoding/json"

// Record is the fixed-schema form a role's capability set takes in storage.
// The three pointer fields distinguish "explicitly false" from "absent":
// roles created before send_gifs/send_media existed must keep behaving as if
// those were granted, while an absent delete_messages stays denied.
type Record struct {
	Administrator  bool  `json:"administrator"`
	ManageServer   bool  `json:"manage_server"`
	ManageChannels bool  `json:"manage_channels"`
	ManageRoles    bool  `json:"manage_roles"`
	KickMembers    bool  `json:"kick_members"`
	BanMembers     bool  `json:"ban_members"`
	MuteMembers    bool  `json:"mute_members"`
	SendMessages   bool  `json:"send_messages"`
	ReadMessages   bool  `json:"read_messages"`
	EditMessages   bool  `json:"edit_messages"`
	SendGIFs       *bool `json:"send_gifs,omitempty"`
	SendMedia      *bool `json:"send_media,omitempty"`
	DeleteMessages *bool `json:"delete_messages,omitempty"`
}

// Decode parses a stored permission object and normalizes it to a bitmap,
// applying the legacy defaults in one place.
func Decode(raw []byte) (Capability, error) {
	var rec Record
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rec); err != nil {
			return 0, err
		}
	}
	return rec.Capability(), nil
}

// Capability normalizes the record to a bitmap.
func (r Record) Capability() Capability {
	var c Capability
	set := func(on bool, flag Capability) {
		if on {
			c |= flag
		}
	}
	set(r.Administrator, Administrator)
	set(r.ManageServer, ManageServer)
	set(r.ManageChannels, ManageChannels)
	set(r.ManageRoles, ManageRoles)
	set(r.KickMembers, KickMembers)
	set(r.BanMembers, BanMembers)
	set(r.MuteMembers, MuteMembers)
	set(r.SendMessages, SendMessages)
	set(r.ReadMessages, ReadMessages)
	set(r.EditMessages, EditMessages)
	set(r.SendGIFs == nil || *r.SendGIFs, SendGIFs)
	set(r.SendMedia == nil || *r.SendMedia, SendMedia)
	set(r.DeleteMessages != nil && *r.DeleteMessages, DeleteMessages)
	return c
}

// Encode renders a capability bitmap as a fully-populated storage record.
// Round-tripping through Encode removes the legacy ambiguity: every field
// is written explicitly.
func Encode(c Capability) ([]byte, error) {
	f := func(flag Capability) *bool {
		v := c.Has(flag)
		return &v
	}
	rec := Record{
		Administrator:  c.Has(Administrator),
		ManageServer:   c.Has(ManageServer),
		ManageChannels: c.Has(ManageChannels),
		ManageRoles:    c.Has(ManageRoles),
		KickMembers:    c.Has(KickMembers),
		BanMembers:     c.Has(BanMembers),
		MuteMembers:    c.Has(MuteMembers),
		SendMessages:   c.Has(SendMessages),
		ReadMessages:   c.Has(ReadMessages),
		EditMessages:   c.Has(EditMessages),
		SendGIFs:       f(SendGIFs),
		SendMedia:      f(SendMedia),
		DeleteMessages: f(DeleteMessages),
	}
	return json.Marshal(rec)
}
