package perm

// Capability is a bitmap representing a set of server capabilities.
type Capability uint64

const (
	Administrator Capability = 1 << iota
	ManageServer
	ManageChannels
	ManageRoles
	KickMembers
	BanMembers
	MuteMembers
	SendMessages
	ReadMessages
	EditMessages
	DeleteMessages
	SendGIFs
	SendMedia

	capCount = iota
)

// Names maps the wire/storage name of each capability to its flag. The
// schema is fixed: there is no runtime registration of new capabilities.
var Names = map[string]Capability{
	"administrator":   Administrator,
	"manage_server":   ManageServer,
	"manage_channels": ManageChannels,
	"manage_roles":    ManageRoles,
	"kick_members":    KickMembers,
	"ban_members":     BanMembers,
	"mute_members":    MuteMembers,
	"send_messages":   SendMessages,
	"read_messages":   ReadMessages,
	"edit_messages":   EditMessages,
	"delete_messages": DeleteMessages,
	"send_gifs":       SendGIFs,
	"send_media":      SendMedia,
}

// All returns a bitmap with every capability set.
func All() Capability {
	return Capability(1<<capCount) - 1
}

func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

// Dangerous lists the capabilities a non-owner may only grant to a role
// when they hold the capability themselves.
var Dangerous = []Capability{
	Administrator, ManageRoles, ManageServer, ManageChannels,
	KickMembers, BanMembers, MuteMembers,
	EditMessages, DeleteMessages,
}
