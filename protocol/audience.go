package protocol

// Audience selects which connections receive the result of an event.
type Audience int

const (
	// AudienceNone delivers to nobody.
	AudienceNone Audience = iota
	// AudienceOthers delivers to every active connection except the sender.
	AudienceOthers
	// AudienceAll delivers to every active connection including the sender.
	AudienceAll
)

func (a Audience) String() string {
	switch a {
	case AudienceOthers:
		return "others"
	case AudienceAll:
		return "all"
	default:
		return "none"
	}
}

// Audiences maps each inbound event to the audience of its broadcast.
// Senders apply cursor, update, select and viewport changes locally before
// emitting them, so those skip the sender. Everything that needs
// server-assigned data or affects the whole canvas goes to everyone.
var Audiences = map[string]Audience{
	EventCursorMove:        AudienceOthers,
	EventObjectCreate:      AudienceAll,
	EventObjectUpdate:      AudienceOthers,
	EventObjectDelete:      AudienceAll,
	EventObjectSelect:      AudienceOthers,
	EventViewportUpdate:    AudienceOthers,
	EventObjectGroup:       AudienceAll,
	EventObjectUngroup:     AudienceAll,
	EventCanvasClear:       AudienceAll,
	EventParticipantRename: AudienceAll,
}
