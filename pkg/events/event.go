package events

import "github.com/crystal-mush/xmlattach/pkg/gamedb"

// EventType classifies world events.
type EventType int

const (
	EvMessage   EventType = iota // Text told to an entity
	EvSpeech                     // A mobile spoke
	EvMove                       // A mobile moved
	EvKill                       // A mobile died
	EvUse                        // Double-click
	EvEquip                      // Equip attempt
	EvWeaponHit                  // Landed weapon hit
	EvTarget                     // Target cursor completed
	EvIdentify                   // Identify request
	EvAttach                     // Attachment added or loaded
	EvDetach                     // Attachment removed
	EvDelete                     // Entity removed from the world
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvMessage:
		return "message"
	case EvSpeech:
		return "speech"
	case EvMove:
		return "move"
	case EvKill:
		return "kill"
	case EvUse:
		return "use"
	case EvEquip:
		return "equip"
	case EvWeaponHit:
		return "weapon_hit"
	case EvTarget:
		return "target"
	case EvIdentify:
		return "identify"
	case EvAttach:
		return "attach"
	case EvDetach:
		return "detach"
	case EvDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a structured world event that flows through the bus.
type Event struct {
	Type   EventType
	Target gamedb.DBRef   // Recipient (Nothing for broadcast)
	Source gamedb.DBRef   // Who caused the event
	Actor  gamedb.DBRef   // Entity acted on, if any
	Text   string         // Pre-formatted text
	Data   map[string]any // Structured data for subscribers that want it
}

// New returns an event with every ref set to Nothing.
func New(t EventType, text string) Event {
	return Event{Type: t, Target: gamedb.Nothing, Source: gamedb.Nothing, Actor: gamedb.Nothing, Text: text}
}
