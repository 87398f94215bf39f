package protocol

import (
	"encoding/json"

	"github.com/alimasry/go-collab-canvas/canvas"
	"github.com/alimasry/go-collab-canvas/store"
)

// Inbound event names (client to server).
const (
	EventCursorMove        = "cursor:move"
	EventObjectCreate      = "object:create"
	EventObjectUpdate      = "object:update"
	EventObjectDelete      = "object:delete"
	EventObjectSelect      = "object:select"
	EventViewportUpdate    = "viewport:update"
	EventObjectGroup       = "object:group"
	EventObjectUngroup     = "object:ungroup"
	EventCanvasClear       = "canvas:clear"
	EventParticipantRename = "participant:rename"
)

// Outbound event names (server to client).
const (
	EventInit               = "init"
	EventParticipantJoined  = "participant:joined"
	EventParticipantLeft    = "participant:left"
	EventParticipantRenamed = "participant:renamed"
	EventCursorUpdate       = "cursor:update"
	EventObjectCreated      = "object:created"
	EventObjectUpdated      = "object:updated"
	EventObjectDeleted      = "object:deleted"
	EventSelectionChanged   = "selection:changed"
	EventViewportUpdated    = "viewport:updated"
	EventCanvasCleared      = "canvas:cleared"
	EventObjectGrouped      = "object:grouped"
	EventObjectUngrouped    = "object:ungrouped"
)

// Envelope is the frame carried by every websocket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame before encoding.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Encode serializes a Message to JSON bytes.
func (m Message) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}

// Participant describes a connected user.
type Participant struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Color             string        `json:"color"`
	Cursor            *canvas.Point `json:"cursor,omitempty"`
	SelectedObjectIDs []string      `json:"selectedObjectIds"`
}

// Clone returns a deep copy of p.
func (p Participant) Clone() Participant {
	c := p
	if p.Cursor != nil {
		cur := *p.Cursor
		c.Cursor = &cur
	}
	c.SelectedObjectIDs = append(make([]string, 0, len(p.SelectedObjectIDs)), p.SelectedObjectIDs...)
	return c
}

// Init is sent to a connection once it becomes active.
type Init struct {
	State        store.State   `json:"state"`
	Participants []Participant `json:"participants"`
	SelfID       string        `json:"selfId"`
}

type ParticipantLeft struct {
	ParticipantID string `json:"participantId"`
}

type ParticipantRenamed struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

type CursorUpdate struct {
	ParticipantID string       `json:"participantId"`
	Cursor        canvas.Point `json:"cursor"`
}

type ObjectsDeleted struct {
	IDs []string `json:"ids"`
}

type SelectionChanged struct {
	ParticipantID string   `json:"participantId"`
	IDs           []string `json:"ids"`
}

type CanvasCleared struct {
	ParticipantID string `json:"participantId"`
}

type ObjectGrouped = store.GroupResult

type ObjectUngrouped struct {
	GroupID string          `json:"groupId"`
	Members []canvas.Object `json:"members"`
}
