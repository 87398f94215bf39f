package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alimasry/go-collab-canvas/canvas"
)

var (
	// ErrUnknownEvent is returned for an event name with no decoder.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformed is returned when a payload fails to decode or validate.
	ErrMalformed = errors.New("malformed payload")
)

// Event is a validated inbound event. The concrete type identifies the kind.
type Event interface {
	Kind() string
}

type CursorMove struct {
	Point canvas.Point
}

type ObjectCreate struct {
	Object canvas.Object
}

type ObjectUpdate struct {
	Object canvas.Object
}

type ObjectDelete struct {
	IDs []string
}

type ObjectSelect struct {
	IDs []string
}

type ViewportUpdate struct {
	Viewport canvas.Viewport
}

type ObjectGroup struct {
	IDs []string
}

type ObjectUngroup struct {
	GroupID string
}

type CanvasClear struct{}

type ParticipantRename struct {
	Name string
}

func (CursorMove) Kind() string        { return EventCursorMove }
func (ObjectCreate) Kind() string      { return EventObjectCreate }
func (ObjectUpdate) Kind() string      { return EventObjectUpdate }
func (ObjectDelete) Kind() string      { return EventObjectDelete }
func (ObjectSelect) Kind() string      { return EventObjectSelect }
func (ViewportUpdate) Kind() string    { return EventViewportUpdate }
func (ObjectGroup) Kind() string       { return EventObjectGroup }
func (ObjectUngroup) Kind() string     { return EventObjectUngroup }
func (CanvasClear) Kind() string       { return EventCanvasClear }
func (ParticipantRename) Kind() string { return EventParticipantRename }

// MaxNameLength bounds participant display names.
const MaxNameLength = 64

type decodeFunc func(data json.RawMessage) (Event, error)

var decoders = map[string]decodeFunc{
	EventCursorMove:        decodeCursorMove,
	EventObjectCreate:      decodeObjectCreate,
	EventObjectUpdate:      decodeObjectUpdate,
	EventObjectDelete:      decodeObjectDelete,
	EventObjectSelect:      decodeObjectSelect,
	EventViewportUpdate:    decodeViewportUpdate,
	EventObjectGroup:       decodeObjectGroup,
	EventObjectUngroup:     decodeObjectUngroup,
	EventCanvasClear:       decodeCanvasClear,
	EventParticipantRename: decodeParticipantRename,
}

// Decode parses and validates a raw inbound frame. Errors wrap
// ErrUnknownEvent or ErrMalformed.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	dec, ok := decoders[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	ev, err := dec(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Event, err)
	}
	return ev, nil
}

func isNull(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || bytes.Equal(d, []byte("null"))
}

func decodeCursorMove(data json.RawMessage) (Event, error) {
	var p struct {
		X *float64 `json:"x" validate:"required"`
		Y *float64 `json:"y" validate:"required"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := canvas.Validator().Struct(p); err != nil {
		return nil, err
	}
	return CursorMove{Point: canvas.Point{X: *p.X, Y: *p.Y}}, nil
}

func decodeObject(data json.RawMessage) (canvas.Object, error) {
	if isNull(data) {
		return canvas.Object{}, errors.New("missing object")
	}
	var obj canvas.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return canvas.Object{}, err
	}
	if err := obj.Validate(); err != nil {
		return canvas.Object{}, err
	}
	return obj, nil
}

func decodeObjectCreate(data json.RawMessage) (Event, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if obj.Type == canvas.TypeGroup {
		return nil, errors.New("groups are created with object:group")
	}
	return ObjectCreate{Object: obj}, nil
}

func decodeObjectUpdate(data json.RawMessage) (Event, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if obj.ID == "" {
		return nil, errors.New("update requires an id")
	}
	return ObjectUpdate{Object: obj}, nil
}

func decodeObjectDelete(data json.RawMessage) (Event, error) {
	ids, err := decodeIDs(data)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New("no ids")
	}
	return ObjectDelete{IDs: ids}, nil
}

func decodeObjectSelect(data json.RawMessage) (Event, error) {
	if isNull(data) {
		return ObjectSelect{IDs: []string{}}, nil
	}
	ids, err := decodeIDs(data)
	if err != nil {
		return nil, err
	}
	return ObjectSelect{IDs: ids}, nil
}

func decodeViewportUpdate(data json.RawMessage) (Event, error) {
	if isNull(data) {
		return nil, errors.New("missing viewport")
	}
	var v canvas.Viewport
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return ViewportUpdate{Viewport: v}, nil
}

func decodeObjectGroup(data json.RawMessage) (Event, error) {
	ids, err := decodeIDs(data)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New("no ids")
	}
	return ObjectGroup{IDs: ids}, nil
}

func decodeObjectUngroup(data json.RawMessage) (Event, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var p struct {
			GroupID string `json:"groupId"`
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		id = p.GroupID
	}
	if id == "" {
		return nil, errors.New("missing groupId")
	}
	return ObjectUngroup{GroupID: id}, nil
}

func decodeCanvasClear(json.RawMessage) (Event, error) {
	return CanvasClear{}, nil
}

func decodeParticipantRename(data json.RawMessage) (Event, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if err := canvas.Validator().Var(p.Name, fmt.Sprintf("required,max=%d", MaxNameLength)); err != nil {
		return nil, err
	}
	return ParticipantRename{Name: p.Name}, nil
}
