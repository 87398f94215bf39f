package store

import (
	"errors"

	"github.com/alimasry/go-collab-canvas/canvas"
)

// ErrDuplicateID is returned by Create when the object's id is already in use.
var ErrDuplicateID = errors.New("object id already exists")

// State is a point-in-time copy of the canvas.
type State struct {
	Objects  []canvas.Object `json:"objects"`
	Viewport canvas.Viewport `json:"viewport"`
}

// GroupResult is the outcome of grouping objects.
type GroupResult struct {
	Group   canvas.Object   `json:"group"`
	Members []canvas.Object `json:"members"`
}

// CanvasStore abstracts the shared canvas state owned by a relay.
// Every method is atomic with respect to the others.
type CanvasStore interface {
	Snapshot() State
	Get(id string) (canvas.Object, bool)
	Create(obj canvas.Object) (canvas.Object, error)
	// Update replaces an existing record and returns what was stored. A
	// group keeps its members whatever the update carries.
	Update(obj canvas.Object) (canvas.Object, bool)
	Delete(ids []string) []string
	SetViewport(v canvas.Viewport)
	Group(ids []string) (GroupResult, bool)
	Ungroup(groupID string) ([]canvas.Object, bool)
	Clear() int
	Len() int
}
