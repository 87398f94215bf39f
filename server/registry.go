package server

import (
	"strconv"
	"sync"

	"github.com/alimasry/go-collab-canvas/canvas"
	"github.com/alimasry/go-collab-canvas/protocol"
)

// DefaultPalette holds the cursor colours handed out round-robin.
var DefaultPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
	"#F8B88B", "#FAD02C",
}

// Registry tracks the participants connected to one relay. Only the relay
// goroutine mutates it; reads from other goroutines are safe.
type Registry struct {
	mu           sync.RWMutex
	palette      []string
	assigned     int
	order        []string
	participants map[string]*protocol.Participant
}

func NewRegistry(palette []string) *Registry {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	return &Registry{
		palette:      palette,
		participants: make(map[string]*protocol.Participant),
	}
}

// Register allocates a participant for connID with the next default name and
// palette colour. Registering an id twice returns the existing participant.
func (r *Registry) Register(connID string) protocol.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[connID]; ok {
		return p.Clone()
	}
	p := &protocol.Participant{
		ID:                connID,
		Name:              "User " + strconv.Itoa(r.assigned+1),
		Color:             r.palette[r.assigned%len(r.palette)],
		SelectedObjectIDs: []string{},
	}
	r.assigned++
	r.participants[connID] = p
	r.order = append(r.order, connID)
	return p.Clone()
}

// Unregister removes connID. It reports false if it was not registered.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[connID]; !ok {
		return false
	}
	delete(r.participants, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Get(connID string) (protocol.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[connID]
	if !ok {
		return protocol.Participant{}, false
	}
	return p.Clone(), true
}

func (r *Registry) UpdateCursor(connID string, pt canvas.Point) bool {
	return r.mutate(connID, func(p *protocol.Participant) {
		p.Cursor = &pt
	})
}

func (r *Registry) UpdateSelection(connID string, ids []string) bool {
	return r.mutate(connID, func(p *protocol.Participant) {
		p.SelectedObjectIDs = append(make([]string, 0, len(ids)), ids...)
	})
}

func (r *Registry) Rename(connID, name string) bool {
	return r.mutate(connID, func(p *protocol.Participant) {
		p.Name = name
	})
}

// List returns every participant in join order.
func (r *Registry) List() []protocol.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id].Clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

func (r *Registry) mutate(connID string, fn func(p *protocol.Participant)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[connID]
	if !ok {
		return false
	}
	fn(p)
	return true
}
