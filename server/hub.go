package server

import (
	"sort"
	"sync"
	"time"
)

// DefaultRoom is the room served at /ws.
const DefaultRoom = "default"

// Hub manages rooms and routes clients to the right relay. Rooms are
// independent canvases created on first use. Named rooms are released once
// they have been empty for Options.RoomIdleTimeout; the default room lives
// as long as the hub.
type Hub struct {
	opts Options

	mu     sync.RWMutex
	relays map[string]*Relay
	closed bool
}

func NewHub(opts Options) *Hub {
	return &Hub{
		opts:   opts.withDefaults(),
		relays: make(map[string]*Relay),
	}
}

// Relay returns the relay for room, starting it if it does not exist yet.
// It returns nil once the hub is closed.
func (h *Hub) Relay(room string) *Relay {
	h.mu.RLock()
	r, ok := h.relays[room]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if r, ok := h.relays[room]; ok {
		return r
	}
	return h.startRelay(room)
}

// startRelay must be called with h.mu held.
func (h *Hub) startRelay(room string) *Relay {
	r := NewRelay(room, h.opts)
	if room != DefaultRoom {
		r.onEmpty = h.scheduleRelease
		// Covers rooms that are opened but never joined.
		h.scheduleRelease(r)
	}
	h.relays[room] = r
	go r.Run()
	return r
}

func (h *Hub) scheduleRelease(r *Relay) {
	time.AfterFunc(h.opts.RoomIdleTimeout, func() { h.release(r) })
}

// release drops r if it is still the room's relay and still empty.
func (h *Hub) release(r *Relay) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.relays[r.room] != r || !r.retire() {
		return false
	}
	delete(h.relays, r.room)
	r.log.Info("idle room released")
	return true
}

// GetRelay returns the relay for room, if active.
func (h *Hub) GetRelay(room string) *Relay {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.relays[room]
}

// HubStats summarises every active room.
type HubStats struct {
	Rooms        int              `json:"rooms"`
	Participants int              `json:"participants"`
	Objects      int              `json:"objects"`
	PerRoom      map[string]Stats `json:"perRoom"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := HubStats{Rooms: len(h.relays), PerRoom: make(map[string]Stats, len(h.relays))}
	for name, r := range h.relays {
		s := r.Stats()
		out.Participants += s.Participants
		out.Objects += s.Objects
		out.PerRoom[name] = s
	}
	return out
}

// Rooms lists active room names in sorted order.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.relays))
	for name := range h.relays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops every relay. Relay returns nil afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, r := range h.relays {
		r.Close()
	}
}
