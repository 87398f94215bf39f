package store

import (
	"fmt"
	"math"
	"sync"

	"github.com/alimasry/go-collab-canvas/canvas"
)

// MemoryStore is the in-memory implementation of CanvasStore. Objects are
// kept in insertion order; state is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  []canvas.Object
	viewport canvas.Viewport
	newID    canvas.IDFunc
}

// NewMemoryStore creates an empty store. Missing object ids and group ids
// are drawn from newID.
func NewMemoryStore(newID canvas.IDFunc) *MemoryStore {
	if newID == nil {
		newID = canvas.RandomIDs()
	}
	return &MemoryStore{
		objects:  make([]canvas.Object, 0),
		viewport: canvas.DefaultViewport(),
		newID:    newID,
	}
}

func (s *MemoryStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objs := canvas.CloneAll(s.objects)
	if objs == nil {
		objs = make([]canvas.Object, 0)
	}
	return State{Objects: objs, Viewport: s.viewport}
}

func (s *MemoryStore) Get(id string) (canvas.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return canvas.Object{}, false
	}
	return s.objects[i].Clone(), true
}

func (s *MemoryStore) Create(obj canvas.Object) (canvas.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj.ID == "" {
		obj.ID = s.freshID()
	} else if s.inUse(obj.ID) {
		return canvas.Object{}, fmt.Errorf("create %q: %w", obj.ID, ErrDuplicateID)
	}
	stored := obj.Clone()
	s.objects = append(s.objects, stored)
	return stored.Clone(), nil
}

// Update replaces the stored object with the same id. It reports false when
// no such object exists, or when the update would turn a plain object into a
// group or the reverse.
func (s *MemoryStore) Update(obj canvas.Object) (canvas.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(obj.ID)
	if i < 0 {
		return canvas.Object{}, false
	}
	cur := s.objects[i]
	if (cur.Type == canvas.TypeGroup) != (obj.Type == canvas.TypeGroup) {
		return canvas.Object{}, false
	}
	next := obj.Clone()
	if cur.Type == canvas.TypeGroup {
		// Membership only changes through Group and Ungroup.
		next.MemberIDs = cur.MemberIDs
		next.Members = cur.Members
	}
	s.objects[i] = next
	return next.Clone(), true
}

// Delete removes every top-level object named in ids and returns the ids
// that were actually removed, in canvas order.
func (s *MemoryStore) Delete(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := toSet(ids)
	removed := make([]string, 0, len(ids))
	kept := s.objects[:0]
	for _, o := range s.objects {
		if want[o.ID] {
			removed = append(removed, o.ID)
			continue
		}
		kept = append(kept, o)
	}
	s.objects = kept
	return removed
}

func (s *MemoryStore) SetViewport(v canvas.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = v
}

// Group detaches the named top-level objects and replaces them with a single
// group object painted above everything else. It reports false when none of
// the ids exist.
func (s *MemoryStore) Group(ids []string) (GroupResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := toSet(ids)
	maxZ := math.MinInt
	var members []canvas.Object
	kept := make([]canvas.Object, 0, len(s.objects))
	for _, o := range s.objects {
		if o.ZIndex > maxZ {
			maxZ = o.ZIndex
		}
		if want[o.ID] && o.Type != canvas.TypeGroup {
			members = append(members, o)
			continue
		}
		kept = append(kept, o)
	}
	if len(members) == 0 {
		return GroupResult{}, false
	}

	memberIDs := make([]string, len(members))
	origin := canvas.Point{X: math.Inf(1), Y: math.Inf(1)}
	for i, m := range members {
		memberIDs[i] = m.ID
		if m.Position != nil {
			origin.X = math.Min(origin.X, m.Position.X)
			origin.Y = math.Min(origin.Y, m.Position.Y)
		}
	}
	if math.IsInf(origin.X, 1) {
		origin = canvas.Point{}
	}

	group := canvas.Object{
		ID:        s.freshID(),
		Type:      canvas.TypeGroup,
		Position:  &origin,
		Scale:     1,
		ZIndex:    maxZ + 1,
		MemberIDs: memberIDs,
		Members:   members,
	}
	s.objects = append(kept, group)

	return GroupResult{Group: group.Clone(), Members: canvas.CloneAll(members)}, true
}

// Ungroup removes a group object and puts its members back into the
// top-level sequence where the group stood, unchanged from when they were
// grouped. It reports false when groupID does not name a group.
func (s *MemoryStore) Ungroup(groupID string) ([]canvas.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(groupID)
	if i < 0 || s.objects[i].Type != canvas.TypeGroup {
		return nil, false
	}
	members := s.objects[i].Members

	objs := make([]canvas.Object, 0, len(s.objects)-1+len(members))
	objs = append(objs, s.objects[:i]...)
	objs = append(objs, members...)
	objs = append(objs, s.objects[i+1:]...)
	s.objects = objs

	out := canvas.CloneAll(members)
	if out == nil {
		out = make([]canvas.Object, 0)
	}
	return out, true
}

// Clear removes every object and returns how many were removed. The
// viewport is kept.
func (s *MemoryStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.objects)
	s.objects = make([]canvas.Object, 0)
	return n
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *MemoryStore) indexOf(id string) int {
	for i, o := range s.objects {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// inUse reports whether id names a top-level object or a member held by a
// group. Members return to the top level on ungroup, so their ids stay
// reserved.
func (s *MemoryStore) inUse(id string) bool {
	for _, o := range s.objects {
		if o.ID == id {
			return true
		}
		for _, m := range o.Members {
			if m.ID == id {
				return true
			}
		}
	}
	return false
}

func (s *MemoryStore) freshID() string {
	for {
		id := s.newID()
		if id != "" && !s.inUse(id) {
			return id
		}
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
