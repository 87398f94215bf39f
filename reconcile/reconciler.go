// Package reconcile merges relay broadcasts into a local view of the canvas.
// Every event is applied idempotently: replaying a message the view already
// reflects leaves it unchanged.
package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/alimasry/go-collab-canvas/canvas"
	"github.com/alimasry/go-collab-canvas/protocol"
	"github.com/alimasry/go-collab-canvas/store"
)

// Reconciler is a participant's local render list.
type Reconciler struct {
	mu sync.RWMutex

	selfID   string
	seq      int
	objects  map[string]entry
	viewport canvas.Viewport

	order        []string
	participants map[string]protocol.Participant
}

// entry remembers arrival order so objects with equal zIndex keep a stable
// paint order.
type entry struct {
	obj canvas.Object
	seq int
}

func New() *Reconciler {
	return &Reconciler{
		objects:      make(map[string]entry),
		viewport:     canvas.DefaultViewport(),
		participants: make(map[string]protocol.Participant),
	}
}

// Apply merges one envelope. Unknown events are ignored so that older
// clients tolerate newer servers.
func (r *Reconciler) Apply(env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Event {
	case protocol.EventInit:
		var p protocol.Init
		if err := decode(env, &p); err != nil {
			return err
		}
		r.reset(p)

	case protocol.EventParticipantJoined:
		var p protocol.Participant
		if err := decode(env, &p); err != nil {
			return err
		}
		r.upsertParticipant(p)

	case protocol.EventParticipantLeft:
		var p protocol.ParticipantLeft
		if err := decode(env, &p); err != nil {
			return err
		}
		r.removeParticipant(p.ParticipantID)

	case protocol.EventParticipantRenamed:
		var p protocol.ParticipantRenamed
		if err := decode(env, &p); err != nil {
			return err
		}
		r.mutateParticipant(p.ParticipantID, func(pt *protocol.Participant) { pt.Name = p.Name })

	case protocol.EventCursorUpdate:
		var p protocol.CursorUpdate
		if err := decode(env, &p); err != nil {
			return err
		}
		r.mutateParticipant(p.ParticipantID, func(pt *protocol.Participant) {
			cur := p.Cursor
			pt.Cursor = &cur
		})

	case protocol.EventSelectionChanged:
		var p protocol.SelectionChanged
		if err := decode(env, &p); err != nil {
			return err
		}
		r.mutateParticipant(p.ParticipantID, func(pt *protocol.Participant) {
			pt.SelectedObjectIDs = append([]string{}, p.IDs...)
		})

	case protocol.EventObjectCreated:
		var obj canvas.Object
		if err := decode(env, &obj); err != nil {
			return err
		}
		r.put(obj)

	case protocol.EventObjectUpdated:
		var obj canvas.Object
		if err := decode(env, &obj); err != nil {
			return err
		}
		if e, ok := r.objects[obj.ID]; ok {
			e.obj = obj
			r.objects[obj.ID] = e
		}

	case protocol.EventObjectDeleted:
		var p protocol.ObjectsDeleted
		if err := decode(env, &p); err != nil {
			return err
		}
		r.remove(p.IDs...)

	case protocol.EventViewportUpdated:
		var v canvas.Viewport
		if err := decode(env, &v); err != nil {
			return err
		}
		r.viewport = v

	case protocol.EventCanvasCleared:
		r.objects = make(map[string]entry)
		r.forEachParticipant(func(p *protocol.Participant) { p.SelectedObjectIDs = []string{} })

	case protocol.EventObjectGrouped:
		var p protocol.ObjectGrouped
		if err := decode(env, &p); err != nil {
			return err
		}
		for _, m := range p.Members {
			r.remove(m.ID)
		}
		r.put(p.Group)

	case protocol.EventObjectUngrouped:
		var p protocol.ObjectUngrouped
		if err := decode(env, &p); err != nil {
			return err
		}
		r.remove(p.GroupID)
		for _, m := range p.Members {
			r.put(m)
		}
	}
	return nil
}

// SelfID is the identifier the relay assigned to this participant.
func (r *Reconciler) SelfID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfID
}

// Objects returns the render list in paint order: ascending zIndex, ties
// broken by arrival.
func (r *Reconciler) Objects() []canvas.Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]entry, 0, len(r.objects))
	for _, e := range r.objects {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].obj.ZIndex != entries[j].obj.ZIndex {
			return entries[i].obj.ZIndex < entries[j].obj.ZIndex
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]canvas.Object, len(entries))
	for i, e := range entries {
		out[i] = e.obj.Clone()
	}
	return out
}

func (r *Reconciler) Object(id string) (canvas.Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.objects[id]
	if !ok {
		return canvas.Object{}, false
	}
	return e.obj.Clone(), true
}

func (r *Reconciler) Viewport() canvas.Viewport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewport
}

// Participants returns the roster in join order.
func (r *Reconciler) Participants() []protocol.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.participants[id].Clone())
	}
	return out
}

func (r *Reconciler) Participant(id string) (protocol.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return protocol.Participant{}, false
	}
	return p.Clone(), true
}

// Snapshot returns the local view in the same shape the relay uses for init.
func (r *Reconciler) Snapshot() store.State {
	objs := r.Objects()
	return store.State{Objects: objs, Viewport: r.Viewport()}
}

func (r *Reconciler) reset(p protocol.Init) {
	r.selfID = p.SelfID
	r.objects = make(map[string]entry, len(p.State.Objects))
	for _, o := range p.State.Objects {
		r.put(o)
	}
	r.viewport = p.State.Viewport
	r.order = nil
	r.participants = make(map[string]protocol.Participant, len(p.Participants))
	for _, pt := range p.Participants {
		r.upsertParticipant(pt)
	}
}

// put inserts or replaces obj. A replacement keeps its original arrival slot.
func (r *Reconciler) put(obj canvas.Object) {
	if e, ok := r.objects[obj.ID]; ok {
		e.obj = obj
		r.objects[obj.ID] = e
		return
	}
	r.seq++
	r.objects[obj.ID] = entry{obj: obj, seq: r.seq}
}

// remove deletes ids and drops them from every participant's selection.
func (r *Reconciler) remove(ids ...string) {
	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := r.objects[id]; ok {
			delete(r.objects, id)
			gone[id] = struct{}{}
		}
	}
	if len(gone) == 0 {
		return
	}
	r.forEachParticipant(func(p *protocol.Participant) {
		kept := p.SelectedObjectIDs[:0]
		for _, id := range p.SelectedObjectIDs {
			if _, ok := gone[id]; !ok {
				kept = append(kept, id)
			}
		}
		p.SelectedObjectIDs = kept
	})
}

func (r *Reconciler) upsertParticipant(p protocol.Participant) {
	if _, ok := r.participants[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.participants[p.ID] = p.Clone()
}

func (r *Reconciler) removeParticipant(id string) {
	if _, ok := r.participants[id]; !ok {
		return
	}
	delete(r.participants, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// mutateParticipant applies fn to a known participant. Events about
// participants that already left are dropped.
func (r *Reconciler) mutateParticipant(id string, fn func(p *protocol.Participant)) {
	p, ok := r.participants[id]
	if !ok {
		return
	}
	fn(&p)
	r.participants[id] = p
}

func (r *Reconciler) forEachParticipant(fn func(p *protocol.Participant)) {
	for id, p := range r.participants {
		fn(&p)
		r.participants[id] = p
	}
}

func decode(env protocol.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("reconcile: decode %s: %w", env.Event, err)
	}
	return nil
}
