package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimasry/go-collab-canvas/canvas"
	"github.com/alimasry/go-collab-canvas/protocol"
	"github.com/alimasry/go-collab-canvas/store"
)

func env(event string, data any) protocol.Envelope {
	msg := protocol.Message{Event: event, Data: data}.Encode()
	var e protocol.Envelope
	if err := json.Unmarshal(msg, &e); err != nil {
		panic(err)
	}
	return e
}

func asset(id string, x float64, z int) canvas.Object {
	return canvas.Object{
		ID:        id,
		Type:      canvas.TypeAsset,
		AssetName: id + ".png",
		Position:  &canvas.Point{X: x},
		Scale:     1,
		ZIndex:    z,
	}
}

func apply(t *testing.T, r *Reconciler, envs ...protocol.Envelope) {
	t.Helper()
	for _, e := range envs {
		require.NoError(t, r.Apply(e))
	}
}

func ids(objs []canvas.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.ID
	}
	return out
}

func seeded(t *testing.T) *Reconciler {
	t.Helper()
	r := New()
	apply(t, r, env(protocol.EventInit, protocol.Init{
		State: store.State{
			Objects:  []canvas.Object{asset("a", 0, 2), asset("b", 0, 1)},
			Viewport: canvas.DefaultViewport(),
		},
		Participants: []protocol.Participant{
			{ID: "p1", Name: "User 1", Color: "#111", SelectedObjectIDs: []string{}},
			{ID: "p2", Name: "User 2", Color: "#222", SelectedObjectIDs: []string{"a"}},
		},
		SelfID: "p1",
	}))
	return r
}

func TestReconciler_InitReplacesEverything(t *testing.T) {
	r := seeded(t)
	apply(t, r, env(protocol.EventObjectCreated, asset("stale", 0, 0)))

	apply(t, r, env(protocol.EventInit, protocol.Init{
		State:        store.State{Objects: []canvas.Object{asset("fresh", 0, 0)}, Viewport: canvas.Viewport{Zoom: 2}},
		Participants: []protocol.Participant{{ID: "p9", SelectedObjectIDs: []string{}}},
		SelfID:       "p9",
	}))

	assert.Equal(t, "p9", r.SelfID())
	assert.Equal(t, []string{"fresh"}, ids(r.Objects()))
	assert.Equal(t, canvas.Viewport{Zoom: 2}, r.Viewport())
	require.Len(t, r.Participants(), 1)
}

func TestReconciler_ObjectsInPaintOrder(t *testing.T) {
	r := seeded(t)
	apply(t, r,
		env(protocol.EventObjectCreated, asset("c", 0, 1)),
		env(protocol.EventObjectCreated, asset("d", 0, 0)),
	)
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids(r.Objects()))
}

func TestReconciler_CreateIsUpsert(t *testing.T) {
	r := seeded(t)
	created := env(protocol.EventObjectCreated, asset("c", 5, 3))
	apply(t, r, created, created)

	assert.Len(t, r.Objects(), 3)
	obj, ok := r.Object("c")
	require.True(t, ok)
	assert.Equal(t, 5.0, obj.Position.X)
}

func TestReconciler_UpdateOnlyTouchesExisting(t *testing.T) {
	r := seeded(t)
	moved := asset("a", 42, 2)
	upd := env(protocol.EventObjectUpdated, moved)
	apply(t, r, upd, upd)

	obj, _ := r.Object("a")
	assert.Equal(t, 42.0, obj.Position.X)

	apply(t, r, env(protocol.EventObjectDeleted, protocol.ObjectsDeleted{IDs: []string{"a"}}), upd)
	_, ok := r.Object("a")
	assert.False(t, ok, "update must not resurrect a deleted object")
}

func TestReconciler_DeleteIsIdempotent(t *testing.T) {
	r := seeded(t)
	del := env(protocol.EventObjectDeleted, protocol.ObjectsDeleted{IDs: []string{"a", "ghost"}})

	apply(t, r, del)
	once := r.Snapshot()
	apply(t, r, del)
	assert.Equal(t, once, r.Snapshot())
	assert.Equal(t, []string{"b"}, ids(r.Objects()))

	p2, _ := r.Participant("p2")
	assert.Empty(t, p2.SelectedObjectIDs, "selections drop deleted objects")
}

func TestReconciler_Participants(t *testing.T) {
	r := seeded(t)
	joined := env(protocol.EventParticipantJoined, protocol.Participant{ID: "p3", Name: "User 3", SelectedObjectIDs: []string{}})
	apply(t, r, joined, joined,
		env(protocol.EventCursorUpdate, protocol.CursorUpdate{ParticipantID: "p3", Cursor: canvas.Point{X: 1, Y: 2}}),
		env(protocol.EventSelectionChanged, protocol.SelectionChanged{ParticipantID: "p3", IDs: []string{"b"}}),
		env(protocol.EventParticipantRenamed, protocol.ParticipantRenamed{ParticipantID: "p3", Name: "Ada"}),
	)

	require.Len(t, r.Participants(), 3)
	p3, ok := r.Participant("p3")
	require.True(t, ok)
	assert.Equal(t, "Ada", p3.Name)
	assert.Equal(t, &canvas.Point{X: 1, Y: 2}, p3.Cursor)
	assert.Equal(t, []string{"b"}, p3.SelectedObjectIDs)

	left := env(protocol.EventParticipantLeft, protocol.ParticipantLeft{ParticipantID: "p3"})
	apply(t, r, left, left)
	_, ok = r.Participant("p3")
	assert.False(t, ok)
	assert.Len(t, r.Participants(), 2)

	// Late cursor traffic for a departed participant is ignored.
	apply(t, r, env(protocol.EventCursorUpdate, protocol.CursorUpdate{ParticipantID: "p3"}))
	_, ok = r.Participant("p3")
	assert.False(t, ok)
}

func TestReconciler_GroupAndUngroup(t *testing.T) {
	r := seeded(t)
	a, b := asset("a", 0, 2), asset("b", 0, 1)
	group := canvas.Object{
		ID: "g1", Type: canvas.TypeGroup, Position: &canvas.Point{}, Scale: 1, ZIndex: 3,
		MemberIDs: []string{"a", "b"}, Members: []canvas.Object{a, b},
	}

	grouped := env(protocol.EventObjectGrouped, protocol.ObjectGrouped{Group: group, Members: []canvas.Object{a, b}})
	apply(t, r, grouped, grouped)
	assert.Equal(t, []string{"g1"}, ids(r.Objects()))

	ungrouped := env(protocol.EventObjectUngrouped, protocol.ObjectUngrouped{GroupID: "g1", Members: []canvas.Object{a, b}})
	apply(t, r, ungrouped, ungrouped)
	assert.Equal(t, []string{"b", "a"}, ids(r.Objects()))
}

func TestReconciler_ClearAndViewport(t *testing.T) {
	r := seeded(t)
	cleared := env(protocol.EventCanvasCleared, protocol.CanvasCleared{ParticipantID: "p2"})
	apply(t, r, cleared, cleared,
		env(protocol.EventViewportUpdated, canvas.Viewport{Zoom: 3, PanX: 1}),
	)
	assert.Empty(t, r.Objects())
	assert.Equal(t, canvas.Viewport{Zoom: 3, PanX: 1}, r.Viewport())
	p2, _ := r.Participant("p2")
	assert.Empty(t, p2.SelectedObjectIDs)
}

func TestReconciler_Errors(t *testing.T) {
	r := New()
	err := r.Apply(protocol.Envelope{Event: protocol.EventObjectCreated, Data: []byte(`"nope"`)})
	assert.ErrorContains(t, err, protocol.EventObjectCreated)

	assert.NoError(t, r.Apply(protocol.Envelope{Event: "future:event", Data: []byte(`{}`)}))
}
