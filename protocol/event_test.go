package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alimasry/go-collab-canvas/canvas"
)

func TestDecode_Events(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "cursor move",
			raw:  `{"event":"cursor:move","data":{"x":1.5,"y":0}}`,
			want: CursorMove{Point: canvas.Point{X: 1.5, Y: 0}},
		},
		{
			name: "delete with ids object",
			raw:  `{"event":"object:delete","data":{"ids":["a","b"]}}`,
			want: ObjectDelete{IDs: []string{"a", "b"}},
		},
		{
			name: "delete with bare array",
			raw:  `{"event":"object:delete","data":["a","a","b"]}`,
			want: ObjectDelete{IDs: []string{"a", "b"}},
		},
		{
			name: "delete with single id",
			raw:  `{"event":"object:delete","data":"a"}`,
			want: ObjectDelete{IDs: []string{"a"}},
		},
		{
			name: "delete with single id in object",
			raw:  `{"event":"object:delete","data":{"ids":"a"}}`,
			want: ObjectDelete{IDs: []string{"a"}},
		},
		{
			name: "select bare array",
			raw:  `{"event":"object:select","data":["a"]}`,
			want: ObjectSelect{IDs: []string{"a"}},
		},
		{
			name: "select cleared",
			raw:  `{"event":"object:select","data":{"ids":[]}}`,
			want: ObjectSelect{IDs: []string{}},
		},
		{
			name: "viewport",
			raw:  `{"event":"viewport:update","data":{"zoom":2,"panX":3,"panY":4}}`,
			want: ViewportUpdate{Viewport: canvas.Viewport{Zoom: 2, PanX: 3, PanY: 4}},
		},
		{
			name: "group",
			raw:  `{"event":"object:group","data":{"ids":["a","b"]}}`,
			want: ObjectGroup{IDs: []string{"a", "b"}},
		},
		{
			name: "ungroup",
			raw:  `{"event":"object:ungroup","data":{"groupId":"g1"}}`,
			want: ObjectUngroup{GroupID: "g1"},
		},
		{
			name: "ungroup bare id",
			raw:  `{"event":"object:ungroup","data":"g1"}`,
			want: ObjectUngroup{GroupID: "g1"},
		},
		{
			name: "clear",
			raw:  `{"event":"canvas:clear"}`,
			want: CanvasClear{},
		},
		{
			name: "rename trims",
			raw:  `{"event":"participant:rename","data":{"name":"  Ada  "}}`,
			want: ParticipantRename{Name: "Ada"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Kind(), got.Kind())
		})
	}
}

func TestDecode_ObjectCreate(t *testing.T) {
	raw := `{"event":"object:create","data":{"id":null,"type":"asset","assetName":"start.png",
		"position":{"x":10,"y":20},"scale":1,"rotation":0,"zIndex":0}}`

	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	create, ok := ev.(ObjectCreate)
	require.True(t, ok)
	assert.Empty(t, create.Object.ID)
	assert.Equal(t, "start.png", create.Object.AssetName)
	assert.Equal(t, canvas.Point{X: 10, Y: 20}, *create.Object.Position)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"event":`},
		{"cursor missing y", `{"event":"cursor:move","data":{"x":1}}`},
		{"cursor wrong type", `{"event":"cursor:move","data":{"x":"1","y":2}}`},
		{"create missing data", `{"event":"object:create"}`},
		{"create missing position", `{"event":"object:create","data":{"type":"asset","assetName":"a.png"}}`},
		{"create wrong type", `{"event":"object:create","data":{"type":"circle","position":{"x":0,"y":0}}}`},
		{"create asset without name", `{"event":"object:create","data":{"type":"asset","position":{"x":0,"y":0}}}`},
		{"create group", `{"event":"object:create","data":{"type":"group","position":{"x":0,"y":0},"members":[{"id":"a","type":"text","text":"x","position":{"x":0,"y":0}}]}}`},
		{"update without id", `{"event":"object:update","data":{"type":"text","text":"x","position":{"x":0,"y":0}}}`},
		{"update position wrong type", `{"event":"object:update","data":{"id":"a","type":"text","text":"x","position":"here"}}`},
		{"delete empty", `{"event":"object:delete","data":[]}`},
		{"delete null", `{"event":"object:delete","data":null}`},
		{"delete ids null", `{"event":"object:delete","data":{"ids":null}}`},
		{"delete numbers", `{"event":"object:delete","data":[1,2]}`},
		{"delete empty id", `{"event":"object:delete","data":[""]}`},
		{"viewport zero zoom", `{"event":"viewport:update","data":{"zoom":0}}`},
		{"group empty", `{"event":"object:group","data":{"ids":[]}}`},
		{"ungroup missing", `{"event":"object:ungroup","data":{}}`},
		{"rename blank", `{"event":"participant:rename","data":{"name":"   "}}`},
		{"rename too long", `{"event":"participant:rename","data":{"name":"` + longName() + `"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
		})
	}
}

func longName() string {
	b := make([]byte, MaxNameLength+1)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"object:explode","data":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestMessage_Encode(t *testing.T) {
	b := Message{Event: EventParticipantLeft, Data: ParticipantLeft{ParticipantID: "p1"}}.Encode()
	assert.JSONEq(t, `{"event":"participant:left","data":{"participantId":"p1"}}`, string(b))
}

func TestAudiences_CoverEveryInboundEvent(t *testing.T) {
	for name := range decoders {
		_, ok := Audiences[name]
		assert.True(t, ok, "no audience for %s", name)
	}
	assert.Equal(t, AudienceAll, Audiences[EventObjectCreate])
	assert.Equal(t, AudienceOthers, Audiences[EventObjectUpdate])
}
