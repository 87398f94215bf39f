package canvas

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Object types.
const (
	TypeAsset = "asset"
	TypeText  = "text"
	TypeGroup = "group"
)

// Point is a position in canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the camera over the canvas.
type Viewport struct {
	Zoom float64 `json:"zoom" validate:"gt=0"`
	PanX float64 `json:"panX"`
	PanY float64 `json:"panY"`
}

// DefaultViewport is the viewport of an empty canvas.
func DefaultViewport() Viewport {
	return Viewport{Zoom: 1}
}

// Object is a diagram element. Asset and text objects are created by
// clients; group objects are synthesized by the store.
type Object struct {
	ID       string  `json:"id"`
	Type     string  `json:"type" validate:"required,oneof=asset text group"`
	Position *Point  `json:"position" validate:"required"`
	Rotation float64 `json:"rotation"`
	Scale    float64 `json:"scale,omitempty" validate:"gte=0"`
	ZIndex   int     `json:"zIndex"`

	AssetName string `json:"assetName,omitempty" validate:"required_if=Type asset"`

	Text       *string `json:"text,omitempty" validate:"required_if=Type text"`
	FontSize   float64 `json:"fontSize,omitempty" validate:"gte=0"`
	FontWeight string  `json:"fontWeight,omitempty"`
	FontStyle  string  `json:"fontStyle,omitempty"`
	TextColor  string  `json:"textColor,omitempty"`
	Width      float64 `json:"width,omitempty" validate:"gte=0"`

	MemberIDs []string `json:"memberIds,omitempty"`
	Members   []Object `json:"members,omitempty" validate:"dive"`
}

// Clone returns a deep copy of o.
func (o Object) Clone() Object {
	c := o
	if o.Position != nil {
		p := *o.Position
		c.Position = &p
	}
	if o.Text != nil {
		t := *o.Text
		c.Text = &t
	}
	if o.MemberIDs != nil {
		c.MemberIDs = append([]string(nil), o.MemberIDs...)
	}
	if o.Members != nil {
		c.Members = CloneAll(o.Members)
	}
	return c
}

// CloneAll deep-copies a slice of objects. A nil slice stays nil.
func CloneAll(objs []Object) []Object {
	if objs == nil {
		return nil
	}
	out := make([]Object, len(objs))
	for i, o := range objs {
		out[i] = o.Clone()
	}
	return out
}

// ErrInvalidObject is returned when an object fails schema validation.
var ErrInvalidObject = errors.New("invalid canvas object")

var validate = validator.New()

// Validate checks the fields required by the object's type. Group objects
// must carry at least one member.
func (o Object) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}
	if o.Type == TypeGroup && len(o.Members) == 0 {
		return fmt.Errorf("%w: group %q has no members", ErrInvalidObject, o.ID)
	}
	return nil
}

// Validate checks the viewport zoom.
func (v Viewport) Validate() error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid viewport: %w", err)
	}
	return nil
}

// Validator exposes the shared validator so other packages validate their
// payload structs with the same rules.
func Validator() *validator.Validate {
	return validate
}
