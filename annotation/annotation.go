// Package annotation defines the per-frame record that analysis plugins read and
// extend as a frame moves through the pipeline.
//
// A Frame has a fixed set of core fields that every plugin understands, plus a
// Metadata slot where plugins can attach their own keys without changing the shared
// type. Upstream producers that only speak loosely typed maps go through FromMap and
// ToMap.
package annotation

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// Keys of the core fields when a Frame is represented as a map.
const (
	KeyIndex           = "index"
	KeySourceID        = "source_id"
	KeyObjects         = "objects"
	KeyActivityCaption = "activity_caption"
	KeyLabel           = "label"
	KeyConfidence      = "confidence"
)

// Object is a single object detection reported by an upstream detector.
//
// Upstream records are not trusted: a detection missing its label or confidence is
// kept as-is but reports Valid() == false. A label that is present but empty is
// still a label.
type Object struct {
	Label      string   `json:"label,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`

	// emptyLabel is set when the label is present and "". A zero Label alone means
	// the label is missing.
	emptyLabel bool
}

// NewObject returns a well-formed Object.
func NewObject(label string, confidence float64) Object {
	return Object{Label: label, Confidence: &confidence, emptyLabel: label == ""}
}

// Valid returns true if the detection has both a label and a confidence.
func (o Object) Valid() bool {
	return o.hasLabel() && o.Confidence != nil
}

func (o Object) hasLabel() bool {
	return o.Label != "" || o.emptyLabel
}

// Frame is the annotation for one decoded video frame.
type Frame struct {
	// Index is the position of the frame in capture order.
	Index int `json:"index" mapstructure:"index"`
	// SourceID identifies the video the frame came from.
	SourceID string `json:"source_id,omitempty" mapstructure:"source_id"`
	// Objects are the upstream detections, in the order the detector reported them.
	// A nil slice is the same as no detections.
	Objects []Object `json:"objects,omitempty" mapstructure:"-"`
	// ActivityCaption is the caption written by the activity plugin.
	ActivityCaption string `json:"activity_caption,omitempty" mapstructure:"activity_caption"`
	// Metadata carries any additional per-plugin fields.
	Metadata map[string]any `json:"metadata,omitempty" mapstructure:",remain"`
}

// Set stores a plugin-specific value in the metadata slot.
func (f *Frame) Set(key string, value any) {
	if f.Metadata == nil {
		f.Metadata = make(map[string]any)
	}
	f.Metadata[key] = value
}

// Get returns a plugin-specific value from the metadata slot.
func (f *Frame) Get(key string) (any, bool) {
	v, ok := f.Metadata[key]
	return v, ok
}

// FromMap builds a Frame from a loosely typed upstream record. Core keys populate the
// matching fields and every other key is kept in Metadata.
//
// The objects entry never causes an error: entries that are not maps, or that lack a
// usable label or confidence, become malformed Objects. An error is returned only if a
// core scalar field has an unusable type.
func FromMap(m map[string]any) (*Frame, error) {
	rest := make(map[string]any, len(m))
	for k, v := range m {
		if k == KeyObjects {
			continue
		}
		rest[k] = v
	}

	f := &Frame{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           f,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(rest); err != nil {
		return nil, fmt.Errorf("decoding frame annotation: %w", err)
	}
	if len(f.Metadata) == 0 {
		f.Metadata = nil
	}

	f.Objects = decodeObjects(m[KeyObjects])
	return f, nil
}

// ToMap returns the loosely typed representation of the frame. Metadata keys are
// merged at the top level; core fields take precedence on collision.
func (f *Frame) ToMap() map[string]any {
	m := make(map[string]any, len(f.Metadata)+4)
	maps.Copy(m, f.Metadata)

	m[KeyIndex] = f.Index
	if f.SourceID != "" {
		m[KeySourceID] = f.SourceID
	}
	if f.ActivityCaption != "" {
		m[KeyActivityCaption] = f.ActivityCaption
	}
	if f.Objects != nil {
		objs := make([]map[string]any, 0, len(f.Objects))
		for _, o := range f.Objects {
			om := make(map[string]any, 2)
			if o.hasLabel() {
				om[KeyLabel] = o.Label
			}
			if o.Confidence != nil {
				om[KeyConfidence] = *o.Confidence
			}
			objs = append(objs, om)
		}
		m[KeyObjects] = objs
	}
	return m
}

func decodeObjects(raw any) []Object {
	switch v := raw.(type) {
	case []Object:
		return append([]Object(nil), v...)
	case []map[string]any:
		objs := make([]Object, 0, len(v))
		for _, om := range v {
			objs = append(objs, objectFromMap(om))
		}
		return objs
	case []any:
		objs := make([]Object, 0, len(v))
		for _, entry := range v {
			om, ok := entry.(map[string]any)
			if !ok {
				objs = append(objs, Object{})
				continue
			}
			objs = append(objs, objectFromMap(om))
		}
		return objs
	default:
		return nil
	}
}

func objectFromMap(m map[string]any) Object {
	var obj Object
	if label, ok := m[KeyLabel].(string); ok {
		obj.Label = label
		obj.emptyLabel = label == ""
	}
	if conf, ok := toFloat(m[KeyConfidence]); ok {
		obj.Confidence = &conf
	}
	return obj
}

// toFloat accepts any numeric kind, including json.Number.
func toFloat(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return 0, false
	case rv.CanFloat():
		return rv.Float(), true
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	default:
		return 0, false
	}
}
