package scene

import (
	"slices"

	"github.com/nomis52/scenecap/annotation"
)

// ObjectThreshold is the confidence an object detection must strictly exceed to count
// towards the primary objects of a scene.
const ObjectThreshold = 0.4

// State is the append-only record built up while frames are processed.
//
// State has no locking of its own. It is owned by a single writer (one plugin per
// video) and must not be shared between videos.
type State struct {
	// Captions holds one caption per successfully captioned frame, in frame order.
	Captions []string
	// QualifyingObjects holds one label per detection above ObjectThreshold, in
	// encounter order across all frames.
	QualifyingObjects []string
}

// AddCaption appends a caption.
func (s *State) AddCaption(caption string) {
	s.Captions = append(s.Captions, caption)
}

// AddObjects appends qualifying object labels. Nothing is deduplicated.
func (s *State) AddObjects(labels ...string) {
	s.QualifyingObjects = append(s.QualifyingObjects, labels...)
}

// Empty returns true if no caption has been recorded.
func (s State) Empty() bool {
	return len(s.Captions) == 0
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	return State{
		Captions:          slices.Clone(s.Captions),
		QualifyingObjects: slices.Clone(s.QualifyingObjects),
	}
}

// Qualifies returns true if a detection with the given confidence counts as a
// qualifying object.
func Qualifies(confidence float64) bool {
	return confidence > ObjectThreshold
}

// QualifyingLabels returns the labels of the valid objects whose confidence exceeds
// ObjectThreshold, preserving their order. Malformed objects are skipped.
func QualifyingLabels(objects []annotation.Object) []string {
	var labels []string
	for _, obj := range objects {
		if !obj.Valid() || !Qualifies(*obj.Confidence) {
			continue
		}
		labels = append(labels, obj.Label)
	}
	return labels
}
