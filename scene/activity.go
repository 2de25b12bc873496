package scene

import "slices"

// Activity is the scene-level summary of a video.
type Activity struct {
	// Activity is the extracted activity phrase, or the first caption if none was found.
	Activity string `json:"activity"`
	// Confidence is in (0, 1]. It measures caption agreement, not a probability.
	Confidence float64 `json:"confidence"`
	// PrimaryObjects are the most frequent qualifying labels, at most MaxPrimaryObjects.
	PrimaryObjects []string `json:"primary_objects"`
}

// Clone returns a copy that shares no memory with a.
func (a Activity) Clone() Activity {
	a.PrimaryObjects = slices.Clone(a.PrimaryObjects)
	if a.PrimaryObjects == nil {
		a.PrimaryObjects = []string{}
	}
	return a
}

// Record returns the activity as a flat record keyed by its JSON field names.
func (a Activity) Record() map[string]any {
	c := a.Clone()
	return map[string]any{
		"activity":        c.Activity,
		"confidence":      c.Confidence,
		"primary_objects": c.PrimaryObjects,
	}
}

// Summary returns the condensed form of the activity.
func (a Activity) Summary() Summary {
	c := a.Clone()
	return Summary{
		PrimaryActivity: c.Activity,
		Confidence:      c.Confidence,
		PrimaryObjects:  c.PrimaryObjects,
	}
}

// Summary is the condensed per-video output.
type Summary struct {
	PrimaryActivity string   `json:"primary_activity"`
	Confidence      float64  `json:"confidence"`
	PrimaryObjects  []string `json:"primary_objects"`
}

// Record returns the summary as a flat record keyed by its JSON field names.
func (s Summary) Record() map[string]any {
	return map[string]any{
		"primary_activity": s.PrimaryActivity,
		"confidence":       s.Confidence,
		"primary_objects":  slices.Clone(s.PrimaryObjects),
	}
}
