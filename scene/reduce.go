// Package scene reduces the per-frame captions and object labels of one video into a
// single scene-level Activity.
//
// The reduction is deterministic and depends on frame order only through its
// tie-breaks: the first qualifying token wins the activity phrase, and objects with
// equal counts are ranked by first occurrence.
//
//	var st scene.State
//	st.AddCaption("a dog running in park")
//	st.AddObjects("dog", "ball", "dog")
//
//	a, ok := scene.Reduce(st, scene.FirstGerund)
//	// a.Activity == "running", a.Confidence == 0.5, a.PrimaryObjects == [dog ball]
package scene

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// MaxPrimaryObjects is the number of labels reported in Activity.PrimaryObjects.
const MaxPrimaryObjects = 3

// Reduce computes the Activity for the given state. It returns false, and a zero
// Activity, when no caption was ever recorded. A nil extract uses FirstGerund.
//
// Reduce is pure: it does not modify state and can be called any number of times.
func Reduce(state State, extract Extractor) (Activity, bool) {
	if state.Empty() {
		return Activity{}, false
	}
	if extract == nil {
		extract = FirstGerund
	}

	text := strings.ToLower(strings.Join(state.Captions, " "))
	phrase, ok := extract(text)
	if !ok {
		phrase = state.Captions[0]
	}

	return Activity{
		Activity:       phrase,
		Confidence:     Confidence(state.Captions),
		PrimaryObjects: PrimaryObjects(state.QualifyingObjects, MaxPrimaryObjects),
	}, true
}

// Confidence is 1/(1+n) where n is the number of distinct captions, compared exactly.
// Identical captions give 0.5 and the value drops as the captions diverge.
func Confidence(captions []string) float64 {
	return 1.0 / float64(1+len(lo.Uniq(captions)))
}

// PrimaryObjects returns up to n labels ordered by descending count. Labels with equal
// counts keep the order in which they first appeared.
func PrimaryObjects(labels []string, n int) []string {
	counts := lo.CountValues(labels)
	ranked := lo.Uniq(labels)
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
