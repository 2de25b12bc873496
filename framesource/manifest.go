// Package framesource reads the frames of one video from disk.
//
// A video is described by a JSON manifest that lists its frame images in capture
// order together with the detections an upstream detector produced for each frame:
//
//	{
//	  "source_id": "clip-0001",
//	  "frames": [
//	    {"image": "0001.jpg", "objects": [{"label": "dog", "confidence": 0.91}]},
//	    {"image": "0002.jpg", "objects": []}
//	  ]
//	}
//
// Image paths are relative to the manifest's directory. Any other keys on a frame
// record are kept in the annotation's metadata.
package framesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/nomis52/scenecap/annotation"
	"github.com/nomis52/scenecap/pipeline"
)

// KeyImage is the frame record key holding the image path.
const KeyImage = "image"

type manifest struct {
	SourceID string           `json:"source_id"`
	Frames   []map[string]any `json:"frames"`
}

// Manifest is a pipeline.Source over the frames listed in a manifest file.
// Images are decoded lazily, one per call to Next.
type Manifest struct {
	dir      string
	sourceID string
	records  []map[string]any
	pos      int
}

// Open reads the manifest at path. When the manifest has no source_id the file name
// without its extension is used.
func Open(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	m, err := Parse(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.sourceID == "" {
		base := filepath.Base(path)
		m.sourceID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return m, nil
}

// Parse reads a manifest from r. Relative image paths are resolved against dir.
func Parse(r io.Reader, dir string) (*Manifest, error) {
	var raw manifest
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	for i, rec := range raw.Frames {
		if rec == nil {
			return nil, fmt.Errorf("frame %d: empty record", i)
		}
		if p, _ := rec[KeyImage].(string); p == "" {
			return nil, fmt.Errorf("frame %d: missing %q", i, KeyImage)
		}
	}
	return &Manifest{dir: dir, sourceID: raw.SourceID, records: raw.Frames}, nil
}

// SourceID returns the video identifier.
func (m *Manifest) SourceID() string {
	return m.sourceID
}

// Len returns the number of frames in the manifest.
func (m *Manifest) Len() int {
	return len(m.records)
}

// Next decodes the next frame. It returns io.EOF after the last frame.
func (m *Manifest) Next(ctx context.Context) (pipeline.Frame, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Frame{}, err
	}
	if m.pos >= len(m.records) {
		return pipeline.Frame{}, io.EOF
	}
	idx := m.pos
	m.pos++

	rec := make(map[string]any, len(m.records[idx]))
	for k, v := range m.records[idx] {
		if k != KeyImage {
			rec[k] = v
		}
	}
	ann, err := annotation.FromMap(rec)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("frame %d: %w", idx, err)
	}
	if _, ok := rec[annotation.KeyIndex]; !ok {
		ann.Index = idx
	}
	if ann.SourceID == "" {
		ann.SourceID = m.sourceID
	}

	path := m.records[idx][KeyImage].(string)
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.dir, path)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("frame %d: loading image: %w", idx, err)
	}
	return pipeline.Frame{Image: img, Annotation: ann}, nil
}

var _ pipeline.Source = (*Manifest)(nil)
