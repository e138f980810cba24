package layout

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of a layout.
type Document struct {
	Constraints `yaml:",inline"`
	Components  []*Component  `json:"components" yaml:"components"`
	Beams       []BeamSegment `json:"beams,omitempty" yaml:"beams,omitempty"`
}

// ValidationError describes an invalid layout document.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "layout: " + e.Field + " " + e.Reason
}

// Validate checks a document for structural errors. Beams that reference
// unknown components are allowed; the optimizer skips them.
func (d *Document) Validate() error {
	if d.Workspace.Width() <= 0 || d.Workspace.Height() <= 0 {
		return &ValidationError{Field: "workspace", Reason: "must have positive width and height"}
	}
	seen := make(map[string]bool, len(d.Components))
	for i, c := range d.Components {
		if c == nil {
			return &ValidationError{Field: fmt.Sprintf("components[%d]", i), Reason: "cannot be null"}
		}
		if c.ID == "" {
			return &ValidationError{Field: fmt.Sprintf("components[%d].id", i), Reason: "cannot be empty"}
		}
		if seen[c.ID] {
			return &ValidationError{Field: fmt.Sprintf("components[%d].id", i), Reason: "duplicate id " + c.ID}
		}
		if c.Size.Width < 0 || c.Size.Height < 0 {
			return &ValidationError{Field: fmt.Sprintf("components[%d].size", i), Reason: "cannot be negative"}
		}
		seen[c.ID] = true
	}
	beamIDs := make(map[string]bool, len(d.Beams))
	for i, b := range d.Beams {
		id := b.ID
		if id == "" {
			id = DefaultSegmentID(i)
		}
		if beamIDs[id] {
			return &ValidationError{Field: fmt.Sprintf("beams[%d].id", i), Reason: "duplicate id " + id}
		}
		beamIDs[id] = true
		if b.IsFixedLength && b.FixedLength <= 0 {
			return &ValidationError{Field: fmt.Sprintf("beams[%d].fixedLength", i), Reason: "must be positive for fixed-length beams"}
		}
		if !seen[b.SourceID] || !seen[b.TargetID] {
			slog.Warn("Beam references unknown component, it will be ignored",
				"beam", i, "source", b.SourceID, "target", b.TargetID)
		}
	}
	return nil
}

// State converts the document into a live State.
func (d *Document) State() *State {
	comps := make([]*Component, len(d.Components))
	for i, c := range d.Components {
		comps[i] = c.Clone()
	}
	return NewState(d.Constraints, comps, d.Beams)
}

// DocumentFrom captures a State as a document with components in id order.
func DocumentFrom(s *State) *Document {
	d := &Document{Constraints: s.Constraints, Beams: s.Beams.All()}
	for _, id := range s.IDs() {
		d.Components = append(d.Components, s.Components[id].Clone())
	}
	return d
}

// Decode parses a JSON or YAML layout. format is "json" or "yaml".
func Decode(data []byte, format string) (*Document, error) {
	var doc Document
	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode JSON layout: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode YAML layout: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported layout format: %s", format)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Encode serializes a document as JSON or YAML.
func Encode(doc *Document, format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(doc, "", "  ")
	case "yaml":
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported layout format: %s", format)
	}
}

// FormatFor picks the layout format from a file extension.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Load reads and validates a layout file.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	doc, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, err
	}
	slog.Debug("Layout loaded", "path", path, "components", len(doc.Components), "beams", len(doc.Beams))
	return doc.State(), nil
}

// Save writes s to path, using temp file + rename.
func Save(path string, s *State) error {
	data, err := Encode(DocumentFrom(s), FormatFor(path))
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write layout: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename layout file: %w", err)
	}
	return nil
}
