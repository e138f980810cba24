package render

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
)

var typeShapes = map[string]string{
	geom.TypeSource:       "cds",
	geom.TypeMirror:       "parallelogram",
	geom.TypeBeamSplitter: "diamond",
	geom.TypeLens:         "ellipse",
	geom.TypeDetector:     "doublecircle",
}

// ToDOT converts the beam graph to Graphviz DOT. Nodes are the components
// in id order, labelled with type and pose; edges are beam segments in
// insertion order. Fixed-length segments are bold and carry their length.
// Segments referring to unknown components are emitted as dashed edges to
// placeholder nodes.
func ToDOT(s *layout.State) string {
	var buf bytes.Buffer
	buf.WriteString("digraph beams {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [style=filled, fillcolor=white, fontsize=12];\n")
	buf.WriteString("\n")

	for _, id := range s.IDs() {
		c := s.Components[id]
		shape, ok := typeShapes[c.Type]
		if !ok {
			shape = "box"
		}
		label := fmt.Sprintf("%s\n%s\n(%.1f, %.1f) %.0f°", c.ID, c.Type, c.Position.X, c.Position.Y, c.Angle)
		attrs := []string{fmt.Sprintf("label=%q", label), "shape=" + shape}
		if c.IsFixed {
			attrs = append(attrs, "fillcolor=lightgrey")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", id, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, seg := range s.Beams.All() {
		var attrs []string
		if seg.SourcePort != "" {
			attrs = append(attrs, fmt.Sprintf("taillabel=%q", seg.SourcePort))
		}
		if seg.IsFixedLength {
			attrs = append(attrs, "style=bold", fmt.Sprintf("label=%q", fmt.Sprintf("%.1f", seg.FixedLength)))
		}
		_, okFrom := s.Components[seg.SourceID]
		_, okTo := s.Components[seg.TargetID]
		if !okFrom || !okTo {
			attrs = append(attrs, "style=dashed", "color=red")
		}
		if len(attrs) == 0 {
			fmt.Fprintf(&buf, "  %q -> %q;\n", seg.SourceID, seg.TargetID)
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q [%s];\n", seg.SourceID, seg.TargetID, strings.Join(attrs, ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG lays out a DOT graph with Graphviz and returns the SVG bytes.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
