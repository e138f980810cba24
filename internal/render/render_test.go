package render

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

func bench() *layout.State {
	zone := geom.NewRect(150, 0, 200, 50)
	return layout.NewState(
		layout.Constraints{
			Workspace:    geom.NewRect(0, 0, 200, 100),
			KeepOutZones: []layout.KeepOutZone{{ID: "k", Bounds: geom.NewRect(0, 80, 20, 100), IsActive: true}},
			MountingZone: &zone,
		},
		[]*layout.Component{
			{ID: "src", Type: geom.TypeSource, Position: r2.Vec{X: 30, Y: 30}, Size: layout.Size{Width: 20, Height: 10}, IsFixed: true},
			{ID: "m1", Type: geom.TypeMirror, Position: r2.Vec{X: 120, Y: 30}, Angle: 45, Size: layout.Size{Width: 10, Height: 4}},
			{ID: "det", Type: geom.TypeDetector, Position: r2.Vec{X: 120, Y: 70}, Size: layout.Size{Width: 10, Height: 10}},
		},
		[]layout.BeamSegment{
			{ID: "b1", SourceID: "src", TargetID: "m1", IsFixedLength: true, FixedLength: 90},
			{ID: "b2", SourceID: "m1", TargetID: "det"},
		},
	)
}

func TestPreviewDimensions(t *testing.T) {
	s := bench()

	img := Preview(s, 2)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())

	img = Preview(s, 0)
	assert.Equal(t, 200, img.Bounds().Dx())

	img = Preview(s, 1000)
	assert.Equal(t, MaxPreviewSide, img.Bounds().Dx())
}

func TestPreviewDrawsComponentsAndZones(t *testing.T) {
	s := bench()
	img := Preview(s, 1)
	white := color.NRGBA{255, 255, 255, 255}

	assert.Equal(t, white, img.NRGBAAt(60, 60), "empty area stays white")
	assert.NotEqual(t, white, img.NRGBAAt(30, 30), "source body")
	assert.NotEqual(t, white, img.NRGBAAt(120, 70), "detector body")
	assert.NotEqual(t, white, img.NRGBAAt(10, 90), "keep-out zone")
	assert.NotEqual(t, white, img.NRGBAAt(180, 20), "mounting zone")
	assert.NotEqual(t, white, img.NRGBAAt(80, 30), "beam src to m1")

	src := img.NRGBAAt(30, 30)
	det := img.NRGBAAt(120, 70)
	assert.NotEqual(t, src, det, "types use distinct colors")
}

func TestPreviewEncodesAsPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, Preview(bench(), 1)))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 200, decoded.Bounds().Dx())
}

func TestPreviewDegenerateWorkspace(t *testing.T) {
	s := layout.NewState(layout.Constraints{}, nil, nil)
	img := Preview(s, 1)
	assert.Equal(t, 1, img.Bounds().Dx())
	assert.Equal(t, 1, img.Bounds().Dy())
}

func TestToDOT(t *testing.T) {
	s := bench()
	s.Beams.Add(layout.BeamSegment{SourceID: "det", TargetID: "ghost"})

	dot := ToDOT(s)

	assert.True(t, strings.HasPrefix(dot, "digraph beams {"))
	assert.Contains(t, dot, `"m1" [label=`)
	assert.Contains(t, dot, "shape=cds")
	assert.Contains(t, dot, `"src" -> "m1" [style=bold, label="90.0"]`)
	assert.Contains(t, dot, `"m1" -> "det";`)
	assert.Contains(t, dot, `"det" -> "ghost" [style=dashed, color=red]`)

	// nodes in id order
	assert.Less(t, strings.Index(dot, `"det" [`), strings.Index(dot, `"m1" [`))
	assert.Less(t, strings.Index(dot, `"m1" [`), strings.Index(dot, `"src" [`))
}

func TestRenderSVG(t *testing.T) {
	svg, err := RenderSVG(context.Background(), ToDOT(bench()))
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "m1")

	_, err = RenderSVG(context.Background(), "digraph {")
	assert.Error(t, err)
}
