// Package render draws layouts as raster previews and exports the beam
// graph for Graphviz.
package render

import (
	"image"
	"math"

	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// MaxPreviewSide caps the longer image side in pixels.
const MaxPreviewSide = 4096

// rgba is a straight-alpha color with components in [0,1].
type rgba struct{ r, g, b, a float64 }

var (
	workspaceBorder = rgba{0.2, 0.2, 0.2, 1}
	keepOutFill     = rgba{0.85, 0.1, 0.1, 0.3}
	mountingFill    = rgba{0.1, 0.6, 0.2, 0.12}
	mountZoneFill   = rgba{0.4, 0.4, 0.4, 0.2}
	beamColor       = rgba{0.9, 0.05, 0.05, 1}
	fixedOutline    = rgba{0, 0, 0, 1}
)

var typeColors = map[string]rgba{
	geom.TypeSource:       {0.95, 0.55, 0.05, 0.9},
	geom.TypeMirror:       {0.25, 0.45, 0.85, 0.9},
	geom.TypeBeamSplitter: {0.55, 0.3, 0.75, 0.9},
	geom.TypeLens:         {0.2, 0.7, 0.75, 0.9},
	geom.TypeDetector:     {0.3, 0.3, 0.3, 0.9},
}

var otherColor = rgba{0.5, 0.5, 0.5, 0.9}

// canvas maps workspace coordinates onto an image.
type canvas struct {
	img    *image.NRGBA
	origin r2.Vec
	scale  float64
}

func (c *canvas) toWorld(x, y int) r2.Vec {
	return r2.Vec{
		X: c.origin.X + (float64(x)+0.5)/c.scale,
		Y: c.origin.Y + (float64(y)+0.5)/c.scale,
	}
}

func (c *canvas) toPixel(p r2.Vec) (float64, float64) {
	return (p.X - c.origin.X) * c.scale, (p.Y - c.origin.Y) * c.scale
}

// Preview draws the workspace with its zones, every component footprint and
// the beam segments. scale is pixels per workspace unit; non-positive scale
// means 1. Fixed components get an outline. A degenerate workspace yields a
// 1x1 image.
func Preview(s *layout.State, scale float64) *image.NRGBA {
	ws := s.Constraints.Workspace
	if ws.Empty() {
		return blank(1, 1)
	}
	scale = fitScale(ws, scale)
	w := min(MaxPreviewSide, max(1, int(math.Ceil(ws.Width()*scale))))
	h := min(MaxPreviewSide, max(1, int(math.Ceil(ws.Height()*scale))))

	c := &canvas{img: blank(w, h), origin: ws.Min, scale: scale}

	if mz := s.Constraints.MountingZone; mz != nil {
		c.fillPolygon(rectCorners(*mz), mountingFill)
	}
	for _, z := range s.Constraints.ActiveKeepOuts() {
		c.fillPolygon(rectCorners(z.Bounds), keepOutFill)
	}

	ids := s.IDs()
	for _, id := range ids {
		comp := s.Components[id]
		if mount, ok := comp.MountFootprint(comp.Pose()); ok {
			corners := mount.Corners()
			c.fillPolygon(corners[:], mountZoneFill)
		}
	}
	for _, id := range ids {
		comp := s.Components[id]
		corners := comp.Footprint(comp.Pose()).Corners()
		col, ok := typeColors[comp.Type]
		if !ok {
			col = otherColor
		}
		c.fillPolygon(corners[:], col)
		if comp.IsFixed {
			c.strokePolygon(corners[:], fixedOutline)
		}
	}

	for _, seg := range s.Beams.All() {
		from, ok1 := s.Components[seg.SourceID]
		to, ok2 := s.Components[seg.TargetID]
		if !ok1 || !ok2 {
			continue
		}
		c.line(from.Position, to.Position, beamColor)
	}

	c.strokePolygon(rectCorners(ws), workspaceBorder)
	return c.img
}

// fitScale defaults scale to 1 and shrinks it so the image stays within
// MaxPreviewSide.
func fitScale(ws geom.Rect, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	if side := math.Max(ws.Width(), ws.Height()); side*scale > MaxPreviewSide {
		scale = MaxPreviewSide / side
	}
	return scale
}

func rectCorners(r geom.Rect) []r2.Vec {
	corners := r.Corners()
	return corners[:]
}

func blank(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

// fillPolygon composites every pixel whose center lies inside poly.
func (c *canvas) fillPolygon(poly []r2.Vec, col rgba) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range poly {
		x, y := c.toPixel(p)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	b := c.img.Bounds()
	x0 := max(b.Min.X, int(math.Floor(minX)))
	x1 := min(b.Max.X-1, int(math.Ceil(maxX)))
	y0 := max(b.Min.Y, int(math.Floor(minY)))
	y1 := min(b.Max.Y-1, int(math.Ceil(maxY)))

	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if geom.PointInPolygon(c.toWorld(x, y), poly) {
				compositePixel(c.img, x, y, col)
			}
		}
	}
}

func (c *canvas) strokePolygon(poly []r2.Vec, col rgba) {
	for i := range poly {
		c.line(poly[i], poly[(i+1)%len(poly)], col)
	}
}

// line draws a one pixel wide segment by sampling at sub-pixel steps.
func (c *canvas) line(p, q r2.Vec, col rgba) {
	x0, y0 := c.toPixel(p)
	x1, y1 := c.toPixel(q)
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0)))) + 1
	b := c.img.Bounds()
	lastX, lastY := math.MinInt, math.MinInt
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := min(int(x0+(x1-x0)*t), b.Max.X-1)
		y := min(int(y0+(y1-y0)*t), b.Max.Y-1)
		if x == lastX && y == lastY {
			continue
		}
		lastX, lastY = x, y
		if image.Pt(x, y).In(b) {
			compositePixel(c.img, x, y, col)
		}
	}
}

// compositePixel blends col over the pixel at (x,y) with the "over" operator.
func compositePixel(img *image.NRGBA, x, y int, col rgba) {
	i := img.PixOffset(x, y)

	bgR := float64(img.Pix[i+0]) / 255.0
	bgG := float64(img.Pix[i+1]) / 255.0
	bgB := float64(img.Pix[i+2]) / 255.0
	bgA := float64(img.Pix[i+3]) / 255.0

	outA := col.a + bgA*(1-col.a)
	if outA == 0 {
		return
	}
	outR := (col.r*col.a + bgR*bgA*(1-col.a)) / outA
	outG := (col.g*col.a + bgG*bgA*(1-col.a)) / outA
	outB := (col.b*col.a + bgB*bgA*(1-col.a)) / outA

	img.Pix[i+0] = uint8(math.Round(outR * 255))
	img.Pix[i+1] = uint8(math.Round(outG * 255))
	img.Pix[i+2] = uint8(math.Round(outB * 255))
	img.Pix[i+3] = uint8(math.Round(outA * 255))
}
