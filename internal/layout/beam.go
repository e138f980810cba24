package layout

import "fmt"

// BeamSegment is a directed beam from SourceID to TargetID.
type BeamSegment struct {
	ID            string  `json:"id,omitempty" yaml:"id,omitempty"`
	SourceID      string  `json:"sourceId" yaml:"sourceId"`
	TargetID      string  `json:"targetId" yaml:"targetId"`
	SourcePort    string  `json:"sourcePort,omitempty" yaml:"sourcePort,omitempty"`
	IsFixedLength bool    `json:"isFixedLength,omitempty" yaml:"isFixedLength,omitempty"`
	FixedLength   float64 `json:"fixedLength,omitempty" yaml:"fixedLength,omitempty"`
}

// BeamPath is the directed beam graph. Segments are kept in insertion order
// and indexed by endpoint id.
type BeamPath struct {
	segments []BeamSegment
	outgoing map[string][]int
	incoming map[string][]int
}

// NewBeamPath builds a graph from segs. Segments without an id get one.
func NewBeamPath(segs ...BeamSegment) *BeamPath {
	bp := &BeamPath{
		outgoing: make(map[string][]int),
		incoming: make(map[string][]int),
	}
	for _, s := range segs {
		bp.Add(s)
	}
	return bp
}

// Add appends a segment.
func (bp *BeamPath) Add(s BeamSegment) {
	if s.ID == "" {
		s.ID = DefaultSegmentID(len(bp.segments))
	}
	idx := len(bp.segments)
	bp.segments = append(bp.segments, s)
	bp.outgoing[s.SourceID] = append(bp.outgoing[s.SourceID], idx)
	bp.incoming[s.TargetID] = append(bp.incoming[s.TargetID], idx)
}

// Len returns the number of segments.
func (bp *BeamPath) Len() int {
	if bp == nil {
		return 0
	}
	return len(bp.segments)
}

// All returns a copy of every segment.
func (bp *BeamPath) All() []BeamSegment {
	if bp == nil {
		return nil
	}
	return append([]BeamSegment(nil), bp.segments...)
}

// Outgoing returns the segments leaving id.
func (bp *BeamPath) Outgoing(id string) []BeamSegment {
	if bp == nil {
		return nil
	}
	return bp.collect(bp.outgoing[id])
}

// Incoming returns the segments arriving at id.
func (bp *BeamPath) Incoming(id string) []BeamSegment {
	if bp == nil {
		return nil
	}
	return bp.collect(bp.incoming[id])
}

// OutgoingIndexes returns the positions, in All order, of the segments
// leaving id. Segment ids need not be unique; positions are.
func (bp *BeamPath) OutgoingIndexes(id string) []int {
	if bp == nil {
		return nil
	}
	return append([]int(nil), bp.outgoing[id]...)
}

// At returns the segment at position i of All.
func (bp *BeamPath) At(i int) BeamSegment {
	return bp.segments[i]
}

// DefaultSegmentID is the id Add assigns to the i-th segment when it has
// none.
func DefaultSegmentID(i int) string {
	return fmt.Sprintf("beam-%d", i)
}

func (bp *BeamPath) collect(idx []int) []BeamSegment {
	out := make([]BeamSegment, len(idx))
	for i, j := range idx {
		out[i] = bp.segments[j]
	}
	return out
}

// Downstream returns every component id reachable from root along outgoing
// segments, in depth-first order, excluding root itself. The walk uses an
// explicit stack and a visited set, so cycles and long chains are safe.
// When stop returns true for an id, that id is neither returned nor
// expanded.
func (bp *BeamPath) Downstream(root string, stop func(id string) bool) []string {
	if bp == nil {
		return nil
	}
	visited := map[string]bool{root: true}
	var order []string

	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id != root {
			order = append(order, id)
		}

		out := bp.outgoing[id]
		// push in reverse so the first segment is expanded first
		for i := len(out) - 1; i >= 0; i-- {
			next := bp.segments[out[i]].TargetID
			if visited[next] {
				continue
			}
			visited[next] = true
			if stop != nil && stop(next) {
				continue
			}
			stack = append(stack, next)
		}
	}
	return order
}

// Clone returns an independent copy.
func (bp *BeamPath) Clone() *BeamPath {
	if bp == nil {
		return NewBeamPath()
	}
	return NewBeamPath(bp.segments...)
}
