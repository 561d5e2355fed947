package vector

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// hexEdgeKM holds the approximate average hexagon edge length per H3
// resolution, used only to pick an indexing resolution.
var hexEdgeKM = []float64{
	1107.71, 418.68, 158.24, 59.81, 22.61, 8.54, 3.23, 1.22, 0.46, 0.17, 0.065,
}

const degKM = 111.0

// indexResolution picks the H3 resolution whose cells tile the dataset
// extent into a few dozen columns.
func indexResolution(b orb.Bound) int {
	spanKM := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]) * degKM
	for res, edge := range hexEdgeKM {
		if spanKM/edge <= 64 {
			return res
		}
	}
	return len(hexEdgeKM) - 1
}

// cellIndex shortlists identify candidates by H3 cell. Each feature is
// registered under the cells covering its bounding box; queries look up the
// cell of the point plus one ring of neighbors.
type cellIndex struct {
	res   int
	cells map[h3.Cell][]int
}

func featureCells(b orb.Bound, res int) ([]h3.Cell, error) {
	loop := h3.GeoLoop{
		{Lat: b.Min[1], Lng: b.Min[0]},
		{Lat: b.Min[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Max[0]},
		{Lat: b.Max[1], Lng: b.Min[0]},
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, res)
	if err != nil {
		return nil, err
	}
	// PolygonToCells keeps cells whose center is inside the loop, which
	// misses boxes smaller than a cell; always add the corner cells.
	for _, ll := range loop {
		c, err := h3.LatLngToCell(ll, res)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	seen := make(map[h3.Cell]struct{}, len(cells))
	out := cells[:0]
	for _, c := range cells {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// buildCellIndex returns nil when indexing fails; callers fall back to a
// linear scan.
func buildCellIndex(ds *Dataset) *cellIndex {
	idx := &cellIndex{res: indexResolution(ds.bound), cells: map[h3.Cell][]int{}}
	for i := range ds.Features {
		cells, err := featureCells(ds.Features[i].Geom.Bound(), idx.res)
		if err != nil {
			return nil
		}
		for _, c := range cells {
			idx.cells[c] = append(idx.cells[c], i)
		}
	}
	return idx
}

// candidates returns the feature indices worth testing at a point, in
// dataset order. A nil receiver means no index: every feature is a candidate.
func (idx *cellIndex) candidates(ds *Dataset, lon, lat float64) []int {
	if idx == nil {
		all := make([]int, len(ds.Features))
		for i := range all {
			all[i] = i
		}
		return all
	}
	center, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), idx.res)
	if err != nil {
		return nil
	}
	ring, err := h3.GridDisk(center, 1)
	if err != nil {
		ring = []h3.Cell{center}
	}
	seen := map[int]struct{}{}
	var out []int
	for _, c := range ring {
		for _, i := range idx.cells[c] {
			if _, ok := seen[i]; ok {
				continue
			}
			seen[i] = struct{}{}
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}
