package raster

import (
	"testing"

	"landcover-pipeline/internal/common"
)

func TestRasterizeMaskSquare(t *testing.T) {
	// 4x4 grid, 10m pixels, origin at (0, 40): pixel centers at
	// x = 5,15,25,35 and y = 35,25,15,5
	g := NewGrid(4, 4, common.AllBands(), [6]float64{10, 0, 0, 0, -10, 40}, "EPSG:32633")

	// Square covering the lower-left quadrant
	square := Polygon{{{0, 0}, {20, 0}, {20, 20}, {0, 20}, {0, 0}}}
	mask := RasterizeMask(g, []Polygon{square})

	inside := 0
	for _, in := range mask {
		if in {
			inside++
		}
	}
	if inside != 4 {
		t.Fatalf("square covers %d pixel centers, want 4", inside)
	}
	for _, row := range []int{2, 3} {
		for _, col := range []int{0, 1} {
			if !mask[row*g.Width+col] {
				t.Errorf("pixel (%d,%d) should be inside", col, row)
			}
		}
	}
}

func TestRasterizeMaskHole(t *testing.T) {
	g := NewGrid(4, 4, common.AllBands(), [6]float64{10, 0, 0, 0, -10, 40}, "EPSG:32633")

	// Full-extent square with a hole over the center four pixels
	poly := Polygon{
		{{0, 0}, {40, 0}, {40, 40}, {0, 40}, {0, 0}},
		{{10, 10}, {30, 10}, {30, 30}, {10, 30}, {10, 10}},
	}
	mask := RasterizeMask(g, []Polygon{poly})

	if mask[1*g.Width+1] || mask[1*g.Width+2] || mask[2*g.Width+1] || mask[2*g.Width+2] {
		t.Error("hole pixels should be excluded")
	}
	if !mask[0] || !mask[g.Width*g.Height-1] {
		t.Error("corner pixels should be inside the exterior ring")
	}
}

func TestRasterizeMaskDisjointPolygons(t *testing.T) {
	g := NewGrid(4, 1, common.AllBands(), [6]float64{10, 0, 0, 0, -10, 10}, "EPSG:32633")

	polys := []Polygon{
		{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}},
		{{{30, 0}, {40, 0}, {40, 10}, {30, 10}, {30, 0}}},
	}
	mask := RasterizeMask(g, polys)
	want := []bool{true, false, false, true}
	for i := range want {
		if mask[i] != want[i] {
			t.Errorf("mask[%d] = %v, want %v", i, mask[i], want[i])
		}
	}
}
