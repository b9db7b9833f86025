// Package raster holds in-memory pixel grids and the reducers used to
// composite them: per-pixel mean for continuous probability bands and
// per-pixel mode with a lowest-value tie-break for the discrete label
// band.
package raster

import (
	"fmt"
	"math"
)

// Grid is a multiband raster tied to a georeferenced pixel lattice.
// Masked (no-data) pixels are stored as NaN; exporters substitute the
// on-disk fill value.
type Grid struct {
	Width  int
	Height int

	// BandNames and Bands are parallel; Bands[i] is row-major
	// Width*Height samples
	BandNames []string
	Bands     [][]float32

	// Transform is the affine geotransform
	// [scaleX, shearX, originX, shearY, scaleY, originY]
	// with originX/originY at the outer corner of pixel (0,0)
	Transform [6]float64

	// CRS holds the coordinate reference system as an EPSG code string
	// (e.g. "EPSG:32633")
	CRS string
}

// NewGrid allocates a grid with every band filled with no-data
func NewGrid(width, height int, bandNames []string, transform [6]float64, crs string) *Grid {
	bands := make([][]float32, len(bandNames))
	nan := float32(math.NaN())
	for i := range bands {
		data := make([]float32, width*height)
		for j := range data {
			data[j] = nan
		}
		bands[i] = data
	}
	names := append([]string{}, bandNames...)
	return &Grid{
		Width:     width,
		Height:    height,
		BandNames: names,
		Bands:     bands,
		Transform: transform,
		CRS:       crs,
	}
}

// IsNoData reports whether a sample is masked
func IsNoData(v float32) bool {
	return v != v // NaN check
}

// NoData returns the in-memory no-data sample
func NoData() float32 {
	return float32(math.NaN())
}

// At returns the sample of band b at pixel (col, row)
func (g *Grid) At(b, col, row int) float32 {
	return g.Bands[b][row*g.Width+col]
}

// Set writes the sample of band b at pixel (col, row)
func (g *Grid) Set(b, col, row int, v float32) {
	g.Bands[b][row*g.Width+col] = v
}

// BandIndex returns the index of a named band, or -1
func (g *Grid) BandIndex(name string) int {
	for i, n := range g.BandNames {
		if n == name {
			return i
		}
	}
	return -1
}

// PixelCenter returns the projected coordinates of the center of pixel
// (col, row)
func (g *Grid) PixelCenter(col, row int) (x, y float64) {
	fc, fr := float64(col)+0.5, float64(row)+0.5
	x = g.Transform[0]*fc + g.Transform[1]*fr + g.Transform[2]
	y = g.Transform[3]*fc + g.Transform[4]*fr + g.Transform[5]
	return x, y
}

// ValidCount returns the number of unmasked samples in band b
func (g *Grid) ValidCount(b int) int {
	count := 0
	for _, v := range g.Bands[b] {
		if !IsNoData(v) {
			count++
		}
	}
	return count
}

// sameLattice checks that two grids share shape, transform and CRS so
// they can be reduced pixel-by-pixel
func sameLattice(a, b *Grid) error {
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("grid shape mismatch: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	if a.Transform != b.Transform {
		return fmt.Errorf("grid transform mismatch")
	}
	if a.CRS != b.CRS {
		return fmt.Errorf("grid CRS mismatch: %s vs %s", a.CRS, b.CRS)
	}
	return nil
}
