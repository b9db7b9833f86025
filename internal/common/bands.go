package common

import "fmt"

// Dynamic World collection constants
const (
	// CollectionID is the Earth Engine asset ID of the Dynamic World
	// land-cover product
	CollectionID = "GOOGLE/DYNAMICWORLD/V1"

	// DefaultScale is the nominal ground resolution in meters per pixel
	DefaultScale = 10

	// NoDataValue is the fill value written for masked pixels in exported
	// rasters
	NoDataValue = -9999

	// MaxExportPixels caps the pixel count of a single export
	// (~1000 km^2 at 10 m pixels) as a safeguard against runaway
	// AOI geometries
	MaxExportPixels = 10_000_000
)

// ProbabilityBands lists the 9 continuous class-probability bands in
// their canonical order. The discrete label band follows them.
var ProbabilityBands = []string{
	"water",
	"trees",
	"grass",
	"flooded_vegetation",
	"crops",
	"shrub_and_scrub",
	"built",
	"bare",
	"snow_and_ice",
}

// LabelBand holds the index of the highest-probability class per pixel
const LabelBand = "label"

// AllBands returns the full band list: 9 probability bands plus the
// label band, in export order.
func AllBands() []string {
	return append(append([]string{}, ProbabilityBands...), LabelBand)
}

// NumBands is the band count of a complete composite
const NumBands = 10

// LabelBandIndex is the position of the label band within AllBands
const LabelBandIndex = NumBands - 1

// PositionalBandName returns the positional name written to local
// rasters ("Band 01" ... "Band 10"). Index is zero-based.
func PositionalBandName(i int) string {
	return fmt.Sprintf("Band %02d", i+1)
}
