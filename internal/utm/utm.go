// Package utm estimates the UTM coordinate reference system for an
// area of interest. Dynamic World tiles are delivered in the UTM zone
// of their Sentinel-2 granule, so exports target the zone covering the
// AOI centroid: EPSG:326xx in the northern hemisphere, EPSG:327xx in
// the southern, zones 01-60.
package utm

import (
	"fmt"
	"math"

	"landcover-pipeline/internal/aoi"
)

// Zone identifies a UTM zone and hemisphere
type Zone struct {
	Number   int  // 1-60
	Northern bool // true for EPSG:326xx, false for EPSG:327xx
}

// FromPosition returns the UTM zone containing a lon/lat position
func FromPosition(pos aoi.Position) (Zone, error) {
	lon, lat := pos.Lon(), pos.Lat()
	if lon < -180 || lon > 180 {
		return Zone{}, fmt.Errorf("longitude out of range [-180, 180]: %f", lon)
	}
	if lat < -90 || lat > 90 {
		return Zone{}, fmt.Errorf("latitude out of range [-90, 90]: %f", lat)
	}

	number := int(math.Floor((lon+180)/6)) + 1
	// Longitude 180 falls back into the last zone
	if number > 60 {
		number = 60
	}
	return Zone{Number: number, Northern: lat >= 0}, nil
}

// EPSG returns the numeric EPSG code for the zone
func (z Zone) EPSG() int {
	if z.Northern {
		return 32600 + z.Number
	}
	return 32700 + z.Number
}

// Code returns the zone in "EPSG:32633" form
func (z Zone) Code() string {
	return fmt.Sprintf("EPSG:%d", z.EPSG())
}

// String returns the zone in "33N" / "17S" form
func (z Zone) String() string {
	hemi := "N"
	if !z.Northern {
		hemi = "S"
	}
	return fmt.Sprintf("%d%s", z.Number, hemi)
}

// Transform builds the affine geotransform [scaleX, 0, originX, 0,
// scaleY, originY] for a north-up raster anchored at the given origin.
// The y scale is always negative: rows advance south.
func Transform(scale float64, originX, originY float64) [6]float64 {
	return [6]float64{scale, 0, originX, 0, -math.Abs(scale), originY}
}
