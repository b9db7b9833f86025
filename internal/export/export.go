// Package export writes finished composites to their destination:
// GeoTIFF files on local disk or objects in a cloud storage bucket.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"landcover-pipeline/internal/common"
	"landcover-pipeline/internal/raster"
	"landcover-pipeline/pkg/geotiff"
)

// Writer sends one encoded raster to a named destination
type Writer interface {
	// WriteRaster stores data under name (a file name, without
	// directories) and returns the full destination path or URL
	WriteRaster(ctx context.Context, name string, data []byte) (string, error)
}

// RangeFileName names a range composite over [start, end], matching
// the original output naming exactly
func RangeFileName(start, end time.Time) string {
	return fmt.Sprintf("dynamic_world_%s_%s.tif", common.FormatCompact(start), common.FormatCompact(end))
}

// DailyFileName names a single-day composite
func DailyFileName(day time.Time) string {
	return fmt.Sprintf("composite_%s.tif", common.FormatISO8601(day))
}

// RawFileName names an unreduced source image export by its system
// index
func RawFileName(systemIndex string) string {
	return fmt.Sprintf("raw_%s.tif", systemIndex)
}

// EncodeGrid encodes a grid as a GeoTIFF with positional band names
// ("Band 01" ... "Band 10") and the standard nodata fill
func EncodeGrid(g *raster.Grid) ([]byte, error) {
	epsg, err := epsgFromCRS(g.CRS)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(g.Bands))
	for i := range names {
		names[i] = common.PositionalBandName(i)
	}

	var buf bytes.Buffer
	err = geotiff.Encode(&buf, &geotiff.Raster{
		Width:     g.Width,
		Height:    g.Height,
		Bands:     g.Bands,
		BandNames: names,
		NoData:    common.NoDataValue,
		Transform: g.Transform,
		EPSG:      epsg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode GeoTIFF: %w", err)
	}
	return buf.Bytes(), nil
}

func epsgFromCRS(crs string) (uint16, error) {
	code, ok := strings.CutPrefix(crs, "EPSG:")
	if !ok {
		return 0, fmt.Errorf("unsupported CRS %q, expected EPSG code", crs)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("invalid EPSG code %q", crs)
	}
	return uint16(n), nil
}
