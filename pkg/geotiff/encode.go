// Package geotiff writes multiband float32 GeoTIFF files: one
// uncompressed band-sequential strip per band, IEEE float samples, a
// GDAL nodata tag, and a GeoKey directory carrying a projected EPSG
// CRS.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

const (
	dataTypeByte     = 1
	dataTypeASCII    = 2
	dataTypeShort    = 3
	dataTypeLong     = 4
	dataTypeRational = 5
	dataTypeDouble   = 12

	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagSampleFormat              = 339

	// GeoTIFF tags
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGDALMetadata    = 42112
	tagGDALNoData      = 42113

	// GeoKey IDs
	keyGTModelType     = 1024
	keyGTRasterType    = 1025
	keyProjectedCSType = 3072
	keyProjLinearUnits = 3076

	modelTypeProjected = 1
	rasterPixelIsArea  = 1
	linearUnitMeter    = 9001

	sampleFormatFloat     = 3
	planarConfigBand      = 2
	compressionNone       = 1
	photometricMinIsBlack = 1
)

var enc = binary.LittleEndian

// Raster is the input to Encode: band-sequential float32 planes plus
// georeferencing. NaN samples are written as the NoData fill value.
type Raster struct {
	Width  int
	Height int

	// Bands holds one row-major plane of Width*Height samples per band
	Bands [][]float32

	// BandNames are written as per-band descriptions ("Band 01" ...)
	BandNames []string

	// NoData is the fill value substituted for NaN samples and recorded
	// in the GDAL nodata tag
	NoData float64

	// Transform is the affine geotransform [scaleX, shearX, originX,
	// shearY, scaleY, originY]; shear must be zero (north-up raster)
	Transform [6]float64

	// EPSG is the projected coordinate system code (e.g. 32633)
	EPSG uint16
}

// Validate checks the raster is encodable
func (r *Raster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid raster dimensions %dx%d", r.Width, r.Height)
	}
	if len(r.Bands) == 0 {
		return fmt.Errorf("raster has no bands")
	}
	for i, band := range r.Bands {
		if len(band) != r.Width*r.Height {
			return fmt.Errorf("band %d has %d samples, want %d", i, len(band), r.Width*r.Height)
		}
	}
	if len(r.BandNames) != 0 && len(r.BandNames) != len(r.Bands) {
		return fmt.Errorf("have %d band names for %d bands", len(r.BandNames), len(r.Bands))
	}
	if r.Transform[1] != 0 || r.Transform[3] != 0 {
		return fmt.Errorf("sheared geotransforms are not supported")
	}
	if r.Transform[0] == 0 || r.Transform[4] == 0 {
		return fmt.Errorf("geotransform has zero pixel scale")
	}
	return nil
}

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

type byTag []ifdEntry

func (d byTag) Len() int           { return len(d) }
func (d byTag) Less(i, j int) bool { return d[i].tag < d[j].tag }
func (d byTag) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }

// Encode writes r to w as a little-endian single-IFD GeoTIFF with one
// uncompressed strip per band (planar configuration 2).
func Encode(w io.Writer, r *Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}

	numBands := len(r.Bands)
	stripSize := uint32(r.Width * r.Height * 4)

	var entries []ifdEntry
	addEntry := func(tag uint16, datatype uint16, count uint32, data []byte) {
		entries = append(entries, ifdEntry{tag, datatype, count, data})
	}

	bits := make([]uint16, numBands)
	formats := make([]uint16, numBands)
	for i := range bits {
		bits[i] = 32
		formats[i] = sampleFormatFloat
	}

	addEntry(tagImageWidth, dataTypeLong, 1, enc32(uint32(r.Width)))
	addEntry(tagImageLength, dataTypeLong, 1, enc32(uint32(r.Height)))
	addEntry(tagBitsPerSample, dataTypeShort, uint32(numBands), enc16s(bits))
	addEntry(tagCompression, dataTypeShort, 1, enc16(compressionNone))
	addEntry(tagPhotometricInterpretation, dataTypeShort, 1, enc16(photometricMinIsBlack))
	addEntry(tagSamplesPerPixel, dataTypeShort, 1, enc16(uint16(numBands)))
	addEntry(tagRowsPerStrip, dataTypeLong, 1, enc32(uint32(r.Height)))
	addEntry(tagPlanarConfiguration, dataTypeShort, 1, enc16(planarConfigBand))
	addEntry(tagSampleFormat, dataTypeShort, uint32(numBands), enc16s(formats))

	// Strip tables: one strip per band, offsets fixed up below
	addEntry(tagStripOffsets, dataTypeLong, uint32(numBands), make([]byte, 4*numBands))
	counts := make([]byte, 4*numBands)
	for i := 0; i < numBands; i++ {
		enc.PutUint32(counts[i*4:], stripSize)
	}
	addEntry(tagStripByteCounts, dataTypeLong, uint32(numBands), counts)

	// Georeferencing
	scaleX := r.Transform[0]
	scaleY := math.Abs(r.Transform[4])
	addEntry(tagModelPixelScale, dataTypeDouble, 3, encDoubles([]float64{scaleX, scaleY, 0}))
	addEntry(tagModelTiepoint, dataTypeDouble, 6, encDoubles([]float64{0, 0, 0, r.Transform[2], r.Transform[5], 0}))

	geoKeys := []uint16{
		1, 1, 0, 3, // version, revision, minor, key count
		keyGTModelType, 0, 1, modelTypeProjected,
		keyGTRasterType, 0, 1, rasterPixelIsArea,
		keyProjectedCSType, 0, 1, r.EPSG,
	}
	if r.EPSG != 0 {
		geoKeys[3] = 4
		geoKeys = append(geoKeys, keyProjLinearUnits, 0, 1, linearUnitMeter)
	}
	addEntry(tagGeoKeyDirectory, dataTypeShort, uint32(len(geoKeys)), enc16s(geoKeys))

	if len(r.BandNames) > 0 {
		meta := append([]byte(bandMetadataXML(r.BandNames)), 0)
		addEntry(tagGDALMetadata, dataTypeASCII, uint32(len(meta)), meta)
	}
	nodata := append([]byte(formatNoData(r.NoData)), 0)
	addEntry(tagGDALNoData, dataTypeASCII, uint32(len(nodata)), nodata)

	sort.Sort(byTag(entries))

	// Layout: header (8) | IFD | value data area | pixel strips.
	// Value offsets depend only on entry data lengths, which are final.
	ifdSize := 2 + 12*len(entries) + 4
	valueDataOffset := 8 + ifdSize
	largeLen := 0
	for _, e := range entries {
		if len(e.data) > 4 {
			largeLen += len(e.data)
		}
	}
	pixelsOffset := uint32(valueDataOffset + largeLen)

	// Now that the pixel offset is known, fill the strip offset table
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			for b := 0; b < numBands; b++ {
				enc.PutUint32(entries[i].data[b*4:], pixelsOffset+uint32(b)*stripSize)
			}
		}
	}

	// Header: little-endian magic, version 42, first IFD at offset 8
	if _, err := w.Write([]byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00}); err != nil {
		return err
	}

	if err := binary.Write(w, enc, uint16(len(entries))); err != nil {
		return err
	}
	var largeDataBuf bytes.Buffer
	for _, e := range entries {
		if err := binary.Write(w, enc, e.tag); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.datatype); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.count); err != nil {
			return err
		}
		var val [4]byte
		if len(e.data) <= 4 {
			copy(val[:], e.data)
		} else {
			enc.PutUint32(val[:], uint32(valueDataOffset+largeDataBuf.Len()))
			largeDataBuf.Write(e.data)
		}
		if _, err := w.Write(val[:]); err != nil {
			return err
		}
	}
	// Next IFD offset: none
	if err := binary.Write(w, enc, uint32(0)); err != nil {
		return err
	}

	if _, err := largeDataBuf.WriteTo(w); err != nil {
		return err
	}

	// Pixel strips, band-sequential; NaN becomes the fill value
	fill := float32(r.NoData)
	strip := make([]byte, stripSize)
	for _, band := range r.Bands {
		for i, v := range band {
			if v != v {
				v = fill
			}
			enc.PutUint32(strip[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(strip); err != nil {
			return err
		}
	}
	return nil
}

// bandMetadataXML renders per-band descriptions the way GDAL stores
// them in its metadata tag
func bandMetadataXML(names []string) string {
	var buf bytes.Buffer
	buf.WriteString("<GDALMetadata>\n")
	for i, name := range names {
		fmt.Fprintf(&buf, "  <Item name=\"DESCRIPTION\" sample=\"%d\" role=\"description\">%s</Item>\n", i, name)
	}
	buf.WriteString("</GDALMetadata>")
	return buf.String()
}

func formatNoData(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// Helpers

func enc16(v uint16) []byte {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	return b
}

func enc32(v uint32) []byte {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	return b
}

func enc16s(vs []uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[i*2:], v)
	}
	return b
}

func encDoubles(vs []float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}
