package aoi

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Position is a single [longitude, latitude] coordinate pair
type Position [2]float64

// Lon returns the longitude component
func (p Position) Lon() float64 { return p[0] }

// Lat returns the latitude component
func (p Position) Lat() float64 { return p[1] }

// BoundingBox represents a geographic bounding box
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Validate checks if the bounding box is valid
func (b BoundingBox) Validate() error {
	if b.South >= b.North {
		return fmt.Errorf("south (%f) must be less than north (%f)", b.South, b.North)
	}
	if b.West >= b.East {
		return fmt.Errorf("west (%f) must be less than east (%f)", b.West, b.East)
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]: south=%f, north=%f", b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]: west=%f, east=%f", b.West, b.East)
	}
	return nil
}

// Center returns the bounding box center as a Position
func (b BoundingBox) Center() Position {
	return Position{(b.West + b.East) / 2, (b.South + b.North) / 2}
}

// AOI is a single polygon or multipolygon area of interest. It is
// immutable for the duration of a run; every accessor returns derived
// values, never internal state.
type AOI struct {
	geometryType string
	// polygons holds multipolygon-normalized coordinates:
	// polygon -> ring -> position. Ring 0 is the exterior.
	polygons [][][]Position
}

// geoJSONGeometry is the wire form of a GeoJSON geometry object
type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// geoJSONFeature is the wire form of a GeoJSON feature
type geoJSONFeature struct {
	Type     string          `json:"type"`
	Geometry geoJSONGeometry `json:"geometry"`
}

// geoJSONDocument covers the three shapes we accept: FeatureCollection,
// Feature, and bare Geometry. Only the fields needed to discriminate
// are declared.
type geoJSONDocument struct {
	Type        string           `json:"type"`
	Features    []geoJSONFeature `json:"features"`
	Geometry    geoJSONGeometry  `json:"geometry"`
	Coordinates json.RawMessage  `json:"coordinates"`
}

// Load reads a GeoJSON file and returns its first polygon geometry as
// an AOI. FeatureCollections contribute their first feature, matching
// how the science workflow treats multi-feature files.
func Load(path string) (*AOI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AOI file: %w", err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AOI file %s: %w", path, err)
	}
	return a, nil
}

// Parse decodes GeoJSON bytes into an AOI
func Parse(data []byte) (*AOI, error) {
	var doc geoJSONDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	var geom geoJSONGeometry
	switch doc.Type {
	case "FeatureCollection":
		if len(doc.Features) == 0 {
			return nil, fmt.Errorf("feature collection contains no features")
		}
		geom = doc.Features[0].Geometry
	case "Feature":
		geom = doc.Geometry
	case "Polygon", "MultiPolygon":
		geom = geoJSONGeometry{Type: doc.Type, Coordinates: doc.Coordinates}
	default:
		return nil, fmt.Errorf("unsupported GeoJSON type: %q", doc.Type)
	}

	return fromGeometry(geom)
}

func fromGeometry(geom geoJSONGeometry) (*AOI, error) {
	a := &AOI{geometryType: geom.Type}

	switch geom.Type {
	case "Polygon":
		var rings [][]Position
		if err := json.Unmarshal(geom.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("invalid polygon coordinates: %w", err)
		}
		a.polygons = [][][]Position{rings}
	case "MultiPolygon":
		if err := json.Unmarshal(geom.Coordinates, &a.polygons); err != nil {
			return nil, fmt.Errorf("invalid multipolygon coordinates: %w", err)
		}
	default:
		return nil, fmt.Errorf("geometry must be Polygon or MultiPolygon, got %q", geom.Type)
	}

	if len(a.polygons) == 0 {
		return nil, fmt.Errorf("geometry contains no polygons")
	}
	for i, poly := range a.polygons {
		if len(poly) == 0 || len(poly[0]) < 4 {
			return nil, fmt.Errorf("polygon %d has no valid exterior ring", i)
		}
	}
	return a, nil
}

// Type returns the underlying geometry type (Polygon or MultiPolygon)
func (a *AOI) Type() string {
	return a.geometryType
}

// Rings exposes the multipolygon-normalized coordinates
// (polygon -> ring -> position). Callers must treat the slices as
// read-only.
func (a *AOI) Rings() [][][]Position {
	return a.polygons
}

// BoundingBox computes the [minx, miny, maxx, maxy] envelope of all
// polygon rings as a BoundingBox
func (a *AOI) BoundingBox() BoundingBox {
	bbox := BoundingBox{South: 90, West: 180, North: -90, East: -180}
	for _, poly := range a.polygons {
		for _, ring := range poly {
			for _, pos := range ring {
				if pos.Lat() < bbox.South {
					bbox.South = pos.Lat()
				}
				if pos.Lat() > bbox.North {
					bbox.North = pos.Lat()
				}
				if pos.Lon() < bbox.West {
					bbox.West = pos.Lon()
				}
				if pos.Lon() > bbox.East {
					bbox.East = pos.Lon()
				}
			}
		}
	}
	return bbox
}

// Centroid returns the bounding-box center, which is what the UTM zone
// estimate keys off
func (a *AOI) Centroid() Position {
	return a.BoundingBox().Center()
}

// GeoJSON re-encodes the AOI as a bare GeoJSON geometry object for use
// as a region filter in API requests
func (a *AOI) GeoJSON() ([]byte, error) {
	var coords interface{}
	if a.geometryType == "Polygon" {
		coords = a.polygons[0]
	} else {
		coords = a.polygons
	}
	return json.Marshal(map[string]interface{}{
		"type":        a.geometryType,
		"coordinates": coords,
	})
}

// Contains reports whether a point falls inside the AOI, holes
// included. Uses the even-odd ray casting rule per ring.
func (a *AOI) Contains(pos Position) bool {
	for _, poly := range a.polygons {
		if len(poly) == 0 {
			continue
		}
		if !ringContains(poly[0], pos) {
			continue
		}
		inHole := false
		for _, hole := range poly[1:] {
			if ringContains(hole, pos) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

func ringContains(ring []Position, pos Position) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon(), ring[i].Lat()
		xj, yj := ring[j].Lon(), ring[j].Lat()
		if (yi > pos.Lat()) != (yj > pos.Lat()) &&
			pos.Lon() < (xj-xi)*(pos.Lat()-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
