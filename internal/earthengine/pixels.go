package earthengine

import (
	"context"
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"landcover-pipeline/internal/aoi"
	"landcover-pipeline/internal/common"
	"landcover-pipeline/internal/raster"
	"landcover-pipeline/internal/utm"
)

// GridSpec pins every pixel fetch for a run to one UTM lattice so that
// all fetched grids are co-registered and can be reduced
// pixel-by-pixel.
type GridSpec struct {
	Width     int
	Height    int
	Transform [6]float64
	CRS       string
	Zone      utm.Zone
}

// GridSpecForAOI derives the fetch lattice from the AOI: the UTM zone
// of its centroid, pixel edges snapped to whole multiples of the scale,
// one pixel of padding around the projected envelope.
func GridSpecForAOI(area *aoi.AOI, scale float64) (GridSpec, error) {
	if scale <= 0 {
		return GridSpec{}, fmt.Errorf("scale must be positive, got %f", scale)
	}
	bbox := area.BoundingBox()
	if err := bbox.Validate(); err != nil {
		return GridSpec{}, fmt.Errorf("invalid AOI bounding box: %w", err)
	}
	zone, err := utm.FromPosition(bbox.Center())
	if err != nil {
		return GridSpec{}, err
	}

	// Project all four envelope corners; the projected envelope is not
	// axis-aligned in UTM
	corners := []aoi.Position{
		{bbox.West, bbox.South},
		{bbox.West, bbox.North},
		{bbox.East, bbox.South},
		{bbox.East, bbox.North},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y := utm.Project(zone, c)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	originX := math.Floor(minX/scale)*scale - scale
	originY := math.Ceil(maxY/scale)*scale + scale
	width := int(math.Ceil((maxX-originX)/scale)) + 1
	height := int(math.Ceil((originY-minY)/scale)) + 1
	if width <= 0 || height <= 0 {
		return GridSpec{}, fmt.Errorf("degenerate grid %dx%d for AOI", width, height)
	}
	if width*height > common.MaxExportPixels {
		return GridSpec{}, fmt.Errorf("AOI grid %dx%d exceeds %d pixel safeguard", width, height, common.MaxExportPixels)
	}

	return GridSpec{
		Width:     width,
		Height:    height,
		Transform: utm.Transform(scale, originX, originY),
		CRS:       zone.Code(),
		Zone:      zone,
	}, nil
}

// ProjectAOI projects the AOI's rings into the grid's UTM zone for
// pixel masking
func (spec GridSpec) ProjectAOI(area *aoi.AOI) []raster.Polygon {
	return projectPolygons(area, spec.Zone)
}

type pixelGrid struct {
	Dimensions struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"dimensions"`
	AffineTransform struct {
		ScaleX     float64 `json:"scaleX"`
		ShearX     float64 `json:"shearX"`
		TranslateX float64 `json:"translateX"`
		ShearY     float64 `json:"shearY"`
		ScaleY     float64 `json:"scaleY"`
		TranslateY float64 `json:"translateY"`
	} `json:"affineTransform"`
	CRSCode string `json:"crsCode"`
}

type getPixelsRequest struct {
	FileFormat string    `json:"fileFormat"`
	BandIDs    []string  `json:"bandIds"`
	Grid       pixelGrid `json:"grid"`
}

// FetchPixels fetches all 10 Dynamic World bands of one image on the
// given lattice. Pixels outside the image footprint come back
// zero-filled; since valid class probabilities are strictly positive, a
// record whose probability bands are all zero is treated as masked.
func (c *Client) FetchPixels(ctx context.Context, image Image, spec GridSpec) (*raster.Grid, error) {
	req := getPixelsRequest{
		FileFormat: "NPY",
		BandIDs:    common.AllBands(),
	}
	req.Grid.Dimensions.Width = spec.Width
	req.Grid.Dimensions.Height = spec.Height
	req.Grid.AffineTransform.ScaleX = spec.Transform[0]
	req.Grid.AffineTransform.ShearX = spec.Transform[1]
	req.Grid.AffineTransform.TranslateX = spec.Transform[2]
	req.Grid.AffineTransform.ShearY = spec.Transform[3]
	req.Grid.AffineTransform.ScaleY = spec.Transform[4]
	req.Grid.AffineTransform.TranslateY = spec.Transform[5]
	req.Grid.CRSCode = spec.CRS

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getPixels request: %w", err)
	}

	data, err := c.post(ctx, "/"+image.Name+":getPixels", body)
	if err != nil {
		return nil, fmt.Errorf("getPixels for %s failed: %w", image.SystemIndex(), err)
	}

	fields, planes, rows, cols, err := decodeNPY(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pixels for %s: %w", image.SystemIndex(), err)
	}
	if rows != spec.Height || cols != spec.Width {
		return nil, fmt.Errorf("pixel grid mismatch for %s: got %dx%d, want %dx%d",
			image.SystemIndex(), cols, rows, spec.Width, spec.Height)
	}

	grid := raster.NewGrid(spec.Width, spec.Height, common.AllBands(), spec.Transform, spec.CRS)
	fieldIndex := make(map[string]int, len(fields))
	for i, name := range fields {
		fieldIndex[name] = i
	}
	for b, name := range grid.BandNames {
		i, ok := fieldIndex[name]
		if !ok {
			return nil, fmt.Errorf("band %q missing from pixel response for %s", name, image.SystemIndex())
		}
		copy(grid.Bands[b], planes[i])
	}

	maskZeroRecords(grid)
	return grid, nil
}

// maskZeroRecords converts zero-filled footprint padding into no-data
func maskZeroRecords(g *raster.Grid) {
	size := g.Width * g.Height
	nodata := raster.NoData()
	for i := 0; i < size; i++ {
		masked := true
		for b := 0; b < common.LabelBandIndex; b++ {
			if g.Bands[b][i] != 0 {
				masked = false
				break
			}
		}
		if masked {
			for b := range g.Bands {
				g.Bands[b][i] = nodata
			}
		}
	}
}

func projectPolygons(area *aoi.AOI, zone utm.Zone) []raster.Polygon {
	var out []raster.Polygon
	for _, rings := range area.Rings() {
		poly := make(raster.Polygon, 0, len(rings))
		for _, ring := range rings {
			projected := make([]raster.Point, 0, len(ring))
			for _, pos := range ring {
				x, y := utm.Project(zone, pos)
				projected = append(projected, raster.Point{x, y})
			}
			poly = append(poly, projected)
		}
		out = append(out, poly)
	}
	return out
}
