package raster

// Point is a projected [x, y] coordinate in the grid's CRS
type Point [2]float64

// Polygon is a projected polygon: ring 0 is the exterior, further
// rings are holes
type Polygon [][]Point

// RasterizeMask marks every pixel of g whose center falls inside any of
// the polygons (holes excluded), using the even-odd rule. The polygons
// must already be in the grid's CRS.
func RasterizeMask(g *Grid, polygons []Polygon) []bool {
	mask := make([]bool, g.Width*g.Height)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.PixelCenter(col, row)
			if containsPoint(polygons, Point{x, y}) {
				mask[row*g.Width+col] = true
			}
		}
	}
	return mask
}

func containsPoint(polygons []Polygon, p Point) bool {
	for _, poly := range polygons {
		if len(poly) == 0 || !ringContains(poly[0], p) {
			continue
		}
		inHole := false
		for _, hole := range poly[1:] {
			if ringContains(hole, p) {
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

func ringContains(ring []Point, p Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > p[1]) != (yj > p[1]) &&
			p[0] < (xj-xi)*(p[1]-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
