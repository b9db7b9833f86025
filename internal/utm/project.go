package utm

import (
	"math"

	"landcover-pipeline/internal/aoi"
)

// WGS84 ellipsoid and transverse Mercator constants
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257223563
	scaleFactor   = 0.9996
	falseEasting  = 500000.0
	falseNorthing = 10000000.0 // southern hemisphere only
)

// Project converts a lon/lat position to UTM easting/northing in the
// given zone using the standard transverse Mercator series (Snyder,
// Map Projections: A Working Manual, eqs. 8-9 through 8-15). Accuracy
// is well under a meter inside the zone, which is ample for 10 m
// pixels.
func Project(z Zone, pos aoi.Position) (easting, northing float64) {
	e2 := flattening * (2 - flattening)
	ep2 := e2 / (1 - e2)

	phi := pos.Lat() * math.Pi / 180
	lam := pos.Lon() * math.Pi / 180
	lam0 := float64(z.Number*6-183) * math.Pi / 180

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := sinPhi / cosPhi

	n := semiMajorAxis / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := (lam - lam0) * cosPhi

	m := semiMajorAxis * ((1-e2/4-3*e2*e2/64-5*e2*e2*e2/256)*phi -
		(3*e2/8+3*e2*e2/32+45*e2*e2*e2/1024)*math.Sin(2*phi) +
		(15*e2*e2/256+45*e2*e2*e2/1024)*math.Sin(4*phi) -
		(35*e2*e2*e2/3072)*math.Sin(6*phi))

	easting = falseEasting + scaleFactor*n*(a+
		(1-t+c)*a*a*a/6+
		(5-18*t+t*t+72*c-58*ep2)*a*a*a*a*a/120)

	northing = scaleFactor * (m + n*tanPhi*(a*a/2+
		(5-t+9*c+4*c*c)*a*a*a*a/24+
		(61-58*t+t*t+600*c-330*ep2)*a*a*a*a*a*a/720))

	if !z.Northern {
		northing += falseNorthing
	}
	return easting, northing
}
