package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/skyhil/hilbridge/pkg/core"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Positions are stored as EPSG:3857 so SQLite, which has no spatial types, and
// PostGIS can share the same WKB column. Altitude rides along as Z.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// GeoPointFromString parses "lat,lon" or "lat,lon,alt" into a WGS84 point.
func GeoPointFromString(coords string) (core.GeoPoint, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return core.GeoPoint{}, ErrInvalidCoordinates
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return core.GeoPoint{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	if vals[0] < -90 || vals[0] > 90 || vals[1] < -180 || vals[1] > 180 {
		return core.GeoPoint{}, ErrInvalidCoordinates
	}
	return core.GeoPoint{Latitude: vals[0], Longitude: vals[1], Altitude: vals[2]}, nil
}

// PointFromGeo projects a WGS84 position to EPSG:3857, keeping altitude as Z.
func PointFromGeo(p core.GeoPoint) geom.Point {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(p.Longitude, p.Latitude, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Z:    p.Altitude,
			Type: geom.DimXYZ,
		},
	)
}

// GeoFromPoint is the inverse of PointFromGeo. An empty point is an error.
func GeoFromPoint(pt geom.Point) (core.GeoPoint, error) {
	c, ok := pt.Coordinates()
	if !ok {
		return core.GeoPoint{}, ErrInvalidCoordinates
	}
	f := wgs84.EPSG().Transform(3857, 4326)
	lon, lat, _ := f(c.X, c.Y, 0)
	return core.GeoPoint{Latitude: lat, Longitude: lon, Altitude: c.Z}, nil
}
