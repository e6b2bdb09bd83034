package pathplan

import (
	"math"

	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
)

// Origin anchors the planning grid on the globe: grid x points east and y points north, both in
// meters from the origin.
type Origin struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the origin is a coordinate.
func (o Origin) Validate() error {
	if o.Lat < -90 || o.Lat > 90 || o.Lng < -180 || o.Lng > 180 {
		return errors.Errorf("origin %v,%v is not a coordinate", o.Lat, o.Lng)
	}
	return nil
}

// Geolocate sets the latitude and longitude of every waypoint relative to origin.
func Geolocate(origin Origin, wps []Waypoint) []Waypoint {
	p := geo.NewPoint(origin.Lat, origin.Lng)
	out := make([]Waypoint, len(wps))
	for i, wp := range wps {
		out[i] = wp
		dist := math.Hypot(wp.X, wp.Y) / 1000
		bearing := math.Atan2(wp.X, wp.Y) * 180 / math.Pi
		at := p.PointAtDistanceAndBearing(dist, bearing)
		out[i].Lat, out[i].Lng = at.Lat(), at.Lng()
	}
	return out
}
