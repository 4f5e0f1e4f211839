package detect

import "context"

// StaticGeolocator answers every lookup with a fixed location string. The
// booking page resolves it against the rider's account, so a generic phrase
// like "Current Location" is enough.
type StaticGeolocator struct {
	location string
}

// NewStaticGeolocator creates a geolocator pinned to location.
func NewStaticGeolocator(location string) *StaticGeolocator {
	return &StaticGeolocator{location: location}
}

// CurrentLocation implements Geolocator.
func (g *StaticGeolocator) CurrentLocation(ctx context.Context) (string, error) {
	return g.location, nil
}
