package relay

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/blevesearch/bleve/v2/geo"
	"github.com/spf13/cast"
)

// Resolver picks the identities an alert from sender should reach.
// Implementations never return sender, may return nothing, and must not fail.
type Resolver interface {
	Resolve(sender string, location Location) []string
}

// ResolverFunc adapts a plain function to Resolver
type ResolverFunc func(sender string, location Location) []string

func (f ResolverFunc) Resolve(sender string, location Location) []string {
	return f(sender, location)
}

// PairResolver is the fixed two-identity mapping: A alerts B, anyone else
// alerts A. Location is ignored. Useful for compatibility tests only.
type PairResolver struct {
	A, B string
}

func (p PairResolver) Resolve(sender string, _ Location) []string {
	target := p.A
	if sender == p.A {
		target = p.B
	}
	if target == "" || target == sender {
		return nil
	}
	return []string{target}
}

// Locator lists the currently registered clients
type Locator interface {
	Snapshot() []Entry
}

// RadiusResolver selects registered clients whose last location lies within
// RadiusKm of the sender, nearest first.
type RadiusResolver struct {
	Source        Locator
	RadiusKm      float64
	MaxRecipients int
}

func (r RadiusResolver) Resolve(sender string, location Location) []string {
	origin, ok := ParsePoint(location)
	if !ok || r.Source == nil {
		return nil
	}

	found := Nearby(r.Source.Snapshot(), origin, r.RadiusKm, sender)
	if r.MaxRecipients > 0 && len(found) > r.MaxRecipients {
		found = found[:r.MaxRecipients]
	}
	out := make([]string, len(found))
	for i, n := range found {
		out[i] = n.Identity
	}
	return out
}

// Neighbor is a registered client and its distance from a point
type Neighbor struct {
	Identity   string  `json:"userId"`
	DistanceKm float64 `json:"distanceKm"`
}

// Nearby returns the entries within radiusKm of origin, nearest first and
// then by identity. Entries without a usable location and the identity
// named by exclude are skipped.
func Nearby(entries []Entry, origin Point, radiusKm float64, exclude string) []Neighbor {
	var found []Neighbor
	for _, e := range entries {
		if e.Identity == exclude {
			continue
		}
		p, ok := ParsePoint(e.Location)
		if !ok {
			continue
		}
		if km := DistanceKm(origin, p); km <= radiusKm {
			found = append(found, Neighbor{Identity: e.Identity, DistanceKm: km})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].DistanceKm != found[j].DistanceKm {
			return found[i].DistanceKm < found[j].DistanceKm
		}
		return found[i].Identity < found[j].Identity
	})
	return found
}

// Point is a WGS84 coordinate
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether p is on the globe
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// ParsePoint reads {"lat":..,"lng":..} (or "lon") out of an opaque location.
// Numeric strings are accepted.
func ParsePoint(location Location) (Point, bool) {
	if len(location) == 0 {
		return Point{}, false
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(location, &fields); err != nil {
		return Point{}, false
	}

	lat, err := cast.ToFloat64E(fields["lat"])
	if err != nil || fields["lat"] == nil {
		return Point{}, false
	}
	rawLng, ok := fields["lng"]
	if !ok {
		rawLng = fields["lon"]
	}
	lng, err := cast.ToFloat64E(rawLng)
	if err != nil || rawLng == nil {
		return Point{}, false
	}

	p := Point{Lat: lat, Lng: lng}
	if !p.Valid() || math.IsNaN(lat) || math.IsNaN(lng) {
		return Point{}, false
	}
	return p, true
}

// DistanceKm is the great-circle distance between a and b
func DistanceKm(a, b Point) float64 {
	return geo.Haversin(a.Lng, a.Lat, b.Lng, b.Lat)
}

// drivingSpeedKmh is the urban average used for responder ETAs
const drivingSpeedKmh = 30

// EstimateETA returns whole minutes at driving speed (at least one) and a
// display form: "8 min", "1h 5m", "2h".
func EstimateETA(distanceKm float64) (int, string) {
	minutes := int(math.Round(distanceKm / drivingSpeedKmh * 60))
	if minutes < 1 {
		minutes = 1
	}
	if minutes < 60 {
		return minutes, fmt.Sprintf("%d min", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return minutes, fmt.Sprintf("%dh", h)
	}
	return minutes, fmt.Sprintf("%dh %dm", h, m)
}

// FormatDistance renders kilometres with one decimal
func FormatDistance(km float64) string {
	return fmt.Sprintf("%.1f km", km)
}
