// Package geo supplies the city catalogue and distance math used to suggest
// rooms near a client's coordinates. Everything here is a pure function over
// static tables; the relay core only ever sees the resulting room keys.
package geo

import (
	"math"
	"sort"
	"strings"
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// cityCenters maps known city identifiers to their centre coordinates.
var cityCenters = map[string]Point{
	"konigsbrunn": {48.268, 10.889},
	"munich":      {48.137, 11.575},
	"augsburg":    {48.371, 10.898},
	"new_york":    {40.7128, -74.0060},
}

// cityCircles lists the circles available per city.
var cityCircles = map[string][]string{
	"konigsbrunn": {"18-25", "25-35", "35-50", "50+"},
	"munich":      {"18-30", "30-45", "45-60", "60+"},
	"augsburg":    {"18-30", "30-45", "45-60"},
	"new_york":    {"18-25", "25-40", "40+"},
}

// Suggestion is one nearby-city candidate with its distance from the query
// point, rounded to one decimal kilometre.
type Suggestion struct {
	City       string  `json:"city"`
	DistanceKM float64 `json:"distance_km"`
}

// earthRadiusKM is the mean Earth radius used by the haversine formula.
const earthRadiusKM = 6371.0

// Haversine returns the great-circle distance in kilometres between two
// points given in degrees.
func Haversine(a, b Point) float64 {
	dlat := radians(b.Lat - a.Lat)
	dlon := radians(b.Lon - a.Lon)
	h := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Nearby returns up to n known cities sorted by ascending distance from the
// given point.
func Nearby(lat, lon float64, n int) []Suggestion {
	origin := Point{Lat: lat, Lon: lon}
	out := make([]Suggestion, 0, len(cityCenters))
	for name, center := range cityCenters {
		dist := Haversine(origin, center)
		out = append(out, Suggestion{
			City:       name,
			DistanceKM: math.Round(dist*10) / 10,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Cities returns the sorted list of known city identifiers.
func Cities() []string {
	out := make([]string, 0, len(cityCenters))
	for name := range cityCenters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Circles returns the circles configured for a city, or an empty slice when
// the city is unknown.
func Circles(city string) []string {
	circles, ok := cityCircles[strings.ToLower(city)]
	if !ok {
		return []string{}
	}
	return append([]string(nil), circles...)
}
