// Package polyline provides encoding and decoding utilities for the encoded polyline algorithm.
// The polyline algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
//
// Routing engines disagree on the fixed-point precision they encode with: Google and OSRM v5
// default to 5 decimal places, legacy OSRM v4 and GraphHopper use 6. Callers pick the
// precision explicitly.
package polyline

import (
	"errors"
	"fmt"
	"math"
)

// Precision is the fixed-point multiplier a polyline was encoded with.
type Precision float64

const (
	// Precision5 encodes coordinates with 5 decimal places.
	Precision5 Precision = 1e5
	// Precision6 encodes coordinates with 6 decimal places.
	Precision6 Precision = 1e6
)

// PrecisionFromDigits returns the precision for the given number of decimal places.
func PrecisionFromDigits(digits int) (Precision, error) {
	switch digits {
	case 5:
		return Precision5, nil
	case 6:
		return Precision6, nil
	default:
		return 0, fmt.Errorf("unsupported polyline precision: %d digits", digits)
	}
}

// ErrMalformed indicates the encoded string is not a valid polyline.
var ErrMalformed = errors.New("malformed polyline")

// MalformedError reports where decoding failed.
type MalformedError struct {
	Offset int    // Byte offset in the encoded string
	Reason string // What was wrong at Offset
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrMalformed.Error(), e.Offset, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

// LonLat returns the coordinate in GeoJSON axis order.
func (c Coordinate) LonLat() [2]float64 {
	return [2]float64{c.Lon, c.Lat}
}

// LonLat converts coordinates to [lon, lat] pairs.
func LonLat(coords []Coordinate) [][2]float64 {
	out := make([][2]float64, len(coords))
	for i, c := range coords {
		out[i] = c.LonLat()
	}
	return out
}

// maxShift bounds a single value to seven 5-bit groups.
const maxShift = 30

// Decode decodes a polyline-encoded string into a slice of coordinates.
// Latitude is decoded before longitude for every point. An empty string yields
// an empty slice. Invalid input returns a *MalformedError.
func Decode(encoded string, precision Precision) ([]Coordinate, error) {
	if precision <= 0 {
		return nil, fmt.Errorf("invalid polyline precision %v", float64(precision))
	}
	if encoded == "" {
		return []Coordinate{}, nil
	}

	coords := make([]Coordinate, 0, len(encoded)/4)
	index := 0
	var lat, lon int64

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next

		if index >= len(encoded) {
			return nil, &MalformedError{Offset: index, Reason: "latitude without longitude"}
		}

		lonDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next

		lat += latDelta
		lon += lonDelta

		coords = append(coords, Coordinate{
			Lat: float64(lat) / float64(precision),
			Lon: float64(lon) / float64(precision),
		})
	}

	return coords, nil
}

// decodeValue decodes a single value from the polyline at the given index.
// Returns the decoded delta value and the new index position.
func decodeValue(encoded string, index int) (int64, int, error) {
	var result int64
	shift := 0

	for {
		if index >= len(encoded) {
			return 0, index, &MalformedError{Offset: index, Reason: "value truncated"}
		}
		if shift > maxShift {
			return 0, index, &MalformedError{Offset: index, Reason: "value overflows 32 bits"}
		}

		c := encoded[index]
		if c < 63 || c > 126 {
			return 0, index, &MalformedError{Offset: index, Reason: fmt.Sprintf("invalid character %q", c)}
		}

		b := int64(c) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	// Undo zig-zag encoding
	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes a slice of coordinates into a polyline-encoded string.
func Encode(coords []Coordinate, precision Precision) string {
	if len(coords) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(coords)*8)
	var prevLat, prevLon int64

	for _, coord := range coords {
		lat := int64(math.Round(coord.Lat * float64(precision)))
		lon := int64(math.Round(coord.Lon * float64(precision)))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat = lat
		prevLon = lon
	}

	return string(encoded)
}

// encodeValue encodes a single integer value using the polyline algorithm.
func encodeValue(buf []byte, value int64) []byte {
	// Invert if negative
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	// Encode in 5-bit chunks
	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	buf = append(buf, byte(value)+63)

	return buf
}

// Length calculates the total length of a polyline in meters using the haversine formula.
func Length(coords []Coordinate) float64 {
	if len(coords) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(coords); i++ {
		total += haversineDistance(coords[i-1], coords[i])
	}
	return total
}

const earthRadiusMeters = 6371000

// haversineDistance calculates the distance between two coordinates in meters.
func haversineDistance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
