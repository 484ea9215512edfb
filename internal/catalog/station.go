package catalog

import "strconv"

// Station is a single row of the station dataset.
type Station struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Info        string  `json:"info,omitempty"`
	Slug        string  `json:"slug"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
	Suggestable bool    `json:"is_suggestable"`

	located bool
}

// Located reports whether the dataset carried coordinates for the station.
func (s *Station) Located() bool {
	return s.located
}

// LatLon formats the station position as "lat,lon".
func (s *Station) LatLon() string {
	return formatCoord(s.Latitude) + "," + formatCoord(s.Longitude)
}

// LonLat formats the station position as "lon,lat".
func (s *Station) LonLat() string {
	return formatCoord(s.Longitude) + "," + formatCoord(s.Latitude)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
