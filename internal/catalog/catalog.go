// Package catalog loads the station dataset used for route endpoints and name search.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// ErrMalformedDataset indicates the station file could not be parsed.
var ErrMalformedDataset = errors.New("malformed station dataset")

// DefaultInfoLocale selects the info:<locale> column used to disambiguate station names.
const DefaultInfoLocale = "fr"

// Required dataset columns.
const (
	colID          = "id"
	colName        = "name"
	colSlug        = "slug"
	colLatitude    = "latitude"
	colLongitude   = "longitude"
	colCountry     = "country"
	colSuggestable = "is_suggestable"
)

var requiredColumns = []string{colID, colName, colSlug, colLatitude, colLongitude, colCountry, colSuggestable}

// Options configures dataset parsing.
type Options struct {
	// InfoLocale picks the disambiguation column (info:<locale>). Default: "fr".
	InfoLocale string
}

// Catalog is the immutable set of stations loaded at startup.
type Catalog struct {
	byID        map[string]*Station
	suggestable []*Station
}

// LoadFile reads and parses the dataset at path.
func LoadFile(fs afero.Fs, path string, opts Options) (*Catalog, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station dataset: %w", err)
	}
	defer f.Close()

	c, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a catalog from a semicolon-delimited dataset with a header row.
// Either every row is loaded or an error is returned.
func Parse(r io.Reader, opts Options) (*Catalog, error) {
	locale := opts.InfoLocale
	if locale == "" {
		locale = DefaultInfoLocale
	}

	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", ErrMalformedDataset)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedDataset, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedDataset, name)
		}
	}
	infoCol, hasInfo := columns["info:"+locale]

	c := &Catalog{byID: make(map[string]*Station)}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
		}

		station, err := parseStation(record, columns)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedDataset, line, err)
		}
		if hasInfo {
			if info := strings.TrimSpace(record[infoCol]); info != "" {
				station.Info = info
				station.Name = fmt.Sprintf("%s (%s)", station.Name, info)
			}
		}

		c.byID[station.ID] = station
		if station.Suggestable {
			c.suggestable = append(c.suggestable, station)
		}
	}

	return c, nil
}

func parseStation(record []string, columns map[string]int) (*Station, error) {
	field := func(name string) string {
		return strings.TrimSpace(record[columns[name]])
	}

	s := &Station{
		ID:          field(colID),
		Name:        field(colName),
		Slug:        field(colSlug),
		Country:     field(colCountry),
		Suggestable: field(colSuggestable) == "t",
	}
	if s.ID == "" {
		return nil, errors.New("empty station id")
	}

	lat, lon := field(colLatitude), field(colLongitude)
	if lat == "" && lon == "" {
		return s, nil
	}

	var err error
	if s.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
		return nil, fmt.Errorf("station %s: latitude %q: %w", s.ID, lat, err)
	}
	if s.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
		return nil, fmt.Errorf("station %s: longitude %q: %w", s.ID, lon, err)
	}
	s.located = true

	return s, nil
}

// Station returns the station with the given identifier.
func (c *Catalog) Station(id string) (*Station, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Suggestable returns the stations flagged for suggestions, in dataset order.
// The returned slice must not be modified.
func (c *Catalog) Suggestable() []*Station {
	return c.suggestable
}

// Len returns the number of stations in the catalog.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// SuggestableLen returns the number of suggestable stations.
func (c *Catalog) SuggestableLen() int {
	return len(c.suggestable)
}
