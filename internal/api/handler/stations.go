package handler

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/railtrace/railtrace/internal/api/models"
	"github.com/railtrace/railtrace/internal/api/response"
	"github.com/railtrace/railtrace/internal/search"
)

// StationSearcher runs fuzzy station searches.
type StationSearcher interface {
	Search(query string, countries []string) []search.Result
}

// StationsHandler handles station search.
type StationsHandler struct {
	index    StationSearcher
	validate *validator.Validate
}

// NewStationsHandler creates a new StationsHandler.
func NewStationsHandler(index StationSearcher, validate *validator.Validate) *StationsHandler {
	return &StationsHandler{index: index, validate: validate}
}

// Search handles GET /stations?name=&countries= - fuzzy station search.
// A missing name yields an empty list rather than an error.
func (h *StationsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := models.StationsQuery{
		Name:      r.URL.Query().Get("name"),
		Countries: splitCountries(r.URL.Query().Get("countries")),
	}

	if err := h.validate.Struct(query); err != nil {
		response.BadRequest(w, r, "invalid station search parameters", fieldErrors(err, map[string]string{
			"Name":      "name",
			"Countries": "countries",
		}))
		return
	}

	if strings.TrimSpace(query.Name) == "" {
		response.JSON(w, r, http.StatusOK, []search.Result{})
		return
	}

	response.JSON(w, r, http.StatusOK, h.index.Search(query.Name, query.Countries))
}

func splitCountries(raw string) []string {
	if raw == "" {
		return nil
	}
	var countries []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			countries = append(countries, c)
		}
	}
	return countries
}
