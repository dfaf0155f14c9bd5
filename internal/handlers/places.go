package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Presence is checked by the service; these only bound what reaches Google.
type searchParams struct {
	Query string `query:"q" validate:"max=512"`
}

type detailsParams struct {
	PlaceID string `query:"placeID" validate:"place_id"`
}

type geocodeParams struct {
	Address string `query:"address" validate:"max=512"`
}

// SearchPlaces resolves a free-text query to a place
// @Summary Search places
// @Description Returns the best Google Places match for a free-text query, served from cache when fresh
// @Tags places
// @Produce json
// @Param q query string true "Search text"
// @Success 200 {object} places.Place
// @Failure 400 {object} errorResponse "Missing query"
// @Failure 404 {object} errorResponse "No match"
// @Failure 429 {object} errorResponse "Upstream quota exceeded"
// @Failure 502 {object} errorResponse "Upstream failure"
// @Router /api/places/search [get]
func (h *Handlers) SearchPlaces(w http.ResponseWriter, r *http.Request) {
	params := searchParams{Query: r.URL.Query().Get("q")}
	if err := h.validator.Struct(params); err != nil {
		h.writeError(w, r, err)
		return
	}

	place, err := h.places.Search(r.Context(), params.Query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

// GetPlaceDetails returns the detail record for a place ID
// @Summary Get place details
// @Tags places
// @Produce json
// @Param placeID path string true "Google place ID"
// @Success 200 {object} places.PlaceDetails
// @Failure 400 {object} errorResponse "Malformed place ID"
// @Failure 404 {object} errorResponse "Unknown place"
// @Router /api/places/details/{placeID} [get]
func (h *Handlers) GetPlaceDetails(w http.ResponseWriter, r *http.Request) {
	params := detailsParams{PlaceID: mux.Vars(r)["placeID"]}
	if err := h.validator.Struct(params); err != nil {
		h.writeError(w, r, err)
		return
	}

	details, err := h.places.Details(r.Context(), params.PlaceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// Geocode resolves an address to coordinates
// @Summary Geocode an address
// @Tags places
// @Produce json
// @Param address query string true "Postal address"
// @Success 200 {object} places.GeocodeResult
// @Router /api/geocode [get]
func (h *Handlers) Geocode(w http.ResponseWriter, r *http.Request) {
	params := geocodeParams{Address: r.URL.Query().Get("address")}
	if err := h.validator.Struct(params); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.places.Geocode(r.Context(), params.Address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
