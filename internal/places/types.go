// Package places resolves free-text queries, place IDs and addresses through
// the Google Maps Platform web services, fronted by the read-through cache.
package places

// LatLng is a WGS84 coordinate
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the coordinate is unset. (0,0) lies in the Gulf of
// Guinea and never comes back for a real address.
func (l LatLng) IsZero() bool {
	return l.Lat == 0 && l.Lng == 0
}

// Place is the best text search match for a query
type Place struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	Location         LatLng   `json:"location"`
	Types            []string `json:"types,omitempty"`
}

// Complete reports whether the place carries everything a listing needs.
// Partial matches without an address are served but never cached.
func (p Place) Complete() bool {
	return p.PlaceID != "" && p.FormattedAddress != ""
}

// PlaceDetails is the detail record for a place ID
type PlaceDetails struct {
	PlaceID          string  `json:"place_id"`
	Name             string  `json:"name,omitempty"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Location         LatLng  `json:"location"`
	Phone            string  `json:"phone,omitempty"`
	Website          string  `json:"website,omitempty"`
	Rating           float64 `json:"rating,omitempty"`
}

func (d PlaceDetails) Complete() bool {
	return d.FormattedAddress != ""
}

// GeocodeResult is the first geocoding match for an address
type GeocodeResult struct {
	PlaceID          string `json:"place_id,omitempty"`
	FormattedAddress string `json:"formatted_address"`
	Location         LatLng `json:"location"`
}

func (g GeocodeResult) Complete() bool {
	return g.FormattedAddress != "" && !g.Location.IsZero()
}

// Wire formats of the Google web services. Only the fields we read are declared.

type apiStatus struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type apiGeometry struct {
	Location LatLng `json:"location"`
}

type apiPlace struct {
	PlaceID              string      `json:"place_id"`
	Name                 string      `json:"name"`
	FormattedAddress     string      `json:"formatted_address"`
	Geometry             apiGeometry `json:"geometry"`
	Types                []string    `json:"types"`
	FormattedPhoneNumber string      `json:"formatted_phone_number"`
	Website              string      `json:"website"`
	Rating               float64     `json:"rating"`
}

type textSearchResponse struct {
	apiStatus
	Results []apiPlace `json:"results"`
}

type detailsResponse struct {
	apiStatus
	Result apiPlace `json:"result"`
}

type geocodeResponse struct {
	apiStatus
	Results []apiPlace `json:"results"`
}

// statusCarrier is implemented by every response envelope. reset clears it
// before each attempt is decoded so a failed body leaves nothing behind.
type statusCarrier interface {
	status() apiStatus
	reset()
}

func (s apiStatus) status() apiStatus { return s }

func (r *textSearchResponse) reset() { *r = textSearchResponse{} }
func (r *detailsResponse) reset()    { *r = detailsResponse{} }
func (r *geocodeResponse) reset()    { *r = geocodeResponse{} }
