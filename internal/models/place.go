package models

// Place is one managed business listing on the platform
type Place struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
}
