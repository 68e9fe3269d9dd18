// Package geocode resolves free-text campus locations to coordinates.
package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/campusfix/backend/internal/models"
)

var ErrNotFound = errors.New("location not found")

type Point struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
}

type Geocoder interface {
	Geocode(ctx context.Context, query string) (Point, error)
}

// BuildQuery joins the campus name and the reported location, most specific
// part last, skipping blanks.
func BuildQuery(campus string, location string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{campus, location} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ShouldGeocode is true when the incident carries a location but no
// coordinates yet.
func ShouldGeocode(incident models.Incident) bool {
	if strings.TrimSpace(incident.Location) == "" {
		return false
	}
	return incident.Latitude == nil || incident.Longitude == nil
}
