// Package geocoder resolves parcel addresses to WGS84 coordinates using a
// nominatim-style external service with a static municipality fallback table.
// Resolution is total: a query never fails with not-found, it degrades down
// to the national centroid.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/parcelaria/api/internal/config"
	"github.com/parcelaria/api/internal/logger"
)

// Source tags where a resolution came from.
type Source string

const (
	SourceExternal         Source = "external"
	SourceFallbackTable    Source = "fallback_table"
	SourceNationalCentroid Source = "national_centroid"
)

// Query is the address bundle to resolve. Municipality is the only field the
// fallback path needs; address and province sharpen the external query.
type Query struct {
	Address      string
	Municipality string
	Province     string
}

// Location is a resolved coordinate pair with its provenance.
type Location struct {
	Lat    float64
	Lon    float64
	Source Source
}

// Geocoder resolves queries with at most one external round trip per call
// (plus one simplified retry on an empty result set). It holds no cache;
// callers may memoize.
type Geocoder struct {
	baseURL   string
	userAgent string
	country   string
	client    *http.Client
	log       *logger.Logger
}

// New creates a Geocoder from configuration. The HTTP client timeout is the
// outer deadline for the external call; expiry degrades to the table.
func New(cfg config.GeocoderConfig, log *logger.Logger) *Geocoder {
	return &Geocoder{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		country:   cfg.Country,
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       log,
	}
}

// Resolve produces coordinates for the query. Resolution order: external
// service with the full composite query, external retry with address and
// country only, static fallback table, national centroid.
func (g *Geocoder) Resolve(ctx context.Context, q Query) Location {
	composite := g.compositeQuery(q)
	if loc, ok := g.resolveExternal(ctx, composite); ok {
		return loc
	}

	// Simplified retry drops municipality and province; only worth it when
	// there is an address to search for.
	if q.Address != "" {
		simplified := fmt.Sprintf("%s, %s", q.Address, g.country)
		if loc, ok := g.resolveExternal(ctx, simplified); ok {
			return loc
		}
	}

	if entry, ok := lookupFallback(q.Municipality); ok {
		g.log.Info("Geocoder degraded to fallback table", map[string]interface{}{
			"municipality": q.Municipality,
			"matched":      entry.Municipality,
		})
		return Location{Lat: entry.Lat, Lon: entry.Lon, Source: SourceFallbackTable}
	}

	g.log.Warn("Geocoder degraded to national centroid", map[string]interface{}{
		"municipality": q.Municipality,
	})
	return Location{Lat: nationalCentroidLat, Lon: nationalCentroidLon, Source: SourceNationalCentroid}
}

// compositeQuery builds "{address}, {municipality}, {province}, {country}"
// skipping empty parts.
func (g *Geocoder) compositeQuery(q Query) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{q.Address, q.Municipality, q.Province, g.country} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// nominatimResult is the subset of the search response the geocoder consumes.
// Nominatim returns lat/lon as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// resolveExternal performs one search round trip. Transport errors, non-200
// statuses, malformed bodies and empty result sets all report !ok so the
// caller can degrade.
func (g *Geocoder) resolveExternal(ctx context.Context, query string) (Location, bool) {
	if strings.TrimSpace(query) == "" {
		return Location{}, false
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1", g.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, false
	}
	// The external service rejects anonymous clients
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warn("Geocoder external request failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return Location{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.log.Warn("Geocoder external request rejected", map[string]interface{}{
			"query":  query,
			"status": resp.StatusCode,
		})
		return Location{}, false
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Location{}, false
	}
	if len(results) == 0 {
		return Location{}, false
	}

	// Only the first result is consumed
	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return Location{}, false
	}

	g.log.Debug("Geocoder resolved externally", map[string]interface{}{
		"query":        query,
		"display_name": results[0].DisplayName,
	})
	return Location{Lat: lat, Lon: lon, Source: SourceExternal}, true
}
