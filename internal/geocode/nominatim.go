package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimGeocoder queries an OSM Nominatim instance. Requests are spaced by
// MinInterval and answers are cached per query for the process lifetime.
type NominatimGeocoder struct {
	BaseURL     string
	UserAgent   string
	MinInterval time.Duration
	Client      *http.Client

	mu        sync.Mutex
	lastReqAt time.Time
	cache     map[string]Point
}

type nominatimItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func NewNominatim(baseURL, userAgent string) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	if userAgent == "" {
		userAgent = "campusfix-backend"
	}
	return &NominatimGeocoder{
		BaseURL:     baseURL,
		UserAgent:   userAgent,
		MinInterval: time.Second,
		Client:      &http.Client{Timeout: 10 * time.Second},
		cache:       map[string]Point{},
	}
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (Point, error) {
	if query == "" {
		return Point{}, ErrNotFound
	}
	if cached, ok := g.cached(query); ok {
		return cached, nil
	}
	if err := g.wait(ctx); err != nil {
		return Point{}, err
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1", g.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Point{}, err
	}
	req.Header.Set("User-Agent", g.UserAgent)

	resp, err := g.Client.Do(req)
	if err != nil {
		return Point{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Point{}, fmt.Errorf("nominatim http error: %s", resp.Status)
	}

	var items []nominatimItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return Point{}, err
	}
	point, err := parseNominatimItems(items)
	if err != nil {
		return Point{}, err
	}

	g.mu.Lock()
	g.cache[query] = point
	g.mu.Unlock()
	return point, nil
}

func (g *NominatimGeocoder) cached(query string) (Point, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cache == nil {
		g.cache = map[string]Point{}
	}
	p, ok := g.cache[query]
	return p, ok
}

// wait reserves the next request slot and sleeps until it, or until ctx ends.
func (g *NominatimGeocoder) wait(ctx context.Context) error {
	g.mu.Lock()
	next := g.lastReqAt.Add(g.MinInterval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	g.lastReqAt = next
	g.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseNominatimItems(items []nominatimItem) (Point, error) {
	if len(items) == 0 {
		return Point{}, ErrNotFound
	}
	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("parse lat: %w", err)
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("parse lon: %w", err)
	}
	if lat == 0 && lon == 0 && items[0].DisplayName == "" {
		return Point{}, ErrNotFound
	}
	return Point{
		Lat:         lat,
		Lon:         lon,
		DisplayName: items[0].DisplayName,
		Confidence:  items[0].Importance,
	}, nil
}
