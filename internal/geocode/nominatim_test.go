package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestParseNominatimItems(t *testing.T) {
	items := []nominatimItem{
		{
			Lat:         "51.1605",
			Lon:         "71.4704",
			DisplayName: "Main Library, North Campus",
			Importance:  0.72,
		},
	}
	res, err := parseNominatimItems(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Lat != 51.1605 || res.Lon != 71.4704 {
		t.Fatalf("unexpected coordinates: %+v", res)
	}
	if res.DisplayName != "Main Library, North Campus" {
		t.Fatalf("unexpected display name: %s", res.DisplayName)
	}
	if res.Confidence != 0.72 {
		t.Fatalf("unexpected confidence: %f", res.Confidence)
	}
}

func TestParseNominatimItemsEmpty(t *testing.T) {
	if _, err := parseNominatimItems(nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNominatimGeocoderCachesQueries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`[{"lat":"1.5","lon":"2.5","display_name":"Block A","importance":0.4}]`))
	}))
	defer srv.Close()

	g := NewNominatim(srv.URL, "test-agent")
	g.MinInterval = 0
	for i := 0; i < 2; i++ {
		p, err := g.Geocode(context.Background(), "North Campus, Block A")
		if err != nil {
			t.Fatalf("geocode: %v", err)
		}
		if p.Lat != 1.5 || p.Lon != 2.5 {
			t.Fatalf("unexpected point: %+v", p)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one upstream request, got %d", got)
	}
}
