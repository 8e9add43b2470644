package geocode

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const rooftopResponse = `{
	"status": "OK",
	"results": [{
		"formatted_address": "Herzl 1, Tel Aviv",
		"geometry": {
			"location_type": "ROOFTOP",
			"location": {"lat": 32.05, "lng": 34.77}
		},
		"address_components": [
			{"long_name": "Tel Aviv", "types": ["locality", "political"]}
		]
	}]
}`

func TestLookupAccurate(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		io.WriteString(w, rooftopResponse)
	}))
	defer srv.Close()

	g := New(srv.URL, "test-key", "IL", "iw", nil, discardLogger())
	frag := g.Lookup(context.Background(), "Herzl 1")

	assert.Equal(t, StatusOK, frag[StatusField])
	assert.Equal(t, 32.05, frag["lat"])
	assert.Equal(t, 34.77, frag["lng"])
	assert.Equal(t, "Herzl 1, Tel Aviv", frag["formatted_address"])
	assert.Equal(t, "Tel Aviv", frag["city"])

	require.NotNil(t, gotQuery)
	assert.Equal(t, []string{"country:IL"}, gotQuery["components"])
	assert.Equal(t, []string{"iw"}, gotQuery["language"])
}

func TestLookupInaccurate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {"location_type": "APPROXIMATE", "location": {"lat": 1, "lng": 2}},
				"address_components": [{"long_name": "Haifa", "types": ["locality"]}]
			}]
		}`)
	}))
	defer srv.Close()

	g := New(srv.URL, "test-key", "IL", "iw", nil, discardLogger())
	frag := g.Lookup(context.Background(), "somewhere vague")

	assert.Equal(t, StatusInaccurate, frag[StatusField])
	assert.NotContains(t, frag, "lat", "imprecise results never publish coordinates")
	assert.NotContains(t, frag, "lng")
	assert.Equal(t, "Haifa", frag["city"], "locality is extracted regardless of accuracy")
}

func TestLookupNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	g := New(srv.URL, "test-key", "IL", "iw", nil, discardLogger())
	frag := g.Lookup(context.Background(), "nowhere")

	assert.Equal(t, Fragment{StatusField: StatusInitial}, frag)
}

func TestLookupTransportFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // connection refused

	g := New(srv.URL, "test-key", "IL", "iw", nil, discardLogger())
	frag := g.Lookup(context.Background(), "Herzl 1")

	assert.Equal(t, Fragment{StatusField: StatusInitial}, frag)
}

// memCache is a map-backed Cache for exercising the caching path.
type memCache struct {
	mu      sync.Mutex
	entries map[string]Fragment
}

func (c *memCache) Get(_ context.Context, address string) (Fragment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frag, ok := c.entries[address]
	return frag, ok
}

func (c *memCache) Set(_ context.Context, address string, frag Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]Fragment{}
	}
	c.entries[address] = frag
}

func TestLookupUsesCache(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		io.WriteString(w, rooftopResponse)
	}))
	defer srv.Close()

	g := New(srv.URL, "test-key", "IL", "iw", &memCache{}, discardLogger())

	first := g.Lookup(context.Background(), "Herzl 1")
	second := g.Lookup(context.Background(), "Herzl 1")

	assert.Equal(t, 1, calls, "second lookup is served from cache")
	assert.Equal(t, first, second)
}

func TestLookupDoesNotCacheFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	g := New(srv.URL, "test-key", "IL", "iw", &memCache{}, discardLogger())
	g.Lookup(context.Background(), "nowhere")
	g.Lookup(context.Background(), "nowhere")

	assert.Equal(t, 2, calls, "INITIAL outcomes are retried, not cached")
}
