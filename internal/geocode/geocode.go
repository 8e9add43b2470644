// Package geocode adapts the external geocoding service. Lookups never fail
// the calling request: any transport or provider problem degrades to an
// INITIAL status fragment so a write proceeds without coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// StatusField is the private marker recording the outcome of the most
// recent geocoding attempt for an address.
const StatusField = "_private_geocoding_status"

// Geocoding outcomes.
const (
	StatusInitial    = "INITIAL"
	StatusInaccurate = "INACCURATE"
	StatusOK         = "OK"
)

// Fragment is the update produced by a lookup, merged into a write payload.
type Fragment = map[string]any

// accurate is the set of provider location types precise enough to publish
// coordinates for.
var accurate = map[string]bool{
	"ROOFTOP":            true,
	"RANGE_INTERPOLATED": true,
}

// Geocoder resolves free-text addresses against the provider, restricted to
// one country and language, with optional caching in front.
type Geocoder struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	country  string
	language string
	cache    Cache
	logger   *slog.Logger
}

func New(baseURL, apiKey, country, language string, cache Cache, logger *slog.Logger) *Geocoder {
	return &Geocoder{
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		apiKey:   apiKey,
		country:  country,
		language: language,
		cache:    cache,
		logger:   logger,
	}
}

type response struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			LocationType string `json:"location_type"`
			Location     struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// Lookup geocodes an address and classifies the result. The returned
// fragment always carries StatusField; coordinates and formatted address are
// present only when the provider's accuracy justifies publishing them.
func (g *Geocoder) Lookup(ctx context.Context, address string) Fragment {
	if g.cache != nil {
		if frag, ok := g.cache.Get(ctx, address); ok {
			return frag
		}
	}

	frag := g.lookup(ctx, address)

	// INITIAL means the attempt failed or found nothing; don't pin that.
	if g.cache != nil && frag[StatusField] != StatusInitial {
		g.cache.Set(ctx, address, frag)
	}
	return frag
}

func (g *Geocoder) lookup(ctx context.Context, address string) Fragment {
	frag := Fragment{StatusField: StatusInitial}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)
	params.Set("language", g.language)
	params.Set("components", "country:"+g.country)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		g.logger.WarnContext(ctx, "geocode request build failed", "error", err)
		return frag
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WarnContext(ctx, "geocode request failed", "error", err)
		return frag
	}
	defer resp.Body.Close()

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		g.logger.WarnContext(ctx, "geocode response decode failed", "error", err)
		return frag
	}
	if parsed.Status != "OK" || len(parsed.Results) == 0 {
		return frag
	}

	result := parsed.Results[0]
	if accurate[result.Geometry.LocationType] {
		frag["lat"] = result.Geometry.Location.Lat
		frag["lng"] = result.Geometry.Location.Lng
		frag["formatted_address"] = result.FormattedAddress
		frag[StatusField] = StatusOK
	} else {
		frag[StatusField] = StatusInaccurate
	}
	for _, component := range result.AddressComponents {
		for _, typ := range component.Types {
			if typ == "locality" {
				frag["city"] = component.LongName
			}
		}
	}
	return frag
}
