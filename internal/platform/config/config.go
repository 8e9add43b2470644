package config

import (
	"os"
	"time"
)

// Config captures process-level configuration for both binaries.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	// Ingestion source.
	SourceURL     string
	CityNamesPath string
	IngestToken   string

	// Geocoding provider.
	GeocodeBaseURL  string
	GeocodeAPIKey   string
	GeocodeCountry  string
	GeocodeLanguage string
	GeocodeCacheTTL time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
// DatabaseURL and RedisURL are optional; absent, the in-memory store is used
// and geocode results are not cached.
func FromEnv() Config {
	cfg := Config{
		Addr:            getenv("CIVICAT_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("CIVICAT_DATABASE_URL"),
		RedisURL:        os.Getenv("CIVICAT_REDIS_URL"),
		SourceURL:       getenv("CIVICAT_SOURCE_URL", "https://next.obudget.org/datapackages/facilities/all/all-facilities.csv"),
		CityNamesPath:   getenv("CIVICAT_CITY_NAMES", "city_names.csv"),
		IngestToken:     os.Getenv("CIVICAT_INGEST_TOKEN"),
		GeocodeBaseURL:  getenv("CIVICAT_GEOCODE_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
		GeocodeAPIKey:   os.Getenv("CIVICAT_GEOCODE_KEY"),
		GeocodeCountry:  getenv("CIVICAT_GEOCODE_COUNTRY", "IL"),
		GeocodeLanguage: getenv("CIVICAT_GEOCODE_LANGUAGE", "iw"),
		GeocodeCacheTTL: 24 * time.Hour,
	}
	if ttl := os.Getenv("CIVICAT_GEOCODE_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.GeocodeCacheTTL = d
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
