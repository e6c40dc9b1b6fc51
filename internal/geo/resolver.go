// Package geo resolves a client IP to coarse location data.
//
// Resolution is best effort end to end: a missing database, a dead
// endpoint or a private IP all yield a zero Location, never an error.
// Journeys proceed without geo fields when lookups fail.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

// Location is the enrichment attached to a fresh journey.
type Location struct {
	Country string
	City    string
	IP      string
}

const httpTimeout = 3 * time.Second

// Resolver looks up locations from a local MaxMind database when one is
// configured, falling back to a single bounded HTTP lookup otherwise.
type Resolver struct {
	db       *geoip2.Reader
	client   *http.Client
	endpoint string
}

// New builds a Resolver. dbPath may be empty (no local database);
// endpoint is a printf-style template with one %s for the IP. With
// neither configured every lookup returns a zero Location.
func New(dbPath, endpoint string) *Resolver {
	var db *geoip2.Reader
	if dbPath != "" {
		var err error
		db, err = geoip2.Open(dbPath)
		if err != nil {
			log.Warn().Err(err).Str("path", dbPath).Msg("GeoIP database unavailable, falling back to HTTP lookups")
			db = nil
		}
	}

	return &Resolver{
		db:       db,
		client:   &http.Client{Timeout: httpTimeout},
		endpoint: endpoint,
	}
}

// Resolve maps clientIP to a Location. Never returns an error; failures
// are logged at debug and swallowed.
func (r *Resolver) Resolve(ctx context.Context, clientIP string) Location {
	if clientIP == "" {
		return Location{}
	}

	if loc, ok := r.resolveLocal(clientIP); ok {
		return loc
	}
	return r.resolveHTTP(ctx, clientIP)
}

func (r *Resolver) resolveLocal(clientIP string) (Location, bool) {
	if r.db == nil {
		return Location{}, false
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return Location{}, false
	}

	record, err := r.db.City(ip)
	if err != nil || record.Country.IsoCode == "" {
		return Location{}, false
	}

	loc := Location{Country: record.Country.IsoCode, IP: clientIP}
	if name, ok := record.City.Names["en"]; ok {
		loc.City = name
	}
	return loc, true
}

// geoResponse matches the ipapi-style payload the fallback endpoint
// returns. Extra fields are ignored.
type geoResponse struct {
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	IP          string `json:"ip"`
}

func (r *Resolver) resolveHTTP(ctx context.Context, clientIP string) Location {
	if r.endpoint == "" {
		return Location{}
	}

	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	url := fmt.Sprintf(r.endpoint, clientIP)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Location{}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Geolocation lookup failed")
		return Location{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("Geolocation lookup rejected")
		return Location{}
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Debug().Err(err).Msg("Malformed geolocation response")
		return Location{}
	}

	loc := Location{Country: body.CountryName, City: body.City, IP: body.IP}
	if loc.IP == "" {
		loc.IP = clientIP
	}
	return loc
}

// Close releases the local database, if any.
func (r *Resolver) Close() {
	if r.db != nil {
		r.db.Close()
	}
}
