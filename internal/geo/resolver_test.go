package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveHTTPSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"country_name":"Germany","city":"Berlin","ip":"203.0.113.9","org":"ignored"}`))
	}))
	defer srv.Close()

	r := New("", srv.URL+"/%s/json/")
	loc := r.Resolve(context.Background(), "203.0.113.9")

	assert.Equal(t, "Germany", loc.Country)
	assert.Equal(t, "Berlin", loc.City)
	assert.Equal(t, "203.0.113.9", loc.IP)
}

func TestResolveEndpointUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	r := New("", srv.URL+"/%s/json/")
	loc := r.Resolve(context.Background(), "203.0.113.9")

	assert.Equal(t, Location{}, loc, "unreachable endpoint yields empty enrichment, no error")
}

func TestResolveMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!doctype html>nope"))
	}))
	defer srv.Close()

	r := New("", srv.URL+"/%s/json/")
	assert.Equal(t, Location{}, r.Resolve(context.Background(), "203.0.113.9"))
}

func TestResolveNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := New("", srv.URL+"/%s/json/")
	assert.Equal(t, Location{}, r.Resolve(context.Background(), "203.0.113.9"))
}

func TestResolveNoConfiguration(t *testing.T) {
	r := New("", "")
	assert.Equal(t, Location{}, r.Resolve(context.Background(), "203.0.113.9"))
}

func TestResolveEmptyIP(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := New("", srv.URL+"/%s/json/")
	assert.Equal(t, Location{}, r.Resolve(context.Background(), ""))
	assert.False(t, called, "no lookup without a client IP")
}

func TestResolveMissingDatabaseFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country_name":"France","city":"Paris","ip":"198.51.100.7"}`))
	}))
	defer srv.Close()

	// Nonexistent database path must not be fatal.
	r := New("/nonexistent/GeoLite2-City.mmdb", srv.URL+"/%s/json/")
	loc := r.Resolve(context.Background(), "198.51.100.7")
	assert.Equal(t, "France", loc.Country)
}

func TestResolveRespectsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := New("", srv.URL+"/%s/json/")
	start := time.Now()
	loc := r.Resolve(ctx, "203.0.113.9")

	assert.Equal(t, Location{}, loc)
	assert.Less(t, time.Since(start), 2*time.Second, "lookup must be bounded")
}
