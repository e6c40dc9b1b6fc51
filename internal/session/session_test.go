package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journeytrack/journeytrack/internal/geo"
	"github.com/journeytrack/journeytrack/internal/journey"
)

type staticResolver struct {
	loc geo.Location
}

func (s staticResolver) Resolve(context.Context, string) geo.Location {
	return s.loc
}

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"canonical v4", "9f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f", true},
		{"uppercase hex", "9F1C2D3E-4A5B-4C6D-8E7F-0A1B2C3D4E5F", true},
		{"variant b", "9f1c2d3e-4a5b-4c6d-be7f-0a1b2c3d4e5f", true},
		{"empty", "", false},
		{"truncated", "9f1c2d3e-4a5b-4c6d-8e7f", false},
		{"wrong version nibble", "9f1c2d3e-4a5b-1c6d-8e7f-0a1b2c3d4e5f", false},
		{"wrong variant nibble", "9f1c2d3e-4a5b-4c6d-7e7f-0a1b2c3d4e5f", false},
		{"non-hex garbage", "zzzzzzzz-zzzz-4zzz-8zzz-zzzzzzzzzzzz", false},
		{"missing dashes", "9f1c2d3e4a5b4c6d8e7f0a1b2c3d4e5f", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidSessionID(tt.id))
		})
	}
}

func TestNewSessionIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		assert.True(t, ValidSessionID(id), "generated id %q must be UUID-v4 shaped", id)
		assert.Equal(t, byte('4'), id[14])
		assert.Contains(t, "89ab", string(id[19]))
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90, "ids should not collide in practice")
}

func newTestManager() *Manager {
	return NewManager(staticResolver{loc: geo.Location{Country: "DE", City: "Berlin", IP: "203.0.113.9"}})
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeJourneyCookie(t *testing.T, c *http.Cookie) *journey.Journey {
	t.Helper()
	raw, err := url.QueryUnescape(c.Value)
	require.NoError(t, err)
	var j journey.Journey
	require.NoError(t, json.Unmarshal([]byte(raw), &j))
	return &j
}

func TestEnsureSessionFreshVisitor(t *testing.T) {
	m := newTestManager()
	req := httptest.NewRequest(http.MethodPost, "/v1/visits", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36")
	rec := httptest.NewRecorder()

	j := m.EnsureSession(context.Background(), rec, req, "203.0.113.9")

	require.NotNil(t, j)
	assert.True(t, ValidSessionID(j.SessionID))
	assert.Empty(t, j.PagesVisited)
	assert.Equal(t, "desktop", j.DeviceType)
	assert.Equal(t, "chrome", j.Browser)
	assert.Equal(t, "windows", j.OS)
	assert.Equal(t, "DE", j.Country)
	assert.Equal(t, "Berlin", j.City)
	assert.False(t, j.SessionStart.IsZero())

	sidCookie := cookieByName(t, rec, SessionCookie)
	require.NotNil(t, sidCookie)
	assert.Equal(t, j.SessionID, sidCookie.Value)
	assert.WithinDuration(t, time.Now().Add(CookieTTL), sidCookie.Expires, time.Minute)

	jCookie := cookieByName(t, rec, JourneyCookie)
	require.NotNil(t, jCookie)
	assert.Equal(t, j.SessionID, decodeJourneyCookie(t, jCookie).SessionID)
}

func TestEnsureSessionCorruptIDDiscardsJourney(t *testing.T) {
	m := newTestManager()

	stale := journey.Journey{
		SessionID:    "9f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f",
		PagesVisited: []journey.PageVisit{{Path: "/old", Timestamp: time.Now()}},
		SessionStart: time.Now().Add(-time.Hour),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)

	corruptIDs := []string{"", "not-a-uuid", "9f1c2d3e-4a5b-1c6d-8e7f-0a1b2c3d4e5f"}
	for _, bad := range corruptIDs {
		req := httptest.NewRequest(http.MethodPost, "/v1/visits", nil)
		if bad != "" {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: bad})
		}
		req.AddCookie(&http.Cookie{Name: JourneyCookie, Value: url.QueryEscape(string(data))})
		rec := httptest.NewRecorder()

		j := m.EnsureSession(context.Background(), rec, req, "")

		assert.True(t, ValidSessionID(j.SessionID))
		assert.NotEqual(t, stale.SessionID, j.SessionID)
		assert.Empty(t, j.PagesVisited, "journey tied to a discarded id must not survive")
	}
}

func TestEnsureSessionValidIDKeepsJourney(t *testing.T) {
	m := newTestManager()
	sid := "9f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f"

	existing := journey.Journey{
		// Embedded id drifted; EnsureSession must overwrite it.
		SessionID:    "11111111-2222-4333-8444-555555555555",
		PagesVisited: []journey.PageVisit{{Path: "/", Timestamp: time.Now()}},
		DeviceType:   "desktop",
		SessionStart: time.Now().Add(-time.Minute),
	}
	data, err := json.Marshal(existing)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/visits", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid})
	req.AddCookie(&http.Cookie{Name: JourneyCookie, Value: url.QueryEscape(string(data))})
	rec := httptest.NewRecorder()

	j := m.EnsureSession(context.Background(), rec, req, "")

	assert.Equal(t, sid, j.SessionID, "embedded sessionId must be synced to the cookie-level id")
	require.Len(t, j.PagesVisited, 1)
	assert.Equal(t, "/", j.PagesVisited[0].Path)
}

func TestEnsureSessionMalformedJourneyCookie(t *testing.T) {
	m := newTestManager()
	sid := "9f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f"

	req := httptest.NewRequest(http.MethodPost, "/v1/visits", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid})
	req.AddCookie(&http.Cookie{Name: JourneyCookie, Value: url.QueryEscape("{not json")})
	rec := httptest.NewRecorder()

	j := m.EnsureSession(context.Background(), rec, req, "")

	assert.Equal(t, sid, j.SessionID, "a valid id survives a corrupt journey")
	assert.Empty(t, j.PagesVisited)
}

func TestWriteJourneyRoundTrip(t *testing.T) {
	m := newTestManager()
	spent := int64(12)
	j := &journey.Journey{
		SessionID: "9f1c2d3e-4a5b-4c6d-8e7f-0a1b2c3d4e5f",
		PagesVisited: []journey.PageVisit{
			{Path: "/", FullURL: "/?utm_source=x", Timestamp: time.Now().UTC().Truncate(time.Second), TimeSpent: &spent},
			{Path: "/faq", FullURL: "/faq", Timestamp: time.Now().UTC().Truncate(time.Second)},
		},
		DeviceType:   "mobile",
		Browser:      "safari",
		OS:           "ios",
		SessionStart: time.Now().UTC().Truncate(time.Second),
	}

	rec := httptest.NewRecorder()
	m.WriteJourney(rec, j)

	c := cookieByName(t, rec, JourneyCookie)
	require.NotNil(t, c)
	assert.False(t, strings.ContainsAny(c.Value, `";,`), "cookie value must be cookie-safe")

	got := decodeJourneyCookie(t, c)
	assert.Equal(t, j.PagesVisited, got.PagesVisited, "pagesVisited must survive the round trip exactly")
	assert.Equal(t, j.SessionID, got.SessionID)
}
