package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/townsquare/townsquare/internal/history"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	SetConfig(nil)
	t.Cleanup(func() { SetConfig(nil) })

	hub := NewHub(history.Disabled{})
	ts := httptest.NewServer(NewHandlers(hub, history.Disabled{}).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

// TestHealthEndpoint verifies the liveness probe.
func TestHealthEndpoint(t *testing.T) {
	ts := newAPIServer(t)

	var body map[string]string
	resp := getJSON(t, ts.URL+"/healthz", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}
}

// TestCitiesEndpoint verifies the city enumeration.
func TestCitiesEndpoint(t *testing.T) {
	ts := newAPIServer(t)

	var body struct {
		Cities []string `json:"cities"`
	}
	getJSON(t, ts.URL+"/api/cities", &body)
	if len(body.Cities) == 0 {
		t.Error("expected at least one city")
	}
}

// TestCirclesEndpoint verifies known and unknown cities.
func TestCirclesEndpoint(t *testing.T) {
	ts := newAPIServer(t)

	var body struct {
		Circles []string `json:"circles"`
	}
	getJSON(t, ts.URL+"/api/circles/munich", &body)
	if len(body.Circles) == 0 {
		t.Error("expected circles for munich")
	}

	var empty struct {
		Circles []string `json:"circles"`
	}
	getJSON(t, ts.URL+"/api/circles/atlantis", &empty)
	if len(empty.Circles) != 0 {
		t.Errorf("expected no circles for unknown city, got %v", empty.Circles)
	}
}

// TestNearbyEndpoint verifies suggestions and parameter validation.
func TestNearbyEndpoint(t *testing.T) {
	ts := newAPIServer(t)

	var body struct {
		Nearby []struct {
			City       string  `json:"city"`
			DistanceKM float64 `json:"distance_km"`
		} `json:"nearby"`
	}
	getJSON(t, ts.URL+"/api/nearby?lat=48.14&lon=11.57", &body)
	if len(body.Nearby) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(body.Nearby))
	}
	if body.Nearby[0].City != "munich" {
		t.Errorf("expected munich closest, got %q", body.Nearby[0].City)
	}

	resp := getJSON(t, ts.URL+"/api/nearby?lat=abc", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed coordinates, got %d", resp.StatusCode)
	}
}

// TestHistoryEndpointDisabled verifies the page-seeding endpoint renders an
// empty list when retention is off.
func TestHistoryEndpointDisabled(t *testing.T) {
	ts := newAPIServer(t)

	var body struct {
		Messages []any `json:"messages"`
	}
	resp := getJSON(t, ts.URL+"/api/history/central/music", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(body.Messages) != 0 {
		t.Errorf("expected empty history, got %v", body.Messages)
	}
}

// TestWebSocketRejectsBadOrigin verifies the upgrade honors the configured
// origin allow-list.
func TestWebSocketRejectsBadOrigin(t *testing.T) {
	ts := newAPIServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/ws/central/music", http.NoBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "http://evil.example.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for disallowed origin, got %d", resp.StatusCode)
	}
}

// TestCORSHeadersOnAPI verifies allowed origins are reflected on API
// responses and unknown origins are not.
func TestCORSHeadersOnAPI(t *testing.T) {
	ts := newAPIServer(t)
	client := &http.Client{Timeout: 5 * time.Second}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/cities", http.NoBody)
	req.Header.Set("Origin", "http://localhost:8080")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	_ = resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:8080" {
		t.Errorf("expected reflected origin, got %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/cities", http.NoBody)
	req.Header.Set("Origin", "http://evil.example.com")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	_ = resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for unknown origin, got %q", got)
	}
}
