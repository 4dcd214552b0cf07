package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-monitor/livemap/internal/connection"
	"fleet-monitor/livemap/internal/domain"
	"fleet-monitor/livemap/internal/entity"
	"fleet-monitor/livemap/internal/ledger"
	"fleet-monitor/livemap/internal/pipeline"
	"fleet-monitor/livemap/internal/store"
)

type mockHistory struct {
	historyFn func(ctx context.Context, driverID string, limit int) ([]domain.Coordinate, error)
	calls     int
}

func (m *mockHistory) DriverHistory(ctx context.Context, driverID string, limit int) ([]domain.Coordinate, error) {
	m.calls++
	return m.historyFn(ctx, driverID, limit)
}

func newEngine() *pipeline.Engine {
	return pipeline.NewEngine(
		entity.NewStore(entity.DefaultTrackCapacity, nil),
		ledger.New(ledger.DefaultCapacity),
		connection.NewController(30*time.Second, nil),
		nil,
		nil,
	)
}

func setupRouter(e *pipeline.Engine, history historySource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(e, history, 5*time.Minute), nil)
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestPostLocation(t *testing.T) {
	e := newEngine()
	r := setupRouter(e, nil)

	w := do(r, "POST", "/driver/location", `{"driver_id":"driver_007","lat":28.70,"lon":77.10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	st, ok := e.Driver("driver_007")
	if !ok || st.LastCoordinate == nil || st.LastCoordinate.Latitude != 28.70 {
		t.Errorf("unexpected driver state %+v", st)
	}
}

func TestPostLocation_MissingDriver(t *testing.T) {
	r := setupRouter(newEngine(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"no driver_id", `{"lat":28.7,"lon":77.1}`},
		{"blank driver_id", `{"driver_id":"  ","lat":28.7,"lon":77.1}`},
		{"not json", `driver_007`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, "POST", "/driver/location", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestPostAlert(t *testing.T) {
	e := newEngine()
	r := setupRouter(e, nil)

	w := do(r, "POST", "/alert", `{"driver_id":"driver_007","lat":28.7,"lon":77.1,"alert":true,"details":{"drowsiness_score":0.91}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["alert_id"] == "" || resp["alert_id"] == nil {
		t.Errorf("expected alert id, got %v", resp)
	}

	alerts := e.Alerts(ledger.Filter{}, ledger.SortRecency)
	if len(alerts) != 1 || alerts[0].Details["drowsiness_score"] == nil {
		t.Errorf("unexpected ledger %+v", alerts)
	}

	if w := do(r, "POST", "/alert", `{"lat":28.7}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without driver_id, got %d", w.Code)
	}
}

func TestTollbooths(t *testing.T) {
	e := newEngine()
	r := setupRouter(e, nil)

	w := do(r, "POST", "/api/tollbooths", `{"id":1,"name":"Tollbooth A - Delhi Gate","latitude":28.7041,"longitude":77.1025}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	if w := do(r, "POST", "/api/tollbooths", `{"id":1,"name":"Again","latitude":28.7,"longitude":77.1}`); w.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate id, got %d", w.Code)
	}
	if w := do(r, "POST", "/api/tollbooths", `{"name":"No coords"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on missing fields, got %d", w.Code)
	}
	if w := do(r, "POST", "/api/tollbooths", `{"name":"Null island","latitude":0,"longitude":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on invalid coordinate, got %d", w.Code)
	}

	w = do(r, "POST", "/api/tollbooths", `{"name":"Generated","latitude":28.5,"longitude":77.2}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 with generated id, got %d", w.Code)
	}

	w = do(r, "GET", "/api/tollbooths", "")
	var pois []domain.PointOfInterest
	if err := json.Unmarshal(w.Body.Bytes(), &pois); err != nil {
		t.Fatal(err)
	}
	if len(pois) != 2 || pois[0].Name != "Tollbooth A - Delhi Gate" {
		t.Errorf("unexpected tollbooths %+v", pois)
	}
}

func TestTollbooths_RadiusFilter(t *testing.T) {
	e := newEngine()
	e.SeedPOIs(context.Background(), []domain.PointOfInterest{
		{ID: "1", Name: "Tollbooth A - Delhi Gate", Coordinate: domain.Coordinate{Latitude: 28.7041, Longitude: 77.1025}},
		{ID: "2", Name: "Tollbooth B - Gurgaon Expressway", Coordinate: domain.Coordinate{Latitude: 28.5355, Longitude: 77.3910}},
	})
	r := setupRouter(e, nil)

	w := do(r, "GET", "/api/tollbooths?lat=28.70&lon=77.10&radius_km=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var pois []domain.PointOfInterest
	if err := json.Unmarshal(w.Body.Bytes(), &pois); err != nil {
		t.Fatal(err)
	}
	if len(pois) != 1 || pois[0].ID != "1" {
		t.Errorf("expected only Delhi Gate within 5km, got %+v", pois)
	}

	for _, q := range []string{"lat=28.7&radius_km=5", "lat=28.7&lon=77.1&radius_km=-1", "lat=0&lon=0&radius_km=5"} {
		if w := do(r, "GET", "/api/tollbooths?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestGetDriver(t *testing.T) {
	e := newEngine()
	r := setupRouter(e, nil)
	do(r, "POST", "/driver/location", `{"driver_id":"d1","lat":28.7,"lon":77.1}`)

	if w := do(r, "GET", "/api/drivers/d1", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := do(r, "GET", "/api/drivers/ghost", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w := do(r, "GET", "/api/drivers?active_within=1m", "")
	var drivers []domain.DriverState
	if err := json.Unmarshal(w.Body.Bytes(), &drivers); err != nil {
		t.Fatal(err)
	}
	if len(drivers) != 1 {
		t.Errorf("expected 1 active driver, got %d", len(drivers))
	}
	if w := do(r, "GET", "/api/drivers?active_within=soon", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetTrack_SeedsHistoryOnce(t *testing.T) {
	e := newEngine()
	history := &mockHistory{historyFn: func(_ context.Context, driverID string, limit int) ([]domain.Coordinate, error) {
		if driverID != "d1" || limit != 10 {
			t.Fatalf("unexpected args %s %d", driverID, limit)
		}
		return []domain.Coordinate{{Latitude: 28.60, Longitude: 77.20}, {Latitude: 28.65, Longitude: 77.15}}, nil
	}}
	r := setupRouter(e, history)
	do(r, "POST", "/driver/location", `{"driver_id":"d1","lat":28.7,"lon":77.1}`)

	w := do(r, "GET", "/api/drivers/d1/track?limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp trackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Track) != 3 || resp.Track[0].Latitude != 28.60 || resp.Track[2].Latitude != 28.7 {
		t.Errorf("unexpected track %+v", resp.Track)
	}
	if resp.LengthKm <= 0 || resp.Length == "" {
		t.Errorf("expected path length, got %+v", resp)
	}

	do(r, "GET", "/api/drivers/d1/track?limit=10", "")
	if history.calls != 1 {
		t.Errorf("history fetched %d times, want 1", history.calls)
	}
	if w := do(r, "GET", "/api/drivers/d1/track?limit=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetTrack_HistoryErrors(t *testing.T) {
	e := newEngine()
	history := &mockHistory{historyFn: func(context.Context, string, int) ([]domain.Coordinate, error) {
		return nil, store.ErrNoHistory
	}}
	r := setupRouter(e, history)

	if w := do(r, "GET", "/api/drivers/ghost/track", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown driver without history, got %d", w.Code)
	}

	history.historyFn = func(context.Context, string, int) ([]domain.Coordinate, error) {
		return nil, errors.New("connection refused")
	}
	do(r, "POST", "/driver/location", `{"driver_id":"d2","lat":28.7,"lon":77.1}`)
	do(r, "GET", "/api/drivers/d2/track", "")
	do(r, "GET", "/api/drivers/d2/track", "")
	if history.calls != 3 {
		t.Errorf("expected failed fetches to be retried, calls=%d", history.calls)
	}
}

func TestListAlerts(t *testing.T) {
	e := newEngine()
	r := setupRouter(e, nil)
	do(r, "POST", "/alert", `{"driver_id":"alpha","confidence":0.9}`)
	do(r, "POST", "/alert", `{"driver_id":"beta","confidence":0.3}`)

	w := do(r, "GET", "/api/alerts?severity=critical", "")
	var alerts []domain.AlertRecord
	if err := json.Unmarshal(w.Body.Bytes(), &alerts); err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].DriverID != "alpha" {
		t.Errorf("unexpected filtered alerts %+v", alerts)
	}

	w = do(r, "GET", "/api/alerts?q=bet&sort=driver", "")
	alerts = nil
	_ = json.Unmarshal(w.Body.Bytes(), &alerts)
	if len(alerts) != 1 || alerts[0].DriverID != "beta" {
		t.Errorf("unexpected search result %+v", alerts)
	}

	if w := do(r, "GET", "/api/alerts?severity=extreme", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestStatsAndHealth(t *testing.T) {
	e := newEngine()
	r := setupRouter(e, nil)
	do(r, "POST", "/alert", `{"driver_id":"d1","severity":"high"}`)

	w := do(r, "GET", "/api/stats", "")
	var stats pipeline.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.AlertCount != 1 || stats.BySeverity[domain.SeverityCritical] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	w = do(r, "GET", "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "DISCONNECTED") {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}

	if w := do(r, "GET", "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("expected metrics endpoint, got %d", w.Code)
	}
}
