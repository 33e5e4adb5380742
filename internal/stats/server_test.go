package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/core"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
)

func newTestService(t *testing.T) (*Service, *particles.Store) {
	t.Helper()
	cosmos, err := core.NewExpansionModel(core.DefaultCosmologyParams(), model.DefaultEpochs())
	if err != nil {
		t.Fatalf("NewExpansionModel: %v", err)
	}
	cosmos.JumpToTime(1e9)

	engine, err := core.NewPhysicsEngine(cosmos)
	if err != nil {
		t.Fatalf("NewPhysicsEngine: %v", err)
	}

	cfg := particles.DefaultGenesisConfig()
	cfg.Count = 50
	store := particles.Genesis(cfg)
	if _, err := engine.Update(store, 0.01, 1, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	engine.DetectClusters(store)

	return NewService(engine, model.DefaultEpochs(), nil), store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	h := svc.Handler(nil, nil)

	rr := get(t, h, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestCosmologyEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	rr := get(t, svc.Handler(nil, nil), "/api/v1/cosmology")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var body struct {
		Frame     uint64                 `json:"frame"`
		Cosmology core.CosmologySnapshot `json:"cosmology"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Frame == 0 {
		t.Error("frame not populated")
	}
	if body.Cosmology.TimeYears < 1e9 {
		t.Errorf("time = %g, want at least the jump target", body.Cosmology.TimeYears)
	}
	if body.Cosmology.Epoch.ID == "" {
		t.Error("epoch missing from cosmology snapshot")
	}
}

func TestStructuresEndpointTopQuery(t *testing.T) {
	svc, _ := newTestService(t)
	h := svc.Handler(nil, nil)

	rr := get(t, h, "/api/v1/structures?top=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Density     core.DensityStats `json:"density"`
		TopClusters []model.Structure `json:"top_clusters"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.TopClusters) > 1 {
		t.Errorf("top=1 returned %d clusters", len(body.TopClusters))
	}
	if body.Density.Particles != 50 {
		t.Errorf("density particles = %d, want 50", body.Density.Particles)
	}

	for _, bad := range []string{"?top=-1", "?top=abc"} {
		rr = get(t, h, "/api/v1/structures"+bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", bad, rr.Code)
		}
	}
}

func TestEnergyEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	rr := get(t, svc.Handler(nil, nil), "/api/v1/energy")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Energy core.EnergyDiagnostics `json:"energy"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestEpochsEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	rr := get(t, svc.Handler(nil, nil), "/api/v1/epochs")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Epochs []struct {
			ID         string  `json:"id"`
			StartYears float64 `json:"start_years"`
		} `json:"epochs"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Epochs) != len(model.DefaultEpochs()) {
		t.Fatalf("epochs = %d, want %d", len(body.Epochs), len(model.DefaultEpochs()))
	}
	if body.Epochs[0].ID != string(model.EpochPlanck) {
		t.Errorf("first epoch = %q", body.Epochs[0].ID)
	}
}

func TestMethodAndRouteRestrictions(t *testing.T) {
	svc, _ := newTestService(t)
	h := svc.Handler(nil, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cosmology", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rr.Code)
	}

	rr = get(t, h, "/api/v1/unknown")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want 404", rr.Code)
	}
}

func TestCORSHeadersWhenConfigured(t *testing.T) {
	svc, _ := newTestService(t)
	h := svc.Handler(nil, []string{"http://viewer.local"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://viewer.local")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://viewer.local" {
		t.Errorf("allow-origin = %q", got)
	}
}
