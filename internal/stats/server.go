// Package stats exposes the read-only HTTP surface consumed by rendering and
// UI collaborators. Everything it serves comes from the engine's published
// snapshot, so handlers never race with the tick loop.
package stats

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/core"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/internal/logging"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/internal/observability"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/model"
)

const tracerName = "stats-api"

// Service serves simulation state over HTTP.
type Service struct {
	engine *core.PhysicsEngine
	epochs []model.Epoch
	log    logging.Logger
}

// NewService constructs the stats service. The epoch table is served as-is;
// it is immutable after engine construction.
func NewService(engine *core.PhysicsEngine, epochs []model.Epoch, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{
		engine: engine,
		epochs: append([]model.Epoch(nil), epochs...),
		log:    log,
	}
}

// Handler builds the full middleware-wrapped route tree. A nil collector
// disables request metrics; allowedOrigins configures CORS for browser
// readers (empty means same-origin only).
func (s *Service) Handler(collector *observability.SimCollector, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", s.wrap(collector, "healthz", s.handleHealth))
	mux.Handle("GET /api/v1/cosmology", s.wrap(collector, "cosmology", s.handleCosmology))
	mux.Handle("GET /api/v1/structures", s.wrap(collector, "structures", s.handleStructures))
	mux.Handle("GET /api/v1/energy", s.wrap(collector, "energy", s.handleEnergy))
	mux.Handle("GET /api/v1/epochs", s.wrap(collector, "epochs", s.handleEpochs))

	if len(allowedOrigins) == 0 {
		return mux
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	return c.Handler(mux)
}

// wrap applies request-id logging, a tracing span, and request metrics to a
// handler.
func (s *Service) wrap(collector *observability.SimCollector, name string, fn http.HandlerFunc) http.Handler {
	traced := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, reqLog := logging.WithRequestLogger(r.Context(), s.log)
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		span.SetAttributes(attribute.String("http.method", r.Method))
		defer span.End()

		reqLog.Debug(ctx, "stats request",
			logging.String("handler", name),
			logging.String("path", r.URL.Path),
		)
		fn(w, r.WithContext(ctx))
	})
	if collector == nil {
		return traced
	}
	return collector.Middleware(name, traced)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cosmologyResponse pairs the expansion snapshot with the current frame so
// pollers can detect staleness.
type cosmologyResponse struct {
	Frame     uint64                 `json:"frame"`
	Cosmology core.CosmologySnapshot `json:"cosmology"`
}

func (s *Service) handleCosmology(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, cosmologyResponse{
		Frame:     snap.Frame,
		Cosmology: snap.Cosmology,
	})
}

type structuresResponse struct {
	Frame       uint64            `json:"frame"`
	Density     core.DensityStats `json:"density"`
	TopClusters []model.Structure `json:"top_clusters"`
}

func (s *Service) handleStructures(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()

	top := snap.TopClusters
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be a non-negative integer"})
			return
		}
		if n < len(top) {
			top = top[:n]
		}
	}

	writeJSON(w, http.StatusOK, structuresResponse{
		Frame:       snap.Frame,
		Density:     snap.Density,
		TopClusters: top,
	})
}

type energyResponse struct {
	Frame  uint64                 `json:"frame"`
	Energy core.EnergyDiagnostics `json:"energy"`
}

func (s *Service) handleEnergy(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, energyResponse{Frame: snap.Frame, Energy: snap.Energy})
}

type epochResponse struct {
	Epochs []epochView `json:"epochs"`
}

type epochView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	StartYears float64 `json:"start_years"`
	EndYears   float64 `json:"end_years"`
	Dominant   string  `json:"dominant"`
}

func (s *Service) handleEpochs(w http.ResponseWriter, r *http.Request) {
	out := epochResponse{Epochs: make([]epochView, 0, len(s.epochs))}
	for _, e := range s.epochs {
		out.Epochs = append(out.Epochs, epochView{
			ID:         string(e.ID),
			Name:       e.Name,
			StartYears: e.StartYears,
			EndYears:   e.EndYears,
			Dominant:   e.Dominant,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
