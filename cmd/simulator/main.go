package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maruvvesmir-pixelversum/Expansion-sub001/core"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/internal/logging"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/internal/observability"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/internal/stats"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/particles"
	"github.com/maruvvesmir-pixelversum/Expansion-sub001/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a JSON scenario file (empty runs the default universe)")
	listenAddr := flag.String("listen", ":8080", "listen address for the stats API and /metrics")
	tick := flag.Duration("tick", 16*time.Millisecond, "frame interval")
	timeSpeed := flag.Float64("time-speed", 1e7, "simulated years per frame-second")
	maxFrames := flag.Uint64("max-frames", 0, "stop after this many frames (0 runs until interrupted)")
	accelerated := flag.Bool("accelerated", false, "run frames as fast as possible instead of real-time pacing")
	startYears := flag.Float64("start-years", 0, "jump the universe to this cosmic time before the first frame")
	origins := flag.String("cors-origins", "", "comma-separated list of allowed CORS origins for the stats API")
	flag.Parse()

	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.Any("error", err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	scenario, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Error(ctx, "scenario load failed", logging.Any("error", err))
		os.Exit(1)
	}
	log.Info(ctx, "scenario loaded",
		logging.String("name", scenario.Name),
		logging.Int("particles", scenario.Genesis.Count),
	)

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		log.Error(ctx, "metrics setup failed", logging.Any("error", err))
		os.Exit(1)
	}

	cosmos, err := core.NewExpansionModel(scenario.Cosmology, scenario.Epochs)
	if err != nil {
		log.Error(ctx, "expansion model rejected", logging.Any("error", err))
		os.Exit(1)
	}
	if *startYears > 0 {
		cosmos.JumpToTime(*startYears)
	}

	physics, err := core.NewPhysicsEngine(cosmos,
		core.WithParams(scenario.Engine),
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	)
	if err != nil {
		log.Error(ctx, "physics engine rejected", logging.Any("error", err))
		os.Exit(1)
	}

	store := particles.Genesis(scenario.Genesis)
	sim := core.NewSimulationEngine(store, physics)
	sim.RegisterTickListener(func(res core.TickResult) {
		if res.Frame%600 == 0 {
			log.Info(ctx, "simulation progress",
				logging.Uint64("frame", res.Frame),
				logging.Float64("time_years", res.Cosmology.TimeYears),
				logging.Float64("scale_factor", res.Cosmology.ScaleFactor),
				logging.String("epoch", string(res.Cosmology.Epoch.ID)),
			)
		}
	})

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewFrameClock(*tick, mode)
	clock.AddListener(func(dt, speed float64, reversed bool) {
		// dt is frame seconds; the configured time speed converts it to
		// simulated years before the playback multiplier applies.
		if _, err := sim.Step(dt*(*timeSpeed), speed, reversed); err != nil {
			log.Error(ctx, "tick failed", logging.Any("error", err))
		}
	})

	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: rootHandler(physics, scenario, collector, log, splitOrigins(*origins)),
	}
	go func() {
		log.Info(ctx, "stats server listening", logging.String("addr", *listenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "stats server failed", logging.Any("error", err))
			stop()
		}
	}()

	done := clock.Start(ctx, *maxFrames)
	select {
	case <-done:
		log.Info(ctx, "frame limit reached", logging.Uint64("frames", clock.Frames()))
	case <-ctx.Done():
		log.Info(ctx, "shutdown requested")
		<-done
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "stats server shutdown", logging.Any("error", err))
	}
	log.Info(context.Background(), "simulation stopped",
		logging.Uint64("frames", clock.Frames()),
		logging.Float64("final_time_years", cosmos.TimeYears()),
	)
}

func loadScenario(path string) (core.Scenario, error) {
	if path == "" {
		return core.DefaultScenario(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return core.Scenario{}, err
	}
	defer f.Close()
	return core.LoadScenario(f)
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func rootHandler(
	engine *core.PhysicsEngine,
	scenario core.Scenario,
	collector *observability.SimCollector,
	log logging.Logger,
	origins []string,
) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/", stats.NewService(engine, scenario.Epochs, log).Handler(collector, origins))
	return mux
}
