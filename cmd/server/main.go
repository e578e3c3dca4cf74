package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/matryer/way"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/persistence/indexdb"
	"gemkitchen.ai/internal/persistence/r2s3"
	"gemkitchen.ai/internal/persistence/sessionstore"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/tuning"
	"gemkitchen.ai/internal/transport/observer"
	"gemkitchen.ai/internal/transport/ws"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.WithError(err).Fatal("configure logger")
	}
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func newLogger(level, format string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, err
	}
	l.SetLevel(lvl)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
	return l, nil
}

func run(cfg serverConfig, logger *logrus.Logger) error {
	ctx, cancel := signalContext()
	defer cancel()

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}

	tp := strings.TrimSpace(cfg.TuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load tuning: %w", err)
		}
		logger.WithField("path", tp).Warn("tuning file missing, using defaults")
		tune = tuning.Defaults()
	}
	logger.WithFields(logrus.Fields{
		"maps":          len(cats.Maps.ByID),
		"tool_formulas": len(cats.Formulas.ToolFormulas()),
		"item_formulas": len(cats.Formulas.ItemFormulas()),
		"tuning":        tune.Digest(),
	}).Info("catalogs loaded")

	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "sessions"), 0o755); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	idx, results, err := openRuntimeIndex(cfg, logger)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if idx != nil {
		defer func() { _ = idx.Close() }()
		if err := idx.UpsertCatalogs(cfg.ConfigDir, cats, tune); err != nil {
			logger.WithError(err).Warn("index catalogs failed")
		}
		registerIndexMetrics(reg, idx)
	}

	mirror, err := buildMirror(ctx, cfg.Mirror, cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("object mirror: %w", err)
	}
	storeOpts := sessionstore.Options{
		DataDir: cfg.DataDir,
		Index:   idx,
		Logger:  logger.WithField("component", "sessionstore"),
	}
	if results != nil {
		storeOpts.Best = results
	}
	if mirror != nil {
		defer mirror.Close()
		storeOpts.Mirror = mirror
		storeOpts.RotateLayout = rotateLayoutMirrored
		registerMirrorMetrics(reg, mirror)
	}
	store := sessionstore.New(storeOpts)

	player, err := ws.NewServer(ws.Options{
		Catalogs: cats,
		Tuning:   tune,
		Store:    store,
		Metrics:  ws.NewMetrics(reg),
		Logger:   logger.WithField("component", "ws"),
	})
	if err != nil {
		return fmt.Errorf("ws server: %w", err)
	}

	router := newRouter(routerDeps{
		api:      &api{cats: cats, results: results, log: logger.WithField("component", "api")},
		player:   player,
		observer: observer.NewServer(player, logger.WithField("component", "observer")),
		gatherer: reg,
		admin:    cfg.EnableAdmin,
		pprof:    cfg.EnablePprof,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.WithFields(logrus.Fields{"addr": cfg.Addr, "index": cfg.Index.Backend, "mirror": mirror != nil}).Info("listening")
	serveErr := srv.ListenAndServe()

	// Websocket connections are hijacked, so http.Server.Shutdown does not
	// wait for them. Their final snapshots must land before the index and
	// mirror close.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := player.Shutdown(drainCtx); err != nil {
		logger.WithError(err).Warn("sessions still open at shutdown")
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	logger.Info("shutdown complete")
	return nil
}

type routerDeps struct {
	api      *api
	player   *ws.Server
	observer *observer.Server
	gatherer prometheus.Gatherer
	admin    bool
	pprof    bool
}

func newRouter(d routerDeps) *way.Router {
	router := way.NewRouter()
	router.HandleFunc("GET", "/healthz", handleHealthz)
	router.HandleFunc("GET", "/v1/maps", d.api.handleMaps())
	router.HandleFunc("GET", "/v1/best/:map", d.api.handleBest())
	router.HandleFunc("GET", "/v1/results/:map", d.api.handleResults())
	if d.player != nil {
		router.HandleFunc("GET", "/v1/ws", d.player.Handler())
	}
	if d.gatherer != nil {
		router.Handle("GET", "/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
	if d.admin && d.observer != nil {
		router.HandleFunc("GET", "/admin/v1/sessions", loopbackOnly(d.observer.ListHandler()))
		router.HandleFunc("GET", "/admin/v1/observe/:session", loopbackOnly(d.observer.WSHandler(func(r *http.Request) string {
			return way.Param(r.Context(), "session")
		})))
	}
	if d.pprof {
		router.HandleFunc("GET", "/debug/pprof/cmdline", loopbackOnly(http.HandlerFunc(pprof.Cmdline)))
		router.HandleFunc("GET", "/debug/pprof/profile", loopbackOnly(http.HandlerFunc(pprof.Profile)))
		router.HandleFunc("GET", "/debug/pprof/symbol", loopbackOnly(http.HandlerFunc(pprof.Symbol)))
		router.HandleFunc("GET", "/debug/pprof/trace", loopbackOnly(http.HandlerFunc(pprof.Trace)))
		router.HandleFunc("GET", "/debug/pprof/...", loopbackOnly(http.HandlerFunc(pprof.Index)))
	}
	return router
}

func registerIndexMetrics(reg prometheus.Registerer, idx runtimeIndex) {
	depth := func() float64 { return 0 }
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		depth = func() float64 { return float64(v.Stats().QueueDepth) }
	case *indexdb.RemoteIndex:
		depth = func() float64 { return float64(v.Stats().QueueDepth) }
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gemkitchen",
		Subsystem: "index",
		Name:      "queue_depth",
		Help:      "Rows waiting to be written by the index backend.",
	}, depth))
}

func registerMirrorMetrics(reg prometheus.Registerer, m *r2s3.Mirror) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gemkitchen", Subsystem: "mirror", Name: "queue_depth",
			Help: "Files waiting to be uploaded.",
		}, func() float64 { return float64(m.Stats().Pending) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gemkitchen", Subsystem: "mirror", Name: "uploads_total",
			Help: "Files uploaded to the object store.",
		}, func() float64 { return float64(m.Stats().Uploaded) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gemkitchen", Subsystem: "mirror", Name: "upload_failures_total",
			Help: "Uploads that failed after retries.",
		}, func() float64 { return float64(m.Stats().Failed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gemkitchen", Subsystem: "mirror", Name: "dropped_total",
			Help: "Files dropped because the upload queue was full.",
		}, func() float64 { return float64(m.Stats().Dropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gemkitchen", Subsystem: "mirror", Name: "coalesced_total",
			Help: "Enqueues skipped because the same file was already waiting.",
		}, func() float64 { return float64(m.Stats().Coalesced) }),
	)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
