package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/audit"
	"github.com/strefethen/heos-hub-go/internal/auth"
	"github.com/strefethen/heos-hub-go/internal/config"
	"github.com/strefethen/heos-hub-go/internal/db"
	"github.com/strefethen/heos-hub-go/internal/entities"
	"github.com/strefethen/heos-hub-go/internal/heos"
	"github.com/strefethen/heos-hub-go/internal/heos/fixture"
	"github.com/strefethen/heos-hub-go/internal/host"
	"github.com/strefethen/heos-hub-go/internal/mcptools"
	"github.com/strefethen/heos-hub-go/internal/mqtt"
	"github.com/strefethen/heos-hub-go/internal/openapi"
	"github.com/strefethen/heos-hub-go/internal/stream"
	"github.com/strefethen/heos-hub-go/internal/system"
	"github.com/strefethen/heos-hub-go/internal/tsdb"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses (SSE) working through the logger.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack hands the connection to the websocket upgrader.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	// Dialer opens the HEOS controller session. When nil the fixture
	// controller at cfg.HEOSFixturePath is used.
	Dialer heos.Dialer
	Logger *log.Logger
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	logger.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	registerHealthRoutes(router)
	openapi.RegisterRoutes(router)

	pairingStore := auth.NewPairingStore(time.Duration(cfg.PairingCodeTTLSeconds) * time.Second)
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	pairingStore.StartCleanup(shutdownCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, cfg, logger)

	auditService := audit.NewService(dbPair, cfg.AuditRetentionDays, logger)
	audit.RegisterRoutes(router, auditService)
	auditService.StartPruneJob()
	auditService.Log(audit.EventSystemStartup, audit.EventLevelInfo, "", "heos-hub starting", map[string]any{
		"version": system.Version,
	})

	registry := host.NewRepository(dbPair)
	hub, err := host.New(host.Options{
		Logger:            logger,
		Store:             registry,
		Auditor:           auditService,
		ExecutorWorkers:   cfg.ExecutorWorkers,
		ExecutorQueueSize: cfg.ExecutorQueueSize,
		UpdateQueueSize:   cfg.UpdateQueueSize,
		PollSchedule:      cfg.PollSchedule,
	})
	if err != nil {
		shutdownCancel()
		auditService.StopPruneJob()
		_ = dbPair.Close()
		return nil, nil, fmt.Errorf("host: %w", err)
	}
	hub.Start()

	dial := options.Dialer
	if dial == nil && cfg.HEOSFixturePath != "" {
		logger.Printf("HEOS: using fixture controller %s", cfg.HEOSFixturePath)
		session := fixture.NewSession(cfg.HEOSFixturePath)
		dial = session.Dial
		fixture.RegisterRoutes(router, session)
	}

	var platform *heos.Platform
	if dial == nil {
		logger.Printf("HEOS: no controller configured, running without players")
	} else {
		setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
		platform, err = heos.Setup(setupCtx, hub, heos.PlatformConfig{
			Host:     cfg.HEOSHost,
			Name:     cfg.HEOSName,
			Username: cfg.HEOSUsername,
			Password: cfg.HEOSPassword,
		}, dial, hub.AddEntities, heos.SetupOptions{Logger: logger, Auditor: auditService})
		cancelSetup()
		if err != nil {
			// The rest of the hub stays up so the failure is visible over the API.
			logger.Printf("HEOS: %v", err)
			platform = nil
		}
	}

	entityService := entities.NewService(hub, registry, auditService, logger)
	artwork := entities.NewArtworkFetcher(cfg.ArtworkTimeout(), cfg.ArtworkMaxRetries, logger)
	entities.RegisterRoutes(router, entityService, artwork)

	streamManager := stream.NewManager(hub, stream.DefaultPingInterval, logger)
	streamManager.Start()
	stream.RegisterRoutes(router, streamManager)

	systemOptions := system.Options{
		Logger: logger,
		Host:   hub,
		Audit:  auditService,
		Stream: streamManager,
		MCP:    cfg.MCPEnabled,
	}
	if platform != nil {
		systemOptions.Platform = platform
	}

	var mqttClient *mqtt.Client
	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			logger.Printf("MQTT: %v", err)
		} else {
			bridge = mqtt.NewBridge(mqttClient, entityService, hub, logger)
			if err := bridge.Start(); err != nil {
				logger.Printf("MQTT: bridge start failed: %v", err)
			}
			systemOptions.MQTT = mqttClient
		}
	}

	var influxClient *tsdb.Client
	var recorder *tsdb.Recorder
	if cfg.Influx.Enabled {
		influxClient, err = tsdb.Connect(cfg.Influx, logger)
		if err != nil {
			logger.Printf("INFLUX: %v", err)
		} else {
			recorder = tsdb.NewRecorder(influxClient, hub, logger)
			recorder.Start()
			systemOptions.Influx = influxClient
		}
	}

	var mcpServer *mcptools.Server
	if cfg.MCPEnabled {
		baseURL := cfg.MCPBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:" + cfg.Port
		}
		mcpServer = mcptools.NewServer(entityService, baseURL, system.Version, logger)
		mcpServer.RegisterRoutes(router)
	}

	system.RegisterRoutes(router, system.NewService(systemOptions))

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		shutdownCancel()

		var errs []error
		if mcpServer != nil {
			if err := mcpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, fmt.Errorf("mcp: %w", err))
			}
		}
		if bridge != nil {
			bridge.Stop()
		}
		if recorder != nil {
			recorder.Stop()
		}
		streamManager.Close()
		if platform != nil {
			if err := platform.Close(); err != nil {
				errs = append(errs, fmt.Errorf("heos: %w", err))
			}
		}
		if err := hub.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("host: %w", err))
		}
		if mqttClient != nil {
			if err := mqttClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("mqtt: %w", err))
			}
		}
		if influxClient != nil {
			if err := influxClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("influx: %w", err))
			}
		}
		auditService.StopPruneJob()
		if err := dbPair.Close(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "heos-hub",
			"timestamp": api.FormatTime(time.Now()),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
