package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ChrisColeTech/proxydash/internal/config"
	"github.com/ChrisColeTech/proxydash/internal/engine"
	"github.com/ChrisColeTech/proxydash/internal/metrics"
)

// Router provides embeddable HTTP handlers over the dashboard engine.
// Endpoints:
//
//	GET  {basePath}/status       merged upstream snapshot
//	GET  {basePath}/lifecycle    proxy lifecycle status
//	GET  {basePath}/connection   connection status and attempt counter
//	GET  {basePath}/alerts       recently displayed alerts
//	POST {basePath}/start        start the proxy (optimistic, rolls back on failure)
//	POST {basePath}/stop         stop the proxy
//	GET  /healthz                liveness probe, always 200
//	GET  /metrics                prometheus exposition (when enabled)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	eng      *engine.Engine
	cfg      config.ServerConfig
	metrics  bool
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
// Example basePath: "/api" results in /api/status, /api/start, /api/stop.
func NewRouter(eng *engine.Engine, cfg config.ServerConfig, metricsEnabled bool) *Router {
	return &Router{eng: eng, cfg: cfg, metrics: metricsEnabled, basePath: sanitizeBase(cfg.BasePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	group := g.Group(r.basePath)
	group.Use(BearerAuth(r.cfg.TokenHash))
	group.GET("/status", r.handleStatus)
	group.GET("/lifecycle", r.handleLifecycle)
	group.GET("/connection", r.handleConnection)
	group.GET("/alerts", r.handleAlerts)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The returned server can be shut down via its Close or Shutdown methods.
func NewServer(eng *engine.Engine, cfg config.ServerConfig, metricsEnabled bool) (*http.Server, error) {
	r := NewRouter(eng, cfg, metricsEnabled)
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.Snapshot())
}

func (r *Router) handleLifecycle(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.Lifecycle())
}

func (r *Router) handleConnection(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.Connection())
}

func (r *Router) handleAlerts(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.Alerts())
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.eng.StartProxy(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.eng.StopProxy(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
