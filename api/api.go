package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/gocab-backend/events"
	"github.com/semanticallynull/gocab-backend/internal/clock"
	"github.com/semanticallynull/gocab-backend/internal/gemini"
	"github.com/semanticallynull/gocab-backend/internal/middleware"
	"github.com/semanticallynull/gocab-backend/internal/o11y"
	"github.com/semanticallynull/gocab-backend/ride"
	"github.com/semanticallynull/gocab-backend/user"
)

// DefaultLatency is the artificial delay applied to every request.
const DefaultLatency = 400 * time.Millisecond

type Config struct {
	// Latency is applied before every handler. Zero disables it.
	Latency time.Duration
	Clock   clock.Clock

	MetricsUsername string
	MetricsPassword string

	// AllowOrigins restricts CORS. Empty allows every origin.
	AllowOrigins []string
}

type API struct {
	r   *gin.Engine
	ur  *user.Repository
	rs  *ride.Service
	bus *events.Bus
	ai  gemini.Client
}

func New(ur *user.Repository, rs *ride.Service, bus *events.Bus, ai gemini.Client, obs *o11y.Observability, cfg Config) *API {
	a := &API{
		r:   gin.New(),
		ur:  ur,
		rs:  rs,
		bus: bus,
		ai:  ai,
	}
	if a.bus == nil {
		a.bus = events.NewBus(obs.Logger)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowOrigins
	}

	a.r.Use(
		gin.CustomRecovery(a.recoverHandler),
		middleware.Tracing(),
		middleware.Logging(obs.Logger),
		middleware.Metrics(obs.Registry),
		cors.New(corsConfig),
	)

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.r.GET("/metrics", metricsHandler(obs.Registry, cfg.MetricsUsername, cfg.MetricsPassword)...)

	// Everything below is delayed, including requests that match no route.
	a.r.Use(middleware.Latency(cfg.Clock, cfg.Latency))

	r := a.r.Group("/api")
	r.POST("/login", a.loginHandler)
	r.POST("/user/online", a.toggleOnlineHandler)
	r.GET("/users", a.usersHandler)

	r.GET("/rides", a.ridesHandler)
	r.POST("/rides", a.createRideHandler)
	r.PATCH("/rides/:id", a.updateRideHandler)
	r.POST("/rides/:id/cancel", a.cancelRideHandler)

	r.GET("/admin/summary", a.summaryHandler)
	r.POST("/admin/insights", a.insightsHandler)
	r.POST("/assistant", a.assistantHandler)

	r.GET("/events", a.eventsHandler)

	a.r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Route not found")
	})

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

func (a *API) recoverHandler(c *gin.Context, err any) {
	middleware.GetLogger(c).Error("handler panicked", "error", err)
	fail(c, http.StatusInternalServerError, "Internal Server Error")
}

func metricsHandler(reg *prometheus.Registry, username, password string) []gin.HandlerFunc {
	h := gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if username == "" {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{gin.BasicAuth(gin.Accounts{username: password}), h}
}
