// Package gateway is the HTTP entry point. A search request is split into
// independent queries, scattered over the correlation bus and answered with
// whatever the workers return before the deadline.
package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
	"github.com/drblury/relayflow/internal/runtime/fanout"
	"github.com/drblury/relayflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
	"github.com/drblury/relayflow/internal/runtime/tracing"
)

// DefaultTimeout bounds how long a search waits for replies.
const DefaultTimeout = 10 * time.Second

// QuerySeparator splits the query parameter into independent queries.
const QuerySeparator = "|"

// statusClientClosedRequest is reported when the caller gave up first.
const statusClientClosedRequest = 499

// Request outcomes, used as the gateway_requests_total label.
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeCancelled   = "cancelled"
)

// ReadinessProbe reports whether searches can be served.
type ReadinessProbe interface {
	Ready() bool
}

// Config tunes the gateway.
type Config struct {
	// Timeout is the search deadline. Zero means DefaultTimeout.
	Timeout time.Duration
	// Mode is the gin mode; empty means release.
	Mode string
}

// Gateway serves /search and /healthz.
type Gateway struct {
	agg    *fanout.Aggregator
	probe  ReadinessProbe
	cfg    Config
	logger loggingpkg.ServiceLogger

	requests *prometheus.CounterVec
	engine   *gin.Engine
}

// New builds the gateway and registers its collectors on registerer. A nil
// registerer uses the default one.
func New(agg *fanout.Aggregator, probe ReadinessProbe, cfg Config, logger loggingpkg.ServiceLogger, registerer prometheus.Registerer) (*Gateway, error) {
	if agg == nil {
		return nil, errors.New("gateway: aggregator is required")
	}
	if probe == nil {
		return nil, errors.New("gateway: readiness probe is required")
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = gin.ReleaseMode
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Search requests handled by the gateway, by outcome.",
	}, []string{"outcome"})
	if err := registerer.Register(requests); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		requests = already.ExistingCollector.(*prometheus.CounterVec)
	}

	g := &Gateway{
		agg:      agg,
		probe:    probe,
		cfg:      cfg,
		logger:   logger.With(loggingpkg.LogFields{"component": "gateway"}),
		requests: requests,
	}
	g.engine = g.newEngine()
	return g, nil
}

// Handler returns the HTTP handler serving every gateway route.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

func (g *Gateway) newEngine() *gin.Engine {
	gin.SetMode(g.cfg.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", g.handleHealth)

	search := engine.Group("/")
	search.Use(
		traceMiddleware(),
		accessLogMiddleware(g.logger),
		loadTestMiddleware(g.logger),
	)
	search.GET("/search", g.handleSearch)
	return engine
}

func (g *Gateway) handleHealth(c *gin.Context) {
	if !g.probe.Ready() {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ok")
}

type searchResponse struct {
	Results []string `json:"results"`
	TraceID string   `json:"trace_id,omitempty"`
}

func (g *Gateway) handleSearch(c *gin.Context) {
	ctx := c.Request.Context()
	log := g.logger.With(loggingpkg.LogFields{"trace_id": tracing.TraceID(ctx)})

	queries := SplitQuery(c.Query("query"))
	session := g.agg.NewSession()
	for _, q := range queries {
		session.Queue(q)
	}

	stream, err := session.Run(ctx)
	if err != nil {
		log.Error("Search could not be dispatched", err, loggingpkg.LogFields{"queries": len(queries)})
		g.record(OutcomeUnavailable)
		c.String(http.StatusServiceUnavailable, "unavailable")
		return
	}

	results, err := fanout.Collect(ctx, stream, g.cfg.Timeout)
	if err != nil {
		outstanding := session.Outstanding()
		session.Abandon()
		if errors.Is(err, errspkg.ErrDeadlineExceeded) {
			log.Info("Search timed out", loggingpkg.LogFields{
				"received":    len(results),
				"outstanding": outstanding,
			})
			g.record(OutcomeTimeout)
			c.String(http.StatusRequestTimeout, "timeout")
			return
		}
		log.Info("Search cancelled by caller", loggingpkg.LogFields{"outstanding": outstanding})
		g.record(OutcomeCancelled)
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}

	g.record(OutcomeOK)
	if c.Query("format") == "json" {
		body, err := jsoncodec.Marshal(searchResponse{
			Results: lo.Ternary(results == nil, []string{}, results),
			TraceID: tracing.TraceID(ctx),
		})
		if err != nil {
			log.Error("Failed to encode results", err, nil)
			c.String(http.StatusInternalServerError, "Internal Server Error")
			return
		}
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	var body strings.Builder
	for _, r := range results {
		body.WriteString(r)
		body.WriteByte('\n')
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(body.String()))
}

func (g *Gateway) record(outcome string) {
	g.requests.WithLabelValues(outcome).Inc()
}

// SplitQuery splits raw on QuerySeparator, trims each part and drops empty
// ones.
func SplitQuery(raw string) []string {
	parts := lo.Map(strings.Split(raw, QuerySeparator), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Compact(parts)
}
