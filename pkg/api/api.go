package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flightctl/flightctl-mcp/pkg/config"
	"github.com/flightctl/flightctl-mcp/pkg/metrics"
	"github.com/flightctl/flightctl-mcp/pkg/ratelimit"
	"github.com/flightctl/flightctl-mcp/pkg/version"
)

const shutdownTimeout = 10 * time.Second

// ReadyCheck reports whether a subsystem is able to serve traffic.
type ReadyCheck func() error

// Server hosts MCP transport handlers plus the operational endpoints.
type Server struct {
	engine  *gin.Engine
	cfg     config.Server
	limiter *ratelimit.IPRateLimiter
	log     *zap.Logger
	ready   []ReadyCheck
}

// NewServer assembles the gin engine. Debug keeps gin chatty; production
// runs in release mode.
func NewServer(log *zap.Logger, cfg config.Server, debug bool, ready ...ReadyCheck) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	_ = engine.SetTrustedProxies(nil)
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
	)

	if cfg.CORS.Enabled {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.Origins,
			AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Last-Event-ID"},
			ExposeHeaders: []string{"Mcp-Session-Id"},
			MaxAge:        12 * time.Hour,
		}))
	}

	s := &Server{
		engine:  engine,
		cfg:     cfg,
		limiter: ratelimit.New(ratelimit.FromConfig(cfg.RateLimit)),
		log:     log,
		ready:   ready,
	}

	engine.GET("/healthz", s.healthz)
	engine.GET("/readyz", s.readyz)
	engine.GET("/version", s.buildInfo)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	return s
}

// Mount attaches an MCP transport handler at path. The handler also owns
// everything below the path so the SSE event and message endpoints
// resolve. Only mounted routes are rate limited; probes and metric
// scrapes are not.
func (s *Server) Mount(path string, handler http.Handler) {
	path = "/" + strings.Trim(path, "/")
	wrapped := gin.WrapH(handler)
	group := s.engine.Group("", s.limiter.Middleware())
	group.Any(path, wrapped)
	group.Any(path+"/*rest", wrapped)
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on the configured address until ctx is cancelled, then
// drains in-flight requests before returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Transport.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http transport listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Long-lived SSE streams keep Shutdown from draining; force them.
		s.log.Warn("forcing http transport closed", zap.Error(err))
		_ = srv.Close()
	}
	<-errCh
	return nil
}

// Close stops the rate limiter's background cleanup.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyz(c *gin.Context) {
	for _, check := range s.ready {
		if err := check(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) buildInfo(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
