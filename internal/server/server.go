package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltehedderich/toolgate-go/internal/admin"
	"github.com/maltehedderich/toolgate-go/internal/config"
	"github.com/maltehedderich/toolgate-go/internal/health"
	"github.com/maltehedderich/toolgate-go/internal/logger"
	"github.com/maltehedderich/toolgate-go/internal/metrics"
	"github.com/maltehedderich/toolgate-go/internal/middleware"
	"github.com/maltehedderich/toolgate-go/internal/proxy"
	"github.com/maltehedderich/toolgate-go/internal/ratelimit"
	"github.com/maltehedderich/toolgate-go/internal/tracing"
)

// Server runs the three listeners: the public tool API endpoint, the
// administrative surface and the metrics/health endpoint. Only the public
// listener passes through the rate limiting chain.
type Server struct {
	config        *config.Config
	limiter       *ratelimit.Limiter
	proxy         *proxy.Proxy
	healthManager *health.Manager

	publicServer  *http.Server
	adminServer   *http.Server
	metricsServer *http.Server

	logger *logger.ComponentLogger
}

// New creates a new server instance
func New(cfg *config.Config, limiter *ratelimit.Limiter, p *proxy.Proxy, healthMgr *health.Manager) *Server {
	return &Server{
		config:        cfg,
		limiter:       limiter,
		proxy:         p,
		healthManager: healthMgr,
		logger:        logger.Get().WithComponent("server"),
	}
}

// Start starts all listeners and blocks until shutdown or a listener error.
func (s *Server) Start() error {
	s.publicServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", s.config.Server.HTTPPort),
		Handler:        s.publicHandler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 3)

	go func() {
		s.logger.Info("starting public server", logger.Fields{
			"port":     s.config.Server.HTTPPort,
			"rpc_path": s.config.Server.RPCPath,
		})
		if err := s.publicServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("public server error: %w", err)
		}
	}()

	if s.config.Admin.Enabled {
		s.adminServer = &http.Server{
			Addr:         s.config.Admin.Addr,
			Handler:      s.adminHandler(),
			ReadTimeout:  s.config.Server.ReadTimeout,
			WriteTimeout: s.config.Server.WriteTimeout,
			IdleTimeout:  s.config.Server.IdleTimeout,
		}

		go func() {
			s.logger.Info("starting admin server", logger.Fields{
				"addr": s.config.Admin.Addr,
			})
			if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("admin server error: %w", err)
			}
		}()
	}

	if s.config.Observability.MetricsEnabled {
		s.metricsServer = &http.Server{
			Addr:    s.config.Observability.MetricsAddr,
			Handler: s.metricsHandler(),
		}

		go func() {
			s.logger.Info("starting metrics server", logger.Fields{
				"addr": s.config.Observability.MetricsAddr,
			})
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	go s.handleShutdown(errChan)

	return <-errChan
}

// publicHandler builds the public middleware chain around the proxy. Every
// request on the RPC path goes through rate limiting before forwarding.
func (s *Server) publicHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.Server.RPCPath, s.proxy.Handler())

	chain := middleware.NewChain(
		middleware.Recovery(),
		middleware.CorrelationID(),
		middleware.Logging(),
	)

	if s.config.Observability.TracingEnabled {
		chain = chain.Append(tracing.Middleware())
	}

	if s.config.RateLimit.Enabled {
		chain = chain.Append(ratelimit.Middleware(s.limiter, s.config.Server.MaxBodySize))
	}

	return chain.Then(mux)
}

// adminHandler builds the admin surface. No rate limiting here; the
// listener binds to loopback by default and is not publicly reachable.
func (s *Server) adminHandler() http.Handler {
	handler := admin.New(
		s.limiter.Blocklist(),
		s.limiter.Violations(),
		s.config.RateLimit.BlockDuration,
	)

	chain := middleware.NewChain(
		middleware.Recovery(),
		middleware.CorrelationID(),
		middleware.Logging(),
	)

	return chain.Then(handler.Mux())
}

// metricsHandler serves Prometheus metrics and the health probes.
func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.config.Observability.MetricsPath, metrics.Handler())
	mux.HandleFunc(s.config.Observability.HealthPath, s.healthManager.HealthHandler())
	mux.HandleFunc(s.config.Observability.ReadinessPath, s.healthManager.ReadinessHandler())
	mux.HandleFunc(s.config.Observability.LivenessPath, s.healthManager.LivenessHandler())
	return mux
}

// handleShutdown handles graceful shutdown on SIGINT/SIGTERM.
func (s *Server) handleShutdown(errChan chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	s.logger.Info("shutdown signal received", logger.Fields{
		"signal": sig.String(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	errChan <- s.Shutdown(ctx)
}

// Shutdown gracefully shuts down all listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating server shutdown")

	for name, srv := range map[string]*http.Server{
		"public":  s.publicServer,
		"admin":   s.adminServer,
		"metrics": s.metricsServer,
	} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("server shutdown error", logger.Fields{
				"listener": name,
				"error":    err.Error(),
			})
			return fmt.Errorf("failed to shutdown %s server: %w", name, err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
