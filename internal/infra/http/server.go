package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"certledger/internal/config"
	"certledger/internal/domain"
	"certledger/internal/infra/auth/header"
	"certledger/internal/infra/auth/rbac"
	"certledger/internal/infra/auth/session"
	"certledger/internal/infra/metrics"
	"certledger/internal/infra/policyopa"
	"certledger/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *zap.Logger

	revocations  *usecase.RevocationService
	batch        *usecase.BatchRevoker
	queries      *usecase.RevocationQueries
	reports      *usecase.ReportService
	reconciler   *usecase.SyncReconciler
	verifier     *usecase.Verifier
	certificates usecase.CertificateRepository
	ping         func(context.Context) error
	ledgerState  func() string

	authenticator domain.Authenticator
	headerAuth    *header.Authenticator
	authorizer    domain.Authorizer
	authInitErr   error

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
	rateLimitFailOpen bool

	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	httpServer *http.Server
}

type ServerDeps struct {
	Revocations   *usecase.RevocationService
	Batch         *usecase.BatchRevoker
	Queries       *usecase.RevocationQueries
	Reports       *usecase.ReportService
	Reconciler    *usecase.SyncReconciler
	Verifier      *usecase.Verifier
	Certificates  usecase.CertificateRepository
	Ping          func(context.Context) error
	LedgerState   func() string
	Authenticator domain.Authenticator
	Authorizer    domain.Authorizer
	RateLimiter   domain.RateLimiter
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Logger        *zap.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        logger,
		revocations:   deps.Revocations,
		batch:         deps.Batch,
		queries:       deps.Queries,
		reports:       deps.Reports,
		reconciler:    deps.Reconciler,
		verifier:      deps.Verifier,
		certificates:  deps.Certificates,
		ping:          deps.Ping,
		ledgerState:   deps.LedgerState,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
		rateLimiter:   deps.RateLimiter,
		metrics:       deps.Metrics,
		gatherer:      deps.Gatherer,
	}
	if s.certificates == nil && s.queries != nil {
		s.certificates = s.queries.Certificates
	}
	r.Use(s.requestLogger())
	s.initRateLimit()
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) initAuth() {
	switch s.cfg.AuthMode {
	case "none":
	case "header":
		if !s.cfg.IsDev() {
			s.authInitErr = errors.New("AUTH_MODE=header is only allowed in development")
			return
		}
		s.headerAuth = header.NewAuthenticator()
	case "jwt":
		if s.authenticator == nil {
			authenticator, err := session.NewAuthenticator(s.cfg.SessionSecret, s.cfg.SessionIssuer)
			if err != nil {
				s.authInitErr = err
				return
			}
			s.authenticator = authenticator
		}
	case "":
		s.authInitErr = errors.New("AUTH_MODE is required")
		return
	default:
		s.authInitErr = fmt.Errorf("unsupported auth mode %q", s.cfg.AuthMode)
		return
	}
	if s.authorizer != nil {
		return
	}
	switch s.cfg.AuthzMode {
	case "rbac":
		s.authorizer = rbac.NewAuthorizer()
	case "", "opa":
		authorizer, err := policyopa.NewAuthorizer(context.Background())
		if err != nil {
			s.authInitErr = err
			return
		}
		s.authorizer = authorizer
	default:
		s.authInitErr = fmt.Errorf("unsupported authz mode %q", s.cfg.AuthzMode)
	}
}

func (s *Server) initRateLimit() {
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow
	if s.rateLimitWindow <= 0 {
		s.rateLimitWindow = time.Minute
	}
	s.rateLimitFailOpen = s.cfg.RateLimitFailOpen
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	gatherer := s.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.r.Group("/api")
	{
		api.POST("/revoke", s.handleRevoke)
		api.POST("/reinstate", s.handleReinstate)
		api.POST("/revoke/batch", s.handleBatchRevoke)
		api.GET("/certificates/:nftAddress/revocation-history", s.handleHistory)
		api.GET("/verify/:nftAddress", s.handleVerify)
	}
	admin := api.Group("/admin")
	{
		admin.GET("/revocation-logs", s.handleLogs)
		admin.GET("/revocation-report", s.handleReport)
		admin.POST("/sync", s.handleSync)
		admin.GET("/sync-status", s.handleSyncStatus)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	dbMode := "no-db"
	if s.ping != nil {
		dbMode = "db"
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	body := gin.H{"status": status, "mode": dbMode}
	if s.ledgerState != nil {
		body["ledger"] = s.ledgerState()
	}
	c.JSON(code, body)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// InitErr reports a configuration problem found while wiring auth.
func (s *Server) InitErr() error {
	return s.authInitErr
}
