package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/attendance/config"
	"example.com/backstage/services/attendance/internal/api/handlers"
	"example.com/backstage/services/attendance/internal/ledger"
	"example.com/backstage/services/attendance/internal/outbox"
	"example.com/backstage/services/attendance/internal/payroll"
	"example.com/backstage/services/attendance/internal/repositories"
	"example.com/backstage/services/attendance/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
	ledger     *ledger.Ledger
	aggregator *payroll.Aggregator
	records    *repositories.AttendanceRepository
	contracts  *repositories.ContractRepository
	dispatcher *outbox.Dispatcher
	tracer     tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, l *ledger.Ledger, aggregator *payroll.Aggregator, records *repositories.AttendanceRepository, contracts *repositories.ContractRepository, dispatcher *outbox.Dispatcher, tracer tracing.Tracer) *Server {
	server := &Server{
		config:     cfg,
		ledger:     l,
		aggregator: aggregator,
		records:    records,
		contracts:  contracts,
		dispatcher: dispatcher,
		tracer:     tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.Default()

	router.Use(RequestIDMiddleware())
	if s.config.CorsEnabled {
		router.Use(CORSMiddleware())
	}
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware())

	// Register handlers
	attendanceHandler := handlers.NewAttendanceHandler(s.ledger, s.records, s.tracer)
	attendanceHandler.RegisterRoutes(router)

	payrollHandler := handlers.NewPayrollHandler(s.aggregator, s.ledger, s.tracer)
	payrollHandler.RegisterRoutes(router)

	contractHandler := handlers.NewContractHandler(s.contracts, s.dispatcher, s.tracer)
	contractHandler.RegisterRoutes(router)

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
