package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/greenyard/packhouse/internal/batch"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"github.com/greenyard/packhouse/internal/config"
	"github.com/greenyard/packhouse/internal/inventory"
	inventorydomain "github.com/greenyard/packhouse/internal/inventory/domain"
	"github.com/greenyard/packhouse/internal/packaging"
	packagingdomain "github.com/greenyard/packhouse/internal/packaging/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	batch.Module,
	inventory.Module,
	packaging.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(MetricsMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	batchSvc     batchdomain.Service
	packagingSvc packagingdomain.Service
	stock        inventorydomain.StockSink
	movements    inventorydomain.MovementLedger
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	BatchSvc     batchdomain.Service
	PackagingSvc packagingdomain.Service
	Stock        inventorydomain.StockSink
	Movements    inventorydomain.MovementLedger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		batchSvc:     p.BatchSvc,
		packagingSvc: p.PackagingSvc,
		stock:        p.Stock,
		movements:    p.Movements,
	}
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

// RegisterAPIRoutes mounts the operator-facing API.
func (s *Server) RegisterAPIRoutes() {
	v1 := s.engine.Group("/v1")

	batches := v1.Group("/batches")
	batches.POST("", s.submitIntake)
	batches.GET("", s.listBatches)
	batches.GET("/:id", s.getBatch)
	batches.POST("/:id/inspection", s.submitInspection)
	batches.POST("/:id/reject", s.rejectWholeBatch)
	batches.POST("/:id/reopen", s.reopenInspection)
	batches.POST("/:id/grading", s.submitGrading)
	batches.POST("/:id/disposal", s.submitDisposal)
	batches.GET("/:id/disposal", s.listDisposalEntries)
	batches.POST("/:id/cleaning", s.submitCleaning)

	packaging := v1.Group("/packaging")
	packaging.GET("/eligible", s.listEligibleBatches)
	packaging.GET("/preview", s.previewRun)
	packaging.POST("/runs", s.commitRun)
	packaging.GET("/records", s.listPackRecords)

	inventory := v1.Group("/inventory")
	inventory.GET("/levels", s.listStockLevels)
	inventory.GET("/movements", s.listStockMovements)
}

func run(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
