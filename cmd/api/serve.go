package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "procureflow/api/swagger" // swagger docs
	"procureflow/internal/handler"
	"procureflow/internal/logger"
	"procureflow/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the workflow engine",
		Long: `Serve the REST API and the /ws websocket endpoint, and run the three workflow
ticks (auto-approval, purchase order generation, statistics broadcast).

SYSTEM_APPROVER_ID must name an active user; serve refuses to start otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	approver, err := a.router.SystemApprover(ctx)
	if err != nil {
		return fmt.Errorf("cannot start workflow engine: %w", err)
	}
	a.log.Info("resolved system approver", zap.String("username", approver.Username))

	go a.hub.Run(ctx)
	if a.relay != nil {
		go func() {
			if err := a.relay.Run(ctx); err != nil {
				a.log.Error("redis relay stopped", zap.Error(err))
			}
		}()
	}

	a.pool.Start(ctx)
	a.orchestrator.Start(ctx)

	if a.cfg.GinMode != "" {
		gin.SetMode(a.cfg.GinMode)
	}
	auth := a.auth
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLog(a.log.Named("http")))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:3000"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(a.hub, c, auth.Secret())
	})

	api := router.Group("")
	handler.NewUserHandler(a.users, auth).RegisterRoutes(api)
	handler.NewPurchaseRequestHandler(a.requests, auth).RegisterRoutes(api)
	handler.NewStatisticsHandler(a.statistics, auth).RegisterRoutes(api)
	handler.NewAuditHandler(a.audit, auth).RegisterRoutes(api)
	handler.NewWorkflowHandler(a.orchestrator, auth).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			a.orchestrator.Stop()
			a.pool.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", zap.Error(err))
	}
	a.orchestrator.Stop()
	a.pool.Stop()
	return nil
}
