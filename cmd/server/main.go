// Command server runs the Payplace gateway HTTP API.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orcaya/payplace-go/internal/config"
	"github.com/orcaya/payplace-go/internal/gateway"
	"github.com/orcaya/payplace-go/internal/handler"
	"github.com/orcaya/payplace-go/internal/health"
	"github.com/orcaya/payplace-go/internal/payplace"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}

	client := payplace.New(payplace.Options{
		MerchantID: cfg.MerchantID,
		Password:   cfg.Password,
		Sandbox:    cfg.Sandbox,
	}, &http.Client{Timeout: 30 * time.Second})

	monitor := health.NewMonitor()
	gw := gateway.New(cfg, client, monitor)
	store := handler.NewRecordStore()
	h := handler.New(gw, store, monitor)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	h.RegisterRoutes(router)

	slog.Info("server_starting",
		"addr", cfg.ListenAddr,
		"sandbox", cfg.Sandbox,
		"token_flow", cfg.TokenFlow,
	)
	if err := router.Run(cfg.ListenAddr); err != nil {
		slog.Error("server_failed", "error", err)
		os.Exit(1)
	}
}
