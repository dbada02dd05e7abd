// Package server exposes the paywall over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitwit/balancerail"
	"github.com/vitwit/balancerail/catalog"
	"github.com/vitwit/balancerail/chain"
	"github.com/vitwit/balancerail/config"
	"github.com/vitwit/balancerail/facilitator"
	"github.com/vitwit/balancerail/gate"
	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/metrics"
	"github.com/vitwit/balancerail/types"
)

const shutdownTimeout = 5 * time.Second

// Run boots the HTTP server and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg config.ServerConfig) error {
	log, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	settlerOpts := []facilitator.SettlerOption{
		facilitator.WithTimeout(cfg.SettleTimeout),
		facilitator.WithMaxTimeoutSeconds(cfg.MaxTimeoutSeconds),
		facilitator.WithLogger(log),
	}
	if cfg.RPCURL != "" {
		token, rpcClient, err := chain.Dial(ctx, cfg.RPCURL, cfg.AssetAddress)
		if err != nil {
			return err
		}
		defer rpcClient.Close()
		settlerOpts = append(settlerOpts, facilitator.WithSimulator(token))
	}

	client := facilitator.NewHTTPClient(cfg.FacilitatorURL, cfg.FacilitatorSecretKey, cfg.ServerWalletAddress,
		&http.Client{Timeout: cfg.SettleTimeout})
	settler := facilitator.NewSettler(client, settlerOpts...)

	paywall := balancerail.New(cat, settler, gate.Terms{
		BaseURL: cfg.APIBaseURL,
		PayTo:   cfg.MerchantAddress,
		Network: cfg.Network,
		Asset:   cfg.AssetAddress,
	}, balancerail.WithLogger(log), balancerail.WithMetrics(recorder))

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(paywall, cfg.AllowedOrigins, registry, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("balancerail listening", map[string]any{
			"addr":    cfg.ListenAddr,
			"network": cfg.Network.String(),
			"tiers":   len(cat.Tiers()),
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Warn("server shutdown error", map[string]any{"err": shutdownErr})
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter wires the paywall's gates plus the catalog, agent, health and
// metrics endpoints. gatherer may be nil to omit /metrics.
func NewRouter(p *balancerail.Paywall, allowedOrigins []string, gatherer prometheus.Gatherer, log logger.Logger) *gin.Engine {
	log = logger.OrNoop(log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Origin", "Accept", types.HeaderPayment},
		ExposeHeaders: []string{types.HeaderPaymentResponse},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	h := &handler{paywall: p}
	router.GET("/api/tiers", h.tiers)
	router.GET("/api/agent", h.agent)

	for _, g := range p.Gates() {
		router.GET(g.Tier().Resource, g.Handle)
	}
	return router
}

type handler struct {
	paywall *balancerail.Paywall
}

func (h *handler) tiers(c *gin.Context) {
	terms := h.paywall.Terms()
	c.JSON(http.StatusOK, gin.H{
		"network":  terms.Network,
		"asset":    terms.Asset,
		"token":    types.TokenDisplayName,
		"decimals": types.TokenDecimals,
		"tiers":    h.paywall.Catalog().Tiers(),
	})
}

func (h *handler) agent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"agent":               catalog.BalanceRailAgent(),
		"vaultAllocationRate": catalog.VaultAllocationRate,
	})
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := map[string]any{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			fields["err"] = c.Errors.Last().Err
			log.Error("request failed", fields)
			return
		}
		log.Debug("request", fields)
	}
}
