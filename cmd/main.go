package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"verilotto/internal/auth"
	"verilotto/internal/config"
	"verilotto/internal/deployment"
	"verilotto/internal/handlers"
	"verilotto/internal/metrics"
	"verilotto/internal/services"
	"verilotto/internal/storage"
	"verilotto/internal/storage/bbolt"
	"verilotto/internal/storage/sqlite"
)

func main() {
	defer logger.Init("verilotto", true, false, io.Discard).Close()

	// 1. Load configuration and the deployment manifest
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}
	manifest, err := deployment.Load(cfg.DeploymentFile)
	if err != nil {
		config.Exitf("deployment: %v (run `provision init` first)", err)
	}
	if !strings.EqualFold(manifest.CommitmentScheme, strings.TrimSpace(cfg.CommitmentScheme)) {
		config.Exitf("commitment scheme %q does not match the deployment's %q", cfg.CommitmentScheme, manifest.CommitmentScheme)
	}
	if !cfg.LogVerbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Open the round store
	store, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.Storage, err)
	}
	defer store.Close()

	// 3. Initialize the Lottery Service
	lotteryService, err := newLotteryService(ctx, cfg, manifest, store)
	if err != nil {
		logger.Fatalf("Failed to initialize lottery service: %v", err)
	}

	// 4. Initialize the HTTP Handler
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Fatalf("Failed to initialize tokens: %v", err)
	}
	httpHandler := handlers.NewHTTPHandler(lotteryService, tokens)

	// 5. Set up the Gin router
	r := gin.Default()
	r.Use(metrics.HTTPMiddleware())

	// 6. Register public routes (before middleware)
	httpHandler.RegisterPublicRoutes(r)

	// 7. Group routes that require a bearer identity and apply middleware
	authRoutes := r.Group("/")
	authRoutes.Use(httpHandler.AuthMiddleware())
	httpHandler.RegisterAuthenticatedRoutes(authRoutes)

	// 8. Start the background janitor to release locks of settled rounds
	go func() {
		ticker := time.NewTicker(cfg.LockJanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := lotteryService.ReleaseSettledLocks(ctx); err != nil {
					logger.Warningf("lock janitor: %v", err)
				}
			}
		}
	}()

	// 9. Run the server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warningf("shutdown: %v", err)
		}
	}()

	logger.Infof("Instance %s serving on %s (admin %s, %s storage)", manifest.InstanceID, cfg.HTTPAddr, manifest.Admin, cfg.Storage)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Failed to run server: %v", err)
	}
	logger.Info("Server stopped")
}

func openStore(cfg config.Config) (storage.RoundStore, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warning("Using in-memory storage; rounds are lost on restart")
		return storage.NewMemoryStore(), nil
	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageBolt:
		s, err := bbolt.Open(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
}

func newLotteryService(ctx context.Context, cfg config.Config, manifest deployment.Manifest, store storage.RoundStore) (*services.LotteryService, error) {
	admin, err := manifest.AdminAddress()
	if err != nil {
		return nil, err
	}
	access, err := services.NewAccessControl(admin)
	if err != nil {
		return nil, err
	}
	commitments, err := services.CommitmentPolicyByName(manifest.CommitmentScheme)
	if err != nil {
		return nil, err
	}
	price, err := cfg.TicketPriceUnits()
	if err != nil {
		return nil, err
	}
	return services.NewLotteryService(ctx, services.Options{
		Store:              store,
		Access:             access,
		Commitments:        commitments,
		DefaultTicketPrice: price,
		Observers:          settlementObservers(),
	})
}

// settlementObservers are notified of every live draw, not of the
// settlements replayed at startup.
func settlementObservers() []services.SettlementObserver {
	return []services.SettlementObserver{
		services.LogSettlement,
		services.SettlementObserverFunc(metrics.RecordSettlement),
	}
}
