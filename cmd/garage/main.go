package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZJUSCT/slotgarage/internal/api/admin"
	"github.com/ZJUSCT/slotgarage/internal/api/user"
	"github.com/ZJUSCT/slotgarage/internal/auth"
	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/pubsub"
	"github.com/ZJUSCT/slotgarage/internal/ranking"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Version = "dev-build"

func main() {

	fmt.Fprintf(os.Stderr, "ZJUSCT Slot Garage %s - Slot Car Collection & Race Timing\n\n", Version)

	// config
	var configPath string
	flag.StringVar(&configPath, "c", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// logger
	var logger *zap.Logger
	if cfg.Logger.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// database
	db, err := database.Init(cfg.Storage.Database)
	if err != nil {
		zap.S().Fatalf("failed to initialize database: %v", err)
	}
	zap.S().Info("database initialized successfully")

	// ranking
	broker := pubsub.GetBroker()
	tracker := ranking.NewTracker(
		database.NewTimingStore(db),
		logger,
		ranking.WithMaxConcurrentUpdates(cfg.Ranking.MaxConcurrentUpdates),
		ranking.WithBroker(broker),
	)

	// repair positions left inconsistent by an interrupted run
	if err := reconcileCircuits(db, tracker); err != nil {
		zap.S().Errorf("failed to reconcile circuit positions: %v", err)
	}

	// optional GitLab sign-in
	var gitlab *auth.GitLabHandler
	if cfg.Auth.GitLab.Enabled {
		gitlab, err = auth.NewGitLabHandler(context.Background(), cfg, db)
		if err != nil {
			zap.S().Fatalf("failed to set up gitlab auth: %v", err)
		}
		zap.S().Infof("gitlab auth enabled against %s", cfg.Auth.GitLab.URL)
	}

	// API routers
	servers := []*http.Server{{
		Addr:    cfg.Listen,
		Handler: user.NewUserRouter(cfg, db, tracker, broker, gitlab),
	}}
	if cfg.Admin.Enabled {
		servers = append(servers, &http.Server{
			Addr:    cfg.Admin.Listen,
			Handler: admin.NewAdminRouter(cfg, db, tracker),
		})
	}

	// start servers
	for _, srv := range servers {
		go func() {
			zap.S().Infof("starting server at %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.S().Fatalf("failed to start server at %s: %v", srv.Addr, err)
			}
		}()
	}

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			zap.S().Errorf("server at %s did not shut down cleanly: %v", srv.Addr, err)
		}
	}
}

func reconcileCircuits(db *gorm.DB, tracker *ranking.Tracker) error {
	circuits, err := database.GetCircuits(db)
	if err != nil {
		return err
	}
	for _, circuit := range circuits {
		if _, err := tracker.Recompute(context.Background(), circuit, ""); err != nil {
			return err
		}
	}
	zap.S().Infof("reconciled positions on %d circuits", len(circuits))
	return nil
}
