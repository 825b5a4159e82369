package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudbsd/admin-panel/internal/config"
	"github.com/cloudbsd/admin-panel/internal/db"
	internalhttp "github.com/cloudbsd/admin-panel/internal/http/api/admin"
	"github.com/cloudbsd/admin-panel/internal/lifecycle"
	"github.com/cloudbsd/admin-panel/internal/ratelimit"
	"github.com/cloudbsd/admin-panel/internal/realtime"
	"github.com/cloudbsd/admin-panel/internal/watcher"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Migrate opens the database, runs migrations and seeds missing rows.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	return bootstrap(ctx, conn, cfg)
}

// RunServer bootstraps storage and serves the API until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	if cfg.UsesDefaultSecret() {
		log.Warn("tokens are signed with the sample secretKey; set secretKey or JWT_SECRET before exposing the panel")
	}

	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	if errBootstrap := bootstrap(ctx, conn, cfg); errBootstrap != nil {
		return errBootstrap
	}

	hub := realtime.NewHub()
	limiter := ratelimit.NewManager(ratelimit.SettingsFromConfig(cfg.RateLimit), nil, nil)
	defer func() { _ = limiter.Close() }()

	if cfg.DemoMode && cfg.HeartbeatInterval > 0 {
		kinds := make([]string, 0, len(lifecycle.Kinds))
		for _, kind := range lifecycle.Kinds {
			kinds = append(kinds, kind.String())
		}
		go hub.RunHeartbeat(ctx, cfg.HeartbeatInterval, kinds)
	}

	// Other instances sharing a PostgreSQL database write without notifying
	// this hub; polling relays their changes to local clients.
	if db.IsPostgresDSN(cfg.DBPath) && cfg.WatchInterval > 0 {
		changes := watcher.New(conn, hub, cfg.WatchInterval)
		if errWatch := changes.Start(ctx); errWatch != nil {
			return errWatch
		}
		defer func() { _ = changes.Stop() }()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           NewEngine(conn, cfg, hub, limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, srv, cfg.SSL)
}

// NewEngine builds the gin engine with every API route registered.
func NewEngine(conn *gorm.DB, cfg config.Config, hub *realtime.Hub, limiter *ratelimit.Manager) *gin.Engine {
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	internalhttp.RegisterAdminRoutes(engine, conn, cfg, hub, limiter)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return engine
}

func openDatabase(cfg config.Config) (*gorm.DB, error) {
	info, errInfo := describeDatabase(cfg.DBPath)
	if errInfo != nil {
		return nil, fmt.Errorf("app: %w", errInfo)
	}
	log.WithFields(info.fields()).Info("opening database")
	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// bootstrap migrates the schema and seeds missing rows.
func bootstrap(ctx context.Context, conn *gorm.DB, cfg config.Config) error {
	if errMigrate := db.Migrate(conn.WithContext(ctx)); errMigrate != nil {
		return errMigrate
	}
	if errSeed := db.Seed(conn.WithContext(ctx), cfg.DemoMode); errSeed != nil {
		return errSeed
	}
	hasAdmin, errAdmin := HasAdminUser(conn)
	if errAdmin != nil {
		return errAdmin
	}
	if !hasAdmin {
		log.Warn("no account with the admin role exists; user management is unavailable")
	}
	return nil
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, ssl config.SSLConfig) error {
	errCh := make(chan error, 1)
	go func() {
		var errListen error
		if ssl.Enabled {
			log.Infof("serving HTTPS on %s", srv.Addr)
			errListen = srv.ListenAndServeTLS(ssl.CertPath, ssl.KeyPath)
		} else {
			log.Infof("serving HTTP on %s", srv.Addr)
			errListen = srv.ListenAndServe()
		}
		if errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			errCh <- errListen
		}
		close(errCh)
	}()

	select {
	case errListen, ok := <-errCh:
		if ok {
			return fmt.Errorf("app: listen: %w", errListen)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		log.Errorf("server shutdown error: %v", errShutdown)
		return errShutdown
	}
	log.Info("server stopped")
	return nil
}
