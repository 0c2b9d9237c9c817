// Command teammatchd serves the team matching store over HTTP, loading and
// periodically flushing its snapshot to the configured backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"teammatch/internal/adapters/httpapi"
	"teammatch/internal/blob"
	"teammatch/internal/config"
	"teammatch/internal/core"
	"teammatch/internal/infra/metrics"
	"teammatch/internal/infra/persistence/memory"
	"teammatch/internal/logging"
)

const shutdownTimeout = 15 * time.Second

var exitFunc = os.Exit

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("failed to load configuration")
		exitFunc(1)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, nil); err != nil {
		logrus.WithError(err).Error("teammatchd stopped")
		exitFunc(1)
	}
}

// run wires the daemon and blocks until ctx is done. When ready is non-nil
// it receives the bound listener address.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	log := logging.New(os.Stdout, cfg.LogLevel).With("service", "teammatchd")
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	blobs, err := blob.Open(ctx, blob.Options{
		Driver: blob.Driver(cfg.BlobDriver),
		FSRoot: cfg.BlobFSRoot,
		S3: blob.S3Config{
			Bucket:          cfg.BlobS3Bucket,
			Region:          cfg.BlobS3Region,
			Endpoint:        cfg.BlobS3Endpoint,
			PathStyle:       cfg.BlobS3PathStyle,
			AccessKeyID:     cfg.BlobS3AccessKey,
			SecretAccessKey: cfg.BlobS3SecretKey,
			SessionToken:    cfg.BlobS3SessionToken,
		},
	})
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	snap, err := core.OpenSnapshotter(core.StorageOptions{
		Driver:       core.StorageDriver(cfg.StorageDriver),
		WorkbookPath: cfg.WorkbookPath,
		SQLitePath:   cfg.SQLitePath,
		PostgresDSN:  cfg.PostgresDSN,
	})
	if err != nil {
		return fmt.Errorf("open snapshot backend: %w", err)
	}

	recorder := metrics.New()
	opts := []core.ManagerOption{
		core.WithSnapshotInterval(cfg.SnapshotInterval),
		core.WithWriteThrough(cfg.SnapshotOnCommit),
		core.WithManagerLogger(log.With("component", "persistence")),
		core.WithFlushObserver(recorder),
	}
	if cfg.SnapshotArchive {
		opts = append(opts, core.WithSnapshotArchive(blobs))
	}
	manager := core.NewPersistenceManager(memory.NewStore(core.NewDefaultRulesEngine()), snap, opts...)
	if err := manager.Open(ctx); err != nil {
		_ = snap.Close()
		return err
	}
	manager.Start(ctx)

	svc := core.NewService(manager,
		core.WithLogger(log.With("component", "service")),
		core.WithMetricsRecorder(recorder),
		core.WithBlobStore(blobs),
	)
	server := &http.Server{
		Handler: httpapi.NewRouter(svc, httpapi.Options{
			Blobs:          blobs,
			Logger:         log.With("component", "http"),
			AllowedOrigins: cfg.AllowedOrigins,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Metrics:        recorder.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		_ = manager.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("server listening", "addr", ln.Addr().String(), "storage", cfg.StorageDriver, "blob", cfg.BlobDriver)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err.Error())
	}
	if err := manager.Close(shutdownCtx); err != nil {
		log.Error("final snapshot failed", "error", err.Error())
		return errors.Join(runErr, err)
	}
	log.Info("shutdown complete")
	return runErr
}
