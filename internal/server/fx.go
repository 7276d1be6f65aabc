// Package server builds the service's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/api"
	"github.com/JakeFAU/dorank/internal/archive"
	"github.com/JakeFAU/dorank/internal/clock/system"
	"github.com/JakeFAU/dorank/internal/config"
	"github.com/JakeFAU/dorank/internal/extremum"
	collyfetcher "github.com/JakeFAU/dorank/internal/fetcher/colly"
	restyfetcher "github.com/JakeFAU/dorank/internal/fetcher/resty"
	"github.com/JakeFAU/dorank/internal/id/uuid"
	"github.com/JakeFAU/dorank/internal/listing"
	"github.com/JakeFAU/dorank/internal/logging"
	"github.com/JakeFAU/dorank/internal/notify"
	"github.com/JakeFAU/dorank/internal/notify/slack"
	"github.com/JakeFAU/dorank/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/dorank/internal/publisher/pubsub"
	"github.com/JakeFAU/dorank/internal/rank"
	"github.com/JakeFAU/dorank/internal/report"
	"github.com/JakeFAU/dorank/internal/stats"
	gcsstorage "github.com/JakeFAU/dorank/internal/storage/gcs"
	localstorage "github.com/JakeFAU/dorank/internal/storage/local"
	memorystorage "github.com/JakeFAU/dorank/internal/storage/memory"
	pgstore "github.com/JakeFAU/dorank/internal/storage/postgres"
	"github.com/JakeFAU/dorank/internal/storage/sqlstore"
	"github.com/JakeFAU/dorank/internal/telemetry"
)

// Version is reported on traces; it is set at link time.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	store           stats.ExtremumStore
	tracker         *extremum.Tracker
	cycle           *report.Cycle
	apiServer       *api.Server
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	tracerShutdown  telemetry.ShutdownFunc
}

// NewApp creates an App with the given configuration and logger.
func NewApp(cfg config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.Bool("debug_mode", cfg.DebugMode),
	)
	return &App{cfg: cfg, logger: logger}
}

// Build creates the application's dependencies. The store is initialized so
// that every tracked key exists before the first cycle.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := NewApp(cfg, logger)
	app.tracerShutdown, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      Version,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Headers:      cfg.Telemetry.Headers,
		SampleRatio:  cfg.Telemetry.SampleRatio,
	}, logger.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		if cErr := app.Close(context.WithoutCancel(ctx)); cErr != nil {
			logger.Warn("cleanup after failed build", zap.Error(cErr))
		}
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")

	var err error
	a.store, err = OpenStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.tracker, err = extremum.New(a.store, nil, a.logger.Named("extremum"))
	if err != nil {
		return fmt.Errorf("extremum tracker init failed: %w", err)
	}
	if err := a.tracker.Init(ctx); err != nil {
		return fmt.Errorf("extremum store init failed: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.HTTP.RateLimitRPS,
		DefaultBurst: a.cfg.HTTP.RateLimitBurst,
	})
	resolver, err := setupResolver(a.cfg, limiter, a.logger)
	if err != nil {
		return err
	}
	profiles, err := restyfetcher.New(restyfetcher.Config{
		BaseURL:      a.cfg.Directory.BaseURL,
		ResourcePath: a.cfg.Directory.ResourcePath,
		UserAgent:    a.cfg.HTTP.UserAgent,
		Timeout:      a.cfg.HTTPTimeout(),
		RetryCount:   a.cfg.HTTP.MaxRetries,
	}, limiter)
	if err != nil {
		return fmt.Errorf("profile client init failed: %w", err)
	}

	notifier, err := a.setupNotifier(ctx)
	if err != nil {
		return err
	}
	archiver, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}

	deps := report.Deps{
		Resolver: resolver,
		Profiles: profiles,
		Extremes: a.tracker,
		Notifier: notifier,
		Clock:    system.New(),
		IDs:      uuid.NewUUIDGenerator(),
		Logger:   a.logger.Named("report"),
	}
	if archiver != nil {
		deps.Archiver = archiver
	}
	a.cycle, err = report.New(report.Config{
		BaseURL:         a.cfg.Directory.BaseURL,
		MarketplacePath: a.cfg.Directory.MarketplacePath,
		OrganizationID:  a.cfg.Directory.OrganizationID,
		Header:          a.cfg.Slack.Header,
		Footer:          a.cfg.Slack.Footer,
	}, deps)
	if err != nil {
		return fmt.Errorf("report cycle init failed: %w", err)
	}

	a.apiServer = api.NewServer(a.cycle, a.tracker, api.Options{
		TriggerToken:      a.cfg.Auth.TriggerToken,
		VerificationToken: a.cfg.Auth.SlackVerificationToken,
		BroadcastChannel:  a.cfg.BroadcastChannel(),
	}, a.logger.Named("api"))
	return nil
}

// OpenStore connects to the configured extremum store without initializing it.
func OpenStore(ctx context.Context, cfg config.Config) (stats.ExtremumStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memorystorage.NewExtremumStore(), nil
	case config.DriverSQLite, config.DriverLibSQL:
		if err := ensureLocalDir(cfg.Store.DSN); err != nil {
			return nil, err
		}
		store, err := sqlstore.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("sql store init failed: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      cfg.Store.DSN,
			Table:    cfg.Store.Table,
			MaxConns: cfg.Store.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("store driver %q is not supported", cfg.Store.Driver)
	}
}

// ensureLocalDir creates the parent directory of a plain file DSN.
func ensureLocalDir(dsn string) error {
	if sqlstore.DriverFor(dsn) != "sqlite" || strings.Contains(dsn, ":") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}

func setupResolver(cfg config.Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*rank.Resolver, error) {
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
	}, limiter)
	logger.Info("using colly page fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))

	parser, err := listing.NewParser(listing.Config{
		ContainerSelector: cfg.Directory.ContainerSelector,
		TargetFormat:      cfg.Directory.TargetFormat,
		NextSelector:      cfg.Directory.NextSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("listing parser init failed: %w", err)
	}
	resolver, err := rank.New(rank.Config{
		BaseURL:  cfg.Directory.BaseURL,
		MaxPages: cfg.Directory.MaxPages,
	}, pages, parser, logger.Named("rank"))
	if err != nil {
		return nil, fmt.Errorf("rank resolver init failed: %w", err)
	}
	return resolver, nil
}

func (a *App) setupNotifier(ctx context.Context) (stats.Notifier, error) {
	var primary stats.Notifier
	if a.cfg.Slack.BotToken == "" {
		a.logger.Warn("no Slack bot token configured, reports will only be logged")
		primary = notify.NewLogNotifier(a.logger.Named("notify"))
	} else {
		n, err := slack.New(slack.Config{
			BotToken: a.cfg.Slack.BotToken,
			APIURL:   a.cfg.Slack.APIURL,
			Timeout:  a.cfg.HTTPTimeout(),
		}, a.logger.Named("slack"))
		if err != nil {
			return nil, fmt.Errorf("slack notifier init failed: %w", err)
		}
		primary = n
	}

	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		return primary, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubPublisher = a.pubsubClient.Publisher(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	multi, err := notify.NewMulti(a.logger.Named("notify"), primary, gcppublisher.New(a.pubsubPublisher))
	if err != nil {
		return nil, fmt.Errorf("notifier init failed: %w", err)
	}
	return multi, nil
}

func (a *App) setupArchive(ctx context.Context) (*archive.Archiver, error) {
	var blobs archive.BlobStore
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.storage, gcsstorage.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving reports to GCS", zap.String("bucket", a.cfg.Archive.GCSBucket))
		blobs = store
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving reports locally", zap.String("path", a.cfg.Archive.LocalDir))
		blobs = store
	case config.ArchiveMemory:
		a.logger.Info("archiving reports in memory")
		blobs = memorystorage.NewBlobStore()
	default:
		a.logger.Info("report archiving disabled")
		return nil, nil
	}
	archiver, err := archive.New(blobs, a.cfg.Archive.Prefix)
	if err != nil {
		return nil, fmt.Errorf("archiver init failed: %w", err)
	}
	return archiver, nil
}

// Cycle returns the reporting cycle.
func (a *App) Cycle() *report.Cycle {
	return a.cycle
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves HTTP until ctx is canceled or the process receives SIGINT or
// SIGTERM, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("background cycles still running", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.ShutdownTimeout(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// Close releases clients and the store, flushes traces, then flushes the
// logger. It is safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage client: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close extremum store: %w", err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	for _, err := range errs {
		a.logger.Warn("shutdown step failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	// Sync fails on stderr/stdout for some platforms; the error is not actionable.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
