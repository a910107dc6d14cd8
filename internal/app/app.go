package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"campaign-mailer-go/internal/bounce"
	"campaign-mailer-go/internal/config"
	"campaign-mailer-go/internal/database"
	"campaign-mailer-go/internal/handler"
	"campaign-mailer-go/internal/mailer"
	"campaign-mailer-go/internal/metrics"
	"campaign-mailer-go/internal/queue"
	"campaign-mailer-go/internal/repository"
	"campaign-mailer-go/internal/router"
	"campaign-mailer-go/internal/scheduler"
	"campaign-mailer-go/internal/service"
)

// App holds the wired services shared by the API server and the CLI
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Repos     *repository.Repositories
	Metrics   *metrics.Metrics
	Transport mailer.Transport
	Templates *service.TemplateService
	Contacts  *service.ContactService
	Importer  *service.ContactImporter
	Campaigns *service.CampaignService
	Sender    *service.CampaignSender
	// Sweeper is nil unless the bounce sweep is enabled
	Sweeper *bounce.Sweeper
}

// LoadConfig loads, validates and applies the logging part of the
// configuration
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	ConfigureLogging(cfg.Log)
	return cfg, nil
}

// New opens the database, runs migrations and builds the services. Metrics
// register on reg.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	transport, err := NewTransport(ctx, cfg.Mail)
	if err != nil {
		closeDB(db)
		return nil, err
	}

	m := metrics.NewMetrics(reg)
	repos := repository.New(db)
	contacts := service.NewContactService(repos.Contacts)

	a := &App{
		Config:    cfg,
		DB:        db,
		Repos:     repos,
		Metrics:   m,
		Transport: transport,
		Templates: service.NewTemplateService(repos.Templates),
		Contacts:  contacts,
		Importer:  service.NewContactImporter(contacts, repos.Contacts, m),
		Campaigns: service.NewCampaignService(repos),
		Sender:    service.NewCampaignSender(repos.Campaigns, transport, m, service.WithConcurrency(cfg.Send.Concurrency)),
	}

	if cfg.Scheduler.BounceSweep {
		a.Sweeper = bounce.NewSweeper(bounce.IMAPDialer(cfg.IMAP), repos.Campaigns, repos.Bounces, m)
	}
	return a, nil
}

// SendJob runs one queued campaign send
func (a *App) SendJob(ctx context.Context, job queue.SendJob) error {
	result, err := a.Sender.SendCampaign(ctx, job.CampaignID)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"campaign_id": job.CampaignID,
		"request_id":  job.RequestID,
		"sent":        result.Sent,
		"failed":      result.Failed,
	}).Info("Queued campaign send finished")
	return nil
}

// NewScheduler creates the campaign scheduler without starting it
func (a *App) NewScheduler() *scheduler.Scheduler {
	// a nil *bounce.Sweeper must not reach the interface
	var sweeper scheduler.Sweeper
	if a.Sweeper != nil {
		sweeper = a.Sweeper
	}
	return scheduler.New(&a.Config.Scheduler, a.Campaigns, a.Sender, sweeper, a.Metrics)
}

// Close releases the transport and the database connection
func (a *App) Close() {
	if err := a.Transport.Close(); err != nil {
		logrus.Errorf("Failed to close mail transport: %v", err)
	}
	closeDB(a.DB)
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logrus.Errorf("Failed to close database: %v", err)
	}
}

// initSentry enables error reporting when a DSN is configured
func initSentry(cfg config.SentryConfig) bool {
	if cfg.DSN == "" {
		return false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    false,
		AttachStacktrace: true,
	})
	if err != nil {
		logrus.Warnf("Sentry initialization failed: %v", err)
		return false
	}
	return true
}

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.Info("Starting Campaign Mailer Service")

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	if initSentry(cfg.Sentry) {
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := New(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		dispatcher queue.Publisher
		workerDone = make(chan struct{})
	)
	if cfg.Queue.Enabled {
		mq, err := queue.DialRabbitMQ(cfg.Queue, a.Metrics)
		if err != nil {
			return err
		}
		dispatcher = mq
		go func() {
			defer close(workerDone)
			if err := mq.Consume(ctx, a.SendJob); err != nil {
				logrus.Errorf("Send worker stopped: %v", err)
			}
		}()
	} else {
		dispatcher = queue.NewLocal(ctx, a.SendJob, a.Metrics)
		close(workerDone)
		logrus.Info("No queue configured, asynchronous sends run in-process")
	}

	sched := a.NewScheduler()

	h := handler.NewHandlers(handler.Deps{
		DB:         a.DB,
		Templates:  a.Templates,
		Contacts:   a.Contacts,
		Importer:   a.Importer,
		Campaigns:  a.Campaigns,
		Sender:     a.Sender,
		Dispatcher: dispatcher,
		Scheduler:  sched,
		Gatherer:   prometheus.DefaultGatherer,
		Mailer:     cfg.Mail.Provider,
	})
	r := router.SetupRouter(h, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	sched.Wait()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	// stop the consumer before its channel closes
	stop()
	<-workerDone
	if err := dispatcher.Close(); err != nil {
		logrus.Errorf("Failed to close dispatcher: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
