// Package app wires configuration into the services shared by the server and
// worker processes.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/client"
	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/db"
	"github.com/unclebandit/mailflow/internal/mail"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/queue"
	"github.com/unclebandit/mailflow/internal/repository"
	"github.com/unclebandit/mailflow/internal/service"
	"github.com/unclebandit/mailflow/internal/workpool"
)

type App struct {
	Config  config.Config
	Log     *zap.Logger
	Metrics metrics.Sink

	DB        *sql.DB
	Emails    repository.EmailRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Bus       queue.Queue
	Redis     *redis.Client
	Pool      *workpool.Pool

	Delivery *service.DeliveryService
	Tracking *service.TrackingService
	Queries  *service.EmailQueryService
	Matcher  *service.CampaignMatcher
	Consumer *service.TriggerConsumer
	Retry    *service.RetryScheduler

	stopConsumers context.CancelFunc
}

// New connects every backing service named by cfg. On error, whatever was
// already opened is closed again.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.NoopSink{}, Pool: workpool.New(cfg.WorkerPoolSize)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.MetricsEnabled {
		a.Metrics = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, log.Named("metrics"))
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openBus(); err != nil {
		return nil, err
	}

	contacts, templates, err := a.clients()
	if err != nil {
		return nil, err
	}
	transport, err := a.transport()
	if err != nil {
		return nil, err
	}

	status := &service.StatusPublisher{Publisher: a.Bus, Metrics: a.Metrics, Log: log.Named("status")}
	a.Delivery = &service.DeliveryService{
		Emails:      a.Emails,
		Contacts:    contacts,
		Templates:   templates,
		Transport:   transport,
		Status:      status,
		Pool:        a.Pool,
		Metrics:     a.Metrics,
		Log:         log.Named("pipeline"),
		BaseURL:     cfg.BaseURL,
		From:        cfg.MailFrom,
		TrackClicks: cfg.TrackClicks,
		Now:         time.Now,
	}
	a.Tracking = &service.TrackingService{
		Emails:  a.Emails,
		Status:  status,
		Metrics: a.Metrics,
		Log:     log.Named("tracking"),
		Now:     time.Now,
	}
	a.Queries = &service.EmailQueryService{Emails: a.Emails, Now: time.Now}
	a.Matcher = &service.CampaignMatcher{
		Campaigns: a.Campaigns,
		Publisher: a.Bus,
		Metrics:   a.Metrics,
		Log:       log.Named("matcher"),
		Now:       time.Now,
	}
	a.Consumer = &service.TriggerConsumer{Delivery: a.Delivery, Metrics: a.Metrics, Log: log.Named("consumer")}
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.Consumer.Dedupe = queue.NewRedisDeduplicator(a.Redis, cfg.DedupeTTL)
		log.Info("trigger deduplication enabled", zap.String("redis", cfg.RedisAddr), zap.Duration("ttl", cfg.DedupeTTL))
	}
	a.Retry = &service.RetryScheduler{
		Emails:      a.Emails,
		Delivery:    a.Delivery,
		Metrics:     a.Metrics,
		Log:         log.Named("retry"),
		Interval:    cfg.RetryInterval,
		Lookback:    cfg.RetryLookback,
		Concurrency: cfg.WorkerPoolSize,
		Now:         time.Now,
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	if a.Config.Store == "memory" {
		a.Log.Warn("⚠️ using in-memory store, data is lost on exit")
		a.Emails = repository.NewMemoryEmailRepository()
		a.Campaigns = repository.NewMemoryCampaignRepository(DemoCampaigns()...)
		return nil
	}
	conn, err := db.Open(ctx, a.Config.DatabaseURL, db.Options{
		MaxOpenConns:    a.Config.DBMaxOpenConns,
		MaxIdleConns:    a.Config.DBMaxIdleConns,
		ConnMaxLifetime: a.Config.DBConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	a.DB = conn
	a.Emails = &repository.EmailRepository{DB: conn}
	a.Campaigns = &repository.CampaignRepository{DB: conn}
	a.Log.Info("database connected",
		zap.Int("max_open", a.Config.DBMaxOpenConns), zap.Int("max_idle", a.Config.DBMaxIdleConns))
	return nil
}

func (a *App) openBus() error {
	if a.Config.Bus == "memory" {
		a.Bus = queue.NewInMemoryQueue(a.Log)
		return nil
	}
	broker, err := queue.DialAMQP(a.Config.AMQPURL, a.Log)
	if err != nil {
		return err
	}
	a.Bus = broker
	return nil
}

func (a *App) clients() (client.ContactLookup, client.TemplateLookup, error) {
	cfg := a.Config
	hc := &http.Client{Timeout: cfg.ClientTimeout}
	breaker := client.BreakerConfig{ConsecutiveFailures: uint32(cfg.BreakerFailures), Cooldown: cfg.BreakerCooldown}

	contacts := client.NewContactClient(cfg.ContactServiceURL, hc, breaker, a.Log.Named("contacts"))
	if cfg.TemplateServiceURL != "" {
		return contacts, client.NewTemplateClient(cfg.TemplateServiceURL, hc, breaker, a.Log.Named("templates")), nil
	}
	templates, err := client.LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		return nil, nil, err
	}
	a.Log.Info("using local templates", zap.String("file", cfg.TemplatesFile))
	return contacts, templates, nil
}

func (a *App) transport() (mail.Transport, error) {
	cfg := a.Config
	switch cfg.MailTransport {
	case "smtp":
		return mail.NewSMTPTransport(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}), nil
	case "resend":
		return mail.NewResendTransport(cfg.ResendAPIKey, cfg.MailFrom), nil
	case "log":
		return mail.NewLogTransport(a.Log), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}
}

// StartConsumers subscribes the matcher and the trigger consumer. They stop
// consuming when ctx is cancelled.
func (a *App) StartConsumers(ctx context.Context) error {
	if err := a.Bus.Subscribe(ctx, queue.TopicContactEvents, a.Matcher.Handle); err != nil {
		return err
	}
	if err := a.Bus.Subscribe(ctx, queue.TopicCampaignTriggered, a.Consumer.Handle); err != nil {
		return err
	}
	if _, ok := a.Bus.(*queue.InMemoryQueue); ok {
		// nothing downstream consumes email-events in process
		return a.Bus.Subscribe(ctx, queue.TopicEmailEvents, a.logStatusEvent)
	}
	return nil
}

// StartBackground starts the consumers and, when RETRY_ENABLED, the retry
// scheduler. The worker always runs it; the server runs it for BUS=memory,
// where it is the only process that sees the bus and the ledger.
func (a *App) StartBackground(ctx context.Context) error {
	ctx, a.stopConsumers = context.WithCancel(ctx)
	if err := a.StartConsumers(ctx); err != nil {
		a.stopConsumers()
		return err
	}
	if a.Config.RetryEnabled {
		a.Retry.Start(ctx)
	} else {
		a.Log.Info("RETRY_ENABLED=false; retry scheduler disabled")
	}
	return nil
}

// StopBackground waits out a running retry pass, stops consuming and then
// waits for in-flight pipeline calls. Close may follow.
func (a *App) StopBackground() {
	<-a.Retry.Stop().Done()

	if a.stopConsumers != nil {
		a.stopConsumers()
	}
	a.Pool.Wait()
}

func (a *App) logStatusEvent(_ context.Context, env queue.Envelope) error {
	var ev model.StatusEvent
	if err := env.Decode(env.Kind, &ev); err != nil {
		return err
	}
	a.Log.Debug("status event",
		zap.String("kind", string(env.Kind)), zap.Int64("record_id", ev.RecordID), zap.String("status", string(ev.Status)))
	return nil
}

// Ping reports whether the backing store answers.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

// Close releases the bus, Redis and the database. Consumers must already be
// stopped.
func (a *App) Close() error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// DemoCampaigns seeds memory stores and cmd/seeder.
func DemoCampaigns() []*model.Campaign {
	return []*model.Campaign{
		{ID: 7, Name: "VIP welcome", TriggerTag: "vip", TemplateID: 3, Active: true},
		{ID: 8, Name: "Onboarding", TriggerTag: "new-signup", TemplateID: 1, Active: true},
		{ID: 9, Name: "Win-back", TriggerTag: "churn-risk", TemplateID: 2, Active: false},
	}
}
