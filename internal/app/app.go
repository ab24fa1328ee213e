package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/malganis13/g2a-automation/internal/alerting"
	"github.com/malganis13/g2a-automation/internal/budget"
	"github.com/malganis13/g2a-automation/internal/config"
	"github.com/malganis13/g2a-automation/internal/gateway"
	"github.com/malganis13/g2a-automation/internal/repricer"
	"github.com/malganis13/g2a-automation/internal/scheduler"
	"github.com/malganis13/g2a-automation/internal/storage"
	"github.com/malganis13/g2a-automation/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives tabular command output.
	Out io.Writer

	loader *config.Loader
}

// NewApp constructs a new application handle from a loaded configuration.
func NewApp(loader *config.Loader, logger zerolog.Logger) *App {
	return &App{
		Config: loader.Current(),
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		loader: loader,
	}
}

// credentials re-reads the env file and config so that credentials fixed by
// an operator are used on the next token acquisition.
func (a *App) credentials(context.Context) (gateway.Credentials, error) {
	cfg := a.Config
	if a.loader != nil {
		fresh, err := a.loader.Reload()
		if err != nil {
			a.Logger.Warn().Err(err).Msg("config reload failed; using previous credentials")
		} else {
			cfg = fresh
		}
	}
	return gateway.Credentials{ClientID: cfg.G2A.ClientID, ClientSecret: cfg.G2A.ClientSecret}, nil
}

func (a *App) newGateway() *gateway.Client {
	cfg := a.Config.G2A
	return gateway.New(gateway.Options{
		BaseURL:       cfg.BaseURL,
		Credentials:   a.credentials,
		Timeout:       cfg.RequestTimeout,
		LookupTimeout: cfg.LookupTimeout,
		PageSize:      cfg.PageSize,
		MaxAttempts:   cfg.MaxAttempts,
		RetryDelay:    cfg.RetryDelay,
		JobPollDelay:  cfg.JobPollDelay,
		UserAgent:     cfg.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.Repository, func(), error) {
	store, err := storage.Open(ctx, a.Config.Storage)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) newEngine(store storage.Repository, gw repricer.Gateway) *repricer.Engine {
	tracker := budget.New(store, budget.Options{}, a.Logger)
	return repricer.New(gw, store, tracker, repricer.Options{
		Defaults:    a.Config.Repricing.Settings(),
		ChangePause: a.Config.Scheduler.ChangePause,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
}

// withEngine opens the store and hands a ready engine to fn.
func (a *App) withEngine(ctx context.Context, fn func(*repricer.Engine) error) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(a.newEngine(store, a.newGateway()))
}

func (a *App) attachNotifier(engine *repricer.Engine) {
	notifier := a.newNotifier()
	if notifier == nil {
		return
	}
	engine.OnPriceChanged(func(ctx context.Context, c repricer.Change) {
		note := alerting.Notification{
			ProductID:       c.ProductID,
			DisplayName:     c.DisplayName,
			OldPrice:        c.OldPrice,
			NewPrice:        c.NewPrice,
			CompetitorPrice: c.CompetitorPrice,
			Reason:          c.Reason,
			At:              c.At,
		}
		if err := notifier.Notify(ctx, note); err != nil {
			a.Logger.Warn().Err(err).Str("product_id", c.ProductID).Msg("price change notification failed")
		}
	})
}

// Run executes the long-running repricing service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := a.newEngine(store, a.newGateway())
	a.attachNotifier(engine)

	settings, err := engine.Settings(ctx)
	if err != nil {
		return err
	}
	if !settings.Enabled {
		a.Logger.Warn().Msg("auto-pricing disabled in settings; cycles will only report")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Str("version", version.Info()).Dur("interval", a.Config.Scheduler.Interval).
		Str("storage", a.Config.Storage.Driver).Msg("starting repricing service")
	err = sched.Run(ctx, engine.Tick)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("repricing service stopped")
	return nil
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	ProductID string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// StatsOptions configure the stats command.
type StatsOptions struct {
	Days      int
	ProductID string
}

// CycleOptions configure a one-off cycle.
type CycleOptions struct {
	DryRun bool
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}
