// Package tgproxy собирает процесс целиком: хранилище, кэш, очередь
// событий, сервисы, телеграм-бот и внутренний админский HTTP-сервер.
package tgproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrustalq/tg-proxy/internal/bot"
	"github.com/hrustalq/tg-proxy/internal/cache"
	"github.com/hrustalq/tg-proxy/internal/config"
	"github.com/hrustalq/tg-proxy/internal/lib/jwt"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/metrics"
	"github.com/hrustalq/tg-proxy/internal/migrations"
	"github.com/hrustalq/tg-proxy/internal/mtg"
	"github.com/hrustalq/tg-proxy/internal/rabbitmq"
	"github.com/hrustalq/tg-proxy/internal/services/proxyconfig"
	"github.com/hrustalq/tg-proxy/internal/services/serverdir"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
	"github.com/hrustalq/tg-proxy/internal/storage/repository"
)

// App процесс tg-proxy: телеграм-бот плюс админский HTTP-сервер.
type App struct {
	server *http.Server
	bot    *bot.Bot
	db     *repository.Storage
	logger *slog.Logger
}

// New собирает все зависимости процесса. Очередь событий необязательна:
// при недоступном RabbitMQ процесс стартует без публикации событий.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.tgproxy.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var events subscription.EventPublisher
	if cfg.AddressRabbit != "" {
		conn, err := rabbitmq.Connect(cfg.AddressRabbit, cfg.RetriesRabbit, cfg.DelayRabbit)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events disabled", sl.Err(err))
		} else {
			ch, err := rabbitmq.SetupChannel(conn, rabbitmq.DefaultQueues)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			events = rabbitmq.NewPublisher(ch)
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	ledger := subscription.NewLedger(db, cacheRedis, events, m, logger, nil)
	directory := serverdir.NewDirectory(db, logger)
	configs := proxyconfig.NewRegistry(db, ledger, directory, m, logger, nil)

	if err := directory.SeedFromDefaults(ctx, cfg.Proxy.DefaultServers); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var monitor *mtg.Monitor
	if cfg.Proxy.MTGMetricsURL != "" {
		monitor = mtg.NewMonitor(cfg.Proxy.MTGMetricsURL, logger)
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tgBot := bot.New(api, ledger, configs, directory, botMonitor(monitor), m, logger, cfg.Telegram, cfg.SubscriptionPlan)
	if err := tgBot.SetupCommands(); err != nil {
		logger.Warn("failed to set bot commands", sl.Err(err))
	}

	maker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, ledger, directory, monitor, maker, registry)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		bot:    tgBot,
		db:     db,
		logger: logger,
	}, nil
}

// botMonitor приводит *mtg.Monitor к интерфейсу бота, сохраняя nil:
// типизированный nil в интерфейсе не равен nil.
func botMonitor(m *mtg.Monitor) bot.ProxyMonitor {
	if m == nil {
		return nil
	}
	return m
}

// Run запускает бота и HTTP-сервер, блокируется до отмены ctx или
// фатальной ошибки любого из них.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("HTTP server starting", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	go func() {
		errCh <- a.bot.Run(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	}
}
