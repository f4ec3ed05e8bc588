// Package bot реализует телеграм-фронтенд сервиса: продажу окна доступа,
// выдачу и ротацию прокси-конфигураций и административные команды.
//
// Бот работает в режиме long polling и является единственным пользовательским
// интерфейсом. Вся бизнес-логика живет в сервисах, бот только оркестрирует
// вызовы и переводит доменные ошибки в ответы пользователю.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrustalq/tg-proxy/internal/config"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/metrics"
	"github.com/hrustalq/tg-proxy/internal/models"
	"github.com/hrustalq/tg-proxy/internal/mtg"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
)

// SubscriptionService описывает операции леджера подписок, нужные боту.
type SubscriptionService interface {
	RegisterContact(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error)
	Entitlement(ctx context.Context, telegramID int64) (*models.EntitlementStatus, error)
	GrantTrial(ctx context.Context, telegramID int64, d time.Duration) (time.Time, error)
	CreatePendingPayment(ctx context.Context, telegramID int64, amountMinorUnits int64, currency string) (string, error)
	ApplyPayment(ctx context.Context, telegramID int64, amountMinorUnits int64, currency, providerRef, invoicePayload string, planDuration time.Duration) (time.Time, error)
	AdminGrant(ctx context.Context, telegramID int64, days int) (time.Time, error)
	CollectStats(ctx context.Context) (*subscription.Stats, error)
}

// ConfigService описывает операции реестра конфигураций, нужные боту.
type ConfigService interface {
	EnsureConfigs(ctx context.Context, user *models.User) ([]models.ProxyConfig, error)
	RotateConfigs(ctx context.Context, user *models.User) ([]models.ProxyConfig, error)
}

// DirectoryService описывает операции каталога серверов для админских команд.
type DirectoryService interface {
	List(ctx context.Context) ([]models.ProxyServer, error)
	Add(ctx context.Context, address string, port int, description string) (*models.ProxyServer, error)
	SetActive(ctx context.Context, serverID int64, active bool) error
}

// ProxyMonitor описывает опрос состояния mtg-демона для команды /status.
type ProxyMonitor interface {
	CollectStatus(ctx context.Context) mtg.Status
}

// Bot оркестрирует обработку обновлений Telegram.
type Bot struct {
	api       *tgbotapi.BotAPI
	ledger    SubscriptionService
	registry  ConfigService
	directory DirectoryService
	monitor   ProxyMonitor
	metrics   *metrics.Metrics
	log       *slog.Logger
	limiter   *userLimiter

	tg   config.Telegram
	plan config.SubscriptionPlan
}

// New создает Bot поверх готового клиента Telegram API.
func New(
	api *tgbotapi.BotAPI,
	ledger SubscriptionService,
	registry ConfigService,
	directory DirectoryService,
	monitor ProxyMonitor,
	m *metrics.Metrics,
	log *slog.Logger,
	tg config.Telegram,
	plan config.SubscriptionPlan,
) *Bot {
	return &Bot{
		api:       api,
		ledger:    ledger,
		registry:  registry,
		directory: directory,
		monitor:   monitor,
		metrics:   m,
		log:       log,
		limiter:   newUserLimiter(1, 3),
		tg:        tg,
		plan:      plan,
	}
}

// SetupCommands регистрирует меню команд бота. Ошибка не фатальна,
// бот работает и без меню.
func (b *Bot) SetupCommands() error {
	const op = "bot.SetupCommands"

	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Запустить бота и открыть главное меню"},
		tgbotapi.BotCommand{Command: "config", Description: "Получить конфигурацию прокси"},
		tgbotapi.BotCommand{Command: "status", Description: "Проверить статус подписки"},
		tgbotapi.BotCommand{Command: "help", Description: "Показать справку и доступные команды"},
	)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Run запускает цикл обработки обновлений и блокируется до отмены ctx.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("bot started", slog.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch маршрутизирует одно обновление. Паника обработчика не должна
// ронять цикл опроса.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in update handler", slog.Any("panic", r))
		}
	}()

	switch {
	case update.PreCheckoutQuery != nil:
		b.metrics.BotUpdates.WithLabelValues("pre_checkout").Inc()
		b.handlePreCheckout(update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		b.metrics.BotUpdates.WithLabelValues("payment").Inc()
		b.handleSuccessfulPayment(ctx, update.Message)
	case update.Message != nil:
		b.metrics.BotUpdates.WithLabelValues("message").Inc()
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.metrics.BotUpdates.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

// send отправляет сообщение и логирует ошибку доставки.
func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Error("failed to send message", sl.Err(err))
	}
}

// reply отправляет текстовый ответ в markdown-разметке.
func (b *Bot) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	b.send(msg)
}

// ack закрывает callback query, опционально показывая пользователю текст.
func (b *Bot) ack(cq *tgbotapi.CallbackQuery, text string) {
	cb := tgbotapi.NewCallback(cq.ID, text)
	if _, err := b.api.Request(cb); err != nil {
		b.log.Error("failed to answer callback", sl.Err(err))
	}
}
