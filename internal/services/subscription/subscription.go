// Package subscription содержит бизнес-логику окна доступа пользователя:
// пробный период, оплату и административное продление.
//
// Состояние доступа не хранится отдельным перечислением, оно выводится из
// subscription_until: nil — доступа никогда не было, значение в будущем —
// доступ действует, значение в прошлом — доступ истек. Пробный период
// выдается только из состояния "никогда не было"; оплата и админское
// продление доступны из любого состояния и либо продлевают действующее
// окно, либо открывают новое от текущего момента. Истекшее время никогда
// не засчитывается в новый период.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/metrics"
	"github.com/hrustalq/tg-proxy/internal/models"
	"github.com/hrustalq/tg-proxy/internal/storage/repository"
)

// Ошибки леджера. Все они ожидаемые и возвращаются оркестратору
// для ответа пользователю.
var (
	// ErrAlreadyEntitled пробный период запрошен при действующем доступе.
	ErrAlreadyEntitled = errors.New("already entitled")
	// ErrTrialAlreadyUsed пробный период уже был израсходован, пусть и истек.
	ErrTrialAlreadyUsed = errors.New("trial already used")
	// ErrInvalidDuration неположительная длительность продления.
	ErrInvalidDuration = errors.New("invalid duration")
)

// UserRepository определяет методы хранилища, нужные леджеру.
type UserRepository interface {
	// GetOrCreateUser лениво создает пользователя при первом контакте.
	GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error)
	// GetUserByTelegramID возвращает пользователя по telegram_id.
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	// UpdateEntitlement транзакционно применяет apply к окну доступа пользователя.
	UpdateEntitlement(ctx context.Context, telegramID int64, apply func(current *time.Time) (time.Time, error)) (time.Time, error)
	// SavePayment сохраняет запись журнала платежей.
	SavePayment(ctx context.Context, p models.Payment) (int64, error)
	// CompletePayment переводит ожидающий платеж в completed.
	CompletePayment(ctx context.Context, invoicePayload string, amount decimal.Decimal, currency, providerPaymentID string) (int64, error)
	// CountUsers возвращает общее число пользователей и число с действующим доступом.
	CountUsers(ctx context.Context, now time.Time) (total int, entitled int, err error)
	// SumCompletedPayments возвращает число завершенных платежей и их сумму.
	SumCompletedPayments(ctx context.Context) (int, decimal.Decimal, error)
}

// Cache описывает методы для кэширования статуса доступа.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// EventPublisher публикует события леджера в очередь уведомлений.
type EventPublisher interface {
	Publish(routingKey string, message any) error
}

// Ledger реализует бизнес-логику окна доступа.
type Ledger struct {
	repo    UserRepository
	cache   Cache
	events  EventPublisher
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// NewLedger создает новый экземпляр Ledger. now позволяет подменять часы
// в тестах; nil означает time.Now.
func NewLedger(repo UserRepository, cache Cache, events EventPublisher, m *metrics.Metrics, log *slog.Logger, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		repo:    repo,
		cache:   cache,
		events:  events,
		metrics: m,
		log:     log,
		now:     now,
	}
}

// Stats сводка для административного отчета.
type Stats struct {
	TotalUsers        int             `json:"total_users"`
	EntitledUsers     int             `json:"entitled_users"`
	CompletedPayments int             `json:"completed_payments"`
	Revenue           decimal.Decimal `json:"revenue"`
}

// TrialActivatedEvent событие выдачи пробного периода.
type TrialActivatedEvent struct {
	TelegramID int64     `json:"telegram_id"`
	Until      time.Time `json:"until"`
}

// PaymentCompletedEvent событие успешной оплаты.
type PaymentCompletedEvent struct {
	TelegramID int64           `json:"telegram_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Until      time.Time       `json:"until"`
}

// RegisterContact лениво создает пользователя при первом контакте и
// обновляет его имена.
func (l *Ledger) RegisterContact(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error) {
	return l.repo.GetOrCreateUser(ctx, telegramID, username, firstName)
}

// IsEntitled сообщает, действует ли окно доступа пользователя сейчас.
// Неизвестный пользователь считается не имеющим доступа.
func (l *Ledger) IsEntitled(ctx context.Context, telegramID int64) (bool, error) {
	st, err := l.Entitlement(ctx, telegramID)
	if err != nil {
		return false, err
	}
	return st.Entitled, nil
}

// Entitlement возвращает статус доступа пользователя: действует ли он
// и когда истекает. Результат кэшируется на короткое время и
// инвалидируется каждой мутацией окна.
func (l *Ledger) Entitlement(ctx context.Context, telegramID int64) (*models.EntitlementStatus, error) {
	var cached models.EntitlementStatus
	cacheKey := entitlementCacheKey(telegramID)
	found, err := l.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		l.log.Warn("failed to read entitlement cache", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		// Срок могла пересечь граница окна, сам флаг пересчитываем всегда.
		cached.Entitled = cached.ExpiresAt != nil && l.now().UTC().Before(*cached.ExpiresAt)
		return &cached, nil
	}

	user, err := l.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	st := &models.EntitlementStatus{
		Entitled:  user.Entitled(l.now().UTC()),
		ExpiresAt: user.SubscriptionUntil,
	}
	if err := l.cache.Set(ctx, cacheKey, st, time.Minute); err != nil {
		l.log.Warn("failed to cache entitlement", slog.String("key", cacheKey), sl.Err(err))
	}
	return st, nil
}

// GrantTrial выдает пробный период длительностью d. Операция атомарна
// относительно конкурентных попыток того же пользователя: пробный период
// записывается не более одного раза за всю жизнь учетной записи.
func (l *Ledger) GrantTrial(ctx context.Context, telegramID int64, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, ErrInvalidDuration
	}

	until, err := l.repo.UpdateEntitlement(ctx, telegramID, func(current *time.Time) (time.Time, error) {
		now := l.now().UTC()
		if current != nil {
			if now.Before(*current) {
				return time.Time{}, ErrAlreadyEntitled
			}
			return time.Time{}, ErrTrialAlreadyUsed
		}
		return now.Add(d), nil
	})
	if err != nil {
		return time.Time{}, err
	}

	l.invalidateEntitlement(ctx, telegramID)
	l.metrics.TrialsGranted.Inc()
	l.log.Info("trial granted",
		slog.Int64("telegram_id", telegramID), slog.Time("until", until))
	l.publish("trial.activated", TrialActivatedEvent{TelegramID: telegramID, Until: until})
	return until, nil
}

// CreatePendingPayment открывает запись платежа в статусе pending и
// возвращает invoice payload, по которому платеж будет закрыт после
// подтверждения провайдера.
func (l *Ledger) CreatePendingPayment(ctx context.Context, telegramID int64, amountMinorUnits int64, currency string) (string, error) {
	user, err := l.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return "", err
	}

	payload := uuid.NewString()
	_, err = l.repo.SavePayment(ctx, models.Payment{
		UserID:         user.ID,
		Amount:         minorUnitsToAmount(amountMinorUnits),
		Currency:       currency,
		Status:         models.PaymentStatusPending,
		InvoicePayload: payload,
	})
	if err != nil {
		return "", err
	}
	return payload, nil
}

// ApplyPayment фиксирует успешную оплату и продлевает окно доступа на
// planDuration. Сумма приходит в минимальных единицах валюты и делится
// на 100 перед записью. Действующее окно продлевается от своей границы,
// истекшее или отсутствующее — открывается от текущего момента: остаток
// неистекшего времени всегда засчитывается, истекшее — никогда.
// Значение суммы не проверяется, оно валидируется выше по стеку.
func (l *Ledger) ApplyPayment(ctx context.Context, telegramID int64, amountMinorUnits int64, currency, providerRef, invoicePayload string, planDuration time.Duration) (time.Time, error) {
	const op = "subscription.ApplyPayment"

	user, err := l.repo.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		return time.Time{}, err
	}

	amount := minorUnitsToAmount(amountMinorUnits)
	_, err = l.repo.CompletePayment(ctx, invoicePayload, amount, currency, providerRef)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		// Ожидающей записи нет: уведомление пришло без нашего инвойса,
		// пишем завершенный платеж с нуля.
		if _, err = l.repo.SavePayment(ctx, models.Payment{
			UserID:            user.ID,
			Amount:            amount,
			Currency:          currency,
			Status:            models.PaymentStatusCompleted,
			ProviderPaymentID: providerRef,
			InvoicePayload:    invoicePayload,
		}); err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", op, err)
		}
	default:
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	until, err := l.repo.UpdateEntitlement(ctx, telegramID, l.extend(planDuration))
	if err != nil {
		return time.Time{}, err
	}

	l.invalidateEntitlement(ctx, telegramID)
	l.metrics.PaymentsApplied.WithLabelValues(currency).Inc()
	l.log.Info("payment applied",
		slog.Int64("telegram_id", telegramID),
		slog.String("amount", amount.String()),
		slog.String("currency", currency),
		slog.Time("until", until))
	l.publish("payment.completed", PaymentCompletedEvent{
		TelegramID: telegramID, Amount: amount, Currency: currency, Until: until,
	})
	return until, nil
}

// AdminGrant продлевает окно доступа на days суток с той же семантикой
// продления, что и ApplyPayment.
func (l *Ledger) AdminGrant(ctx context.Context, telegramID int64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, ErrInvalidDuration
	}

	until, err := l.repo.UpdateEntitlement(ctx, telegramID, l.extend(time.Duration(days)*24*time.Hour))
	if err != nil {
		return time.Time{}, err
	}

	l.invalidateEntitlement(ctx, telegramID)
	l.metrics.AdminGrants.Inc()
	l.log.Info("admin grant applied",
		slog.Int64("telegram_id", telegramID), slog.Int("days", days), slog.Time("until", until))
	return until, nil
}

// CollectStats собирает сводку для административного отчета.
func (l *Ledger) CollectStats(ctx context.Context) (*Stats, error) {
	total, entitled, err := l.repo.CountUsers(ctx, l.now().UTC())
	if err != nil {
		return nil, err
	}
	count, revenue, err := l.repo.SumCompletedPayments(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalUsers:        total,
		EntitledUsers:     entitled,
		CompletedPayments: count,
		Revenue:           revenue,
	}, nil
}

// extend возвращает решение продления: действующее окно растет от своей
// границы, истекшее или пустое открывается заново от текущего момента.
func (l *Ledger) extend(d time.Duration) func(current *time.Time) (time.Time, error) {
	return func(current *time.Time) (time.Time, error) {
		now := l.now().UTC()
		if current != nil && now.Before(*current) {
			return current.Add(d), nil
		}
		return now.Add(d), nil
	}
}

func (l *Ledger) invalidateEntitlement(ctx context.Context, telegramID int64) {
	cacheKey := entitlementCacheKey(telegramID)
	if err := l.cache.Invalidate(ctx, cacheKey); err != nil {
		l.log.Warn("failed to invalidate entitlement cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

func (l *Ledger) publish(routingKey string, event any) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(routingKey, event); err != nil {
		l.log.Warn("failed to publish event", slog.String("routing_key", routingKey), sl.Err(err))
	}
}

func entitlementCacheKey(telegramID int64) string {
	return fmt.Sprintf("entitlement:%d", telegramID)
}

// minorUnitsToAmount конвертирует сумму из минимальных единиц валюты
// в основные (копейки -> рубли).
func minorUnitsToAmount(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100))
}
