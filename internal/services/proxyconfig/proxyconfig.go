// Package proxyconfig содержит бизнес-логику выдачи и ротации
// прокси-конфигураций пользователя.
//
// Доступ к конфигурациям открыт только при действующем окне подписки.
// Вызывающие проверяют доступ до обращения, но сервис перепроверяет его
// сам: между проверкой оркестратора и выдачей окно могло истечь.
package proxyconfig

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hrustalq/tg-proxy/internal/lib/secret"
	"github.com/hrustalq/tg-proxy/internal/metrics"
	"github.com/hrustalq/tg-proxy/internal/models"
)

var (
	// ErrNotEntitled запрошены конфигурации без действующего окна доступа.
	ErrNotEntitled = errors.New("not entitled")
	// ErrNoActiveServers в каталоге нет ни одного активного сервера.
	ErrNoActiveServers = errors.New("no active servers")
)

// ConfigRepository определяет методы хранилища конфигураций.
type ConfigRepository interface {
	// ListConfigs возвращает конфигурации пользователя в порядке выдачи.
	ListConfigs(ctx context.Context, userID int64) ([]models.ProxyConfig, error)
	// CreateConfigsIfEmpty вставляет набор, только если у пользователя его нет.
	CreateConfigsIfEmpty(ctx context.Context, userID int64, configs []models.ProxyConfig) ([]models.ProxyConfig, bool, error)
	// ReplaceConfigs атомарно заменяет весь набор конфигураций пользователя.
	ReplaceConfigs(ctx context.Context, userID int64, configs []models.ProxyConfig) ([]models.ProxyConfig, error)
}

// EntitlementChecker проверяет действующее окно доступа пользователя.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, telegramID int64) (bool, error)
}

// ServerDirectory отдает активные серверы каталога для провижининга.
type ServerDirectory interface {
	ListActive(ctx context.Context) ([]models.ProxyServer, error)
}

// Registry реализует выдачу и ротацию конфигураций.
type Registry struct {
	repo      ConfigRepository
	ledger    EntitlementChecker
	directory ServerDirectory
	metrics   *metrics.Metrics
	log       *slog.Logger
	newSecret func() string
}

// NewRegistry создает новый экземпляр Registry. newSecret позволяет
// подменять генератор в тестах; nil означает secret.New.
func NewRegistry(repo ConfigRepository, ledger EntitlementChecker, directory ServerDirectory, m *metrics.Metrics, log *slog.Logger, newSecret func() string) *Registry {
	if newSecret == nil {
		newSecret = secret.New
	}
	return &Registry{
		repo:      repo,
		ledger:    ledger,
		directory: directory,
		metrics:   m,
		log:       log,
		newSecret: newSecret,
	}
}

// EnsureConfigs возвращает конфигурации пользователя, создавая их при
// первом обращении: по одной на каждый активный сервер каталога.
// Повторный вызов без ротации возвращает тот же набор без изменений.
func (r *Registry) EnsureConfigs(ctx context.Context, user *models.User) ([]models.ProxyConfig, error) {
	if err := r.checkEntitled(ctx, user.TelegramID); err != nil {
		return nil, err
	}

	existing, err := r.repo.ListConfigs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	candidate, err := r.buildSet(ctx)
	if err != nil {
		return nil, err
	}
	configs, created, err := r.repo.CreateConfigsIfEmpty(ctx, user.ID, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		r.metrics.ConfigsIssued.Add(float64(len(configs)))
		r.log.Info("provisioned proxy configs",
			slog.Int64("telegram_id", user.TelegramID), slog.Int("count", len(configs)))
	}
	return configs, nil
}

// RotateConfigs аннулирует все конфигурации пользователя и выдает свежий
// набор по текущему списку активных серверов. Замена атомарна: параллельный
// читатель никогда не увидит пустой или смешанный набор.
func (r *Registry) RotateConfigs(ctx context.Context, user *models.User) ([]models.ProxyConfig, error) {
	if err := r.checkEntitled(ctx, user.TelegramID); err != nil {
		return nil, err
	}

	candidate, err := r.buildSet(ctx)
	if err != nil {
		return nil, err
	}
	configs, err := r.repo.ReplaceConfigs(ctx, user.ID, candidate)
	if err != nil {
		return nil, err
	}

	r.metrics.ConfigRotations.Inc()
	r.log.Info("rotated proxy configs",
		slog.Int64("telegram_id", user.TelegramID), slog.Int("count", len(configs)))
	return configs, nil
}

func (r *Registry) checkEntitled(ctx context.Context, telegramID int64) error {
	entitled, err := r.ledger.IsEntitled(ctx, telegramID)
	if err != nil {
		return err
	}
	if !entitled {
		r.metrics.EntitlementDenied.Inc()
		return ErrNotEntitled
	}
	return nil
}

func (r *Registry) buildSet(ctx context.Context) ([]models.ProxyConfig, error) {
	servers, err := r.directory.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, ErrNoActiveServers
	}

	configs := make([]models.ProxyConfig, 0, len(servers))
	for _, srv := range servers {
		configs = append(configs, models.ProxyConfig{
			ProxySecret:   r.newSecret(),
			ServerAddress: srv.Address,
			Port:          srv.Port,
		})
	}
	return configs, nil
}
