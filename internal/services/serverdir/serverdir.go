// Package serverdir содержит бизнес-логику административного каталога
// прокси-серверов.
package serverdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hrustalq/tg-proxy/internal/models"
	"github.com/hrustalq/tg-proxy/internal/storage/repository"
)

// DefaultPort порт по умолчанию, когда адрес в конфигурации задан без порта.
const DefaultPort = 443

var (
	// ErrDuplicateAddress сервер с таким адресом уже есть в каталоге.
	ErrDuplicateAddress = errors.New("duplicate server address")
	// ErrNotFound сервер с указанным идентификатором отсутствует.
	ErrNotFound = errors.New("server not found")
	// ErrInvalidAddress адрес пуст или содержит некорректный порт.
	ErrInvalidAddress = errors.New("invalid server address")
)

// ServerRepository определяет методы хранилища каталога серверов.
type ServerRepository interface {
	ListActiveServers(ctx context.Context) ([]models.ProxyServer, error)
	ListServers(ctx context.Context) ([]models.ProxyServer, error)
	CreateServer(ctx context.Context, srv models.ProxyServer) (int64, error)
	SetServerActive(ctx context.Context, serverID int64, active bool) error
	SeedServers(ctx context.Context, servers []models.ProxyServer) (bool, error)
}

// Directory реализует операции каталога серверов.
type Directory struct {
	repo ServerRepository
	log  *slog.Logger
}

// NewDirectory создает новый экземпляр Directory.
func NewDirectory(repo ServerRepository, log *slog.Logger) *Directory {
	return &Directory{
		repo: repo,
		log:  log,
	}
}

// ListActive возвращает активные серверы в порядке добавления.
func (d *Directory) ListActive(ctx context.Context) ([]models.ProxyServer, error) {
	return d.repo.ListActiveServers(ctx)
}

// List возвращает весь каталог, включая выключенные серверы.
func (d *Directory) List(ctx context.Context) ([]models.ProxyServer, error) {
	return d.repo.ListServers(ctx)
}

// Add добавляет сервер в каталог. Адрес должен быть уникален среди всех
// записей, активных и выключенных.
func (d *Directory) Add(ctx context.Context, address string, port int, description string) (*models.ProxyServer, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrInvalidAddress
	}
	if port <= 0 || port > 65535 {
		return nil, ErrInvalidAddress
	}

	srv := models.ProxyServer{
		Address:     address,
		Port:        port,
		Description: description,
		IsActive:    true,
	}
	id, err := d.repo.CreateServer(ctx, srv)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateAddress
		}
		return nil, err
	}
	srv.ID = id

	d.log.Info("server added to catalog",
		slog.String("address", address), slog.Int("port", port))
	return &srv, nil
}

// SetActive переключает видимость сервера. Уже выданные конфигурации
// выключение не отзывает, их обновляет только ротация.
func (d *Directory) SetActive(ctx context.Context, serverID int64, active bool) error {
	if err := d.repo.SetServerActive(ctx, serverID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	d.log.Info("server visibility changed",
		slog.Int64("server_id", serverID), slog.Bool("active", active))
	return nil
}

// SeedFromDefaults наполняет пустой каталог адресами из конфигурации.
// Адрес задается как host или host:port, порт по умолчанию 443.
// Непустой каталог не меняется, повторные вызовы безопасны.
func (d *Directory) SeedFromDefaults(ctx context.Context, defaults []string) error {
	if len(defaults) == 0 {
		return nil
	}

	servers := make([]models.ProxyServer, 0, len(defaults))
	for _, raw := range defaults {
		srv, err := parseAddress(raw)
		if err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	seeded, err := d.repo.SeedServers(ctx, servers)
	if err != nil {
		return err
	}
	if seeded {
		d.log.Info("server catalog seeded", slog.Int("count", len(servers)))
	}
	return nil
}

// parseAddress разбирает строку host или host:port из конфигурации.
func parseAddress(raw string) (models.ProxyServer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.ProxyServer{}, ErrInvalidAddress
	}

	host, portStr, found := strings.Cut(raw, ":")
	if host == "" {
		return models.ProxyServer{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	if !found {
		return models.ProxyServer{Address: host, Port: DefaultPort, IsActive: true}, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return models.ProxyServer{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return models.ProxyServer{Address: host, Port: port, IsActive: true}, nil
}
