package repository

import (
	"context"
	"fmt"

	"github.com/hrustalq/tg-proxy/internal/models"
)

// ListActiveServers возвращает активные серверы в порядке добавления в каталог.
func (s *Storage) ListActiveServers(ctx context.Context) ([]models.ProxyServer, error) {
	const op = "storage.ListActiveServers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, address, port, description, capacity, is_active, created_at
			  FROM proxy_servers
			  WHERE is_active = true
			  ORDER BY id`
	return s.queryServers(ctx, op, query)
}

// ListServers возвращает все серверы каталога, включая выключенные.
func (s *Storage) ListServers(ctx context.Context) ([]models.ProxyServer, error) {
	const op = "storage.ListServers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, address, port, description, capacity, is_active, created_at
			  FROM proxy_servers
			  ORDER BY id`
	return s.queryServers(ctx, op, query)
}

// CreateServer вставляет новую запись каталога и возвращает её ID.
// Повтор адреса (включая выключенные серверы) дает ErrDuplicate.
func (s *Storage) CreateServer(ctx context.Context, srv models.ProxyServer) (int64, error) {
	const op = "storage.CreateServer"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO proxy_servers (address, port, description, capacity, is_active)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var newID int64
	err := s.DB.QueryRowContext(ctx, query,
		srv.Address, srv.Port, srv.Description, srv.Capacity, srv.IsActive).Scan(&newID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, ErrDuplicate)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// SetServerActive переключает видимость сервера без удаления записи.
func (s *Storage) SetServerActive(ctx context.Context, serverID int64, active bool) error {
	const op = "storage.SetServerActive"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE proxy_servers SET is_active = $1 WHERE id = $2`, active, serverID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// SeedServers вставляет стартовый набор серверов, только если каталог пуст.
// Повторный вызов с любым списком — no-op. Таблица блокируется на время
// транзакции, чтобы два конкурентных посева не продублировали каталог.
func (s *Storage) SeedServers(ctx context.Context, servers []models.ProxyServer) (bool, error) {
	const op = "storage.SeedServers"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, `LOCK TABLE proxy_servers IN EXCLUSIVE MODE`); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	var count int
	if err = tx.QueryRowContext(ctx, `SELECT count(*) FROM proxy_servers`).Scan(&count); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if count > 0 {
		if err = tx.Commit(); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return false, nil
	}

	query := `INSERT INTO proxy_servers (address, port, description, capacity, is_active)
			  VALUES ($1, $2, $3, $4, $5)`
	for _, srv := range servers {
		if _, err = tx.ExecContext(ctx, query,
			srv.Address, srv.Port, srv.Description, srv.Capacity, srv.IsActive); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (s *Storage) queryServers(ctx context.Context, op, query string) ([]models.ProxyServer, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.ProxyServer
	for rows.Next() {
		var srv models.ProxyServer
		if err := rows.Scan(&srv.ID, &srv.Address, &srv.Port, &srv.Description,
			&srv.Capacity, &srv.IsActive, &srv.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, srv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
