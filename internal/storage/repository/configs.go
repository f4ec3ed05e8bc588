package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hrustalq/tg-proxy/internal/models"
)

// ListConfigs возвращает все конфигурации пользователя в порядке выдачи.
func (s *Storage) ListConfigs(ctx context.Context, userID int64) ([]models.ProxyConfig, error) {
	const op = "storage.ListConfigs"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := listConfigsTx(ctx, s.DB, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateConfigsIfEmpty вставляет набор конфигураций, только если у
// пользователя их еще нет. Возвращает итоговый набор и признак того,
// что вставка произошла. Строка пользователя блокируется на время
// транзакции, поэтому конкурентные вызовы не продублируют набор.
func (s *Storage) CreateConfigsIfEmpty(ctx context.Context, userID int64, configs []models.ProxyConfig) ([]models.ProxyConfig, bool, error) {
	const op = "storage.CreateConfigsIfEmpty"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err = lockUserRow(ctx, tx, userID); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := listConfigsTx(ctx, tx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if len(existing) > 0 {
		if err = tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		return existing, false, nil
	}

	created, err := insertConfigsTx(ctx, tx, userID, configs)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return created, true, nil
}

// ReplaceConfigs атомарно заменяет весь набор конфигураций пользователя.
// Удаление и вставка выполняются в одной транзакции: параллельный читатель
// видит либо полностью старый, либо полностью новый набор, но никогда
// пустой или смешанный.
func (s *Storage) ReplaceConfigs(ctx context.Context, userID int64, configs []models.ProxyConfig) ([]models.ProxyConfig, error) {
	const op = "storage.ReplaceConfigs"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err = lockUserRow(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM proxy_configs WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	created, err := insertConfigsTx(ctx, tx, userID, configs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// queryer общий интерфейс *sql.DB и *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func lockUserRow(ctx context.Context, tx *sql.Tx, userID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

func listConfigsTx(ctx context.Context, q queryer, userID int64) ([]models.ProxyConfig, error) {
	query := `SELECT id, user_id, proxy_secret, server_address, port, created_at
			  FROM proxy_configs
			  WHERE user_id = $1
			  ORDER BY id`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.ProxyConfig
	for rows.Next() {
		var c models.ProxyConfig
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProxySecret, &c.ServerAddress, &c.Port, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func insertConfigsTx(ctx context.Context, tx *sql.Tx, userID int64, configs []models.ProxyConfig) ([]models.ProxyConfig, error) {
	query := `INSERT INTO proxy_configs (user_id, proxy_secret, server_address, port)
			  VALUES ($1, $2, $3, $4)
			  RETURNING id, created_at`
	created := make([]models.ProxyConfig, 0, len(configs))
	for _, c := range configs {
		c.UserID = userID
		if err := tx.QueryRowContext(ctx, query, userID, c.ProxySecret, c.ServerAddress, c.Port).
			Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, err
		}
		created = append(created, c)
	}
	return created, nil
}
