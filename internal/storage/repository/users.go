package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hrustalq/tg-proxy/internal/models"
)

// GetOrCreateUser возвращает пользователя по telegram_id, лениво создавая
// запись при первом контакте. Имя аккаунта и отображаемое имя обновляются
// при каждом вызове. Операция выполняется одним запросом и безопасна при
// конкурентных первых контактах одного пользователя.
func (s *Storage) GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error) {
	const op = "storage.GetOrCreateUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO users (telegram_id, username, first_name)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (telegram_id) DO UPDATE
			      SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
			  RETURNING id, telegram_id, username, first_name, subscription_until, is_active, created_at`
	row := s.DB.QueryRowContext(ctx, query, telegramID, username, firstName)

	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByTelegramID возвращает пользователя по его telegram_id.
func (s *Storage) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const op = "storage.GetUserByTelegramID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, telegram_id, username, first_name, subscription_until, is_active, created_at
			  FROM users
			  WHERE telegram_id = $1`
	row := s.DB.QueryRowContext(ctx, query, telegramID)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateEntitlement выполняет транзакционное чтение-решение-запись окна
// доступа пользователя. Строка блокируется через SELECT ... FOR UPDATE,
// поэтому конкурентные мутации одного пользователя сериализуются, разные
// пользователи не мешают друг другу. apply получает текущее значение
// subscription_until (UTC, nil — никогда не выдавалось) и возвращает новое;
// ошибка apply откатывает транзакцию и возвращается вызывающему без обертки,
// чтобы сентинельные ошибки бизнес-логики проходили насквозь.
func (s *Storage) UpdateEntitlement(ctx context.Context, telegramID int64, apply func(current *time.Time) (time.Time, error)) (time.Time, error) {
	const op = "storage.UpdateEntitlement"
	select {
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var id int64
	var current sql.NullTime
	query := `SELECT id, subscription_until FROM users WHERE telegram_id = $1 FOR UPDATE`
	if err = tx.QueryRowContext(ctx, query, telegramID).Scan(&id, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	next, err := apply(scanNullableUTC(current))
	if err != nil {
		return time.Time{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE users SET subscription_until = $1 WHERE id = $2`, next, id); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return next, nil
}

// SetUserActive включает или выключает пользователя. Записи не удаляются,
// деактивация всегда мягкая.
func (s *Storage) SetUserActive(ctx context.Context, telegramID int64, active bool) error {
	const op = "storage.SetUserActive"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE users SET is_active = $1 WHERE telegram_id = $2`, active, telegramID)
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

// CountUsers возвращает общее число пользователей и число пользователей
// с действующим окном доступа на момент now.
func (s *Storage) CountUsers(ctx context.Context, now time.Time) (total int, entitled int, err error) {
	const op = "storage.CountUsers"
	select {
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT count(*),
			      count(*) FILTER (WHERE subscription_until IS NOT NULL AND subscription_until > $1)
			  FROM users`
	if err = s.DB.QueryRowContext(ctx, query, now).Scan(&total, &entitled); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, entitled, nil
}

// scanner общий интерфейс строки *sql.Row и *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	var username, firstName sql.NullString
	var subscriptionUntil sql.NullTime
	if err := row.Scan(&u.ID, &u.TelegramID, &username, &firstName,
		&subscriptionUntil, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.FirstName = firstName.String
	u.SubscriptionUntil = scanNullableUTC(subscriptionUntil)
	return u, nil
}
