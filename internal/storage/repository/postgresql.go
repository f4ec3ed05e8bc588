// Package repository реализует хранилище данных на основе PostgreSQL
// для пользователей, выданных прокси-конфигураций, каталога серверов
// и журнала платежей.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Ошибки хранилища, на которые опирается бизнес-логика. Все остальные
// ошибки персистентного слоя считаются инфраструктурными и пробрасываются
// наверх без повторов.
var (
	// ErrNotFound запись с указанным ключом отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate нарушено ограничение уникальности.
	ErrDuplicate = errors.New("duplicate")
)

const uniqueViolationCode = "23505"

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'users'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table users missing or query error: %w", err)
	}
	return nil
}

// isUniqueViolation сообщает, вызвана ли ошибка нарушением уникальности.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// toUTC приводит метку времени к каноническому UTC-инстанту.
// Легаси-строки записаны без часового пояса; их стеночное время
// трактуется как UTC. Приведение выполняется только здесь, на границе
// хранилища, бизнес-логика всегда видит UTC.
func toUTC(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// scanNullableUTC конвертирует sql.NullTime в *time.Time с приведением к UTC.
func scanNullableUTC(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := toUTC(nt.Time)
	return &t
}
