package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hrustalq/tg-proxy/internal/models"
)

// SavePayment сохраняет запись журнала платежей и возвращает её ID.
func (s *Storage) SavePayment(ctx context.Context, p models.Payment) (int64, error) {
	const op = "storage.SavePayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (user_id, amount, currency, status, provider_payment_id, invoice_payload)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var newID int64
	err := s.DB.QueryRowContext(ctx, query,
		p.UserID, p.Amount, p.Currency, p.Status, p.ProviderPaymentID, p.InvoicePayload).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// CompletePayment переводит ожидающий платеж с данным invoice_payload в
// статус completed, записывая сумму, валюту и ссылку провайдера.
// Возвращает ErrNotFound, если ожидающего платежа с таким payload нет —
// вызывающий в этом случае создает завершенную запись с нуля.
func (s *Storage) CompletePayment(ctx context.Context, invoicePayload string, amount decimal.Decimal, currency, providerPaymentID string) (int64, error) {
	const op = "storage.CompletePayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments
			  SET amount = $1, currency = $2, status = $3, provider_payment_id = $4
			  WHERE invoice_payload = $5 AND status = $6
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query,
		amount, currency, models.PaymentStatusCompleted, providerPaymentID,
		invoicePayload, models.PaymentStatusPending).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListPayments возвращает платежи пользователя, новые первыми.
func (s *Storage) ListPayments(ctx context.Context, userID int64, limit, offset int) ([]models.Payment, error) {
	const op = "storage.ListPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_id, amount, currency, status, provider_payment_id, invoice_payload, created_at
			  FROM payments
			  WHERE user_id = $1
			  ORDER BY id DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Payment
	for rows.Next() {
		var p models.Payment
		var providerID, payload sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.Status,
			&providerID, &payload, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.ProviderPaymentID = providerID.String
		p.InvoicePayload = payload.String
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SumCompletedPayments возвращает число завершенных платежей и их сумму.
func (s *Storage) SumCompletedPayments(ctx context.Context) (int, decimal.Decimal, error) {
	const op = "storage.SumCompletedPayments"
	select {
	case <-ctx.Done():
		return 0, decimal.Zero, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT count(*), COALESCE(sum(amount), 0)
			  FROM payments
			  WHERE status = $1`
	var count int
	var total decimal.Decimal
	if err := s.DB.QueryRowContext(ctx, query, models.PaymentStatusCompleted).Scan(&count, &total); err != nil {
		return 0, decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return count, total, nil
}
