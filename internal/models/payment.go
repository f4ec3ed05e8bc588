package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы платежа. Единственный допустимый переход — pending -> completed,
// записи никогда не изменяются иначе и не удаляются.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// Payment запись журнала платежей. Amount хранится в основных единицах
// валюты (провайдер присылает минимальные единицы, конвертация на входе).
type Payment struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"-"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	InvoicePayload    string          `json:"invoice_payload"`
	CreatedAt         time.Time       `json:"created_at"`
}
