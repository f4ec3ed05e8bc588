// Package models содержит доменные структуры: пользователь, прокси-сервер,
// выданная конфигурация и платеж. Структуры используются в бизнес‑логике
// и при работе с хранилищем.
package models

import "time"

// User представляет пользователя бота, созданного лениво при первом контакте.
// SubscriptionUntil — окончание окна доступа в UTC; nil означает, что
// пользователь никогда не получал доступ (в том числе пробный период).
// Поле меняется только леджером подписок.
type User struct {
	ID                int64      // Внутренний идентификатор
	TelegramID        int64      // Внешний идентификатор чата, уникален
	Username          string     // Имя аккаунта в Telegram
	FirstName         string     // Отображаемое имя
	SubscriptionUntil *time.Time // Окончание доступа (UTC), nil — доступа никогда не было
	IsActive          bool       // Мягкая деактивация, записи не удаляются
	CreatedAt         time.Time  // Дата создания записи
}

// Entitled сообщает, действует ли окно доступа пользователя на момент now.
// Граница не включается: доступ до t означает строго now < t.
func (u *User) Entitled(now time.Time) bool {
	if u.SubscriptionUntil == nil {
		return false
	}
	return now.Before(*u.SubscriptionUntil)
}

// TrialUsed сообщает, израсходован ли пробный период. Флаг односторонний:
// любое когда-либо выданное окно доступа гасит его навсегда.
func (u *User) TrialUsed() bool {
	return u.SubscriptionUntil != nil
}

// EntitlementStatus результат запроса статуса доступа для оркестратора.
type EntitlementStatus struct {
	Entitled  bool       `json:"entitled"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
