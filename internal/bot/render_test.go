package bot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/hrustalq/tg-proxy/internal/models"
	"github.com/hrustalq/tg-proxy/internal/mtg"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
)

func TestPriceLabel(t *testing.T) {
	tests := []struct {
		name     string
		minor    int64
		currency string
		expected string
	}{
		{"рубли с копейками", 50000, "RUB", "500.00 RUB"},
		{"некруглая сумма", 9999, "USD", "99.99 USD"},
		{"меньше единицы", 50, "USD", "0.50 USD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, priceLabel(tt.minor, tt.currency))
		})
	}
}

func TestConfigText(t *testing.T) {
	t.Run("пустой набор", func(t *testing.T) {
		assert.Equal(t, "Конфигурации недоступны.", configText(nil))
	})

	t.Run("рендер набора со ссылками", func(t *testing.T) {
		configs := []models.ProxyConfig{
			{ProxySecret: "abc123", ServerAddress: "proxy1.example.com", Port: 443},
			{ProxySecret: "def456", ServerAddress: "proxy2.example.com", Port: 8443},
		}

		text := configText(configs)

		assert.Contains(t, text, "*Сервер 1:*")
		assert.Contains(t, text, "*Сервер 2:*")
		assert.Contains(t, text, "`proxy1.example.com`")
		assert.Contains(t, text, "`8443`")
		assert.Contains(t, text, "`abc123`")
		assert.Contains(t, text, "tg://proxy?")
		assert.Contains(t, text, "https://t.me/proxy?")
		assert.Contains(t, text, "secret=def456")
	})
}

func TestEntitlementText(t *testing.T) {
	expired := time.Date(2026, 1, 10, 8, 30, 0, 0, time.UTC)
	active := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   *models.EntitlementStatus
		expected string
	}{
		{
			name:     "подписки никогда не было",
			status:   &models.EntitlementStatus{},
			expected: "Подписки нет",
		},
		{
			name:     "подписка истекла",
			status:   &models.EntitlementStatus{ExpiresAt: &expired},
			expected: "Подписка истекла 2026-01-10 08:30 UTC",
		},
		{
			name:     "подписка действует",
			status:   &models.EntitlementStatus{Entitled: true, ExpiresAt: &active},
			expected: "Подписка действует до 2026-12-31 23:59 UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, entitlementText(tt.status), tt.expected)
		})
	}
}

func TestServerListText(t *testing.T) {
	t.Run("пустой каталог", func(t *testing.T) {
		assert.Equal(t, "Каталог серверов пуст.", serverListText(nil))
	})

	t.Run("рендер каталога", func(t *testing.T) {
		servers := []models.ProxyServer{
			{ID: 1, Address: "proxy1.example.com", Port: 443, IsActive: true, Description: "EU"},
			{ID: 2, Address: "proxy2.example.com", Port: 443, IsActive: false},
		}

		text := serverListText(servers)

		assert.Contains(t, text, "1. `proxy1.example.com:443`")
		assert.Contains(t, text, "[on] — EU")
		assert.Contains(t, text, "2. `proxy2.example.com:443`")
		assert.Contains(t, text, "[off]")
	})
}

func TestStatsText(t *testing.T) {
	stats := &subscription.Stats{
		TotalUsers:        120,
		EntitledUsers:     37,
		CompletedPayments: 45,
		Revenue:           decimal.RequireFromString("22500"),
	}

	text := statsText(stats)

	assert.Contains(t, text, "Пользователей: 120")
	assert.Contains(t, text, "С действующей подпиской: 37")
	assert.Contains(t, text, "Завершенных платежей: 45")
	assert.Contains(t, text, "Выручка: 22500.00")
}

func TestProxyStatusText(t *testing.T) {
	t.Run("демон недоступен", func(t *testing.T) {
		assert.Equal(t, "Прокси-демон: недоступен", proxyStatusText(mtg.Status{}))
	})

	t.Run("демон работает", func(t *testing.T) {
		text := proxyStatusText(mtg.Status{
			Healthy:             true,
			ClientConnections:   12,
			TelegramConnections: 4,
			ReplayAttacks:       2,
		})

		assert.Contains(t, text, "Прокси-демон: работает")
		assert.Contains(t, text, "Клиентских соединений: 12")
		assert.Contains(t, text, "Отбито replay-атак: 2")
	})
}

func TestHelpText(t *testing.T) {
	t.Run("обычный пользователь не видит админских команд", func(t *testing.T) {
		text := helpText(false)
		assert.Contains(t, text, "/config")
		assert.NotContains(t, text, "/grant")
	})

	t.Run("оператор видит админские команды", func(t *testing.T) {
		text := helpText(true)
		assert.Contains(t, text, "/grant")
		assert.Contains(t, text, "/toggleserver")
	})
}
