package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hrustalq/tg-proxy/internal/config"
	"github.com/hrustalq/tg-proxy/internal/lib/proxylink"
	"github.com/hrustalq/tg-proxy/internal/models"
	"github.com/hrustalq/tg-proxy/internal/mtg"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
)

// Тексты ответов собраны в одном месте и отделены от обработчиков,
// чтобы их можно было проверять без Telegram API.

const (
	errorText         = "Что-то пошло не так, попробуйте позже."
	notEntitledText   = "У вас нет действующей подписки.\n\nОформите подписку, чтобы получить доступ к прокси."
	noServersText     = "Серверы временно недоступны, попробуйте позже."
	paymentFailedText = "Не удалось обработать платеж. Напишите в поддержку, мы во всем разберемся."
)

const timeLayout = "2006-01-02 15:04"

// priceLabel форматирует цену из минимальных единиц валюты.
func priceLabel(minorUnits int64, currency string) string {
	amount := decimal.NewFromInt(minorUnits).Div(decimal.NewFromInt(100))
	return amount.StringFixed(2) + " " + currency
}

func welcomeText(firstName string, plan config.SubscriptionPlan) string {
	name := firstName
	if name == "" {
		name = "друг"
	}
	days := int(plan.Duration.Hours() / 24)
	return fmt.Sprintf(
		"Привет, %s!\n\n"+
			"Это бот доступа к MTProto-прокси для Telegram.\n\n"+
			"Подписка: %s за %d дней\n"+
			"Несколько серверов, секрет выдается лично вам\n\n"+
			"Выберите действие ниже:",
		name, priceLabel(plan.PriceMinorUnits, plan.Currency), days)
}

func welcomeBackText(firstName string) string {
	name := firstName
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf(
		"С возвращением, %s!\n\n"+
			"Подписка действует. Команда /config выдаст настройки прокси.", name)
}

func helpText(isAdmin bool) string {
	var sb strings.Builder
	sb.WriteString("Доступные команды:\n\n")
	sb.WriteString("/start — главное меню\n")
	sb.WriteString("/config — получить конфигурацию прокси\n")
	sb.WriteString("/status — статус подписки\n")
	sb.WriteString("/help — эта справка\n")
	if isAdmin {
		sb.WriteString("\nАдминистративные команды:\n\n")
		sb.WriteString("/grant <telegram\\_id> <days> — продлить подписку\n")
		sb.WriteString("/addserver <host\\[:port\\]> \\[description\\] — добавить сервер\n")
		sb.WriteString("/servers — каталог серверов\n")
		sb.WriteString("/toggleserver <id> <on|off> — включить/выключить сервер\n")
		sb.WriteString("/stats — сводка сервиса\n")
	}
	return sb.String()
}

func trialActivatedText(until time.Time) string {
	return fmt.Sprintf(
		"Пробный доступ активирован до %s UTC.\n\n"+
			"Команда /config выдаст настройки прокси.",
		until.UTC().Format(timeLayout))
}

func paymentAppliedText(until time.Time) string {
	return fmt.Sprintf(
		"Оплата получена!\n\n"+
			"Подписка действует до %s UTC.\n\n"+
			"Команда /config выдаст настройки прокси.",
		until.UTC().Format(timeLayout))
}

func invoiceDescription(d time.Duration) string {
	return fmt.Sprintf("Доступ к прокси-серверам на %d дней", int(d.Hours()/24))
}

// configText рендерит выданный набор конфигураций с клиентскими ссылками.
func configText(configs []models.ProxyConfig) string {
	if len(configs) == 0 {
		return "Конфигурации недоступны."
	}

	var sb strings.Builder
	sb.WriteString("Ваши конфигурации прокси:\n\n")
	for i, cfg := range configs {
		links := proxylink.Build(cfg)
		sb.WriteString(fmt.Sprintf("*Сервер %d:*\n", i+1))
		sb.WriteString(fmt.Sprintf("Адрес: `%s`\n", cfg.ServerAddress))
		sb.WriteString(fmt.Sprintf("Порт: `%d`\n", cfg.Port))
		sb.WriteString(fmt.Sprintf("Секрет: `%s`\n", cfg.ProxySecret))
		sb.WriteString(fmt.Sprintf("Подключить: %s\n", links.TG))
		sb.WriteString(fmt.Sprintf("Веб-ссылка: %s\n\n", links.TMe))
	}
	sb.WriteString("Кнопка ниже перевыпустит секреты, старые перестанут работать.")
	return sb.String()
}

func entitlementText(st *models.EntitlementStatus) string {
	if !st.Entitled {
		if st.ExpiresAt != nil {
			return fmt.Sprintf("Подписка истекла %s UTC.\n\nОформите новую командой /start.",
				st.ExpiresAt.UTC().Format(timeLayout))
		}
		return "Подписки нет.\n\nОформите ее командой /start."
	}
	return fmt.Sprintf("Подписка действует до %s UTC.", st.ExpiresAt.UTC().Format(timeLayout))
}

func serverListText(servers []models.ProxyServer) string {
	if len(servers) == 0 {
		return "Каталог серверов пуст."
	}

	var sb strings.Builder
	sb.WriteString("Каталог серверов:\n\n")
	for _, srv := range servers {
		state := "off"
		if srv.IsActive {
			state = "on"
		}
		sb.WriteString(fmt.Sprintf("%d. `%s:%d` \\[%s]", srv.ID, srv.Address, srv.Port, state))
		if srv.Description != "" {
			sb.WriteString(" — " + srv.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func statsText(stats *subscription.Stats) string {
	return fmt.Sprintf(
		"Сводка сервиса:\n\n"+
			"Пользователей: %d\n"+
			"С действующей подпиской: %d\n"+
			"Завершенных платежей: %d\n"+
			"Выручка: %s",
		stats.TotalUsers, stats.EntitledUsers, stats.CompletedPayments, stats.Revenue.StringFixed(2))
}

func proxyStatusText(st mtg.Status) string {
	if !st.Healthy {
		return "Прокси-демон: недоступен"
	}
	return fmt.Sprintf(
		"Прокси-демон: работает\n"+
			"Клиентских соединений: %d\n"+
			"Соединений с Telegram: %d\n"+
			"Domain fronting: %d\n"+
			"Отбито replay-атак: %d\n"+
			"Ограничено по конкурентности: %d",
		int(st.ClientConnections), int(st.TelegramConnections), int(st.DomainFronting),
		int(st.ReplayAttacks), int(st.ConcurrencyLimited))
}
