package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrustalq/tg-proxy/internal/lib/authz"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/services/serverdir"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
	"github.com/hrustalq/tg-proxy/internal/storage/repository"
)

// handleAdminCommand выполняет административную команду. Полномочия
// проверяются явно здесь, до разбора аргументов; для остальных команда
// выглядит несуществующей.
func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	const op = "bot.handleAdminCommand"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", msg.From.ID))

	if !authz.IsAdmin(b.tg.AdminIDs, msg.From.ID) {
		log.Warn("admin command from non-admin", slog.String("command", msg.Command()))
		return
	}

	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "grant":
		b.handleGrant(ctx, msg.Chat.ID, args, log)
	case "addserver":
		b.handleAddServer(ctx, msg.Chat.ID, args, log)
	case "servers":
		b.handleServers(ctx, msg.Chat.ID, log)
	case "toggleserver":
		b.handleToggleServer(ctx, msg.Chat.ID, args, log)
	case "stats":
		b.handleStats(ctx, msg.Chat.ID, log)
	}
}

// handleGrant обрабатывает /grant <telegram_id> <days>.
func (b *Bot) handleGrant(ctx context.Context, chatID int64, args []string, log *slog.Logger) {
	if len(args) != 2 {
		b.reply(chatID, "Использование: /grant <telegram\\_id> <days>", nil)
		return
	}
	telegramID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(chatID, "Некорректный telegram\\_id.", nil)
		return
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		b.reply(chatID, "Некорректное число дней.", nil)
		return
	}

	until, err := b.ledger.AdminGrant(ctx, telegramID, days)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrInvalidDuration):
			b.reply(chatID, "Число дней должно быть положительным.", nil)
		case errors.Is(err, repository.ErrNotFound):
			b.reply(chatID, "Пользователь не найден.", nil)
		default:
			log.Error("failed to grant", sl.Err(err))
			b.reply(chatID, errorText, nil)
		}
		return
	}

	b.reply(chatID, fmt.Sprintf("Подписка пользователя %d продлена до %s.",
		telegramID, until.Format("2006-01-02 15:04")+" UTC"), nil)
}

// handleAddServer обрабатывает /addserver <host[:port]> [description].
func (b *Bot) handleAddServer(ctx context.Context, chatID int64, args []string, log *slog.Logger) {
	if len(args) == 0 {
		b.reply(chatID, "Использование: /addserver <host\\[:port\\]> \\[description\\]", nil)
		return
	}

	address := args[0]
	port := serverdir.DefaultPort
	if host, portStr, found := strings.Cut(address, ":"); found {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			b.reply(chatID, "Некорректный порт.", nil)
			return
		}
		address, port = host, p
	}
	description := strings.Join(args[1:], " ")

	srv, err := b.directory.Add(ctx, address, port, description)
	if err != nil {
		switch {
		case errors.Is(err, serverdir.ErrDuplicateAddress):
			b.reply(chatID, "Сервер с таким адресом уже есть в каталоге.", nil)
		case errors.Is(err, serverdir.ErrInvalidAddress):
			b.reply(chatID, "Некорректный адрес сервера.", nil)
		default:
			log.Error("failed to add server", sl.Err(err))
			b.reply(chatID, errorText, nil)
		}
		return
	}

	b.reply(chatID, fmt.Sprintf("Сервер `%s:%d` добавлен, id %d.", srv.Address, srv.Port, srv.ID), nil)
}

func (b *Bot) handleServers(ctx context.Context, chatID int64, log *slog.Logger) {
	servers, err := b.directory.List(ctx)
	if err != nil {
		log.Error("failed to list servers", sl.Err(err))
		b.reply(chatID, errorText, nil)
		return
	}
	b.reply(chatID, serverListText(servers), nil)
}

// handleToggleServer обрабатывает /toggleserver <id> <on|off>.
func (b *Bot) handleToggleServer(ctx context.Context, chatID int64, args []string, log *slog.Logger) {
	if len(args) != 2 {
		b.reply(chatID, "Использование: /toggleserver <id> <on|off>", nil)
		return
	}
	serverID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(chatID, "Некорректный id сервера.", nil)
		return
	}
	var active bool
	switch args[1] {
	case "on":
		active = true
	case "off":
		active = false
	default:
		b.reply(chatID, "Второй аргумент: on или off.", nil)
		return
	}

	if err := b.directory.SetActive(ctx, serverID, active); err != nil {
		if errors.Is(err, serverdir.ErrNotFound) {
			b.reply(chatID, "Сервер не найден.", nil)
			return
		}
		log.Error("failed to toggle server", sl.Err(err))
		b.reply(chatID, errorText, nil)
		return
	}

	state := "выключен"
	if active {
		state = "включен"
	}
	b.reply(chatID, fmt.Sprintf("Сервер %d %s.", serverID, state), nil)
}

func (b *Bot) handleStats(ctx context.Context, chatID int64, log *slog.Logger) {
	stats, err := b.ledger.CollectStats(ctx)
	if err != nil {
		log.Error("failed to collect stats", sl.Err(err))
		b.reply(chatID, errorText, nil)
		return
	}

	text := statsText(stats)
	if b.monitor != nil {
		text += "\n\n" + proxyStatusText(b.monitor.CollectStatus(ctx))
	}
	b.reply(chatID, text, nil)
}
