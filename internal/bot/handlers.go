package bot

import (
	"context"
	"errors"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrustalq/tg-proxy/internal/lib/authz"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/services/proxyconfig"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
)

// Данные callback-кнопок. Меняются только вместе с клавиатурами ниже.
const (
	callbackSubscribe     = "subscribe"
	callbackFreeTrial     = "free_trial"
	callbackGetConfig     = "get_config"
	callbackRefreshConfig = "refresh_config"
)

func subscriptionKeyboard(priceLabel string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Оформить подписку за "+priceLabel, callbackSubscribe),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Пробный доступ", callbackFreeTrial),
		),
	)
}

func getConfigKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Получить конфигурацию", callbackGetConfig),
		),
	)
}

func refreshConfigKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Перевыпустить конфигурацию", callbackRefreshConfig),
		),
	)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	const op = "bot.handleMessage"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", msg.From.ID))

	if !b.limiter.Allow(msg.From.ID) {
		log.Warn("rate limit exceeded")
		return
	}

	if !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "config":
		b.handleConfig(ctx, msg.Chat.ID, msg.From)
	case "status":
		b.handleStatus(ctx, msg)
	case "help":
		b.reply(msg.Chat.ID, helpText(authz.IsAdmin(b.tg.AdminIDs, msg.From.ID)), nil)
	case "grant", "addserver", "servers", "toggleserver", "stats":
		b.handleAdminCommand(ctx, msg)
	default:
		log.Info("unknown command", slog.String("command", msg.Command()))
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	const op = "bot.handleStart"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", msg.From.ID))

	user, err := b.ledger.RegisterContact(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName)
	if err != nil {
		log.Error("failed to register contact", sl.Err(err))
		b.reply(msg.Chat.ID, errorText, nil)
		return
	}

	st, err := b.ledger.Entitlement(ctx, user.TelegramID)
	if err != nil {
		log.Error("failed to query entitlement", sl.Err(err))
		b.reply(msg.Chat.ID, errorText, nil)
		return
	}

	if st.Entitled {
		kb := getConfigKeyboard()
		b.reply(msg.Chat.ID, welcomeBackText(user.FirstName), &kb)
		return
	}
	kb := subscriptionKeyboard(priceLabel(b.plan.PriceMinorUnits, b.plan.Currency))
	b.reply(msg.Chat.ID, welcomeText(user.FirstName, b.plan), &kb)
}

// handleConfig выдает конфигурации. Вызывается и командой /config,
// и кнопкой get_config.
func (b *Bot) handleConfig(ctx context.Context, chatID int64, from *tgbotapi.User) {
	const op = "bot.handleConfig"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", from.ID))

	user, err := b.ledger.RegisterContact(ctx, from.ID, from.UserName, from.FirstName)
	if err != nil {
		log.Error("failed to register contact", sl.Err(err))
		b.reply(chatID, errorText, nil)
		return
	}

	configs, err := b.registry.EnsureConfigs(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, proxyconfig.ErrNotEntitled):
			kb := subscriptionKeyboard(priceLabel(b.plan.PriceMinorUnits, b.plan.Currency))
			b.reply(chatID, notEntitledText, &kb)
		case errors.Is(err, proxyconfig.ErrNoActiveServers):
			log.Error("no active servers in catalog")
			b.reply(chatID, noServersText, nil)
		default:
			log.Error("failed to ensure configs", sl.Err(err))
			b.reply(chatID, errorText, nil)
		}
		return
	}

	kb := refreshConfigKeyboard()
	b.reply(chatID, configText(configs), &kb)
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	const op = "bot.handleStatus"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", msg.From.ID))

	st, err := b.ledger.Entitlement(ctx, msg.From.ID)
	if err != nil {
		log.Error("failed to query entitlement", sl.Err(err))
		b.reply(msg.Chat.ID, errorText, nil)
		return
	}

	text := entitlementText(st)
	// Состояние прокси-демона видят только операторы.
	if authz.IsAdmin(b.tg.AdminIDs, msg.From.ID) && b.monitor != nil {
		text += "\n\n" + proxyStatusText(b.monitor.CollectStatus(ctx))
	}
	b.reply(msg.Chat.ID, text, nil)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	const op = "bot.handleCallback"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", cq.From.ID))

	if cq.Message == nil {
		b.ack(cq, "")
		return
	}
	if !b.limiter.Allow(cq.From.ID) {
		b.ack(cq, "Слишком часто, подождите пару секунд.")
		return
	}
	chatID := cq.Message.Chat.ID

	switch cq.Data {
	case callbackSubscribe:
		b.handleSubscribe(ctx, cq)
	case callbackFreeTrial:
		b.handleFreeTrial(ctx, cq)
	case callbackGetConfig:
		b.handleConfig(ctx, chatID, cq.From)
		b.ack(cq, "")
	case callbackRefreshConfig:
		b.handleRefreshConfig(ctx, cq)
	default:
		log.Info("unknown callback", slog.String("data", cq.Data))
		b.ack(cq, "")
	}
}

// handleSubscribe открывает ожидающий платеж и выставляет инвойс Telegram
// Payments. Платеж будет закрыт обработчиком successful payment по payload.
func (b *Bot) handleSubscribe(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	const op = "bot.handleSubscribe"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", cq.From.ID))

	if _, err := b.ledger.RegisterContact(ctx, cq.From.ID, cq.From.UserName, cq.From.FirstName); err != nil {
		log.Error("failed to register contact", sl.Err(err))
		b.ack(cq, "Не получилось, попробуйте позже.")
		return
	}

	payload, err := b.ledger.CreatePendingPayment(ctx, cq.From.ID, b.plan.PriceMinorUnits, b.plan.Currency)
	if err != nil {
		log.Error("failed to create pending payment", sl.Err(err))
		b.ack(cq, "Не получилось подготовить оплату, попробуйте позже.")
		return
	}

	invoice := tgbotapi.NewInvoice(
		cq.Message.Chat.ID,
		"Подписка на прокси",
		invoiceDescription(b.plan.Duration),
		payload,
		b.tg.PaymentProviderToken,
		"",
		b.plan.Currency,
		[]tgbotapi.LabeledPrice{{Label: "Подписка", Amount: int(b.plan.PriceMinorUnits)}},
	)
	if _, err := b.api.Request(invoice); err != nil {
		log.Error("failed to send invoice", sl.Err(err))
		b.ack(cq, "Не получилось выставить счет, попробуйте позже.")
		return
	}
	b.ack(cq, "")
}

func (b *Bot) handleFreeTrial(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	const op = "bot.handleFreeTrial"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", cq.From.ID))

	if _, err := b.ledger.RegisterContact(ctx, cq.From.ID, cq.From.UserName, cq.From.FirstName); err != nil {
		log.Error("failed to register contact", sl.Err(err))
		b.ack(cq, "Не получилось, попробуйте позже.")
		return
	}

	until, err := b.ledger.GrantTrial(ctx, cq.From.ID, b.plan.TrialDuration)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrAlreadyEntitled):
			b.ack(cq, "У вас уже есть действующая подписка.")
		case errors.Is(err, subscription.ErrTrialAlreadyUsed):
			b.ack(cq, "Пробный период уже был использован.")
		default:
			log.Error("failed to grant trial", sl.Err(err))
			b.ack(cq, "Не получилось, попробуйте позже.")
		}
		return
	}

	kb := getConfigKeyboard()
	b.reply(cq.Message.Chat.ID, trialActivatedText(until), &kb)
	b.ack(cq, "")
}

func (b *Bot) handleRefreshConfig(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	const op = "bot.handleRefreshConfig"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", cq.From.ID))

	user, err := b.ledger.RegisterContact(ctx, cq.From.ID, cq.From.UserName, cq.From.FirstName)
	if err != nil {
		log.Error("failed to register contact", sl.Err(err))
		b.ack(cq, "Не получилось, попробуйте позже.")
		return
	}

	configs, err := b.registry.RotateConfigs(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, proxyconfig.ErrNotEntitled):
			b.ack(cq, "Подписка не действует.")
		case errors.Is(err, proxyconfig.ErrNoActiveServers):
			log.Error("no active servers in catalog")
			b.ack(cq, "Серверы временно недоступны.")
		default:
			log.Error("failed to rotate configs", sl.Err(err))
			b.ack(cq, "Не получилось, попробуйте позже.")
		}
		return
	}

	kb := refreshConfigKeyboard()
	b.reply(cq.Message.Chat.ID, configText(configs), &kb)
	b.ack(cq, "Конфигурация перевыпущена.")
}

// handlePreCheckout подтверждает платеж провайдеру. Сумма и валюта
// проверяются при применении платежа, здесь отказ возможен только когда
// Telegram прислал запрос без данных.
func (b *Bot) handlePreCheckout(pcq *tgbotapi.PreCheckoutQuery) {
	const op = "bot.handlePreCheckout"

	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: pcq.ID,
		OK:                 true,
	}
	if _, err := b.api.Request(answer); err != nil {
		b.log.Error("failed to answer pre-checkout", slog.String("op", op), sl.Err(err))
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	const op = "bot.handleSuccessfulPayment"
	log := b.log.With(slog.String("op", op), slog.Int64("telegram_id", msg.From.ID))

	p := msg.SuccessfulPayment
	until, err := b.ledger.ApplyPayment(
		ctx,
		msg.From.ID,
		int64(p.TotalAmount),
		p.Currency,
		p.ProviderPaymentChargeID,
		p.InvoicePayload,
		b.plan.Duration,
	)
	if err != nil {
		log.Error("failed to apply payment", sl.Err(err))
		b.reply(msg.Chat.ID, paymentFailedText, nil)
		return
	}

	kb := getConfigKeyboard()
	b.reply(msg.Chat.ID, paymentAppliedText(until), &kb)
}
