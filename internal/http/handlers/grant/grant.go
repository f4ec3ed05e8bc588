// Package grant реализует HTTP-обработчик ручного продления подписки
// оператором.
//
// Handler принимает JSON-запрос с telegram_id пользователя и количеством
// дней, вызывает бизнес-логику продления и возвращает новую дату окончания
// подписки. Активная подписка продлевается от текущей даты окончания,
// истекшая отсчитывается заново от текущего момента.
package grant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/hrustalq/tg-proxy/internal/http/middlewarectx"
	"github.com/hrustalq/tg-proxy/internal/http/response"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
	"github.com/hrustalq/tg-proxy/internal/storage/repository"
)

// Request описывает тело запроса на продление подписки.
type Request struct {
	TelegramID int64 `json:"telegram_id" validate:"required,gt=0"`
	Days       int   `json:"days" validate:"required,gt=0"`
}

// Service описывает интерфейс бизнес-логики продления подписки.
type Service interface {
	AdminGrant(ctx context.Context, telegramID int64, days int) (time.Time, error)
}

// Handler управляет HTTP-запросами на продление подписки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.grant"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	operator, _ := r.Context().Value(middlewarectx.Operator).(string)

	until, err := h.service.AdminGrant(r.Context(), req.TelegramID, req.Days)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			log.Warn("user not found", slog.Int64("telegram_id", req.TelegramID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, subscription.ErrInvalidDuration):
			log.Warn("invalid grant duration", slog.Int("days", req.Days))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("days must be positive"))
		default:
			log.Error("failed to grant subscription", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not grant subscription"))
		}
		return
	}

	log.Info("subscription granted",
		slog.Int64("telegram_id", req.TelegramID),
		slog.Int("days", req.Days),
		slog.String("operator", operator),
		slog.Time("until", until))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"telegram_id":        req.TelegramID,
		"subscription_until": until,
	}))
}
