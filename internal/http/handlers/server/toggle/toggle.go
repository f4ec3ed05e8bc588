// Package toggle реализует HTTP-обработчик включения и выключения
// прокси-сервера в каталоге.
//
// Выключенный сервер перестает участвовать в выдаче новых конфигураций,
// уже выданные конфигурации при этом не отзываются.
package toggle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/hrustalq/tg-proxy/internal/http/response"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/services/serverdir"
)

// Request описывает тело запроса на переключение сервера.
type Request struct {
	Active *bool `json:"active" validate:"required"`
}

// Service описывает интерфейс бизнес-логики переключения серверов.
type Service interface {
	SetActive(ctx context.Context, serverID int64, active bool) error
}

// Handler управляет HTTP-запросами на переключение серверов.
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
	const op = "handlers.server.toggle"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	serverID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.SetActive(r.Context(), serverID, *req.Active); err != nil {
		if errors.Is(err, serverdir.ErrNotFound) {
			log.Warn("server not found", slog.Int64("server_id", serverID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("server not found"))
			return
		}
		log.Error("failed to toggle server", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not toggle server"))
		return
	}

	log.Info("server toggled", slog.Int64("server_id", serverID), slog.Bool("active", *req.Active))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id":     serverID,
		"active": *req.Active,
	}))
}
