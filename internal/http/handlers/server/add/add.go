// Package add реализует HTTP-обработчик добавления прокси-сервера в каталог.
//
// Handler принимает JSON-запрос с адресом и портом сервера, валидирует его,
// вызывает бизнес-логику каталога и возвращает созданную запись в JSON-формате.
package add

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/hrustalq/tg-proxy/internal/http/response"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/models"
	"github.com/hrustalq/tg-proxy/internal/services/serverdir"
)

// Request описывает тело запроса на добавление сервера.
type Request struct {
	Address     string `json:"address" validate:"required"`
	Port        int    `json:"port" validate:"required,gt=0,max=65535"`
	Description string `json:"description"`
}

// Service описывает интерфейс бизнес-логики каталога серверов.
type Service interface {
	Add(ctx context.Context, address string, port int, description string) (*models.ProxyServer, error)
}

// Handler управляет HTTP-запросами на добавление серверов.
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
	const op = "handlers.server.add"
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

	srv, err := h.service.Add(r.Context(), req.Address, req.Port, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, serverdir.ErrDuplicateAddress):
			log.Warn("server already exists", slog.String("address", req.Address))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("server with this address already exists"))
		case errors.Is(err, serverdir.ErrInvalidAddress):
			log.Warn("invalid server address", slog.String("address", req.Address))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("invalid server address"))
		default:
			log.Error("failed to add server", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not add server"))
		}
		return
	}

	log.Info("server added", slog.Int64("id", srv.ID))
	render.JSON(w, r, response.OKWithData(srv))
}
