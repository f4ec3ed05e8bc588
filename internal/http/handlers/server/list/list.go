// Package list реализует HTTP-обработчик чтения каталога прокси-серверов,
// включая выключенные записи.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/hrustalq/tg-proxy/internal/http/response"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/models"
)

// Service описывает интерфейс чтения каталога серверов.
type Service interface {
	List(ctx context.Context) ([]models.ProxyServer, error)
}

// Handler управляет HTTP-запросами на чтение каталога.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.server.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	servers, err := h.service.List(r.Context())
	if err != nil {
		log.Error("failed to list servers", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list servers"))
		return
	}

	log.Info("servers listed", slog.Int("count", len(servers)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"count":   len(servers),
		"servers": servers,
	}))
}
