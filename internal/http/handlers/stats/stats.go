// Package stats реализует HTTP-обработчик сводного административного отчета.
//
// Отчет объединяет статистику подписок и платежей со статусом mtg-прокси,
// чтобы оператору не приходилось опрашивать два источника по отдельности.
package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/hrustalq/tg-proxy/internal/http/response"
	"github.com/hrustalq/tg-proxy/internal/lib/sl"
	"github.com/hrustalq/tg-proxy/internal/mtg"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
)

// Service описывает интерфейс сбора статистики подписок.
type Service interface {
	CollectStats(ctx context.Context) (*subscription.Stats, error)
}

// ProxyMonitor описывает интерфейс опроса состояния mtg-прокси.
type ProxyMonitor interface {
	CollectStatus(ctx context.Context) mtg.Status
}

// Handler управляет HTTP-запросами на чтение статистики.
type Handler struct {
	log     *slog.Logger
	service Service
	monitor ProxyMonitor
}

// New создает новый Handler с переданными логгером, сервисом и монитором.
func New(log *slog.Logger, service Service, monitor ProxyMonitor) *Handler {
	return &Handler{
		log:     log,
		service: service,
		monitor: monitor,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.stats"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	stats, err := h.service.CollectStats(r.Context())
	if err != nil {
		log.Error("failed to collect stats", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not collect stats"))
		return
	}

	data := map[string]any{
		"subscriptions": stats,
	}
	if h.monitor != nil {
		data["proxy"] = h.monitor.CollectStatus(r.Context())
	}

	log.Info("stats collected", slog.Int("total_users", stats.TotalUsers))
	render.JSON(w, r, response.OKWithData(data))
}
