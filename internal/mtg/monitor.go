// Package mtg опрашивает метрики внешнего mtg-демона.
//
// Демон — пассивный поставщик состояния: он отдает свои счетчики в
// прометей-формате на отдельном порту, ядро лишь читает и суммирует их.
package mtg

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/common/expfmt"
)

// Имена метрик mtg, попадающие в сводку состояния.
const (
	MetricClientConnections   = "mtg_client_connections"
	MetricTelegramConnections = "mtg_telegram_connections"
	MetricDomainFronting      = "mtg_domain_fronting_connections"
	MetricReplayAttacks       = "mtg_replay_attacks"
	MetricConcurrencyLimited  = "mtg_concurrency_limited"
)

// Status сводка состояния прокси-демона для административного отчета.
type Status struct {
	Healthy             bool    `json:"healthy"`
	ClientConnections   float64 `json:"client_connections"`
	TelegramConnections float64 `json:"telegram_connections"`
	DomainFronting      float64 `json:"domain_fronting_connections"`
	ReplayAttacks       float64 `json:"replay_attacks"`
	ConcurrencyLimited  float64 `json:"concurrency_limited"`
}

// Monitor читает метрики mtg-демона по HTTP.
type Monitor struct {
	metricsURL string
	client     *http.Client
	log        *slog.Logger
}

// NewMonitor создает Monitor для адреса метрик metricsURL.
func NewMonitor(metricsURL string, log *slog.Logger) *Monitor {
	return &Monitor{
		metricsURL: metricsURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		log:        log,
	}
}

// Metrics запрашивает и разбирает метрики демона. Значения метрик с
// несколькими наборами меток суммируются.
func (m *Monitor) Metrics(ctx context.Context) (map[string]float64, error) {
	const op = "mtg.Metrics"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.metricsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make(map[string]float64, len(families))
	for name, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				result[name] += metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				result[name] += metric.GetCounter().GetValue()
			case metric.GetUntyped() != nil:
				result[name] += metric.GetUntyped().GetValue()
			}
		}
	}
	return result, nil
}

// Healthy сообщает, отвечает ли демон на запрос метрик.
func (m *Monitor) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.metricsURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

// CollectStatus собирает сводку состояния демона. Недоступный демон
// дает Status с Healthy=false и нулевыми счетчиками.
func (m *Monitor) CollectStatus(ctx context.Context) Status {
	metrics, err := m.Metrics(ctx)
	if err != nil {
		m.log.Warn("failed to fetch mtg metrics", slog.Any("err", err))
		return Status{}
	}
	return Status{
		Healthy:             true,
		ClientConnections:   metrics[MetricClientConnections],
		TelegramConnections: metrics[MetricTelegramConnections],
		DomainFronting:      metrics[MetricDomainFronting],
		ReplayAttacks:       metrics[MetricReplayAttacks],
		ConcurrencyLimited:  metrics[MetricConcurrencyLimited],
	}
}
