// Package metrics объявляет прометей-метрики сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics счетчики бизнес-операций. Экземпляр создается один раз на процесс
// и передается в сервисы явно.
type Metrics struct {
	TrialsGranted     prometheus.Counter
	PaymentsApplied   *prometheus.CounterVec
	AdminGrants       prometheus.Counter
	ConfigRotations   prometheus.Counter
	ConfigsIssued     prometheus.Counter
	BotUpdates        *prometheus.CounterVec
	EntitlementDenied prometheus.Counter
}

// New регистрирует метрики в registry и возвращает их.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		TrialsGranted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgproxy_trials_granted_total",
			Help: "The total number of granted trial periods",
		}),
		PaymentsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tgproxy_payments_applied_total",
			Help: "The total number of applied payments by currency",
		}, []string{"currency"}),
		AdminGrants: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgproxy_admin_grants_total",
			Help: "The total number of admin-granted extensions",
		}),
		ConfigRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgproxy_config_rotations_total",
			Help: "The total number of proxy config rotations",
		}),
		ConfigsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgproxy_configs_issued_total",
			Help: "The total number of issued proxy configs",
		}),
		BotUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tgproxy_bot_updates_total",
			Help: "The total number of handled bot updates by kind",
		}, []string{"kind"}),
		EntitlementDenied: factory.NewCounter(prometheus.CounterOpts{
			Name: "tgproxy_entitlement_denied_total",
			Help: "The total number of config requests denied for missing entitlement",
		}),
	}
}
