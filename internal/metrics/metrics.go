// Package metrics собирает и публикует метрики Prometheus для гейткипера.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector собирает счётчики движка доступа.
type Collector struct {
	accessDecisions   *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	webhookDuplicates prometheus.Counter
	lockContention    prometheus.Counter
}

// NewCollector создаёт Collector и регистрирует метрики в реестре.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_access_decisions_total",
			Help: "Количество вычислений доступа по типам решения",
		}, []string{"access_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_transitions_total",
			Help: "Количество применённых переходов состояния по операциям",
		}, []string{"operation"}),
		webhookDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_webhook_duplicates_total",
			Help: "Количество отклонённых повторов событий вебхука",
		}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_lock_contention_total",
			Help: "Количество отказов по тайм-ауту пер-аккаунтной блокировки",
		}),
	}

	reg.MustRegister(
		c.accessDecisions,
		c.transitions,
		c.webhookDuplicates,
		c.lockContention,
	)

	return c
}

// RecordAccessDecision учитывает вычисленное решение о доступе.
func (c *Collector) RecordAccessDecision(accessType string) {
	c.accessDecisions.WithLabelValues(accessType).Inc()
}

// RecordTransition учитывает применённый переход состояния.
func (c *Collector) RecordTransition(operation string) {
	c.transitions.WithLabelValues(operation).Inc()
}

// RecordWebhookDuplicate учитывает отклонённый повтор события.
func (c *Collector) RecordWebhookDuplicate() {
	c.webhookDuplicates.Inc()
}

// RecordLockContention учитывает отказ по тайм-ауту блокировки.
func (c *Collector) RecordLockContention() {
	c.lockContention.Inc()
}

// Handler возвращает HTTP-обработчик для скрейпа Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
