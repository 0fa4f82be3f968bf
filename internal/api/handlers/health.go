// health.go: обработчики health endpoints Panel DOT.
// /health/live: liveness probe (процесс жив)
// /health/ready: readiness probe (хранилище доступно, состояние зависимостей)
// /metrics: Prometheus метрики
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/paneldot/internal/config"
)

// ReadinessChecker: интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// DependencyReporter: состояние зависимостей из мониторинга topologymetrics.
type DependencyReporter interface {
	Health() map[string]bool
}

// HealthHandler: обработчик health endpoints.
type HealthHandler struct {
	storage     ReadinessChecker
	deps        DependencyReporter
	backend     string
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// storage: проверка активного бэкенда хранилища (nil даёт "fail").
// deps может быть nil: мониторинг зависимостей отключён.
func NewHealthHandler(storage ReadinessChecker, backend string, deps DependencyReporter) *HealthHandler {
	return &HealthHandler{
		storage:     storage,
		deps:        deps,
		backend:     backend,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult: результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse: ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse: ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Storage      healthCheckResult            `json:"storage"`
		Dependencies map[string]healthCheckResult `json:"dependencies,omitempty"`
	} `json:"checks"`
}

// HealthLive: liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	resp := healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "panel-dot",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady: readiness probe. Проверяет хранилище и сводку мониторинга зависимостей.
// Недоступное хранилище даёт 503. Упавшая внешняя зависимость даёт degraded:
// вошедшие пользователи продолжают работать без Discord.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "panel-dot",
	}

	if h.storage != nil {
		status, msg := h.storage.CheckReady()
		resp.Checks.Storage = healthCheckResult{Status: status, Message: msg}
	} else {
		resp.Checks.Storage = healthCheckResult{Status: "fail", Message: "не инициализирован"}
	}
	if resp.Checks.Storage.Message == "" {
		resp.Checks.Storage.Message = h.backend
	}

	statuses := []string{resp.Checks.Storage.Status}
	if h.deps != nil {
		health := h.deps.Health()
		resp.Checks.Dependencies = make(map[string]healthCheckResult, len(health))
		for name, ok := range health {
			if ok {
				resp.Checks.Dependencies[name] = healthCheckResult{Status: "ok"}
				continue
			}
			resp.Checks.Dependencies[name] = healthCheckResult{Status: "degraded", Message: "проверка не проходит"}
			statuses = append(statuses, "degraded")
		}
	}

	resp.Status = overallStatus(statuses...)

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == "fail" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// GetMetrics: Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail, итог fail.
// Если хотя бы одна degraded, итог degraded.
// Иначе ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == "fail" {
			return "fail"
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
