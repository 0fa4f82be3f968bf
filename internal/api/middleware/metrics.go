// metrics.go: Prometheus HTTP метрики Panel DOT.
// Регистрирует метрики: pd_http_requests_total, pd_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal: общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pd_http_requests_total",
			Help: "Общее количество HTTP-запросов к Panel DOT",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration: гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pd_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Panel DOT в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого маршрута.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter: обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// knownPaths: маршруты, которые попадают в лейбл как есть.
var knownPaths = map[string]bool{
	"/":                               true,
	"/auth":                           true,
	"/auth/login":                     true,
	"/auth/callback":                  true,
	"/auth/logout":                    true,
	"/parametrage":                    true,
	"/parametrage/brackets":           true,
	"/parametrage/versions":           true,
	"/parametrage/discord":            true,
	"/logs":                           true,
	"/health/live":                    true,
	"/health/ready":                   true,
	"/metrics":                        true,
	"/api/v1/auth/token":              true,
	"/api/v1/me":                      true,
	"/api/v1/parametrage":             true,
	"/api/v1/parametrage/versions":    true,
	"/api/v1/parametrage/tax-preview": true,
	"/api/v1/discord-settings":        true,
	"/api/v1/action-logs":             true,
}

// normalizePath сводит неизвестные пути к одному лейблу, чтобы
// случайные URL (сканеры, опечатки) не раздували кардинальность метрик.
// /static/app.css → /static/*, /wp-admin → other
func normalizePath(path string) string {
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	if knownPaths[path] {
		return path
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
	}
	if strings.HasPrefix(path, "/api/") {
		return "/api/other"
	}
	return "other"
}
