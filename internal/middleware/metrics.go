package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RedisErrors counts Redis command failures, labeled by command name.
var RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "guest_api_redis_errors_total",
	Help: "Total number of Redis command errors.",
}, []string{"command"})

// ProvisioningAttempts counts approval provisioning attempts by outcome.
var ProvisioningAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "guest_api_provisioning_attempts_total",
	Help: "Total NOVUS provisioning attempts, labeled by outcome.",
}, []string{"outcome"})

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics creates the Prometheus middleware for the given service
// name. The underlying collectors register against the default registry,
// so the middleware is built once and shared.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// MetricsMiddleware returns the request-instrumentation handler.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}
