package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Domenick1991/exhibitions/internal/telemetry"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterDeps struct {
	Auth          *Authenticator
	Registrations *RegistrationHandler
	Tickets       *TicketHandler
	Exhibitions   *ExhibitionHandler
	Health        map[string]HealthCheck
	// SwaggerDir holds openapi.yaml; empty disables /swagger.
	SwaggerDir string
	Logger     *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), telemetry.Middleware(), AccessLog(deps.Logger))

	r.GET("/health", healthHandler(deps.Health))
	if deps.SwaggerDir != "" {
		r.StaticFile("/openapi.yaml", deps.SwaggerDir+"/openapi.yaml")
		r.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml"))))
	}

	apiGroup := r.Group("/api")
	authed := apiGroup.Group("", deps.Auth.Middleware())

	deps.Registrations.Register(authed.Group("/registrations"))
	deps.Tickets.Register(authed.Group("/tickets"))
	deps.Exhibitions.Register(apiGroup.Group("/exhibitions"), authed.Group("/exhibitions"))
	return r
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
	}
}
