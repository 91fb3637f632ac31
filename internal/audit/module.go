// Package audit provides the audit trail bounded context: append-only action
// recording, filtered queries and suspicious behavior detection.
package audit

import (
	"fleetcore_backend/internal/audit/handler"
	"fleetcore_backend/internal/audit/repository"
	"fleetcore_backend/internal/audit/service"
	"fleetcore_backend/internal/events"
	apphttp "fleetcore_backend/internal/http"
	"fleetcore_backend/platform/logger"
	"fleetcore_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the audit bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the audit module with all its dependencies.
func NewModule(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "audit"
}

// Service returns the service layer for external use. Other modules record
// their audit entries through it (via adapters) and the worker drives the
// retention purge and suspicious sweep.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts audit routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/audit")
	group.GET("", m.handler.Query)
	group.GET("/suspicious", m.handler.Suspicious)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
