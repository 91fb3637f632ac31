// Package identity provides the identity sync bounded context: webhook
// driven reconciliation of members and tenants from the external identity
// provider.
package identity

import (
	"fleetcore_backend/internal/events"
	apphttp "fleetcore_backend/internal/http"
	"fleetcore_backend/internal/identity/handler"
	"fleetcore_backend/internal/identity/ports"
	"fleetcore_backend/internal/identity/repository"
	"fleetcore_backend/internal/identity/service"
	"fleetcore_backend/platform/config"
	"fleetcore_backend/platform/logger"
	"fleetcore_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the identity bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.SyncService
	repo    *repository.Repository
	cfg     config.WebhookConfig
}

// NewModule creates and initializes the identity module with all its
// dependencies.
func NewModule(pool *pgxpool.Pool, cfg config.WebhookConfig, audit ports.AuditWriter, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.NewSyncService(repo, audit, bus, log)
	h := handler.New(svc, val, log)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "identity"
}

// Service returns the sync service for external use.
func (m *Module) Service() *service.SyncService {
	return m.service
}

// RegisterRoutes mounts the webhook endpoint. The route sits outside the
// authenticated group: deliveries authenticate with the shared-secret
// signature and are rate limited per IP.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	webhooks := ctx.V1.Group("/webhooks")
	webhooks.Use(ctx.WebhookRateLimiter.RateLimit())
	webhooks.Use(handler.VerifySignature(m.cfg))
	webhooks.POST("/identity", m.handler.Receive)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
