// Package leads provides the lead lifecycle bounded context: the settings
// driven status engine and the CPT qualification engine.
package leads

import (
	"context"

	"fleetcore_backend/internal/events"
	apphttp "fleetcore_backend/internal/http"
	"fleetcore_backend/internal/leads/handler"
	"fleetcore_backend/internal/leads/ports"
	"fleetcore_backend/internal/leads/repository"
	"fleetcore_backend/internal/leads/service"
	"fleetcore_backend/internal/settings"
	"fleetcore_backend/platform/logger"
	"fleetcore_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	status   *service.StatusEngine
	qual     *service.QualificationEngine
	repo     *repository.Repository
	settings *settings.Repository
}

// NewModule creates and initializes the leads module with all its dependencies.
// The audit writer is satisfied by the audit module through an adapter.
func NewModule(pool *pgxpool.Pool, settingsRepo *settings.Repository, audit ports.AuditWriter, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	status := service.NewStatusEngine(repo, settingsRepo, audit, bus, log)
	qual := service.NewQualificationEngine(repo, settingsRepo, status, audit, bus, log)
	h := handler.New(status, qual, val)

	return &Module{
		handler:  h,
		status:   status,
		qual:     qual,
		repo:     repo,
		settings: settingsRepo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// StatusEngine returns the status engine for external use.
func (m *Module) StatusEngine() *service.StatusEngine {
	return m.status
}

// QualificationEngine returns the qualification engine for external use.
func (m *Module) QualificationEngine() *service.QualificationEngine {
	return m.qual
}

// ClearCaches drops the cached settings documents on both engines. Call after
// a tenant's lifecycle configuration changes.
func (m *Module) ClearCaches() {
	m.status.ClearCache()
	m.qual.ClearCache()
}

// RegisterRoutes mounts lead lifecycle routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	group.PATCH("/:id/status", m.handler.UpdateStatus)
	group.POST("/:id/qualify", m.handler.Qualify)
	group.GET("/:id/transitions", m.handler.Transitions)
	group.GET("/:id/activities", m.handler.Activities)
}

// RegisterHandlers subscribes to domain events for seeding tenant defaults.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.TenantSynced{}.EventName(), m)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.TenantSynced:
		if e.Action != "created" {
			return nil
		}
		if err := m.settings.SeedDefaults(ctx, e.TenantID); err != nil {
			return err
		}
		m.ClearCaches()
		return nil
	default:
		return nil
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
