package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Fiscal-api/internal/application/auth"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC       *auth.AuthUseCase
	Documents    DocumentService
	Issuers      IssuerService
	Certificates CertificateService
	Contingency  ContingencyService
	JWTSecret    string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	admin := RequireRole(entity.RoleAdmin)
	anyRole := RequireRole(entity.RoleAdmin, entity.RoleOperator)

	// Auth: login público, alta de usuarios solo admin.
	authHandler := NewAuthHandler(deps.AuthUC)
	api.Post("/auth/login", authHandler.Login)
	api.Post("/auth/register", AuthMiddleware(deps.JWTSecret), admin, authHandler.Register)

	fiscalGroup := api.Group("/fiscal", AuthMiddleware(deps.JWTSecret))

	// Documentos
	docs := NewFiscalHandler(deps.Documents)
	fiscalGroup.Post("/documents", anyRole, docs.Emit)
	fiscalGroup.Get("/documents/:id", anyRole, docs.GetByID)
	fiscalGroup.Post("/documents/:id/sync", anyRole, docs.Sync)
	fiscalGroup.Post("/documents/:id/cancel", anyRole, docs.Cancel)
	fiscalGroup.Get("/keys/:key", anyRole, docs.GetByKey)
	fiscalGroup.Get("/keys/:key/xml/:kind", anyRole, docs.Artifact)
	fiscalGroup.Get("/inutilizations", anyRole, docs.ListInutilizations)
	fiscalGroup.Post("/inutilizations", admin, docs.VoidRange)

	// Emisor y certificado
	issuer := NewIssuerHandler(deps.Issuers, deps.Certificates)
	fiscalGroup.Get("/issuer", anyRole, issuer.Get)
	fiscalGroup.Put("/issuer", admin, issuer.Configure)
	fiscalGroup.Post("/issuer/series", admin, issuer.SeedSeries)
	fiscalGroup.Get("/certificate", anyRole, issuer.CertificateStatus)
	fiscalGroup.Post("/certificate", admin, issuer.UploadCertificate)

	// Contingencia
	cont := NewContingencyHandler(deps.Contingency)
	fiscalGroup.Get("/contingency", anyRole, cont.State)
	fiscalGroup.Post("/contingency/activate", admin, cont.Activate)
	fiscalGroup.Post("/contingency/deactivate", admin, cont.Deactivate)
	fiscalGroup.Get("/contingency/queue", anyRole, cont.Queue)
	fiscalGroup.Post("/contingency/queue/:id/retry", admin, cont.Retry)
	fiscalGroup.Post("/contingency/drain", admin, cont.Drain)
}
