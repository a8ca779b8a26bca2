package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	_ "github.com/jhoicas/Fiscal-api/docs"
	"github.com/jhoicas/Fiscal-api/internal/application/auth"
	"github.com/jhoicas/Fiscal-api/internal/application/fiscal"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz/signer"
	httpRouter "github.com/jhoicas/Fiscal-api/internal/interfaces/http"
	"github.com/jhoicas/Fiscal-api/pkg/config"
	"github.com/jhoicas/Fiscal-api/pkg/logger"
)

// @title                       Fiscal API
// @version                     1.0
// @description                 Emisión de NF-e / NFC-e ante la SEFAZ con contingencia.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("uf", cfg.SEFAZ.UF).
		Str("tpAmb", cfg.SEFAZ.Environment).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	txRunner := postgres.NewTxRunner(pool)
	if err := postgres.Migrate(ctx, txRunner, log.Component("migrate")); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	userRepo := postgres.NewUserRepository(pool)
	issuerRepo := postgres.NewIssuerRepository(pool)
	counterRepo := postgres.NewSeriesCounterRepository(pool)
	repos := fiscal.Repositories{
		Documents:      postgres.NewFiscalDocumentRepository(pool),
		Counters:       counterRepo,
		Cancellations:  postgres.NewCancellationRepository(pool),
		Inutilizations: postgres.NewInutilizationRepository(pool),
		Issuers:        issuerRepo,
		RenderRequests: postgres.NewRenderRequestRepository(pool),
	}

	// Certificado A1: opcional al arrancar, se puede cargar luego por la API.
	certStore := signer.NewCertificateStore(log.Zerolog())
	if cfg.SEFAZ.CertPath != "" {
		identity, err := certStore.LoadFile(cfg.SEFAZ.CertPath, cfg.SEFAZ.CertPassword)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.SEFAZ.CertPath).Msg("no se pudo cargar el certificado; la emisión queda bloqueada")
		} else {
			log.Info().Str("subject", identity.Subject).Time("not_after", identity.NotAfter).Msg("certificado cargado")
		}
	}

	endpoints := sefaz.DefaultEndpoints()
	for svc, url := range map[sefaz.Service]string{
		sefaz.ServiceAuthorization: cfg.SEFAZ.AuthorizationURL,
		sefaz.ServiceEvent:         cfg.SEFAZ.EventURL,
		sefaz.ServiceInutilization: cfg.SEFAZ.InutilizationURL,
		sefaz.ServiceStatus:        cfg.SEFAZ.StatusURL,
		sefaz.ServiceProtocol:      cfg.SEFAZ.ProtocolURL,
	} {
		if url != "" {
			endpoints.Override(svc, url)
		}
	}
	var caBundle []byte
	if cfg.SEFAZ.CABundlePath != "" {
		caBundle, err = os.ReadFile(cfg.SEFAZ.CABundlePath)
		if err != nil {
			log.Fatal().Err(err).Msg("leer CA bundle")
		}
	}
	authority, err := sefaz.NewSOAPClient(sefaz.ClientConfig{
		Environment: cfg.SEFAZ.Environment,
		UF:          cfg.SEFAZ.UF,
		Model:       cfg.SEFAZ.DefaultModel,
		Timeout:     cfg.SEFAZ.Timeout,
		CABundle:    caBundle,
		Endpoints:   endpoints,
	}, certStore, postgres.NewAuthorityAttemptRepository(pool), log.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("cliente SEFAZ")
	}

	coordinator := fiscal.NewContingencyCoordinator(
		postgres.NewContingencyQueueRepository(pool),
		authority,
		fiscal.ContingencyConfig{
			Mode:          entity.EmissionMode(cfg.SEFAZ.ContingencyMode),
			ProbeInterval: cfg.SEFAZ.ProbeInterval,
			MaxAttempts:   cfg.SEFAZ.MaxAttempts,
			DrainPause:    cfg.SEFAZ.DrainPause,
			// consulta y envío, cada uno con su timeout
			StaleAfter:    3 * cfg.SEFAZ.Timeout,
		},
		log.Zerolog(),
	)
	orchestrator := fiscal.NewFiscalOrchestrator(
		repos, sefaz.NewXMLBuilderService(), certStore, authority, coordinator,
		fiscal.Config{
			Environment:   cfg.SEFAZ.Environment,
			DefaultModel:  cfg.SEFAZ.DefaultModel,
			DefaultSeries: cfg.SEFAZ.DefaultSeries,
			CSCID:         cfg.NFCe.CSCID,
			CSCToken:      cfg.NFCe.CSCToken,
			QRCodeURL:     cfg.NFCe.QRCodeURL,
			ConsultURL:    cfg.NFCe.ConsultURL,
		},
		log.Zerolog(),
	)

	authUC := auth.NewAuthUseCase(userRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.SEFAZ.Timeout + 10*time.Second, // la emisión espera a la SEFAZ
		IdleTimeout:  time.Second * 60,
		BodyLimit:    1 << 20,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Fiscal API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		state := coordinator.State()
		return c.JSON(fiber.Map{
			"status":      "ok",
			"service":     cfg.App.Name,
			"contingency": state.Active,
			"certificate": certStore.Validity().Valid,
		})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:       authUC,
		Documents:    orchestrator,
		Issuers:      fiscal.NewIssuerUseCase(issuerRepo, counterRepo),
		Certificates: fiscal.NewCertificateUseCase(certStore, issuerRepo, log.Zerolog()),
		Contingency:  coordinator,
		JWTSecret:    cfg.JWT.Secret,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coordinator.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr()).Msg("servidor HTTP escuchando")
		return app.Listen(cfg.HTTP.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("aplicación finalizada con error")
	}
	log.Info().Msg("aplicación detenida")
}
