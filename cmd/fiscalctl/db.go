package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jhoicas/Fiscal-api/internal/application/auth"
	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/application/fiscal"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Fiscal-api/pkg/config"
	"github.com/jhoicas/Fiscal-api/pkg/logger"
)

// withPool carga la configuración y abre el pool para la duración del comando.
func withPool(ctx context.Context, fn func(cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	defer pool.Close()
	return fn(cfg, pool)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), func(cfg *config.Config, pool *pgxpool.Pool) error {
				log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Output: cmd.ErrOrStderr()})
				return postgres.Migrate(cmd.Context(), postgres.NewTxRunner(pool), log.Component("migrate"))
			})
		},
	}
}

func newIssuerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "issuer", Short: "Emisor y numeración"}

	var in dto.SeedSeriesRequest
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Fija el próximo número de una serie que todavía no tiene contador",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), func(_ *config.Config, pool *pgxpool.Pool) error {
				uc := fiscal.NewIssuerUseCase(postgres.NewIssuerRepository(pool), postgres.NewSeriesCounterRepository(pool))
				out, err := uc.SeedSeries(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "modelo %s serie %d: próximo número %d\n", out.Model, out.Series, out.NextNumber)
				return nil
			})
		},
	}
	seed.Flags().StringVar(&in.Model, "model", "65", "modelo (55 o 65)")
	seed.Flags().IntVar(&in.Series, "series", 1, "serie")
	seed.Flags().Int64Var(&in.NextNumber, "next", 1, "próximo número a emitir")
	cmd.AddCommand(seed)
	return cmd
}

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "queue", Short: "Cola de contingencia"}

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "Lista las entradas de la cola",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd.Context(), func(_ *config.Config, pool *pgxpool.Pool) error {
				entries, err := postgres.NewContingencyQueueRepository(pool).List(cmd.Context(), all)
				if err != nil {
					return err
				}
				printQueue(cmd, entries)
				return nil
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "incluir las transmitidas")
	cmd.AddCommand(list)
	return cmd
}

func printQueue(cmd *cobra.Command, entries []*entity.QueueEntry) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAVE\tESTADO\tINTENTOS\tENCOLADO\tÚLTIMO ERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.AccessKey, e.State, e.Attempts, e.EnqueuedAt.Format("2006-01-02 15:04:05"), e.LastError)
	}
	w.Flush()
}

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Usuarios de la API"}

	var in dto.RegisterRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea un usuario (el primer admin se crea por aquí)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				p, err := readPassword(cmd.ErrOrStderr(), "contraseña: ")
				if err != nil {
					return err
				}
				in.Password = p
			}
			return withPool(cmd.Context(), func(cfg *config.Config, pool *pgxpool.Pool) error {
				uc := auth.NewAuthUseCase(postgres.NewUserRepository(pool), auth.JWTConfig{
					Secret:     cfg.JWT.Secret,
					ExpMinutes: cfg.JWT.Expiration,
					Issuer:     cfg.JWT.Issuer,
				})
				out, err := uc.RegisterUser(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "usuario %s (%s) creado con rol %s\n", out.Email, out.ID, out.Role)
				return nil
			})
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "email")
	create.Flags().StringVar(&in.Name, "name", "", "nombre")
	create.Flags().StringVar(&in.Role, "role", entity.RoleAdmin, "rol (admin u operador)")
	create.Flags().StringVar(&in.Password, "password", "", "contraseña (si se omite se pide por terminal)")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)
	return cmd
}
