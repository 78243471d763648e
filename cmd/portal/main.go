package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cesfam/portal/internal/config"
	"github.com/cesfam/portal/internal/domain/administradores"
	"github.com/cesfam/portal/internal/domain/citas"
	"github.com/cesfam/portal/internal/domain/documentos"
	"github.com/cesfam/portal/internal/domain/medicos"
	"github.com/cesfam/portal/internal/domain/pacientes"
	"github.com/cesfam/portal/internal/domain/turnos"
	"github.com/cesfam/portal/internal/platform/auth"
	"github.com/cesfam/portal/internal/platform/blobstore"
	"github.com/cesfam/portal/internal/platform/db"
	"github.com/cesfam/portal/internal/platform/events"
	"github.com/cesfam/portal/internal/platform/locker"
	"github.com/cesfam/portal/internal/platform/middleware"
	"github.com/cesfam/portal/migrations"
)

const version = "0.1.0"

// slotLockTTL bounds how long a crashed request can hold an appointment slot.
const slotLockTTL = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "portal",
		Short:        "CESFAM portal API server and client",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(logoutCmd())
	root.AddCommand(slotsCmd())
	root.AddCommand(bookCmd())
	return root
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetInt("to")
			return withMigrator(cmd.Context(), func(m *db.Migrator) error {
				var (
					count int
					err   error
				)
				if to > 0 {
					count, err = m.UpTo(cmd.Context(), to)
				} else {
					count, err = m.Up(cmd.Context())
				}
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")
	cmd.AddCommand(upCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(m *db.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(*db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(db.NewMigrator(pool, migrations.FS))
}

// infra holds the optional backing services. Each falls back to an
// in-process implementation when it is not configured.
type infra struct {
	locker    locker.Locker
	publisher events.Publisher
	store     blobstore.Store
	checks    []db.Check
	closers   []func()
}

func (i *infra) Close() {
	for _, c := range i.closers {
		c()
	}
}

func connectInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	inf := &infra{}

	if cfg.RedisURL != "" {
		client, err := locker.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rl := locker.NewRedisLocker(client)
		inf.locker = rl
		inf.checks = append(inf.checks, db.Check{Name: "redis", Ping: rl.Ping})
		inf.closers = append(inf.closers, func() { _ = client.Close() })
		logger.Info().Msg("slot locks in redis")
	} else {
		inf.locker = locker.NewMemoryLocker()
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.publisher = pub
		inf.checks = append(inf.checks, db.Check{Name: "amqp", Ping: pub.Ping})
		inf.closers = append(inf.closers, func() { _ = pub.Close() })
		logger.Info().Str("queue", cfg.AMQPQueue).Msg("publishing events to amqp")
	} else {
		inf.publisher = events.NewLogPublisher(logger)
	}

	if cfg.MinioEndpoint != "" {
		store, err := blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			inf.Close()
			return nil, err
		}
		inf.store = store
		inf.checks = append(inf.checks, db.Check{Name: "minio", Required: true, Ping: store.Ping})
	} else {
		logger.Warn().Msg("MINIO_ENDPOINT not set; documents are kept in memory and lost on restart")
		inf.store = blobstore.NewMemoryStore()
	}

	return inf, nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid config")
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	inf, err := connectInfra(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect backing services")
		return err
	}
	defer inf.Close()

	e := newServer(cfg, logger, pool, inf)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires every domain onto a fresh echo instance. pool may be nil
// in tests that never reach the database.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, inf *infra) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", "25M"))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	var authMW echo.MiddlewareFunc
	if cfg.ResolvedAuthMode() == "development" {
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}

	public := e.Group("/api", middleware.RateLimit(rateLimitCfg))
	api := e.Group("/api", authMW, middleware.RateLimit(rateLimitCfg), middleware.Audit(logger),
		middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/ready", db.HealthHandler(pool, inf.checks...))

	var (
		querier db.Querier
		tx      db.Transactor = db.NewLocalTransactor()
	)
	if pool != nil {
		querier, tx = pool, db.NewTransactor(pool)
	}

	pacSvc := pacientes.NewService(pacientes.NewCesfamRepoPG(querier), pacientes.NewPacienteRepoPG(querier))
	pacientes.NewHandler(pacSvc).RegisterRoutes(public, api)

	medSvc := medicos.NewService(medicos.NewMedicoRepoPG(querier), medicos.NewDisponibilidadRepoPG(querier), inf.publisher, logger)
	medicos.NewHandler(medSvc).RegisterRoutes(api)

	citaSvc := citas.NewService(citas.NewCitaRepoPG(querier), medSvc, pacSvc, medSvc,
		citas.WithTransactor(tx),
		citas.WithLocker(inf.locker, slotLockTTL),
		citas.WithPublisher(inf.publisher),
		citas.WithLogger(logger),
		citas.WithSlotLength(cfg.SlotLength()),
		citas.WithClock(time.Now, cfg.Location()),
	)
	citas.NewHandler(citaSvc).RegisterRoutes(api)
	citas.NewHistorialHandler(citas.NewHistorialService(citas.NewHistorialRepoPG(querier), citaSvc)).RegisterRoutes(api)

	turnoSvc := turnos.NewService(turnos.NewTurnoRepoPG(querier), turnos.NewSolicitudRepoPG(querier),
		tx, medSvc,
		turnos.WithPublisher(inf.publisher),
		turnos.WithLogger(logger),
		turnos.WithClock(time.Now, cfg.Location()),
	)
	turnos.NewHandler(turnoSvc).RegisterRoutes(api)

	docSvc := documentos.NewService(documentos.NewDocumentoRepoPG(querier), inf.store, pacSvc, medSvc, inf.publisher, logger)
	documentos.NewHandler(docSvc).RegisterRoutes(api)

	adminSvc := administradores.NewService(administradores.NewStatsRepoPG(querier),
		administradores.WithClock(time.Now, cfg.Location()))
	administradores.NewHandler(adminSvc).RegisterRoutes(api)

	return e
}
