package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AnotherFoxGuy/sogeBot/internal/bus"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/api"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/auth"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/config"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/db"
	"github.com/AnotherFoxGuy/sogeBot/internal/core/server"
	"github.com/AnotherFoxGuy/sogeBot/internal/operations"
	"github.com/AnotherFoxGuy/sogeBot/internal/platform"
	"github.com/AnotherFoxGuy/sogeBot/internal/state"
	"github.com/AnotherFoxGuy/sogeBot/internal/store"
	"github.com/AnotherFoxGuy/sogeBot/internal/trigger"
)

const Version = "0.1.0"

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the event engine and its gRPC admin API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")
}

// loadConfig applies the --config file and the --db-url override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	return cfg, nil
}

// openQueries opens the database and refuses to continue with pending migrations.
func openQueries(cfg *config.Config) (*db.Queries, func() error, error) {
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	statuses, err := db.MigrateStatus(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, st := range statuses {
		if !st.Applied {
			database.Close()
			return nil, nil, fmt.Errorf("migration %s not applied - run 'sogebot migrate up' first", st.ID)
		}
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return queries, database.Close, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set SB_HMAC_SECRET environment variable)")
	}

	queries, closeDB, err := openQueries(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	rules := store.NewRuleStore(queries)
	users := store.NewUserStore(queries)
	variables := store.NewVariableStore(queries)
	stream := state.New(cfg.MainCurrency)

	platformClient := platform.NewClient(platform.Config{
		BaseURL:           cfg.Platform.BaseURL,
		ClientID:          cfg.Platform.ClientID,
		Token:             cfg.Platform.Token,
		RequestsPerSecond: cfg.Platform.RequestsPerSecond,
	})

	var publisher bus.Publisher = &bus.NoopPublisher{}
	var subscriber bus.Subscriber
	if cfg.NATSURL != "" {
		pub, err := bus.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		sub, err := bus.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			pub.Close()
			return err
		}
		publisher, subscriber = pub, sub
		defer sub.Close()
	} else {
		logger.Warn("no NATS URL configured, operation side effects are discarded and no events are ingested")
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := trigger.NewMetrics(reg)

	owner := cfg.Bot.Broadcaster
	if len(cfg.Bot.Owners) > 0 {
		owner = cfg.Bot.Owners[0]
	}
	catalog := operations.NewCatalog(operations.Deps{
		Publisher: publisher,
		Platform:  platformClient,
		Stream:    stream,
		Variables: variables,
		Users:     users,
		Owner:     owner,
		Logger:    logger,
	})

	executor := trigger.NewExecutor(cfg.Engine.ExecutorWorkers, cfg.Engine.ExecutorQueue,
		trigger.WithExecutorMetrics(metrics),
		trigger.WithExecutorLogger(logger),
	)
	if err := executor.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start executor: %w", err)
	}

	engine := trigger.New(trigger.Deps{
		Rules:      rules,
		Users:      users,
		Lookup:     platformClient,
		Stream:     stream,
		Variables:  variables,
		Operations: catalog,
		Executor:   executor,
		Identity: trigger.BotIdentity{
			BotName:     cfg.Bot.Name,
			Broadcaster: cfg.Bot.Broadcaster,
			Owners:      cfg.Bot.Owners,
		},
		Metrics:     metrics,
		Logger:      logger,
		DecayPeriod: cfg.Engine.DecayPeriod,
	})
	stream.OnStreamEnd(func() {
		engine.OnStreamEnd(context.WithoutCancel(ctx))
	})

	authenticator := auth.NewAuthenticator(secrets, queries)
	service, err := api.NewAdminService(engine, rules, cfg.Server.RequestTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.Server, service, authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Decayer().Run(gctx)
	})
	if subscriber != nil {
		g.Go(func() error {
			return bus.Ingest(gctx, subscriber, bus.TopicEventFire, engine, logger)
		})
		g.Go(func() error {
			return state.Feed(gctx, subscriber, bus.TopicStreamState, stream, logger)
		})
	}

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("starting sogeBot event engine",
			"version", Version, "host", cfg.Server.Host, "port", cfg.Server.Port)
		return grpcServer.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := executor.Stop(shutdownTimeout); err != nil {
			errs = append(errs, err)
		}
		if err := users.Flush(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("flushing users: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
