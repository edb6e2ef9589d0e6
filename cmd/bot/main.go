package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crenors/guildbot/internal/api"
	"crenors/guildbot/internal/bot"
	"crenors/guildbot/internal/common"
	"crenors/guildbot/internal/config"
	"crenors/guildbot/internal/db"
	"crenors/guildbot/internal/db/repositories"
	"crenors/guildbot/internal/jobs"
	"crenors/guildbot/internal/logging"
	"crenors/guildbot/internal/metrics"
	"crenors/guildbot/internal/providers"
	"crenors/guildbot/internal/routes"
	"crenors/guildbot/internal/services"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.StringP("config", "c", config.DefaultPath, "path to config.yml (created with defaults if missing)")
	nodeID := flag.Int64("node", 1, "snowflake node id for poll ids (0-1023)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "development"
	}
	if err := logging.Init(appEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	if err := run(*configPath, *nodeID); err != nil {
		logging.Fatal("Bot stopped with error", "error", err)
	}
	logging.Info("Bot stopped")
}

func run(configPath string, nodeID int64) error {
	upSince := time.Now()

	store, err := config.Open(configPath)
	if err != nil {
		return err
	}
	cfg := store.Current()
	if err := cfg.Validate(); err != nil {
		return err
	}
	logging.Info("Guild bot starting up",
		"config", configPath,
		"database", cfg.Database.Driver,
		"cache", cfg.Cache.Backend,
	)

	orm, err := db.InitORM(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(orm); err != nil {
		return err
	}
	reader, err := db.NewReader(orm)
	if err != nil {
		return err
	}

	cache := common.NewCache(cfg.Cache)
	defer cache.Close()

	metricsReg := metrics.NewMetricsRegistry(prometheus.DefaultRegisterer)

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}

	session, err := discordgo.New("Bot " + cfg.Bot.Token)
	if err != nil {
		return err
	}
	transport := providers.NewDiscordTransport(session)

	leveling := services.NewLevelingService(services.LevelingServiceConfig{
		Users:       repositories.NewUserLevelRepo(orm),
		Leaderboard: repositories.NewLeaderboardRepo(reader),
		Transport:   transport,
		Cooldowns:   cache,
		Config:      store,
		Metrics:     metricsReg,
	})
	polls := services.NewPollService(services.PollServiceConfig{
		Polls:   repositories.NewPollRepo(orm),
		IDs:     node,
		Config:  store,
		Metrics: metricsReg,
	})
	tickets := services.NewTicketService(services.TicketServiceConfig{
		Tickets:   repositories.NewTicketRepo(orm, reader),
		Transport: transport,
		Config:    store,
		Metrics:   metricsReg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	active, err := polls.LoadActive(ctx)
	if err != nil {
		return err
	}
	logging.Info("Active polls loaded", "count", active)

	router := bot.NewRouter(bot.RouterConfig{
		Leveling:  leveling,
		Polls:     polls,
		Tickets:   tickets,
		Transport: transport,
		Metrics:   metricsReg,
	})
	gateway := bot.NewGateway(ctx, session, router, cfg.Bot.Status)

	scheduler, err := jobs.InitializeJobs(metricsReg, jobs.Sweepers{
		Voice:    leveling,
		Boosters: leveling,
		Polls:    polls,
		Tickets:  tickets,
	})
	if err != nil {
		return err
	}

	if err := gateway.Open(); err != nil {
		return err
	}
	defer gateway.Close()
	logging.Info("Gateway connected")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start(gctx).Wait()
		return nil
	})

	g.Go(func() error {
		return watchReload(gctx, store)
	})

	if cfg.API.Enabled {
		deps := &api.Dependencies{
			DB:    reader,
			Cache: cache,
			Services: &api.Services{
				Leveling:  leveling,
				Polls:     polls,
				Tickets:   tickets,
				Publisher: router,
				Jobs:      scheduler,
			},
			UpSince: upSince,
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/", routes.RegisterRoutes(deps, cfg.API, metricsReg))

		srv := &http.Server{
			Addr:              cfg.API.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logging.Info("API server starting", "addr", cfg.API.Addr, "environment", os.Getenv("APP_ENV"))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// watchReload re-reads the config file on SIGHUP until ctx is done.
func watchReload(ctx context.Context, store *config.Store) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := store.Reload(); err != nil {
				logging.Error("Config reload failed", "error", err)
				continue
			}
			logging.Info("Config reloaded")
		}
	}
}
