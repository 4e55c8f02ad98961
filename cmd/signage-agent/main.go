package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"

	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/assets"
	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/mpv"
	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/signageapi"
	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/signage-agent/internal/adapters/statefile"
	"github.com/Guilhem-Bonnet/signage-agent/internal/app"
	"github.com/Guilhem-Bonnet/signage-agent/internal/buildinfo"
	"github.com/Guilhem-Bonnet/signage-agent/internal/config"
	"github.com/Guilhem-Bonnet/signage-agent/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("signage-agent", flag.ContinueOnError)
	configPath := fs.String("config", envOr(config.EnvPrefix+"CONFIG", config.DefaultPath()), "Chemin du fichier signage.json")
	showVersion := fs.Bool("version", false, "Affiche la version et quitte")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: signage-agent [-config path] [-version]")
		return 2
	}
	if *showVersion {
		fmt.Println(buildinfo.Current().Version)
		return 0
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "signage-agent").Logger()
	log.Logger = logger

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Str("config", *configPath).Msg("failed to load config")
		return 1
	}
	setLogLevel(logger, cfg.LogLevel)
	logger.Info().Interface("build", buildinfo.Current()).Str("config", cfg.ConfigPath).Str("device_id", cfg.ID).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	store := statefile.New(cfg.StatePath(), cfg.ManifestPath())
	state, err := store.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.StatePath()).Msg("failed to load sync state")
		return 1
	}

	db, err := sqlite.Open(ctx, cfg.JournalPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.JournalPath).Msg("failed to open sync journal")
		return 1
	}
	defer func() { _ = db.Close() }()
	journal := sqlite.NewJournalRepository(db.SQL)

	bus := memorybus.New()
	defer bus.Close()

	api := signageapi.New(apiSettings(cfg), logger.With().Str("component", "signageapi").Logger())
	assetStore := assets.New(cfg.AssetsDir(), cfg.DownloadTimeout, cfg.AllowedAssetHosts, logger.With().Str("component", "assets").Logger())

	player := mpv.New(mpv.Options{
		Binary:               cfg.PlayerBinary,
		Manifest:             cfg.ManifestPath(),
		Socket:               cfg.PlayerSocket,
		ImageDisplayDuration: cfg.ImageDisplayDuration,
		Env:                  map[string]string{"DISPLAY": cfg.Display},
	}, bus, logger.With().Str("component", "player").Logger())

	if err := player.Start(ctx); err != nil {
		logger.Error().Err(err).Str("binary", cfg.PlayerBinary).Msg("failed to start player")
		return 1
	}
	defer stopPlayer(player, logger)

	if err := api.WaitReady(ctx); err != nil {
		logger.Info().Err(err).Msg("interrupted while waiting for server")
		return 0
	}
	bootstrapKey(ctx, api, cfg.ConfigPath, logger)

	syncer := app.NewContentSynchronizer(api, assetStore, store, journal, bus, logger.With().Str("component", "sync").Logger())
	scheduled := app.NewScheduleAware(api, syncer, bus, logger.With().Str("component", "schedule").Logger())
	legacy := app.NewLegacy(api, syncer, cfg.FallbackInterval, logger.With().Str("component", "legacy").Logger())
	chain := app.NewFallbackChain(logger.With().Str("component", "updates").Logger(), scheduled, legacy)

	status := app.NewStatusTracker(time.Now().UTC())
	agent := app.NewAgent(state, chain, player, status, logger.With().Str("component", "agent").Logger())
	agent.SettleDelay = cfg.SettleDelay
	agent.FallbackInterval = cfg.FallbackInterval
	agent.WithReload(hup, func(ctx context.Context) (domain.SyncState, error) {
		next, err := config.Load(cfg.ConfigPath)
		if err != nil {
			return domain.SyncState{}, err
		}
		if next.DataDir != cfg.DataDir || next.StatusAddr != cfg.StatusAddr || next.PlayerBinary != cfg.PlayerBinary {
			logger.Warn().Msg("data_dir, status_addr and player_binary changes need a restart")
		}
		st, err := store.Load(ctx)
		if err != nil {
			return domain.SyncState{}, err
		}
		api.Configure(apiSettings(next))
		assetStore.SetAllowedHosts(next.AllowedAssetHosts)
		setLogLevel(logger, next.LogLevel)
		agent.SettleDelay = next.SettleDelay
		agent.FallbackInterval = next.FallbackInterval
		return st, nil
	})

	sup := suture.New("signage-agent", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn().Fields(e.Map()).Msg(e.String())
		},
		Timeout: 15 * time.Second,
	})
	sup.Add(agent)
	sup.Add(app.NewStatusUpdater(logger.With().Str("component", "status").Logger(), bus, status))
	if cfg.StatusAddr != "" {
		srv := httpapi.NewServer(logger.With().Str("component", "httpapi").Logger(), status, journal, bus)
		sup.Add(httpapi.NewService(cfg.StatusAddr, srv.Router(), logger.With().Str("component", "httpapi").Logger()))
	}

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor stopped")
	}
	logger.Info().Msg("shutting down")
	scheduled.Wait()
	logger.Info().Msg("bye")
	return 0
}

func apiSettings(cfg config.Config) signageapi.Settings {
	return signageapi.Settings{
		BaseURL:       cfg.URL,
		DeviceID:      cfg.ID,
		Username:      cfg.Username,
		Password:      cfg.Password,
		CredentialTTL: cfg.CredentialTTL,
		Timeout:       cfg.HTTPTimeout,
	}
}

// bootstrapKey demande une clé au démarrage et la garde dans signage.json.
// Un échec n'empêche pas de démarrer: chaque appel privilégié redemande une clé.
func bootstrapKey(ctx context.Context, api *signageapi.Client, path string, logger zerolog.Logger) {
	key, err := api.NewKey(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("kind", domain.KindName(err)).Msg("initial key request failed")
		return
	}
	if err := config.WriteKey(path, key); err != nil {
		logger.Warn().Err(err).Str("config", path).Msg("failed to persist key")
		return
	}
	logger.Info().Msg("device key refreshed")
}

func stopPlayer(player *mpv.Supervisor, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := player.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to stop player")
	}
}

func setLogLevel(logger zerolog.Logger, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logger.Warn().Str("log_level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
