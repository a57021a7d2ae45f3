package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/live-caption-translator/internal/cache"
	"github.com/MimeLyc/live-caption-translator/internal/config"
	"github.com/MimeLyc/live-caption-translator/internal/httpapi"
	"github.com/MimeLyc/live-caption-translator/internal/jobs"
	"github.com/MimeLyc/live-caption-translator/internal/persistence"
	"github.com/MimeLyc/live-caption-translator/internal/service"
	"github.com/MimeLyc/live-caption-translator/internal/stats"
	"github.com/MimeLyc/live-caption-translator/internal/termmap"
	"github.com/MimeLyc/live-caption-translator/internal/translator"
	"github.com/MimeLyc/live-caption-translator/pkg/log"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalFlags struct {
	envFile string
	dataDir string
	server  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "caption-translator",
		Short:        "Translate live captions into Japanese",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", flags.envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "directory of the SQLite database (overrides DATA_DIR)")
	root.PersistentFlags().StringVar(&flags.server, "server", "", "coordinator URL; runs in-process when empty")

	root.AddCommand(
		serveCmd(flags),
		watchCmd(flags),
		statusCmd(flags),
		statsCmd(flags),
		settingsCmd(flags),
		cacheCmd(flags),
	)
	return root
}

func loadConfig(flags *globalFlags, extra ...config.Option) (*config.Config, error) {
	var opts []config.Option
	if flags.dataDir != "" {
		opts = append(opts, config.WithDataDir(flags.dataDir))
	}
	opts = append(opts, extra...)

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))
	return cfg, nil
}

// app holds the components shared by every command that touches the store.
type app struct {
	cfg         *config.Config
	store       *persistence.SQLiteStore
	settings    *config.RuntimeSettingsStore
	cache       *cache.Cache
	counters    *stats.Counters
	coordinator *service.Coordinator
}

func openApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		settings: config.NewRuntimeSettingsStore(store, cfg.LLM.APIKey, cfg.System.SettingsFile),
		cache:    cache.New(store),
		counters: stats.NewCounters(store),
	}
	a.coordinator = service.NewCoordinator(
		a.settings,
		store,
		a.cache,
		a.counters,
		jobs.NewQueue(cfg.Coordinator.Workers),
		translatorFactory(cfg),
	)
	return a, nil
}

func (a *app) Close() {
	a.coordinator.Stop()
	if err := a.store.Close(); err != nil {
		log.Warn("Failed to close store: %v", err)
	}
}

func translatorFactory(cfg *config.Config) service.TranslatorFactory {
	var opts []translator.Option
	target := cfg.Translate.TargetLanguage.String()
	if path := termmap.Resolve(cfg.Translate.GlossaryFile, cfg.System.DataDir, "en", target); path != "" {
		if glossary, err := termmap.Load(path); err != nil {
			log.Warn("Ignoring glossary %s: %v", path, err)
		} else {
			log.Info("Loaded %d glossary terms from %s", len(glossary), path)
			opts = append(opts, translator.WithGlossary(glossary))
		}
	}

	return func(apiKey string) (translator.Translator, error) {
		return translator.New(
			translator.Backend(cfg.LLM.Backend),
			cfg.LLM.ClientConfig(apiKey),
			cfg.Translate.TargetLanguage,
			opts...,
		)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			if addr != "" {
				opts = append(opts, config.WithHTTPAddr(addr))
			}
			cfg, err := loadConfig(flags, opts...)
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if cfg.System.SettingsFile != "" {
				watcher := config.NewSettingsWatcher(cfg.System.SettingsFile, a.settings)
				if err := watcher.Start(ctx); err != nil {
					log.Warn("Failed to watch settings file: %v", err)
				}
				defer watcher.Stop()
			}

			a.coordinator.Start()
			maintenance := service.NewMaintenance(a.store, a.cache, a.counters, cfg.Maintenance.CronExpr)
			cronEngine := cron.New()
			httpSrv := httpapi.NewServer(a.coordinator, httpapi.WithMaintenance(maintenance))

			return runWithComponents(ctx, cfg,
				maintenanceScheduler{maintenance: maintenance, cron: cronEngine},
				cronEngine,
				httpSrv,
				a.coordinator.Run,
			)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type maintenanceScheduler struct {
	maintenance *service.Maintenance
	cron        *cron.Cron
}

func (m maintenanceScheduler) Schedule(ctx context.Context) error {
	return m.maintenance.Schedule(ctx, m.cron)
}

// runWithComponents blocks until ctx is done or the HTTP server fails.
func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	scheduler scheduler,
	cronEngine cronEngine,
	httpSrv httpServer,
	background ...func(context.Context) error,
) error {
	if err := scheduler.Schedule(ctx); err != nil {
		return err
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range background {
		g.Go(func() error {
			return run(gctx)
		})
	}
	g.Go(func() error {
		log.Info("Coordinator API listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// adminAPI is served by the coordinator in-process and by httpapi.Client remotely.
type adminAPI interface {
	Settings(ctx context.Context) (service.SettingsView, error)
	UpdateSettings(ctx context.Context, u config.SettingsUpdate) (service.SettingsView, error)
	Stats(ctx context.Context) (service.StatsReport, error)
	Status(ctx context.Context) (service.StatusReport, error)
	CacheEntries(ctx context.Context) ([]cache.Entry, error)
	ClearCache(ctx context.Context) error
}

// withAdmin runs fn against the remote coordinator when --server is set and
// against the local store otherwise.
func withAdmin(flags *globalFlags, fn func(ctx context.Context, api adminAPI, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if flags.server != "" {
			client := httpapi.NewClient(flags.server, "cli")
			defer client.Close()
			return fn(ctx, client, cmd.OutOrStdout())
		}
		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a.coordinator, cmd.OutOrStdout())
	}
}

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether translation is ready",
		RunE: withAdmin(flags, func(ctx context.Context, api adminAPI, out io.Writer) error {
			report, err := api.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, report.Status)
			fmt.Fprintf(out, "API key:             %s\n", yesNo(report.HasAPIKey))
			fmt.Fprintf(out, "Enabled:             %s\n", yesNo(report.Enabled))
			fmt.Fprintf(out, "Connected clients:   %d\n", report.ConnectedClients)
			fmt.Fprintf(out, "Outstanding jobs:    %d\n", report.OutstandingJobs)
			fmt.Fprintf(out, "Cached translations: %d\n", report.CachedTranslations)
			return nil
		}),
	}
}

func statsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show translation counters",
		RunE: withAdmin(flags, func(ctx context.Context, api adminAPI, out io.Writer) error {
			report, err := api.Stats(ctx)
			if err != nil {
				return err
			}
			printStats(out, report)
			return nil
		}),
	}
}

func printStats(out io.Writer, report service.StatsReport) {
	fmt.Fprintf(out, "Translations:        %d\n", report.SessionCount)
	fmt.Fprintf(out, "Cache hits:          %d\n", report.CacheCount)
	fmt.Fprintf(out, "Cached translations: %d\n", report.CachedTranslations)
}

func settingsCmd(flags *globalFlags) *cobra.Command {
	var (
		apiKey  string
		enable  bool
		disable bool
	)
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the API key and the enabled switch",
		RunE: withAdmin(flags, func(ctx context.Context, api adminAPI, out io.Writer) error {
			if enable && disable {
				return errors.New("--enable and --disable are mutually exclusive")
			}
			var update config.SettingsUpdate
			if apiKey != "" {
				update.APIKey = &apiKey
			}
			if enable || disable {
				enabled := enable
				update.Enabled = &enabled
			}

			var (
				view service.SettingsView
				err  error
			)
			if update.APIKey == nil && update.Enabled == nil {
				view, err = api.Settings(ctx)
			} else {
				view, err = api.UpdateSettings(ctx, update)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, view.Status)
			if view.MaskedAPIKey != "" {
				fmt.Fprintf(out, "API key: %s\n", view.MaskedAPIKey)
			}
			fmt.Fprintf(out, "Enabled: %s\n", yesNo(view.Enabled))
			return nil
		}),
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "store a new API key")
	cmd.Flags().BoolVar(&enable, "enable", false, "turn translation on")
	cmd.Flags().BoolVar(&disable, "disable", false, "turn translation off")
	return cmd
}

func cacheCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the translation cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached translations",
			RunE: withAdmin(flags, func(ctx context.Context, api adminAPI, out io.Writer) error {
				entries, err := api.CacheEntries(ctx)
				if err != nil {
					return err
				}
				for _, e := range entries {
					lang := e.Language
					if lang == "" {
						lang = "??"
					}
					fmt.Fprintf(out, "[%s] %s\n     %s\n", lang, e.Source, e.Translated)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached translation and reset the counters",
			RunE: withAdmin(flags, func(ctx context.Context, api adminAPI, out io.Writer) error {
				if err := api.ClearCache(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Translation cache cleared")
				return nil
			}),
		},
	)
	return cmd
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
