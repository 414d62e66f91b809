// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"topster/internal/cache"
	"topster/internal/config"
	"topster/internal/extract"
	"topster/internal/httputil"
	"topster/internal/provider"
	"topster/internal/retry"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig   string
	flagBaseURL  string
	flagProvider string
	flagLanguage string
	flagCache    string
	flagJSON     bool
	flagDebug    bool
)

// app holds what every command needs, built once per invocation.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	client  *httputil.Client
	cache   *cache.Cache
	catalog *provider.FlixHQ
}

var cli *app

var rootCmd = &cobra.Command{
	Use:   "topster",
	Short: "Resolve movies and TV shows to playable streams",
	Long: `Topster searches a streaming catalog and resolves its servers into
direct HLS URLs with the referer and subtitles a player needs.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/topster/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "Catalog base URL")
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "", "Preferred server: Vidcloud | UpCloud | MegaCloud | RapidCloud | StreamSB")
	rootCmd.PersistentFlags().StringVarP(&flagLanguage, "language", "l", "", "Subtitle language (default: english)")
	rootCmd.PersistentFlags().StringVar(&flagCache, "cache", "", "Cache backend: memory | sqlite | none")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(trendingCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(seasonsCmd)
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagLanguage != "" {
		cfg.SubsLanguage = flagLanguage
	}
	if flagCache != "" {
		cfg.Cache.Backend = flagCache
	}
	if flagDebug {
		cfg.Log.Level = "debug"
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := cfg.Log.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	c, err := cache.Open(cmd.Context(), cfg.Cache, log)
	if err != nil {
		// A broken cache should not block lookups.
		log.Warn("cache disabled", zap.Error(err))
		c = nil
	}

	client := httputil.NewClient(httputil.WithTimeout(cfg.Timeout.Duration), httputil.WithLogger(log))
	policy := retry.Policy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay.Duration, Log: log}

	registry := extract.DefaultRegistry(extract.Extractors{
		MegaCloud:  extract.NewMegaCloud(client, cfg.Backends.MegaCloudBase, log),
		VidCloud:   extract.NewVidCloud(client, cfg.Backends.DecryptAPI, policy, log),
		RapidCloud: extract.NewRapidCloud(client, cfg.Backends.RapidKeyURL, cfg.Backends.RapidFallbackKey, log),
		StreamSB:   extract.NewStreamSB(client, cfg.Backends.StreamSBHosts, log),
	}, log)

	cli = &app{
		cfg:    cfg,
		log:    log,
		client: client,
		cache:  c,
		catalog: provider.NewFlixHQ(cfg.BaseURL, provider.Options{
			Client:    client,
			Cache:     c,
			Registry:  registry,
			Preferred: cfg.Provider,
			Retry:     policy,
			Log:       log,
		}),
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if cli == nil {
		return nil
	}
	_ = cli.log.Sync()
	return cli.cache.Close()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	// No config, cache or network needed.
	PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
	PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "topster", Version)
	},
}
