// Package cli provides the command-line interface for stockwatch.
package cli

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stockwatch/internal/catalog"
	"stockwatch/internal/config"
	"stockwatch/internal/datasource"
	"stockwatch/internal/datasource/local"
	"stockwatch/internal/datasource/rest"
	"stockwatch/internal/errors"
	"stockwatch/internal/quotes"
	"stockwatch/internal/refresh"
	"stockwatch/internal/store"
	"stockwatch/internal/watchlist"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Source    datasource.Source
	Watchlist *watchlist.Store
	Refresh   *refresh.Coordinator

	slot      store.Slot
	snapshots *store.Snapshotter
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "stockwatch",
		Short: "Stock watchlist with trading plans",
		Long: `stockwatch tracks instruments together with a trading plan for each:
strategy, target price, stop loss, conviction and notes.

Records live either in a REST backend (source.mode = "rest") or locally with
quotes scraped from the web (source.mode = "local"). Risk/reward and distance to
target are computed from the current price.

Use 'stockwatch shell' for an interactive session with background refresh.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stockwatch)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addWatchlistCommands(rootCmd, app)
	rootCmd.AddCommand(newShellCmd(app))

	return rootCmd
}

// open builds the data source, store and refresh coordinator from the configuration.
func (a *App) open(ctx context.Context) error {
	if a.Watchlist != nil {
		return nil
	}
	cfg := a.Config

	switch cfg.Source.Mode {
	case config.SourceREST:
		restCfg := rest.DefaultConfig(cfg.Source.BaseURL)
		if cfg.Source.Timeout > 0 {
			restCfg.Timeout = cfg.Source.Timeout
		}
		if cfg.Source.RetryAttempts > 0 {
			restCfg.Retry.MaxAttempts = cfg.Source.RetryAttempts
		}
		client, err := rest.New(restCfg, a.Logger)
		if err != nil {
			return err
		}
		a.Source = client
		a.Logger.Debug().Str("base_url", client.BaseURL()).Msg("REST source initialized")

	default:
		slot, err := store.OpenSlot(ctx, store.SlotConfig{
			Backend:   store.Backend(cfg.Storage.Backend),
			Path:      cfg.Storage.Path,
			RedisAddr: cfg.Storage.RedisAddr,
			Key:       cfg.Storage.Key,
		})
		if err != nil {
			return errors.Wrap(err, "failed to open storage")
		}
		seed, err := store.LoadRecords(ctx, slot)
		if err != nil {
			// Persisting from an empty start would overwrite the stored records.
			slot.Close()
			return errors.Wrapf(err, "stored watchlist (%s) is unreadable, fix or remove it before continuing", cfg.Storage.Backend)
		}

		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			slot.Close()
			return errors.Wrap(err, "failed to load instrument catalog")
		}

		var provider quotes.Provider
		if cfg.Quotes.Enabled {
			provider = quotes.NewScraper(quotes.ScraperConfig{
				URLTemplate: cfg.Quotes.URLTemplate,
				Timeout:     cfg.Quotes.Timeout,
			}, a.Logger)
		}

		a.Source = local.New(seed, cat, provider, a.Logger)
		a.slot = slot
		a.snapshots = store.NewSnapshotter(slot, a.Logger)
		a.Logger.Debug().
			Str("backend", cfg.Storage.Backend).
			Int("records", len(seed)).
			Int("instruments", cat.Len()).
			Msg("Local source initialized")
	}

	a.Watchlist = watchlist.NewStore(a.Source, a.Logger)
	if a.snapshots != nil {
		a.Watchlist.OnChange(a.snapshots.Write)
	}
	a.Refresh = refresh.New(a.Watchlist, a.Source, refresh.Config{
		Interval:     cfg.Refresh.Interval,
		PostAddDelay: cfg.Refresh.PostAddDelay,
	}, a.Logger)
	return nil
}

// load opens the app and runs the first fetch.
func (a *App) load(ctx context.Context) error {
	if err := a.open(ctx); err != nil {
		return err
	}
	return a.Refresh.Load(ctx)
}

// Close stops background work and releases storage.
func (a *App) Close() {
	if a.Refresh != nil {
		a.Refresh.Stop()
	}
	if a.slot != nil {
		if err := a.slot.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.slot = nil
	}
}

// output returns an Output honoring --json and ui.color_enabled.
func (a *App) output(cmd *cobra.Command) *Output {
	out := NewOutput(cmd)
	if !a.Config.UI.ColorEnabled {
		out.DisableColor()
	}
	return out
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newDoctorCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("stockwatch v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := app.output(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	if cfg.Path() != "" {
		output.Dim("Loaded from %s", cfg.Path())
		output.Println()
	}

	output.Bold("Source")
	output.Printf("  Mode:           %s\n", cfg.Source.Mode)
	if cfg.Source.Mode == config.SourceREST {
		output.Printf("  Base URL:       %s\n", cfg.Source.BaseURL)
		output.Printf("  Timeout:        %s\n", cfg.Source.Timeout)
		output.Printf("  Retry attempts: %d\n", cfg.Source.RetryAttempts)
	}
	output.Println()

	output.Bold("Refresh")
	output.Printf("  Interval:       %s\n", cfg.Refresh.Interval)
	output.Printf("  After add:      %s\n", cfg.Refresh.PostAddDelay)
	output.Println()

	if cfg.IsLocal() {
		output.Bold("Storage")
		output.Printf("  Backend:        %s\n", cfg.Storage.Backend)
		switch cfg.Storage.Backend {
		case config.StorageSQLite:
			output.Printf("  Path:           %s\n", cfg.Storage.Path)
		case config.StorageRedis:
			output.Printf("  Redis:          %s\n", cfg.Storage.RedisAddr)
		}
		output.Printf("  Key:            %s\n", cfg.Storage.Key)
		output.Println()

		output.Bold("Quotes")
		output.Printf("  Enabled:        %v\n", cfg.Quotes.Enabled)
		output.Printf("  URL:            %s\n", cfg.Quotes.URLTemplate)
		catalogPath := cfg.Catalog.Path
		if strings.TrimSpace(catalogPath) == "" {
			catalogPath = "(built-in)"
		}
		output.Printf("  Catalog:        %s\n", catalogPath)
		output.Println()
	}

	output.Bold("Logging")
	output.Printf("  Level:          %s\n", cfg.Logging.Level)
	output.Printf("  File:           %v\n", cfg.Logging.File)
	output.Printf("  Tracing:        %v\n", cfg.Tracing.Enabled)

	return nil
}
