package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"stockwatch/internal/datasource"
	"stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/watchlist"
)

// addWatchlistCommands adds the record commands.
func addWatchlistCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newListCmd(app))
	rootCmd.AddCommand(newAddCmd(app))
	rootCmd.AddCommand(newSetCmd(app))
	rootCmd.AddCommand(newRemoveCmd(app))
	rootCmd.AddCommand(newSearchCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))
}

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := app.output(cmd)

			if err := app.load(cmd.Context()); err != nil {
				output.Error("Failed to load watchlist: %v", err)
				return err
			}
			renderWatchlist(output, app.Watchlist.Entries())
			return nil
		},
	}
}

func newAddCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <code>...",
		Short: "Add instruments to the watchlist",
		Example: `  stockwatch add NVDA
  stockwatch add sh.600000 AAPL`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := app.output(cmd)
			ctx := cmd.Context()

			if err := app.load(ctx); err != nil {
				output.Error("Failed to load watchlist: %v", err)
				return err
			}

			var firstErr error
			var added []watchlist.Entry
			for _, code := range args {
				record, err := app.Watchlist.Add(ctx, code)
				if err != nil {
					output.Error("Failed to add %s: %v", code, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				entry, _ := app.Watchlist.Get(record.ID)
				added = append(added, entry)
				if !output.IsJSON() {
					output.Success("✓ Added %s %s", record.InstrumentCode, record.DisplayName)
				}
			}

			if output.IsJSON() {
				_ = output.JSON(viewsOf(added))
			}
			return firstErr
		},
	}
}

func newSetCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <row|id|code>",
		Short: "Edit and save the trading plan of a record",
		Example: `  stockwatch set 1 --strategy buy_ready --target 500 --stop 420
  stockwatch set NVDA --conviction 5 --notes "earnings next week"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := app.output(cmd)
			ctx := cmd.Context()

			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return fmt.Errorf("nothing to change, pass at least one of --%s", strings.Join(fieldNames, ", --"))
			}

			if err := app.load(ctx); err != nil {
				output.Error("Failed to load watchlist: %v", err)
				return err
			}
			entry, ok := app.Watchlist.Resolve(args[0])
			if !ok {
				return errors.Wrapf(errors.ErrRecordNotFound, "%s", args[0])
			}

			if _, err := app.Watchlist.Edit(entry.Record.ID, patch); err != nil {
				return err
			}
			saved, err := app.Watchlist.Save(ctx, entry.Record.ID)
			if err != nil {
				output.Error("Save failed, changes rolled back: %v", err)
				return err
			}

			current, _ := app.Watchlist.Get(saved.ID)
			if !output.IsJSON() {
				output.Success("✓ Saved %s", saved.InstrumentCode)
			}
			renderRecord(output, rowOf(app.Watchlist.Entries(), saved.ID), current)
			return nil
		},
	}

	cmd.Flags().String("strategy", "", "strategy: watch, buy_ready, sell_ready, holding")
	cmd.Flags().String("target", "", "target price (empty clears)")
	cmd.Flags().String("stop", "", "stop loss (empty clears)")
	cmd.Flags().Int("conviction", 0, "conviction from 1 to 5")
	cmd.Flags().String("notes", "", "free-form notes")
	return cmd
}

// patchFromFlags builds a patch from the flags the user actually set.
func patchFromFlags(cmd *cobra.Command) (models.PlanPatch, error) {
	var patch models.PlanPatch
	for _, name := range fieldNames {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		p, err := parseField(name, flag.Value.String())
		if err != nil {
			return patch, err
		}
		patch = mergePatch(patch, p)
	}
	return patch, nil
}

func mergePatch(dst, src models.PlanPatch) models.PlanPatch {
	if src.Strategy != nil {
		dst.Strategy = src.Strategy
	}
	if src.TargetPrice != nil {
		dst.TargetPrice = src.TargetPrice
	}
	if src.StopLoss != nil {
		dst.StopLoss = src.StopLoss
	}
	if src.Conviction != nil {
		dst.Conviction = src.Conviction
	}
	if src.Notes != nil {
		dst.Notes = src.Notes
	}
	return dst
}

func newRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <row|id|code>...",
		Aliases: []string{"remove"},
		Short:   "Remove records from the watchlist",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := app.output(cmd)
			ctx := cmd.Context()

			if err := app.load(ctx); err != nil {
				output.Error("Failed to load watchlist: %v", err)
				return err
			}

			// Resolve every reference first, row numbers shift as records go.
			var targets []watchlist.Entry
			for _, ref := range args {
				entry, ok := app.Watchlist.Resolve(ref)
				if !ok {
					return errors.Wrapf(errors.ErrRecordNotFound, "%s", ref)
				}
				targets = append(targets, entry)
			}

			var firstErr error
			removed := make([]string, 0, len(targets))
			for _, entry := range targets {
				if err := app.Watchlist.Remove(ctx, entry.Record.ID); err != nil {
					output.Error("Failed to remove %s: %v", entry.Record.InstrumentCode, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				removed = append(removed, entry.Record.ID)
				if !output.IsJSON() {
					output.Success("✓ Removed %s", entry.Record.InstrumentCode)
				}
			}
			if output.IsJSON() {
				_ = output.JSON(map[string][]string{"removed": removed})
			}
			return firstErr
		},
	}
}

func newSearchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search instruments by code or name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := app.output(cmd)

			results, err := search(cmd.Context(), app, strings.Join(args, " "))
			if err != nil {
				return err
			}
			renderSearch(output, results)
			return nil
		},
	}
}

func search(ctx context.Context, app *App, keyword string) ([]models.SearchResult, error) {
	if utf8.RuneCountInString(strings.TrimSpace(keyword)) < datasource.MinSearchLength {
		return nil, fmt.Errorf("%w: type at least %d characters", errors.ErrKeywordTooShort, datasource.MinSearchLength)
	}
	if err := app.open(ctx); err != nil {
		return nil, err
	}
	return app.Watchlist.Search(ctx, keyword)
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the watchlist and refresh it until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			output := app.output(cmd)
			ctx := cmd.Context()

			if err := app.open(ctx); err != nil {
				return err
			}

			var mu sync.Mutex
			redraw := func() {
				mu.Lock()
				defer mu.Unlock()
				if !output.IsJSON() && output.colorEnabled {
					output.Printf("\033[H\033[2J")
				}
				renderWatchlist(output, app.Watchlist.Entries())
				if !output.IsJSON() {
					output.Dim("Updated %s, refreshing every %s. Ctrl+C to stop.",
						time.Now().Format("15:04:05"), app.Config.Refresh.Interval)
				}
			}
			app.Refresh.OnRefreshed(redraw)

			if err := app.Refresh.Start(ctx); err != nil {
				output.Error("Failed to load watchlist: %v", err)
				output.Dim("Retrying every %s.", app.Config.Refresh.Interval)
			}

			<-ctx.Done()
			return nil
		},
	}
}

// rowOf returns the 1-based row of id, or 0 if it is not listed.
func rowOf(entries []watchlist.Entry, id string) int {
	for i, e := range entries {
		if e.Record.ID == id {
			return i + 1
		}
	}
	return 0
}
