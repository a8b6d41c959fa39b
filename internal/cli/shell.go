package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"stockwatch/internal/config"
	"stockwatch/internal/errors"
	"stockwatch/internal/watchlist"
)

func newShellCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive watchlist session with background refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			ctx := cmd.Context()

			if err := app.open(ctx); err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:            "stockwatch> ",
				HistoryFile:       filepath.Join(config.DefaultConfigDir(), "history"),
				AutoComplete:      shellCompleter(),
				InterruptPrompt:   "^C",
				EOFPrompt:         "quit",
				HistorySearchFold: true,
			})
			if err != nil {
				return err
			}
			defer rl.Close()

			out := newOutputTo(rl.Stdout(), false, app.Config.UI.ColorEnabled && isTerminal())
			sh := &shell{app: app, out: out}

			if err := app.Refresh.Start(ctx); err != nil {
				out.Error("Failed to load watchlist: %v", err)
				out.Dim("Retrying every %s. Type 'refresh' to retry now.", app.Config.Refresh.Interval)
			} else {
				renderWatchlist(out, app.Watchlist.Entries())
			}
			out.Dim("Type 'help' for commands.")

			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					if len(line) == 0 {
						return nil
					}
					continue
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if ctx.Err() != nil {
					return nil
				}

				quit, err := sh.exec(ctx, line)
				if err != nil {
					out.Error("%v", err)
				}
				if quit {
					return nil
				}
			}
		},
	}
}

func shellCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("ls"),
		readline.PcItem("add"),
		readline.PcItem("edit"),
		readline.PcItem("save"),
		readline.PcItem("revert"),
		readline.PcItem("rm"),
		readline.PcItem("search"),
		readline.PcItem("refresh"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

const shellHelp = `Commands:
  ls                          show the watchlist
  add <code>...               add instruments
  edit <row> <field> <value>  change strategy, target, stop, conviction or notes
  save <row>                  save pending edits of a row
  revert <row>                discard pending edits of a row
  rm <row>                    remove a row
  search <keyword>            search instruments
  refresh                     fetch the latest snapshot now
  status                      show refresh status
  quit                        leave the shell`

// shell executes interactive commands against an opened App.
type shell struct {
	app *App
	out *Output

	// confirmQuit is set after a quit was refused because of unsaved edits.
	confirmQuit bool
}

// exec runs one command line. quit is true when the session should end.
func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	if cmd != "quit" && cmd != "exit" && cmd != "q" {
		s.confirmQuit = false
	}
	store := s.app.Watchlist

	switch cmd {
	case "ls", "list":
		renderWatchlist(s.out, store.Entries())

	case "add":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: add <code>...")
		}
		for _, code := range args {
			record, err := store.Add(ctx, code)
			if err != nil {
				s.out.Error("Failed to add %s: %v", code, err)
				continue
			}
			s.out.Success("✓ Added %s %s", record.InstrumentCode, record.DisplayName)
		}

	case "edit", "set":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: edit <row> <field> <value>")
		}
		entry, err := s.resolve(args[0])
		if err != nil {
			return false, err
		}
		patch, err := parseField(args[1], afterTokens(line, 3))
		if err != nil {
			return false, err
		}
		if _, err := store.Edit(entry.Record.ID, patch); err != nil {
			return false, err
		}
		if state, _ := store.State(entry.Record.ID); state != nil && state.Pending() {
			s.out.Dim("%s has unsaved changes, 'save %s' to keep them", entry.Record.InstrumentCode, args[0])
		}

	case "save":
		entry, err := s.resolveArg(args)
		if err != nil {
			return false, err
		}
		saved, err := store.Save(ctx, entry.Record.ID)
		if err != nil {
			return false, fmt.Errorf("save failed, changes rolled back: %w", err)
		}
		s.out.Success("✓ Saved %s", saved.InstrumentCode)

	case "revert":
		entry, err := s.resolveArg(args)
		if err != nil {
			return false, err
		}
		if _, err := store.Revert(entry.Record.ID); err != nil {
			return false, err
		}
		s.out.Success("✓ Reverted %s", entry.Record.InstrumentCode)

	case "rm", "remove":
		entry, err := s.resolveArg(args)
		if err != nil {
			return false, err
		}
		if err := store.Remove(ctx, entry.Record.ID); err != nil {
			return false, err
		}
		s.out.Success("✓ Removed %s", entry.Record.InstrumentCode)

	case "search":
		results, err := search(ctx, s.app, strings.Join(args, " "))
		if err != nil {
			return false, err
		}
		renderSearch(s.out, results)

	case "refresh":
		err := s.app.Refresh.Refresh(ctx)
		if errors.Is(err, errors.ErrRefreshInFlight) {
			s.out.Dim("A refresh is already running")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if st := s.app.Refresh.Status(); st.LastError != nil {
			return false, fmt.Errorf("refresh failed: %w", st.LastError)
		}
		renderWatchlist(s.out, store.Entries())

	case "status":
		s.printStatus()

	case "help", "?":
		s.out.Println(shellHelp)

	case "quit", "exit", "q":
		if n := unsaved(store.Entries()); n > 0 && !s.confirmQuit {
			s.confirmQuit = true
			s.out.Warning("%d record(s) have unsaved changes. Type quit again to discard them.", n)
			return false, nil
		}
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
	return false, nil
}

func (s *shell) resolveArg(args []string) (watchlist.Entry, error) {
	if len(args) != 1 {
		return watchlist.Entry{}, fmt.Errorf("expected exactly one row")
	}
	return s.resolve(args[0])
}

func (s *shell) resolve(ref string) (watchlist.Entry, error) {
	entry, ok := s.app.Watchlist.Resolve(ref)
	if !ok {
		return watchlist.Entry{}, errors.Wrapf(errors.ErrRecordNotFound, "%s", ref)
	}
	return entry, nil
}

func (s *shell) printStatus() {
	st := s.app.Refresh.Status()
	s.out.Printf("Records:      %d (%d unsaved)\n", s.app.Watchlist.Len(), unsaved(s.app.Watchlist.Entries()))
	if st.LastSuccess.IsZero() {
		s.out.Printf("Last refresh: never\n")
	} else {
		s.out.Printf("Last refresh: %s (%s ago)\n", st.LastSuccess.Format("15:04:05"), time.Since(st.LastSuccess).Round(time.Second))
	}
	if st.LastError != nil {
		s.out.Printf("Last error:   %s\n", s.out.Red(st.LastError.Error()))
	}
	s.out.Printf("Fetches:      %d (%d skipped)\n", st.Fetches, st.Skipped)
	if st.InFlight {
		s.out.Printf("In flight:    yes\n")
	}
}

func unsaved(entries []watchlist.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Unsaved() {
			n++
		}
	}
	return n
}

// afterTokens returns what follows the first n whitespace-separated tokens of
// line, as typed but without its leading whitespace.
func afterTokens(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		rest = rest[end:]
	}
	return strings.TrimLeftFunc(rest, unicode.IsSpace)
}
