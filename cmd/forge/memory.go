package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/internal/config"
	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/persist"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect the cross-run context archive",
	Long: `Inspect the context saved at the end of the last run in this project.

The archive holds the active context entries and every evicted entry
important enough to keep. It is restored at the start of the next run.`,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive occupancy and snapshot history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd, func(ctx context.Context, a *archiveHandle, w io.Writer) error {
			return a.printStats(ctx, w)
		})
	},
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "List entries whose key matches a regular expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd, func(ctx context.Context, a *archiveHandle, w io.Writer) error {
			return a.search(args[0], w)
		})
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop active context, keeping important entries in the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd, func(ctx context.Context, a *archiveHandle, w io.Writer) error {
			return a.clear(ctx, w)
		})
	},
}

func init() {
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryClearCmd)
}

// archiveHandle is a store rebuilt from the newest saved blob.
type archiveHandle struct {
	db    *persist.SQLite
	key   string
	store *memory.Store
	found bool
}

func withArchive(cmd *cobra.Command, fn func(context.Context, *archiveHandle, io.Writer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	root, err := projectRoot(projectPath)
	if err != nil {
		return err
	}
	a, err := openArchive(cmd.Context(), cfg, root)
	if err != nil {
		return err
	}
	defer a.db.Close()
	return fn(cmd.Context(), a, cmd.OutOrStdout())
}

func openArchive(ctx context.Context, cfg *config.Config, root string) (*archiveHandle, error) {
	db, err := openArchiveDB(cfg, root)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	store, err := newStore(cfg, zap.NewNop(), nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &archiveHandle{db: db, key: cfg.Persist.Key, store: store}
	blob, err := db.Load(ctx, a.key)
	switch {
	case errors.Is(err, persist.ErrNotFound):
		return a, nil
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("load archive: %w", err)
	}
	if err := store.Import(blob); err != nil {
		db.Close()
		return nil, fmt.Errorf("import archive: %w", err)
	}
	a.found = true
	return a, nil
}

func (a *archiveHandle) printStats(ctx context.Context, w io.Writer) error {
	if !a.found {
		fmt.Fprintln(w, "No saved context yet. Run 'forge run' first.")
		return nil
	}
	s := a.store.Stats()
	fmt.Fprintf(w, "Database:  %s\n", a.db.Path())
	fmt.Fprintf(w, "Active:    %d entries, %d/%d tokens (%.1f%%)\n", s.ActiveEntries, s.TotalTokens, s.MaxTokens, s.Utilization)
	fmt.Fprintf(w, "Archived:  %d entries, %d tokens\n", s.ArchiveEntries, a.store.Archive().Tokens())

	history, err := a.db.List(ctx, a.key)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Snapshots: %d\n", len(history))
	for _, h := range history {
		fmt.Fprintf(w, "  #%-4d %s  %d bytes\n", h.ID, h.CreatedAt.Local().Format(time.DateTime), h.Size)
	}
	return nil
}

func (a *archiveHandle) search(pattern string, w io.Writer) error {
	entries, err := a.store.SearchByPattern(pattern)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching entries.")
		return nil
	}
	for _, e := range entries {
		state := color.GreenString("active  ")
		if e.ArchivedAt != nil {
			state = color.YellowString("archived")
		}
		unit := string(e.UnitType)
		if unit == "" {
			unit = "-"
		}
		fmt.Fprintf(w, "%s  %-24s unit=%-13s importance=%-2d tokens=%d\n", state, e.Key, unit, e.Importance, e.Tokens)
	}
	return nil
}

func (a *archiveHandle) clear(ctx context.Context, w io.Writer) error {
	if !a.found {
		fmt.Fprintln(w, "No saved context to clear.")
		return nil
	}
	before := a.store.Stats()
	a.store.Clear()
	blob, err := a.store.Export()
	if err != nil {
		return err
	}
	if err := a.db.Save(ctx, a.key, blob); err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	after := a.store.Stats()
	printStatus(w, "✓", fmt.Sprintf("Cleared %d active entries (%d archived total)",
		before.ActiveEntries, after.ArchiveEntries), color.FgGreen)
	return nil
}
