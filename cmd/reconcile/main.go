// Command reconcile detects drift between Person room refs and Room
// membership, prints the repair plan, and applies it only when explicitly
// confirmed. Dry-run is the default; --apply without
// --yes-i-mean-production exits non-zero before touching anything.
//
// Intended to run while request traffic mutating the same rooms is paused:
// the apply is a best-effort bulk write, not one transaction.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodgepole/campdesk/internal/config"
	"github.com/lodgepole/campdesk/internal/db"
	"github.com/lodgepole/campdesk/internal/observ"
	"github.com/lodgepole/campdesk/internal/reconcile"
	"github.com/lodgepole/campdesk/internal/repository/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		apply        bool
		confirmProd  bool
		prune        bool
		room         string
		allowOverCap bool
		pageSize     int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Detect and repair room occupancy drift",
		Long: `Recomputes expected room membership from Person room refs, diffs it
against the Room records, and prints the repair plan as JSON. Without
--apply nothing is written.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apply && !confirmProd {
				return fmt.Errorf("--apply mutates production data; pass --yes-i-mean-production to confirm")
			}
			return run(cmd.Context(), reconcile.Options{
				Room:              room,
				Prune:             prune,
				AllowOverCapacity: allowOverCap,
				PageSize:          pageSize,
			}, apply)
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "write the queued fixes (default: dry run)")
	cmd.Flags().BoolVar(&confirmProd, "yes-i-mean-production", false, "required confirmation for --apply")
	cmd.Flags().BoolVar(&prune, "prune", false, "also clear rooms no person references")
	cmd.Flags().StringVar(&room, "room", "", "restrict the run to one room number")
	cmd.Flags().BoolVar(&allowOverCap, "allow-over-capacity", false, "repair rooms even when expected occupancy exceeds capacity")
	cmd.Flags().IntVar(&pageSize, "page-size", 500, "scan page size")

	return cmd
}

func run(ctx context.Context, opts reconcile.Options, apply bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	job := reconcile.New(postgres.NewStore(database.Pool()), logger, opts)

	plan, err := job.BuildPlan(ctx)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	// The full plan is printed in every mode, apply or not.
	out := struct {
		Mode    string                 `json:"mode"`
		Summary map[string]int         `json:"summary"`
		Plan    *reconcile.Plan        `json:"plan"`
		Result  *reconcile.ApplyResult `json:"result,omitempty"`
	}{
		Mode: "dry-run",
		Summary: map[string]int{
			"updates":           len(plan.Updates),
			"prunes":            len(plan.Prunes),
			"ref_fixes":         len(plan.RefFixes),
			"missing_room_refs": len(plan.MissingRoomRefs),
			"missing_rooms":     len(plan.MissingRooms),
			"over_capacity":     len(plan.OverCapacity),
			"people_scanned":    plan.PeopleScanned,
			"rooms_checked":     plan.RoomsChecked,
		},
		Plan: plan,
	}

	if apply {
		out.Mode = "apply"
		result, err := job.Apply(ctx, plan)
		if err != nil {
			return fmt.Errorf("apply plan: %w", err)
		}
		out.Result = result
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return nil
}
