package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/repotidy/internal/rollback"
	"github.com/fenilsonani/repotidy/internal/ui/styles"
)

var (
	forceRollback bool
	olderThan     time.Duration
	pointsFmt     string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <point-id>",
	Short: "Undo a phase from its rollback point",
	Long: `Replays the operations of a rollback point in reverse: archived files are
restored from their backups and moved files go back to where they were.
A point that was already rolled back is refused unless --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rb, _, err := a.rollbackSystem()
		if err != nil {
			return err
		}

		result, err := rb.RollbackToPoint(args[0], forceRollback)
		if errors.Is(err, rollback.ErrAlreadyRolledBack) {
			return fmt.Errorf("%w (use --force to replay it again)", err)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Rolled back %s: %d operations restored\n", result.PointID, len(result.RestoredFiles))
		for _, rel := range result.RestoredFiles {
			fmt.Println("  " + styles.Passed(rel))
		}
		for _, e := range result.Errors {
			fmt.Println("  " + styles.Failed(e))
		}
		if !result.Success {
			return fmt.Errorf("rollback incomplete: %d operations failed", len(result.Errors))
		}
		return nil
	},
}

var listRollbackPointsCmd = &cobra.Command{
	Use:     "list-rollback-points",
	Aliases: []string{"points"},
	Short:   "List rollback points, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rb, _, err := a.rollbackSystem()
		if err != nil {
			return err
		}

		points, err := rb.ListRollbackPoints()
		if err != nil {
			return err
		}

		return emit(points, pointsFmt, "")
	},
}

var purgeRollbackPointsCmd = &cobra.Command{
	Use:   "purge-rollback-points",
	Short: "Delete old rollback points and their backups",
	Long:  `Deletes closed rollback points created before the retention period, together with the backups they reference.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		age := a.cfg.RollbackRetention()
		if cmd.Flags().Changed("older-than") {
			age = olderThan
		}

		rb, _, err := a.rollbackSystem()
		if err != nil {
			return err
		}

		purged, err := rb.PurgeOlderThan(age)
		if err != nil {
			return err
		}

		fmt.Printf("Purged %d rollback points older than %s\n", len(purged), age)
		for _, id := range purged {
			fmt.Println(styles.DimStyle.Render("  " + id))
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&forceRollback, "force", false, "replay a point that was already rolled back")

	listRollbackPointsCmd.Flags().StringVar(&pointsFmt, "output", "table", "output format (table, json, yaml)")

	purgeRollbackPointsCmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention age (default: rollback_retention_days from config)")
}
