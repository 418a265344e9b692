package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/repotidy/internal/daemon"
)

var (
	watchFiles bool
	runNow     []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run scheduled maintenance in the foreground",
	Long: `Runs the cron jobs from the schedule section of the config until interrupted:
schedule.purge deletes rollback points past their retention and schedule.scan
writes <state>/reports/scan-latest.json. With --files (or watch.enabled) the
project is re-scanned whenever the tree changes.`,
	Args: cobra.NoArgs,
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

		d := daemon.New(a.root, a.cfg, rb, a.logger)
		if cmd.Flags().Changed("files") {
			d.SetWatch(watchFiles)
		}

		ctx, cancel := signalContext()
		defer cancel()

		for _, name := range runNow {
			switch name {
			case "purge":
				if _, err := d.PurgeRollbackPoints(ctx); err != nil {
					return err
				}
			case "scan":
				if _, err := d.RunScan(ctx); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown job %q (valid: purge, scan)", name)
			}
		}

		fmt.Printf("Watching %s (Ctrl+C to stop)\n", a.root)
		return d.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchFiles, "files", false, "re-scan when files change")
	watchCmd.Flags().StringSliceVar(&runNow, "run-now", nil, "jobs to run once before scheduling (purge, scan)")
}
