package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fenilsonani/repotidy/internal/cleaner"
	"github.com/fenilsonani/repotidy/internal/config"
	"github.com/fenilsonani/repotidy/internal/planner"
	"github.com/fenilsonani/repotidy/internal/reporter"
	"github.com/fenilsonani/repotidy/internal/ui"
	"github.com/fenilsonani/repotidy/internal/ui/styles"
)

var (
	outputFmt   string
	outputFile  string
	interactive bool
	showTree    bool
	dryRun      bool
	skipConfirm bool
	userConfig  bool
)

var formatUsage = "output format (" + strings.Join(reporter.FormatNames(), ", ") + ")"

// signalContext is cancelled on SIGINT or SIGTERM so in-flight phases stop
// between files
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the project and classify its files",
	Long:  `Walks the project and reports file categories, obsolete files, duplicate groups and large files without changing anything.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		pr, lp := a.startProgress()
		report, err := a.engine(pr).ScanProject(ctx)
		stopProgress(lp)
		if err != nil {
			return err
		}

		return emit(report, outputFmt, outputFile)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a phased cleanup plan",
	Long: `Scans the project, builds its reference graph and prints the four-phase
cleanup plan. With --interactive the plan opens in a phase picker and the
confirmed phases are executed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		pr, lp := a.startProgress()
		engine := a.engine(pr)
		plan, err := engine.GenerateCleanupPlan(ctx)
		stopProgress(lp)
		if err != nil {
			return err
		}

		if interactive {
			return reviewAndExecute(ctx, a, engine, plan)
		}

		if showTree {
			ui.PrintPlanTree(os.Stdout, plan)
			return nil
		}

		return emit(plan, outputFmt, outputFile)
	},
}

func reviewAndExecute(ctx context.Context, a *app, engine *planner.Engine, plan *planner.Plan) error {
	if plan.TotalFiles() == 0 {
		fmt.Println("\n✨ Nothing to clean up. The project is already tidy!")
		return nil
	}

	phases, confirmed, err := ui.ReviewPlan(plan)
	if err != nil {
		return err
	}
	if !confirmed || len(phases) == 0 {
		fmt.Println("Cleanup cancelled")
		return nil
	}

	return runExecute(ctx, a, engine, plan, phases)
}

var executeCmd = &cobra.Command{
	Use:   "execute <phase>... | all",
	Short: "Execute cleanup phases",
	Long: fmt.Sprintf(`Regenerates the cleanup plan and executes the named phases in plan order.
Every phase gets its own rollback point.

Phases: %s, or "all".`, strings.Join(planner.PhaseNames, ", ")),
	Args: cobra.MinimumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return append(append([]string{}, planner.PhaseNames...), cleaner.AllPhases), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		// Override config with flags
		if cmd.Flags().Changed("dry-run") {
			a.cfg.DryRun = dryRun
		}

		ctx, cancel := signalContext()
		defer cancel()

		pr, lp := a.startProgress()
		engine := a.engine(pr)
		plan, err := engine.GenerateCleanupPlan(ctx)
		stopProgress(lp)
		if err != nil {
			return err
		}

		if !skipConfirm && !a.cfg.DryRun {
			if err := reporter.New(os.Stdout, reporter.FormatSummary).Report(plan); err != nil {
				return err
			}
			if !confirm(fmt.Sprintf("\nExecute %s? (y/N): ", strings.Join(args, ", "))) {
				fmt.Println("Cleanup cancelled")
				return nil
			}
		}

		return runExecute(ctx, a, engine, plan, args)
	},
}

func runExecute(ctx context.Context, a *app, engine *planner.Engine, plan *planner.Plan, phases []string) error {
	pr, lp := a.startProgress()
	executor, err := a.executor(engine, pr)
	if err != nil {
		stopProgress(lp)
		return err
	}

	if a.cfg.DryRun {
		fmt.Println("\n[DRY RUN MODE] No files will be changed.")
	}

	report, execErr := executor.Execute(ctx, plan, phases...)
	stopProgress(lp)
	if report == nil {
		return execErr
	}

	if err := emit(report, outputFmt, outputFile); err != nil {
		return err
	}

	if errs := report.Errors(); len(errs) > 0 {
		fmt.Printf("\n%s", cleaner.FormatErrorSummary(errs))
	}
	if execErr != nil {
		return execErr
	}
	if report.Failed() {
		return errCleanupFailed
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	response, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Check that the project still builds",
	Long:  `Checks the manifest, the critical files and the build and test entry points. Exits non-zero when a check fails.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.engine(nil).Validator().RunIntegrityTests()

		for _, e := range result.Errors {
			fmt.Println(styles.Failed(e))
		}
		for _, w := range result.Warnings {
			fmt.Println(styles.Notice(w))
		}
		if !result.Passed {
			return fmt.Errorf("integrity check failed: %d errors", len(result.Errors))
		}

		fmt.Println(styles.Passed("integrity check passed"))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display current configuration",
	Long:  `Shows the config file in use and the effective configuration.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cfgPath := configPath
		if cfgPath == "" {
			if cfgPath, err = config.GetConfigPath(a.root); err != nil {
				return err
			}
		}

		fmt.Printf("Config file: %s\n", cfgPath)
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			fmt.Println("Config file does not exist. Using default configuration.")
			fmt.Println("\nTo create a config file:")
			fmt.Println("  repotidy config init")
		}
		fmt.Println()

		data, err := yaml.Marshal(a.cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file",
	Long: `Writes a commented example configuration to <root>/.repotidy.yaml. With --user
the defaults are written to ~/.config/repotidy/config.yaml instead. An
existing file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userConfig {
			path, err := config.GetConfigPath("")
			if err != nil {
				return err
			}
			if err := config.EnsureConfigExists(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Printf("Config file: %s\n", path)
			return nil
		}

		path := configPath
		if path == "" {
			path = filepath.Join(rootDir, config.ProjectConfigName)
		}

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
		if err := os.WriteFile(path, []byte(config.GetExampleConfig()), 0644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("Config written to: %s\n", path)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&outputFmt, "output", "summary", formatUsage)
	scanCmd.Flags().StringVar(&outputFile, "file", "", "save report to file")

	planCmd.Flags().StringVar(&outputFmt, "output", "summary", formatUsage)
	planCmd.Flags().StringVar(&outputFile, "file", "", "save plan to file")
	planCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "review the plan and pick phases to execute")
	planCmd.Flags().BoolVar(&showTree, "tree", false, "print the plan as a directory tree")

	executeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would change without touching the project")
	executeCmd.Flags().BoolVar(&skipConfirm, "force", false, "skip the confirmation prompt")
	executeCmd.Flags().StringVar(&outputFmt, "output", "summary", formatUsage)
	executeCmd.Flags().StringVar(&outputFile, "file", "", "save report to file")

	configInitCmd.Flags().BoolVar(&userConfig, "user", false, "write the per-user config instead")
	configCmd.AddCommand(configInitCmd)
}
