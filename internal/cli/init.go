package cli

import (
	"context"
	"time"

	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/project"
	"github.com/spf13/cobra"
)

var (
	initPeriod   time.Duration
	initRetries  int
	initMaxSize  int
	initWorld    string
	initNoWatch  bool
	initAssumeOK bool

	initCmd = &cobra.Command{
		Use:   "init [target_directory]",
		Short: "Initialize a new localtex project",
		Long: `
Initialize a new localtex project in the specified directory.
If no directory is specified, the current directory is used.

The project keeps its settings in .localtex/localtex.yaml, the tracked
bitmaps in .localtex/state.db and console logs in .localtex/logs. An empty
world file is created unless one already exists.

Without flags the settings are asked for interactively:
  --period=3s          how often tracked files are checked
  --retries=5          failed decodes before a file is given up on
  --max-size=1024      largest texture edge after scaling
  --world=world.yaml   world file, relative to the project
  --no-watch           rely on the timer only, no file notifications

Use --yes to accept the defaults without prompting.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInit,
	}
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().DurationVar(&initPeriod, "period", interfaces.DefaultPeriod, "refresh period")
	initCmd.Flags().IntVar(&initRetries, "retries", interfaces.DefaultRetries, "failed decodes before a file is given up on")
	initCmd.Flags().IntVar(&initMaxSize, "max-size", interfaces.DefaultMaxImageSize, "largest texture edge after scaling (power of two)")
	initCmd.Flags().StringVar(&initWorld, "world", interfaces.DefaultWorldFile, "world file, relative to the project")
	initCmd.Flags().BoolVar(&initNoWatch, "no-watch", false, "disable file system notifications")
	initCmd.Flags().BoolVarP(&initAssumeOK, "yes", "y", false, "accept defaults without prompting")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Determine target directory with priority:
	// 1. Positional argument (if provided)
	// 2. --project-dir flag (if provided)
	// 3. Current directory (default)
	var targetDir string
	if len(args) > 0 {
		targetDir = args[0]
	} else if projectDir != "" {
		targetDir = projectDir
	}

	opts := interfaces.InitOptions{
		TargetDirectory: targetDir,
		Period:          initPeriod,
		Retries:         initRetries,
		MaxImageSize:    initMaxSize,
		World:           initWorld,
		Fsnotify:        !initNoWatch,
	}

	if !initAssumeOK && !settingsGiven(cmd) {
		if err := promptForSettings(&opts); err != nil {
			return err
		}
	}

	stateMgr := getStateManager()
	defer stateMgr.Close()
	opts.StateManager = stateMgr

	projectMgr := getProjectManager()
	if err := projectMgr.Initialize(ctx, opts); err != nil {
		return err
	}

	if targetDir == "" {
		var err error
		targetDir, err = getCurrentDir()
		if err != nil {
			targetDir = "{current_dir}"
		}
	}

	cmd.Println()
	cmd.Printf("✅ Successfully initialized localtex project in %s\n", targetDir)
	cmd.Printf("Settings: %s\n", project.ConfigPath(targetDir))
	cmd.Println()
	cmd.Println("📝 Next Steps:")
	cmd.Println("   1). Describe your scene and avatar in the world file:", opts.World)
	cmd.Println("   2). Track bitmaps: localtex add textures/*.png")
	cmd.Println("   3). Keep them live: localtex watch (or localtex console)")
	cmd.Println("   4). Drive it from an MCP client: localtex serve")
	cmd.Println()
	return nil
}

// settingsGiven reports whether any project setting was passed as a flag
func settingsGiven(cmd *cobra.Command) bool {
	for _, name := range []string{"period", "retries", "max-size", "world", "no-watch"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// promptForSettings asks for every project setting, starting from the
// values already in opts
func promptForSettings(opts *interfaces.InitOptions) error {
	var err error
	if opts.World, err = provideInput("World file:", opts.World); err != nil {
		return errors.NewGenericError("could not read world file", err)
	}
	if opts.Period, err = selectPeriod(opts.Period); err != nil {
		return errors.NewGenericError("could not read refresh period", err)
	}
	if opts.Retries, err = selectRetries(opts.Retries); err != nil {
		return errors.NewGenericError("could not read retry count", err)
	}
	if opts.MaxImageSize, err = selectMaxSize(opts.MaxImageSize); err != nil {
		return errors.NewGenericError("could not read max image size", err)
	}
	if opts.Fsnotify, err = confirm("Watch files for changes between refreshes?", opts.Fsnotify); err != nil {
		return errors.NewGenericError("could not read watch preference", err)
	}
	return nil
}
