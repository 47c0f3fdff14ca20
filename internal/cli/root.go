package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/logging"
	"github.com/localtex/cli/internal/project"
	"github.com/localtex/cli/internal/session"
	"github.com/localtex/cli/internal/state"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	projectDir string
	verbose    bool
	debug      bool
	quiet      bool
	rootCmd    = &cobra.Command{
		Use:   "localtex",
		Short: "localtex - live local textures for a scene and an avatar",
		Long: `localtex tracks bitmap files on disk and publishes each one as a texture.

Whenever a tracked file changes it is decoded again, published under a new
texture id, and every scene face, sculpt and avatar layer that used the old
id is switched to the new one. The avatar is recomposed at most once per
refresh cycle.

Each project keeps its configuration, tracked bitmaps and session logs in a
.localtex directory next to the world file it edits.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "CLI settings file (default is $HOME/.localtex.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "project directory (default is current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log informational messages")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug messages")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "log errors only")

	for _, name := range []string{"project-dir", "verbose", "debug", "quiet"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// initConfig reads the CLI settings file and LOCALTEX_* environment
// variables. Flags given on the command line win.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".localtex")
	}

	viper.SetEnvPrefix("LOCALTEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("debug") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	projectDir = viper.GetString("project-dir")
	verbose = viper.GetBool("verbose")
	debug = viper.GetBool("debug")
	quiet = viper.GetBool("quiet")
}

// newLogger builds the logger selected by the verbosity flags
func newLogger() *slog.Logger {
	return logging.New(os.Stderr, logging.LevelFromFlags(debug, verbose, quiet))
}

// resolveProjectDir resolves the project directory from flag or current directory
// Returns the absolute path to the project root
func resolveProjectDir() (string, error) {
	dir := projectDir
	if dir == "" {
		return getCurrentDir()
	}

	// Expand tilde to home directory
	if strings.HasPrefix(dir, "~/") || dir == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, strings.TrimPrefix(dir, "~"))
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	return absDir, nil
}

func getCurrentDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// loadProject finds the enclosing project and loads its configuration
func loadProject() (string, *interfaces.ProjectConfig, error) {
	startDir, err := resolveProjectDir()
	if err != nil {
		return "", nil, err
	}
	projectMgr := getProjectManager()
	root, err := projectMgr.FindProjectRoot(startDir)
	if err != nil {
		return "", nil, err
	}
	config, err := projectMgr.LoadConfig(root)
	if err != nil {
		return "", nil, err
	}
	return root, config, nil
}

// openSession opens the enclosing project with its tracked bitmaps restored
func openSession(logger *slog.Logger) (*session.Session, error) {
	root, config, err := loadProject()
	if err != nil {
		return nil, err
	}
	return session.Open(session.Options{
		Root:   root,
		Config: config,
		State:  getStateManager(),
		Logger: logger,
	})
}

// closeSession persists the session and reports a failure without hiding
// the command's own error
func closeSession(s *session.Session, err *error) {
	if cerr := s.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// Helper functions to get manager instances
func getProjectManager() interfaces.ProjectManager {
	return project.NewManager()
}

func getStateManager() interfaces.StateManager {
	return state.NewManager()
}
