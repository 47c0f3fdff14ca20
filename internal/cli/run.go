package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/localtex/cli/internal/console"
	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/logging"
	"github.com/localtex/cli/internal/mcptools"
	"github.com/localtex/cli/internal/project"
	"github.com/localtex/cli/internal/session"
	"github.com/spf13/cobra"
)

var (
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Keep tracked bitmaps live until interrupted",
		Long: `Run the refresh timer and, when enabled, file notifications in the
foreground. Changed files are republished and the world file is updated.
Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "Start an interactive console",
		Long: `Launch an interactive console to add, remove and inspect bitmaps while
the refresh timer keeps them live in the background.`,
		Args: cobra.NoArgs,
		RunE: runConsole,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the project as MCP tools over stdio",
		Long: `Expose add_bitmaps, remove_bitmap, list_bitmaps, refresh_bitmaps and
status as Model Context Protocol tools on stdin and stdout. The refresh
timer runs for as long as the client stays connected.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	rootCmd.AddCommand(watchCmd, consoleCmd, serveCmd)
}

// startLiveSession opens the project, mirrors engine logs into
// .localtex/logs/localtex.log and starts the timer and watcher
func startLiveSession(stderrLevel slog.Level) (*session.Session, func(), error) {
	root, config, err := loadProject()
	if err != nil {
		return nil, nil, err
	}

	logDir := project.LogPath(root)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, errors.NewGenericError("failed to create log directory", err)
	}
	logFile, err := os.OpenFile(filepath.Join(logDir, "localtex.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, errors.NewGenericError("failed to open log file", err)
	}
	logger := logging.Tee(
		logging.New(os.Stderr, stderrLevel),
		logging.New(logFile, logging.LevelFromFlags(debug, true, false)),
	)

	s, err := session.Open(session.Options{
		Root:   root,
		Config: config,
		State:  getStateManager(),
		Logger: logger,
	})
	if err != nil {
		logFile.Close()
		return nil, nil, err
	}
	if err := s.Start(); err != nil {
		s.Close()
		logFile.Close()
		return nil, nil, err
	}
	logger.Info("session started", "root", root, "bitmaps", len(s.Entries()))

	return s, func() { logFile.Close() }, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runWatch(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	s, closeLog, err := startLiveSession(logging.LevelFromFlags(debug, verbose, quiet))
	if err != nil {
		return err
	}
	defer closeLog()
	defer closeSession(s, &err)

	st := s.Status()
	cmd.Printf("Watching %d bitmap(s), refreshing every %s. Press Ctrl+C to stop.\n", st.Bitmaps, st.Period)
	<-ctx.Done()
	cmd.Println()
	cmd.Println("Stopped.")
	return nil
}

func runConsole(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	// only errors reach the terminal while the prompt is shown
	s, closeLog, err := startLiveSession(slog.LevelError)
	if err != nil {
		return err
	}
	defer closeLog()
	defer closeSession(s, &err)

	timestamp := time.Now().Format("20060102-150405")
	logPath := filepath.Join(project.LogPath(s.Root()), fmt.Sprintf("console-%s.log", timestamp))

	consoleMgr := console.NewManager(s, nil)
	if err := consoleMgr.Start(ctx, logPath); err != nil {
		return errors.NewGenericError("failed to start console session", err)
	}
	cmd.Printf("Session log saved to %s\n", consoleMgr.LogPath())
	return nil
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	// stdout carries the protocol
	s, closeLog, err := startLiveSession(logging.LevelFromFlags(debug, verbose, quiet))
	if err != nil {
		return err
	}
	defer closeLog()
	defer closeSession(s, &err)

	if err := mcptools.Serve(ctx, mcptools.NewServer(s, Version)); err != nil && ctx.Err() == nil {
		return errors.NewGenericError("MCP server stopped", err)
	}
	return nil
}
