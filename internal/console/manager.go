package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/localtex/cli/internal/bitmap"
	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/session"
)

// Target is the project the console operates on
type Target interface {
	Add(paths []string) ([]session.Entry, error)
	Remove(trackingID uuid.UUID) error
	Resolve(ref string) (uuid.UUID, error)
	Entries() []session.Entry
	Refresh() interfaces.CycleReport
	Status() session.Status
}

// Manager runs the interactive console
type Manager struct {
	target  Target
	out     io.Writer
	logPath string
	logFile *os.File
}

// NewManager creates a console writing to out. A nil out is replaced by the
// terminal once Start runs.
func NewManager(target Target, out io.Writer) *Manager {
	return &Manager{target: target, out: out}
}

// Start opens the session log and runs the console until the user quits
// or ctx is cancelled
func (m *Manager) Start(ctx context.Context, logPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.logPath = logPath

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return errors.NewGenericError("failed to create log directory", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.NewGenericError("failed to open log file", err)
	}
	m.logFile = logFile
	defer m.Close()

	m.logToFile(fmt.Sprintf("=== Console session started at %s ===\n", time.Now().Format(time.RFC3339)))
	m.logToFile(fmt.Sprintf("Project: %s\n\n", m.target.Status().Root))

	return m.runReadlineMode(ctx)
}

// Execute runs one console command. It returns true when the console
// should exit.
func (m *Manager) Execute(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	m.logToFile(fmt.Sprintf("[%s] > %s\n", time.Now().Format("15:04:05"), strings.TrimSpace(line)))

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "exit", "quit":
		return true, nil
	case "help", "?":
		m.printf("%s", helpText)
	case "add":
		if len(args) == 0 {
			return false, errors.NewValidationError("usage: add <file>...")
		}
		added, err := m.target.Add(args)
		if err != nil {
			return false, err
		}
		for _, e := range added {
			m.printf("added %s as %s\n", e.DisplayName, e.TrackingID)
		}
		if skipped := len(args) - len(added); skipped > 0 {
			m.printf("%d file(s) could not be loaded\n", skipped)
		}
	case "remove", "rm":
		if len(args) != 1 {
			return false, errors.NewValidationError("usage: remove <name|tracking-id>")
		}
		id, err := m.target.Resolve(args[0])
		if err != nil {
			return false, err
		}
		if err := m.target.Remove(id); err != nil {
			return false, err
		}
		m.printf("removed %s\n", args[0])
	case "list", "ls":
		WriteEntries(m.out, m.target.Entries())
	case "refresh":
		WriteReport(m.out, m.target.Refresh())
	case "status":
		WriteStatus(m.out, m.target.Status())
	default:
		return false, errors.NewValidationError(fmt.Sprintf("unknown command %q, type 'help'", cmd))
	}
	return false, nil
}

const helpText = `Commands:
  add <file>...            track bitmap files (bmp, tga, jpg, jpeg, png)
  remove <name|id>         stop tracking a bitmap
  list                     show tracked bitmaps
  refresh                  check every bitmap for changes now
  status                   show timer, watcher and scene counters
  help                     show this help
  exit                     leave the console
`

// completer offers command names, file paths after add and tracked names
// after remove
func (m *Manager) completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("add", readline.PcItemDynamic(listFiles)),
		readline.PcItem("remove", readline.PcItemDynamic(func(string) []string {
			var names []string
			for _, e := range m.target.Entries() {
				names = append(names, e.DisplayName)
			}
			return names
		})),
		readline.PcItem("list"),
		readline.PcItem("refresh"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// listFiles suggests bitmap files in the directory being typed
func listFiles(line string) []string {
	fields := strings.Fields(line)
	dir := "."
	if len(fields) > 1 && !strings.HasSuffix(line, " ") {
		dir = filepath.Dir(fields[len(fields)-1])
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := filepath.Join(dir, e.Name())
		if bitmap.FormatFromExtension(name) != interfaces.FormatUnknown {
			names = append(names, name)
		}
	}
	return names
}

// LogPath returns the session log written by Start
func (m *Manager) LogPath() string { return m.logPath }

// Close writes the session footer and closes the log
func (m *Manager) Close() error {
	if m.logFile == nil {
		return nil
	}
	m.logToFile(fmt.Sprintf("\n=== Console session ended at %s ===\n", time.Now().Format(time.RFC3339)))
	err := m.logFile.Close()
	m.logFile = nil
	return err
}

// reportError prints a failed command. Usage mistakes are shown as they are.
func (m *Manager) reportError(err error) {
	if errors.HasCode(err, errors.CodeValidation) {
		m.printf("%v\n", err)
		return
	}
	m.printf("Error: %v\n", err)
}

func (m *Manager) printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprint(m.out, msg)
	m.logToFile(msg)
}

// logToFile writes a message to the log file
func (m *Manager) logToFile(message string) {
	if m.logFile != nil {
		m.logFile.WriteString(message)
	}
}

// runReadlineMode runs the console with readline support
func (m *Manager) runReadlineMode(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "localtex> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".localtex_history"),
		AutoComplete:    m.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return errors.NewGenericError("failed to initialize readline", err)
	}
	defer rl.Close()
	if m.out == nil {
		m.out = rl.Stdout()
	}

	st := m.target.Status()
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "╔══════════════════════════════════════╗")
	fmt.Fprintln(m.out, "║        localtex - Console            ║")
	fmt.Fprintln(m.out, "╚══════════════════════════════════════╝")
	fmt.Fprintln(m.out)
	fmt.Fprintf(m.out, "Project:  %s\n", st.Root)
	fmt.Fprintf(m.out, "World:    %s\n", st.WorldFile)
	fmt.Fprintf(m.out, "Bitmaps:  %d tracked, refreshed every %s\n", st.Bitmaps, st.Period)
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "Type 'help' for commands. Press Ctrl+C or type 'exit' to quit.")
	fmt.Fprintln(m.out)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Fprintln(m.out, "\nGoodbye!")
				return nil
			}
			return errors.NewGenericError("error reading input", err)
		}

		quit, err := m.Execute(line)
		if err != nil {
			m.reportError(err)
			continue
		}
		if quit {
			fmt.Fprintln(m.out, "Goodbye!")
			return nil
		}
	}
}
