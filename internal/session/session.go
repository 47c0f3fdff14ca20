package session

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/bitmap"
	"github.com/localtex/cli/internal/codec"
	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/project"
	"github.com/localtex/cli/internal/registry"
	"github.com/localtex/cli/internal/watch"
	"github.com/localtex/cli/internal/world"
)

// Options configures Open
type Options struct {
	Root   string
	Config *interfaces.ProjectConfig
	State  interfaces.StateManager
	// Codec defaults to a codec.Decoder bounded by the configured size
	Codec  interfaces.Codec
	Logger *slog.Logger
}

// Session is an open project: its world, its tracked bitmaps and the
// state database that outlives the process
type Session struct {
	root      string
	worldPath string
	config    *interfaces.ProjectConfig
	state     interfaces.StateManager
	world     *world.World
	registry  *registry.Registry
	bitmaps   *bitmap.Manager
	logger    *slog.Logger

	mu        sync.Mutex
	watcher   *watch.Watcher
	lastCycle interfaces.CycleReport
	// dirty is set while a change has not reached the state database and
	// the world file
	dirty  bool
	closed bool
}

// Entry describes one tracked bitmap
type Entry struct {
	interfaces.Row
	Filename     string
	Format       interfaces.Format
	WorldID      uuid.UUID
	Status       interfaces.LinkStatus
	LastModified time.Time
	References   int
}

// Status summarises a session
type Status struct {
	Root      string
	WorldFile string
	Bitmaps   int
	Broken    int
	Assets    int
	Running   bool
	Watching  bool
	Period    time.Duration
	LastCycle interfaces.CycleReport
	Scene     world.Stats
	AssetIDs  []uuid.UUID
}

// Open loads the project's world and restores the bitmaps tracked by a
// previous run
func Open(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.NewValidationError("session requires a project configuration")
	}
	if opts.State == nil {
		return nil, errors.NewValidationError("session requires a state manager")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if opts.Codec == nil {
		opts.Codec = codec.NewDecoder(cfg.Refresh.MaxImageSize)
	}

	if err := opts.State.Initialize(project.StatePath(opts.Root)); err != nil {
		return nil, err
	}

	worldPath := project.WorldPath(opts.Root, cfg)
	if err := world.Backup(worldPath, project.WorldBackupPath(opts.Root)); err != nil {
		logger.Warn("world file not backed up", "error", err)
	}
	w, err := world.Load(worldPath)
	if err != nil {
		opts.State.Close()
		return nil, err
	}

	s := &Session{
		root:      opts.Root,
		worldPath: worldPath,
		config:    cfg,
		state:     opts.State,
		world:     w,
		registry:  registry.New(),
		logger:    logger,
	}
	s.bitmaps = bitmap.NewManager(bitmap.Options{
		Codec:      opts.Codec,
		Registry:   s.registry,
		Scene:      w,
		Appearance: w,
		Textures:   project.Textures(cfg),
		Retries:    cfg.Refresh.Retries,
		Period:     cfg.Refresh.Period,
		Logger:     logger,
		OnCycle:    s.afterCycle,
	})

	records, err := opts.State.LoadBitmaps()
	if err != nil {
		opts.State.Close()
		return nil, err
	}
	report := s.bitmaps.Restore(records)
	for _, id := range report.Dropped {
		if err := opts.State.DeleteBitmap(id); err != nil {
			logger.Warn("failed to forget bitmap", "tracking_id", id, "error", err)
		}
	}
	logger.Debug("bitmaps restored", "restored", report.Restored, "rebound", report.Rebound, "broken", report.Broken, "dropped", len(report.Dropped))
	if report.Changed() {
		if err := s.persist(); err != nil {
			s.bitmaps.Detach()
			opts.State.Close()
			return nil, err
		}
	}

	if last, err := opts.State.LastCycle(); err == nil {
		s.lastCycle = last
	}
	return s, nil
}

// Root returns the project root
func (s *Session) Root() string { return s.root }

// World exposes the loaded world
func (s *Session) World() *world.World { return s.world }

// Bitmaps exposes the bitmap manager
func (s *Session) Bitmaps() *bitmap.Manager { return s.bitmaps }

// Add starts tracking the given files and returns the new entries. Paths
// are made absolute so they survive a change of working directory.
func (s *Session) Add(paths []string) ([]Entry, error) {
	if len(paths) == 0 {
		return nil, errors.NewValidationError("no files given")
	}
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, errors.NewGenericError(fmt.Sprintf("failed to resolve %s", p), err)
		}
		abs = append(abs, a)
	}

	before := make(map[uuid.UUID]bool)
	for _, row := range s.bitmaps.Rows() {
		before[row.TrackingID] = true
	}
	if !s.bitmaps.AddFromFiles(abs) {
		return nil, errors.NewValidationError("none of the files could be loaded as a bitmap")
	}

	var added []Entry
	for _, e := range s.Entries() {
		if !before[e.TrackingID] {
			added = append(added, e)
		}
	}

	s.mu.Lock()
	if s.watcher != nil {
		for _, e := range added {
			if s.watcher.Tracked(e.Filename) {
				continue
			}
			if err := s.watcher.Track(e.Filename); err != nil {
				s.logger.Warn("failed to watch bitmap", "file", e.Filename, "error", err)
			}
		}
	}
	s.mu.Unlock()

	return added, s.persist()
}

// Remove stops tracking a bitmap. Its consumers fall back to the default
// texture.
func (s *Session) Remove(trackingID uuid.UUID) error {
	filename := s.bitmaps.LookupFilename(trackingID)
	if filename == "" {
		return errors.NewValidationError(fmt.Sprintf("no bitmap is tracked as %s", trackingID))
	}
	s.bitmaps.Remove(trackingID)
	if err := s.state.DeleteBitmap(trackingID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.watcher != nil && !s.tracksFile(filename) {
		s.watcher.Untrack(filename)
	}
	s.mu.Unlock()

	return s.persist()
}

func (s *Session) tracksFile(filename string) bool {
	for _, rec := range s.bitmaps.Snapshot() {
		if rec.Filename == filename {
			return true
		}
	}
	return false
}

// Resolve turns a tracking id, a display name, a file name or a full path
// into a tracking id. Names must match exactly one bitmap.
func (s *Session) Resolve(ref string) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		if s.bitmaps.LookupFilename(id) == "" {
			return uuid.Nil, errors.NewValidationError(fmt.Sprintf("no bitmap is tracked as %s", id))
		}
		return id, nil
	}

	var matches []uuid.UUID
	for _, e := range s.Entries() {
		if e.DisplayName == ref || e.Filename == ref || filepath.Base(e.Filename) == ref {
			matches = append(matches, e.TrackingID)
		}
	}
	switch len(matches) {
	case 0:
		return uuid.Nil, errors.NewValidationError(fmt.Sprintf("no bitmap matches %q", ref))
	case 1:
		return matches[0], nil
	default:
		return uuid.Nil, errors.NewValidationError(fmt.Sprintf("%q matches %d bitmaps, use the tracking id", ref, len(matches)))
	}
}

// Entries lists the tracked bitmaps sorted by display name
func (s *Session) Entries() []Entry {
	rows := make(map[uuid.UUID]interfaces.Row)
	for _, row := range s.bitmaps.Rows() {
		rows[row.TrackingID] = row
	}

	var entries []Entry
	for _, rec := range s.bitmaps.Snapshot() {
		row, ok := rows[rec.TrackingID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Row:          row,
			Filename:     rec.Filename,
			Format:       rec.Format,
			WorldID:      rec.WorldID,
			Status:       rec.Status,
			LastModified: rec.LastModified,
			References:   s.world.References(rec.WorldID),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DisplayName < entries[j].DisplayName
	})
	return entries
}

// Refresh runs one refresh cycle now
func (s *Session) Refresh() interfaces.CycleReport {
	report := s.bitmaps.RefreshAll()
	s.afterCycle(report)
	return report
}

// afterCycle keeps the history and the saved state in step with a cycle.
// Cycles that changed nothing are not recorded.
func (s *Session) afterCycle(report interfaces.CycleReport) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	brokenChanged := report.Broken != s.lastCycle.Broken
	s.lastCycle = report
	s.mu.Unlock()

	if report.Changed == 0 && !brokenChanged {
		return
	}
	if err := s.state.RecordCycle(report); err != nil {
		s.logger.Warn("failed to record refresh cycle", "error", err)
	}
	if err := s.persist(); err != nil {
		s.logger.Error("failed to persist session", "error", err)
	}
}

// Start runs the refresh timer and, when enabled, the file watcher
func (s *Session) Start() error {
	s.bitmaps.Start()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.config.Watch.Fsnotify || s.watcher != nil {
		return nil
	}
	w, err := watch.NewWatcher(s.config.Watch.Debounce, func() { s.Refresh() }, s.logger)
	if err != nil {
		s.logger.Warn("file notifications unavailable, relying on the refresh timer", "error", err)
		return nil
	}
	for _, rec := range s.bitmaps.Snapshot() {
		if err := w.Track(rec.Filename); err != nil {
			s.logger.Warn("failed to watch bitmap", "file", rec.Filename, "error", err)
		}
	}
	w.Start()
	s.watcher = w
	return nil
}

// Stop halts the timer and the watcher
func (s *Session) Stop() {
	s.bitmaps.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
}

// Status reports what the session is doing
func (s *Session) Status() Status {
	st := Status{
		Root:      s.root,
		WorldFile: s.worldPath,
		Assets:    s.registry.Len(),
		Running:   s.bitmaps.Timer().IsRunning(),
		Period:    s.bitmaps.Timer().Period(),
		Scene:     s.world.Stats(),
		AssetIDs:  s.registry.IDs(),
	}
	for _, rec := range s.bitmaps.Snapshot() {
		st.Bitmaps++
		if rec.Status == interfaces.LinkBroken {
			st.Broken++
		}
	}

	s.mu.Lock()
	st.Watching = s.watcher != nil
	st.LastCycle = s.lastCycle
	s.mu.Unlock()
	return st
}

// persist writes the tracked bitmaps and the world
func (s *Session) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = true
	if err := s.state.SaveBitmaps(s.bitmaps.Snapshot()); err != nil {
		return err
	}
	if err := s.world.Save(s.worldPath); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close saves whatever did not reach disk yet and releases the bitmaps
// without rebinding their consumers, so the next session can restore them
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	s.closed = true
	dirty := s.dirty
	s.mu.Unlock()

	var err error
	if dirty {
		err = s.persist()
	}
	s.bitmaps.Detach()
	if cerr := s.state.Close(); err == nil {
		err = cerr
	}
	return err
}

// Reset stops tracking every bitmap, rebinds all consumers to the default
// texture and persists the result
func (s *Session) Reset() error {
	for _, rec := range s.bitmaps.Snapshot() {
		if err := s.state.DeleteBitmap(rec.TrackingID); err != nil {
			return err
		}
	}
	s.Stop()
	s.bitmaps.Close()
	return s.persist()
}
