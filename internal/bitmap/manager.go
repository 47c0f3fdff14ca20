package bitmap

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/rewrite"
)

// Options configures a Manager
type Options struct {
	Codec      interfaces.Codec
	Registry   interfaces.AssetRegistry
	FileSystem interfaces.FileSystem
	Scene      interfaces.SceneGraph
	Appearance interfaces.Appearance
	Textures   rewrite.Config
	Retries    int
	Period     time.Duration
	Logger     *slog.Logger
	// OnCycle is called after every timer-driven refresh cycle
	OnCycle func(interfaces.CycleReport)
}

// Manager owns the tracked bitmaps and runs the refresh cycle. All
// operations are serialised by mu, so timer ticks, file notifications and
// user commands never interleave.
type Manager struct {
	mu         sync.Mutex
	bitmaps    []*Bitmap
	deps       Deps
	appearance interfaces.Appearance
	timer      *Timer
	logger     *slog.Logger

	// recompositionPending is only touched with mu held
	recompositionPending bool
}

// NewManager creates a manager with a stopped refresh timer
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Period <= 0 {
		opts.Period = interfaces.DefaultPeriod
	}
	if opts.Retries < 1 {
		opts.Retries = interfaces.DefaultRetries
	}
	if opts.FileSystem == nil {
		opts.FileSystem = OSFileSystem{}
	}

	m := &Manager{
		appearance: opts.Appearance,
		logger:     logger,
	}
	m.deps = Deps{
		Codec:      opts.Codec,
		Registry:   opts.Registry,
		FileSystem: opts.FileSystem,
		Rewriter:   rewrite.NewRewriter(opts.Scene, opts.Appearance, m, opts.Textures, logger),
		Retries:    opts.Retries,
		Logger:     logger,
	}
	m.timer = NewTimer(opts.Period, func() {
		report, ran := m.tick()
		if ran && opts.OnCycle != nil {
			opts.OnCycle(report)
		}
	})
	return m
}

// tick runs a timer-driven cycle unless the timer was stopped while the
// tick waited for the lock
func (m *Manager) tick() (interfaces.CycleReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.timer.IsRunning() {
		return interfaces.CycleReport{}, false
	}
	defer m.pause()()
	return m.refreshAll(), true
}

// RestoreReport describes what Restore did
type RestoreReport struct {
	Restored int
	// Rebound counts bitmaps now published under a different world id
	Rebound int
	// Broken counts bitmaps that broke while being restored
	Broken  int
	Dropped []uuid.UUID
}

// Changed reports whether the persisted bitmaps or the world need saving
func (r RestoreReport) Changed() bool {
	return r.Rebound > 0 || r.Broken > 0 || len(r.Dropped) > 0
}

// RequestRecomposition marks the current cycle as needing one recomposition
func (m *Manager) RequestRecomposition() {
	m.recompositionPending = true
}

// Start starts the periodic refresh
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Start()
}

// Stop stops the periodic refresh. A cycle in flight finishes first so it
// cannot restart the timer behind the caller's back.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Stop()
}

// Timer exposes the refresh timer for status reporting
func (m *Manager) Timer() *Timer { return m.timer }

// pause stops the timer for the duration of a mutation and returns the
// function that restores it
func (m *Manager) pause() func() {
	wasRunning := m.timer.IsRunning()
	m.timer.Stop()
	return func() {
		if wasRunning {
			m.timer.Start()
		}
	}
}

// AddFromFiles creates a bitmap for every path and keeps the ones that
// loaded. It returns true when at least one was kept.
func (m *Manager) AddFromFiles(paths []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.pause()()

	added := false
	for _, path := range paths {
		b := New(path, m.deps)
		if !b.Valid() {
			m.logger.Warn("bitmap not added", "file", path)
			continue
		}
		m.bitmaps = append(m.bitmaps, b)
		m.logger.Info("bitmap added", "file", path, "tracking_id", b.TrackingID(), "world_id", b.WorldID())
		added = true
	}
	return added
}

// Restore re-adds persisted bitmaps under their original tracking ids.
// Broken bitmaps come back broken. A bitmap published under a new world id
// has the consumers of its persisted id moved onto the new one. Records of
// an unsupported format are dropped and their consumers fall back to the
// default id.
func (m *Manager) Restore(records []interfaces.BitmapRecord) RestoreReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.pause()()

	m.recompositionPending = false
	var report RestoreReport
	for _, rec := range records {
		if m.find(rec.TrackingID) != nil {
			continue
		}
		b := restore(rec, m.deps)
		if !b.Valid() {
			m.logger.Warn("persisted bitmap could not be restored", "file", rec.Filename, "tracking_id", rec.TrackingID)
			if rec.WorldID != uuid.Nil {
				m.deps.Rewriter.Rewrite(rec.WorldID, m.deps.Rewriter.DefaultID())
			}
			report.Dropped = append(report.Dropped, rec.TrackingID)
			continue
		}

		report.Restored++
		if rec.Status != interfaces.LinkBroken && b.Status() == interfaces.LinkBroken {
			report.Broken++
		}
		if b.WorldID() != rec.WorldID {
			report.Rebound++
			if rec.WorldID != uuid.Nil {
				m.deps.Rewriter.Rewrite(rec.WorldID, b.WorldID())
			}
		}
		m.bitmaps = append(m.bitmaps, b)
	}
	m.recomposeIfPending()
	return report
}

// Remove destroys every bitmap with the given tracking id
func (m *Manager) Remove(trackingID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.pause()()

	kept := m.bitmaps[:0]
	removed := 0
	for _, b := range m.bitmaps {
		if b.TrackingID() == trackingID {
			b.Destroy()
			removed++
			continue
		}
		kept = append(kept, b)
	}
	for i := len(kept); i < len(m.bitmaps); i++ {
		m.bitmaps[i] = nil
	}
	m.bitmaps = kept

	if removed > 0 {
		m.logger.Info("bitmap removed", "tracking_id", trackingID)
		m.recompose()
	}
}

// RefreshAll checks every bitmap for changes and recomposes the avatar at
// most once
func (m *Manager) RefreshAll() interfaces.CycleReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.pause()()
	return m.refreshAll()
}

func (m *Manager) refreshAll() interfaces.CycleReport {
	m.recompositionPending = false
	report := interfaces.CycleReport{Timestamp: time.Now()}
	for _, b := range m.bitmaps {
		report.Checked++
		if b.Refresh() {
			report.Changed++
		}
		if b.Status() == interfaces.LinkBroken {
			report.Broken++
		}
	}
	report.Recomposed = m.recomposeIfPending()

	if report.Changed > 0 {
		m.logger.Info("refresh cycle", "checked", report.Checked, "changed", report.Changed, "broken", report.Broken, "recomposed", report.Recomposed)
	}
	return report
}

func (m *Manager) recomposeIfPending() bool {
	if !m.recompositionPending {
		return false
	}
	m.recompositionPending = false
	return m.recompose()
}

func (m *Manager) recompose() bool {
	if m.appearance == nil {
		return false
	}
	m.appearance.Recompose()
	m.logger.Debug("appearance recomposed")
	return true
}

// LookupWorldID returns the current world id of a tracked bitmap, or
// uuid.Nil when the tracking id is unknown
func (m *Manager) LookupWorldID(trackingID uuid.UUID) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.find(trackingID); b != nil {
		return b.WorldID()
	}
	return uuid.Nil
}

// LookupFilename returns the file of a tracked bitmap, or "" when unknown
func (m *Manager) LookupFilename(trackingID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.find(trackingID); b != nil {
		return b.Filename()
	}
	return ""
}

// Rows lists the tracked bitmaps for display in insertion order
func (m *Manager) Rows() []interfaces.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]interfaces.Row, 0, len(m.bitmaps))
	for _, b := range m.bitmaps {
		rows = append(rows, interfaces.Row{DisplayName: b.ShortName(), TrackingID: b.TrackingID()})
	}
	return rows
}

// Snapshot returns the persisted form of every tracked bitmap
func (m *Manager) Snapshot() []interfaces.BitmapRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]interfaces.BitmapRecord, 0, len(m.bitmaps))
	for _, b := range m.bitmaps {
		records = append(records, b.Record())
	}
	return records
}

// Len returns the number of tracked bitmaps
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bitmaps)
}

// Close stops the timer and destroys every tracked bitmap
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Stop()
	if len(m.bitmaps) == 0 {
		return
	}
	for _, b := range m.bitmaps {
		b.Destroy()
	}
	m.bitmaps = nil
	m.recompose()
}

// Detach stops the timer and forgets every bitmap without rebinding its
// consumers, leaving the world as it is for the next run to restore
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Stop()
	m.bitmaps = nil
}

func (m *Manager) find(trackingID uuid.UUID) *Bitmap {
	for _, b := range m.bitmaps {
		if b.TrackingID() == trackingID {
			return b
		}
	}
	return nil
}
