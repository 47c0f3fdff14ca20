package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/localtex/cli/internal/interfaces"
)

var _ interfaces.StateManager = (*Manager)(nil)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager := NewManager()
	if err := manager.Initialize(filepath.Join(t.TempDir(), "state.db")); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func sampleRecord(name string) interfaces.BitmapRecord {
	return interfaces.BitmapRecord{
		TrackingID:   uuid.New(),
		WorldID:      uuid.New(),
		Filename:     filepath.Join("/textures", name),
		Format:       interfaces.FormatPNG,
		Status:       interfaces.LinkOn,
		LastModified: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		AddedAt:      time.Date(2024, 5, 1, 11, 0, 0, 123, time.UTC),
	}
}

func TestInitialize(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "state.db")

		manager := NewManager()
		defer manager.Close()

		if err := manager.Initialize(dbPath); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Fatal("Database file was not created")
		}
	})

	t.Run("is idempotent on an existing database", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "state.db")

		first := NewManager()
		if err := first.Initialize(dbPath); err != nil {
			t.Fatalf("first Initialize failed: %v", err)
		}
		if err := first.SaveBitmaps([]interfaces.BitmapRecord{sampleRecord("a.png")}); err != nil {
			t.Fatalf("SaveBitmaps failed: %v", err)
		}
		first.Close()

		second := NewManager()
		defer second.Close()
		if err := second.Initialize(dbPath); err != nil {
			t.Fatalf("second Initialize failed: %v", err)
		}
		records, err := second.LoadBitmaps()
		if err != nil {
			t.Fatalf("LoadBitmaps failed: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("Expected 1 record to survive reopen, got %d", len(records))
		}
	})

	t.Run("rejects a corrupted file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "corrupted.db")
		if err := os.WriteFile(dbPath, []byte("this is not a sqlite database at all, not even close"), 0600); err != nil {
			t.Fatalf("Failed to create corrupted file: %v", err)
		}

		manager := NewManager()
		defer manager.Close()

		if err := manager.Initialize(dbPath); err == nil {
			t.Fatal("Expected error for corrupted database, got nil")
		}
	})
}

func TestBitmaps(t *testing.T) {
	t.Run("save and load keep order and fields", func(t *testing.T) {
		manager := newTestManager(t)
		records := []interfaces.BitmapRecord{sampleRecord("b.png"), sampleRecord("a.tga")}
		records[1].Format = interfaces.FormatTGA
		records[1].Status = interfaces.LinkBroken

		if err := manager.SaveBitmaps(records); err != nil {
			t.Fatalf("SaveBitmaps failed: %v", err)
		}

		loaded, err := manager.LoadBitmaps()
		if err != nil {
			t.Fatalf("LoadBitmaps failed: %v", err)
		}
		if len(loaded) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(loaded))
		}
		for i := range records {
			want, got := records[i], loaded[i]
			if got.TrackingID != want.TrackingID || got.WorldID != want.WorldID {
				t.Errorf("record %d ids = %s/%s, want %s/%s", i, got.TrackingID, got.WorldID, want.TrackingID, want.WorldID)
			}
			if got.Filename != want.Filename || got.Format != want.Format || got.Status != want.Status {
				t.Errorf("record %d = %+v, want %+v", i, got, want)
			}
			if !got.LastModified.Equal(want.LastModified) || !got.AddedAt.Equal(want.AddedAt) {
				t.Errorf("record %d times = %v/%v, want %v/%v", i, got.LastModified, got.AddedAt, want.LastModified, want.AddedAt)
			}
		}
	})

	t.Run("save replaces previous contents", func(t *testing.T) {
		manager := newTestManager(t)
		if err := manager.SaveBitmaps([]interfaces.BitmapRecord{sampleRecord("a.png"), sampleRecord("b.png")}); err != nil {
			t.Fatalf("SaveBitmaps failed: %v", err)
		}
		keep := sampleRecord("c.png")
		if err := manager.SaveBitmaps([]interfaces.BitmapRecord{keep}); err != nil {
			t.Fatalf("SaveBitmaps failed: %v", err)
		}

		loaded, err := manager.LoadBitmaps()
		if err != nil {
			t.Fatalf("LoadBitmaps failed: %v", err)
		}
		if len(loaded) != 1 || loaded[0].TrackingID != keep.TrackingID {
			t.Errorf("Expected only %s, got %+v", keep.TrackingID, loaded)
		}
	})

	t.Run("empty database loads no records", func(t *testing.T) {
		manager := newTestManager(t)
		loaded, err := manager.LoadBitmaps()
		if err != nil {
			t.Fatalf("LoadBitmaps failed: %v", err)
		}
		if loaded == nil || len(loaded) != 0 {
			t.Errorf("Expected empty non-nil slice, got %#v", loaded)
		}
	})

	t.Run("delete removes one record", func(t *testing.T) {
		manager := newTestManager(t)
		a, b := sampleRecord("a.png"), sampleRecord("b.png")
		if err := manager.SaveBitmaps([]interfaces.BitmapRecord{a, b}); err != nil {
			t.Fatalf("SaveBitmaps failed: %v", err)
		}

		if err := manager.DeleteBitmap(a.TrackingID); err != nil {
			t.Fatalf("DeleteBitmap failed: %v", err)
		}
		if err := manager.DeleteBitmap(uuid.New()); err != nil {
			t.Fatalf("DeleteBitmap of unknown id failed: %v", err)
		}

		loaded, _ := manager.LoadBitmaps()
		if len(loaded) != 1 || loaded[0].TrackingID != b.TrackingID {
			t.Errorf("Expected only %s, got %+v", b.TrackingID, loaded)
		}
	})
}

func TestRefreshHistory(t *testing.T) {
	t.Run("returns zero report when no cycle exists", func(t *testing.T) {
		manager := newTestManager(t)
		report, err := manager.LastCycle()
		if err != nil {
			t.Fatalf("LastCycle failed: %v", err)
		}
		if !report.Timestamp.IsZero() || report.Checked != 0 {
			t.Errorf("Expected zero report, got %+v", report)
		}
	})

	t.Run("returns the latest cycle", func(t *testing.T) {
		manager := newTestManager(t)
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			report := interfaces.CycleReport{
				Timestamp:  base.Add(time.Duration(i) * time.Second),
				Checked:    3,
				Changed:    i,
				Broken:     1,
				Recomposed: i == 2,
			}
			if err := manager.RecordCycle(report); err != nil {
				t.Fatalf("RecordCycle failed: %v", err)
			}
		}

		last, err := manager.LastCycle()
		if err != nil {
			t.Fatalf("LastCycle failed: %v", err)
		}
		if last.Changed != 2 || !last.Recomposed || last.Broken != 1 || last.Checked != 3 {
			t.Errorf("Unexpected last cycle %+v", last)
		}
		if !last.Timestamp.Equal(base.Add(2 * time.Second)) {
			t.Errorf("Expected timestamp %v, got %v", base.Add(2*time.Second), last.Timestamp)
		}
	})
}

func TestRefreshHistory_Bounded(t *testing.T) {
	manager := newTestManager(t)
	manager.historyLimit = 5

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		report := interfaces.CycleReport{Timestamp: base.Add(time.Duration(i) * time.Second), Changed: i}
		if err := manager.RecordCycle(report); err != nil {
			t.Fatalf("RecordCycle failed: %v", err)
		}
	}

	var count, oldest int
	if err := manager.db.QueryRow("SELECT COUNT(*), MIN(changed) FROM refresh_history").Scan(&count, &oldest); err != nil {
		t.Fatalf("Failed to count history: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 cycles kept, got %d", count)
	}
	if oldest != 7 {
		t.Errorf("Expected the oldest kept cycle to be 7, got %d", oldest)
	}

	last, err := manager.LastCycle()
	if err != nil {
		t.Fatalf("LastCycle failed: %v", err)
	}
	if last.Changed != 11 {
		t.Errorf("Expected last cycle 11, got %d", last.Changed)
	}
}

func TestUninitialized(t *testing.T) {
	manager := NewManager()

	if err := manager.SaveBitmaps(nil); err == nil {
		t.Error("Expected SaveBitmaps error when not initialized")
	}
	if _, err := manager.LoadBitmaps(); err == nil {
		t.Error("Expected LoadBitmaps error when not initialized")
	}
	if err := manager.DeleteBitmap(uuid.New()); err == nil {
		t.Error("Expected DeleteBitmap error when not initialized")
	}
	if err := manager.RecordCycle(interfaces.CycleReport{}); err == nil {
		t.Error("Expected RecordCycle error when not initialized")
	}
	if _, err := manager.LastCycle(); err == nil {
		t.Error("Expected LastCycle error when not initialized")
	}
	if err := manager.Close(); err != nil {
		t.Errorf("Close of uninitialized manager failed: %v", err)
	}
}

// **Feature: localtex, Property: stored bitmaps load back in save order**
func TestProperty_SaveLoadPreservesOrder(t *testing.T) {
	manager := NewManager()
	if err := manager.Initialize(filepath.Join(t.TempDir(), "state.db")); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer manager.Close()

	properties := gopter.NewProperties(nil)

	properties.Property("tracking ids come back in order",
		prop.ForAll(
			func(n int) bool {
				records := make([]interfaces.BitmapRecord, n)
				for i := range records {
					records[i] = sampleRecord(uuid.NewString() + ".png")
				}
				if err := manager.SaveBitmaps(records); err != nil {
					return false
				}
				loaded, err := manager.LoadBitmaps()
				if err != nil || len(loaded) != n {
					return false
				}
				for i := range records {
					if loaded[i].TrackingID != records[i].TrackingID {
						return false
					}
				}
				return true
			},
			gen.IntRange(0, 20),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
