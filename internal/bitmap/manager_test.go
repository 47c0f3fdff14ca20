package bitmap

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/localtex/cli/internal/codec"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ interfaces.BitmapManager = (*Manager)(nil)

type managerFixture struct {
	codec      *fakeCodec
	fs         *fakeFS
	registry   *registry.Registry
	scene      *fakeScene
	appearance *fakeAppearance
	manager    *Manager
}

func newManagerFixture() *managerFixture {
	f := &managerFixture{
		codec:      newFakeCodec(),
		fs:         newFakeFS(),
		registry:   registry.New(),
		scene:      &fakeScene{},
		appearance: newFakeAppearance(),
	}
	f.manager = NewManager(Options{
		Codec:      f.codec,
		Registry:   f.registry,
		FileSystem: f.fs,
		Scene:      f.scene,
		Appearance: f.appearance,
		Textures:   testTextures,
		Retries:    5,
		Period:     time.Hour,
		Logger:     discardLogger,
	})
	return f
}

func TestManager_AddFromFiles(t *testing.T) {
	t.Run("keeps only valid bitmaps", func(t *testing.T) {
		f := newManagerFixture()
		f.fs.touch("/tex/a.png")
		f.fs.touch("/tex/b.xyz")

		assert.True(t, f.manager.AddFromFiles([]string{"/tex/a.png", "/tex/b.xyz", "/tex/missing.png"}))
		rows := f.manager.Rows()
		require.Len(t, rows, 1)
		assert.Equal(t, "a", rows[0].DisplayName)
	})

	t.Run("nothing valid returns false", func(t *testing.T) {
		f := newManagerFixture()
		assert.False(t, f.manager.AddFromFiles([]string{"/tex/b.xyz"}))
		assert.False(t, f.manager.AddFromFiles(nil))
		assert.Equal(t, 0, f.manager.Len())
	})

	t.Run("rows keep insertion order", func(t *testing.T) {
		f := newManagerFixture()
		for _, p := range []string{"/tex/c.png", "/tex/a.tga", "/tex/b.bmp"} {
			f.fs.touch(p)
		}
		require.True(t, f.manager.AddFromFiles([]string{"/tex/c.png", "/tex/a.tga", "/tex/b.bmp"}))

		var names []string
		for _, r := range f.manager.Rows() {
			names = append(names, r.DisplayName)
		}
		assert.Equal(t, []string{"c", "a", "b"}, names)
	})

	t.Run("does not start a stopped timer", func(t *testing.T) {
		f := newManagerFixture()
		f.fs.touch("/tex/a.png")
		f.manager.AddFromFiles([]string{"/tex/a.png"})
		assert.False(t, f.manager.Timer().IsRunning())
	})

	t.Run("resumes a running timer", func(t *testing.T) {
		f := newManagerFixture()
		f.manager.Start()
		defer f.manager.Stop()
		f.fs.touch("/tex/a.png")
		f.manager.AddFromFiles([]string{"/tex/a.png"})
		assert.True(t, f.manager.Timer().IsRunning())
	})
}

func TestManager_Lookups(t *testing.T) {
	f := newManagerFixture()
	f.fs.touch("/tex/a.png")
	require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png"}))
	tracking := f.manager.Rows()[0].TrackingID

	assert.Equal(t, "/tex/a.png", f.manager.LookupFilename(tracking))
	assert.NotEqual(t, uuid.Nil, f.manager.LookupWorldID(tracking))
	assert.Equal(t, "", f.manager.LookupFilename(uuid.New()))
	assert.Equal(t, uuid.Nil, f.manager.LookupWorldID(uuid.New()))
}

func TestManager_Remove(t *testing.T) {
	f := newManagerFixture()
	f.fs.touch("/tex/a.png")
	f.fs.touch("/tex/b.png")
	require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png", "/tex/b.png"}))
	rows := f.manager.Rows()
	worldID := f.manager.LookupWorldID(rows[0].TrackingID)
	obj := &fakeObject{faces: []uuid.UUID{worldID}}
	f.scene.objects = append(f.scene.objects, obj)

	f.manager.Remove(rows[0].TrackingID)

	assert.Equal(t, 1, f.manager.Len())
	assert.Equal(t, rows[1].TrackingID, f.manager.Rows()[0].TrackingID)
	assert.Equal(t, testTextures.DefaultID, obj.faces[0])
	_, ok := f.registry.Lookup(worldID)
	assert.False(t, ok)
	assert.Equal(t, 1, f.appearance.recomposes)

	t.Run("unknown id does nothing", func(t *testing.T) {
		f.manager.Remove(uuid.New())
		assert.Equal(t, 1, f.manager.Len())
		assert.Equal(t, 1, f.appearance.recomposes)
	})
}

func TestManager_RefreshAll(t *testing.T) {
	t.Run("no change means no recomposition", func(t *testing.T) {
		f := newManagerFixture()
		f.fs.touch("/tex/a.png")
		require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png"}))
		tracking := f.manager.Rows()[0].TrackingID
		id := f.manager.LookupWorldID(tracking)
		f.appearance.wear(interfaces.WearableShirt, interfaces.RegionUpper, id)

		report := f.manager.RefreshAll()
		assert.Equal(t, 1, report.Checked)
		assert.Equal(t, 0, report.Changed)
		assert.False(t, report.Recomposed)
		assert.Equal(t, id, f.manager.LookupWorldID(tracking))
		assert.Equal(t, 0, f.appearance.recomposes)
	})

	t.Run("many changed layers recompose once", func(t *testing.T) {
		f := newManagerFixture()
		paths := []string{"/tex/a.png", "/tex/b.png", "/tex/c.png"}
		for _, p := range paths {
			f.fs.touch(p)
		}
		require.True(t, f.manager.AddFromFiles(paths))
		rows := f.manager.Rows()
		f.appearance.wear(interfaces.WearableShirt, interfaces.RegionUpper, f.manager.LookupWorldID(rows[0].TrackingID))
		f.appearance.wear(interfaces.WearablePants, interfaces.RegionLower, f.manager.LookupWorldID(rows[1].TrackingID))
		f.appearance.wear(interfaces.WearableTattoo, interfaces.RegionHead, f.manager.LookupWorldID(rows[2].TrackingID))

		for _, p := range paths {
			f.fs.touch(p)
		}
		report := f.manager.RefreshAll()

		assert.Equal(t, 3, report.Changed)
		assert.True(t, report.Recomposed)
		assert.Equal(t, 1, f.appearance.recomposes)
		assert.Equal(t, f.manager.LookupWorldID(rows[1].TrackingID), f.appearance.channels[interfaces.ChannelLowerPants])
	})

	t.Run("face-only change does not recompose", func(t *testing.T) {
		f := newManagerFixture()
		f.fs.touch("/tex/a.png")
		require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png"}))
		tracking := f.manager.Rows()[0].TrackingID
		obj := &fakeObject{faces: []uuid.UUID{f.manager.LookupWorldID(tracking)}}
		f.scene.objects = append(f.scene.objects, obj)

		f.fs.touch("/tex/a.png")
		report := f.manager.RefreshAll()
		assert.Equal(t, 1, report.Changed)
		assert.False(t, report.Recomposed)
		assert.Equal(t, f.manager.LookupWorldID(tracking), obj.faces[0])
	})

	t.Run("broken bitmaps stay listed", func(t *testing.T) {
		f := newManagerFixture()
		f.fs.touch("/tex/a.png")
		require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png"}))
		f.fs.remove("/tex/a.png")

		report := f.manager.RefreshAll()
		assert.Equal(t, 1, report.Broken)
		assert.Equal(t, 1, f.manager.Len())
		assert.Equal(t, interfaces.LinkBroken, f.manager.Snapshot()[0].Status)
	})
}

func TestManager_Restore(t *testing.T) {
	f := newManagerFixture()
	f.fs.touch("/tex/a.png")
	staleID := uuid.New()
	tracking := uuid.New()
	obj := &fakeObject{faces: []uuid.UUID{staleID}}
	f.scene.objects = append(f.scene.objects, obj)
	f.appearance.wear(interfaces.WearableSkin, interfaces.RegionUpper, staleID)

	goneID := uuid.New()
	goneTracking := uuid.New()
	orphan := &fakeObject{faces: []uuid.UUID{goneID}}
	f.scene.objects = append(f.scene.objects, orphan)

	report := f.manager.Restore([]interfaces.BitmapRecord{
		{TrackingID: tracking, WorldID: staleID, Filename: "/tex/a.png", Status: interfaces.LinkOn},
		{TrackingID: goneTracking, WorldID: goneID, Filename: "/tex/gone.png", Status: interfaces.LinkOn},
	})

	assert.Empty(t, report.Dropped)
	assert.Equal(t, 2, report.Restored)
	assert.Equal(t, 1, report.Rebound)
	assert.Equal(t, 1, report.Broken)
	assert.True(t, report.Changed())
	require.Equal(t, 2, f.manager.Len())

	newID := f.manager.LookupWorldID(tracking)
	assert.NotEqual(t, uuid.Nil, newID)
	assert.Equal(t, newID, obj.faces[0])
	assert.Equal(t, newID, f.appearance.channels[interfaces.ChannelUpperBodypaint])
	assert.Equal(t, 1, f.appearance.recomposes)

	// the missing file is kept as a broken bitmap still owning its consumers
	assert.Equal(t, goneID, f.manager.LookupWorldID(goneTracking))
	assert.Equal(t, goneID, orphan.faces[0])

	t.Run("already tracked ids are skipped", func(t *testing.T) {
		report := f.manager.Restore([]interfaces.BitmapRecord{{TrackingID: tracking, Filename: "/tex/a.png"}})
		assert.Equal(t, 0, report.Restored)
		assert.False(t, report.Changed())
		assert.Equal(t, 2, f.manager.Len())
	})

	t.Run("removing the broken bitmap releases its consumers", func(t *testing.T) {
		f.manager.Remove(goneTracking)
		assert.Equal(t, testTextures.DefaultID, orphan.faces[0])
	})
}

func TestManager_RestoreBrokenStaysBroken(t *testing.T) {
	f := newManagerFixture()
	f.fs.touch("/tex/a.png")
	worldID := uuid.New()
	tracking := uuid.New()
	obj := &fakeObject{faces: []uuid.UUID{worldID}}
	f.scene.objects = append(f.scene.objects, obj)

	report := f.manager.Restore([]interfaces.BitmapRecord{
		{TrackingID: tracking, WorldID: worldID, Filename: "/tex/a.png", Status: interfaces.LinkBroken},
	})
	assert.False(t, report.Changed())
	assert.Equal(t, 0, f.codec.calls)

	// the file decodes fine now, the link stays broken
	f.fs.touch("/tex/a.png")
	cycle := f.manager.RefreshAll()
	assert.Equal(t, 0, cycle.Changed)
	assert.Equal(t, 1, cycle.Broken)
	assert.Equal(t, 0, f.codec.calls)
	assert.Equal(t, interfaces.LinkBroken, f.manager.Snapshot()[0].Status)
	assert.Equal(t, worldID, obj.faces[0])
}

func TestManager_RestoreAdoptsUnchangedFile(t *testing.T) {
	f := newManagerFixture()
	f.fs.touch("/tex/a.png")
	info, err := f.fs.Stat("/tex/a.png")
	require.NoError(t, err)

	worldID := uuid.New()
	tracking := uuid.New()
	obj := &fakeObject{faces: []uuid.UUID{worldID}}
	f.scene.objects = append(f.scene.objects, obj)

	report := f.manager.Restore([]interfaces.BitmapRecord{{
		TrackingID:   tracking,
		WorldID:      worldID,
		Filename:     "/tex/a.png",
		Status:       interfaces.LinkOn,
		LastModified: info.ModTime(),
	}})

	assert.False(t, report.Changed())
	assert.Equal(t, worldID, f.manager.LookupWorldID(tracking))
	_, live := f.registry.Lookup(worldID)
	assert.True(t, live)
	assert.Equal(t, 0, obj.updates)

	t.Run("a changed file gets a new id", func(t *testing.T) {
		f.fs.touch("/tex/a.png")
		assert.Equal(t, 1, f.manager.RefreshAll().Changed)
		assert.NotEqual(t, worldID, obj.faces[0])
		_, live := f.registry.Lookup(worldID)
		assert.False(t, live)
	})
}

func TestManager_RestoreDropsUnsupportedRecords(t *testing.T) {
	f := newManagerFixture()
	goneID := uuid.New()
	orphan := &fakeObject{faces: []uuid.UUID{goneID}}
	f.scene.objects = append(f.scene.objects, orphan)

	tracking := uuid.New()
	report := f.manager.Restore([]interfaces.BitmapRecord{
		{TrackingID: tracking, WorldID: goneID, Filename: "/tex/notes.txt"},
	})
	assert.Equal(t, []uuid.UUID{tracking}, report.Dropped)
	assert.Equal(t, 0, f.manager.Len())
	assert.Equal(t, testTextures.DefaultID, orphan.faces[0])
}

func TestManager_StoppedTimerTickDoesNothing(t *testing.T) {
	f := newManagerFixture()
	cycles := 0
	f.manager = NewManager(Options{
		Codec:      f.codec,
		Registry:   f.registry,
		FileSystem: f.fs,
		Period:     time.Hour,
		Logger:     discardLogger,
		OnCycle:    func(interfaces.CycleReport) { cycles++ },
	})
	f.fs.touch("/tex/a.png")
	require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png"}))
	calls := f.codec.calls

	f.manager.Start()
	f.manager.Stop()
	f.fs.touch("/tex/a.png")

	// a tick that was already waiting when Stop returned
	f.manager.timer.fn()

	assert.Equal(t, 0, cycles)
	assert.Equal(t, calls, f.codec.calls)
	assert.False(t, f.manager.Timer().IsRunning())
}

func TestManager_Close(t *testing.T) {
	f := newManagerFixture()
	f.fs.touch("/tex/a.png")
	f.fs.touch("/tex/b.png")
	require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png", "/tex/b.png"}))
	f.manager.Start()

	f.manager.Close()

	assert.False(t, f.manager.Timer().IsRunning())
	assert.Equal(t, 0, f.manager.Len())
	assert.Equal(t, 0, f.registry.Len())
	assert.Equal(t, 1, f.appearance.recomposes)
}

func TestManager_TimerDrivesRefresh(t *testing.T) {
	f := newManagerFixture()
	f.manager = NewManager(Options{
		Codec:      f.codec,
		Registry:   f.registry,
		FileSystem: f.fs,
		Period:     10 * time.Millisecond,
		Logger:     discardLogger,
	})
	f.fs.touch("/tex/a.png")
	require.True(t, f.manager.AddFromFiles([]string{"/tex/a.png"}))
	tracking := f.manager.Rows()[0].TrackingID
	first := f.manager.LookupWorldID(tracking)

	f.manager.Start()
	defer f.manager.Close()
	f.fs.touch("/tex/a.png")

	assert.Eventually(t, func() bool {
		return f.manager.LookupWorldID(tracking) != first
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.manager.Timer().IsRunning())
}

// **Feature: localtex, Property: one refresh cycle recomposes at most once**
func TestProperty_AtMostOneRecompositionPerCycle(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("k changed layered bitmaps recompose once",
		prop.ForAll(
			func(k int, changed int) bool {
				f := newManagerFixture()
				var paths []string
				for i := 0; i < k; i++ {
					p := filepath.Join("/tex", uuid.NewString()+".png")
					f.fs.touch(p)
					paths = append(paths, p)
				}
				if k > 0 && !f.manager.AddFromFiles(paths) {
					return false
				}
				for i, row := range f.manager.Rows() {
					id := f.manager.LookupWorldID(row.TrackingID)
					f.scene.objects = append(f.scene.objects, &fakeObject{faces: []uuid.UUID{id, id}})
					if i == 0 {
						f.appearance.wear(interfaces.WearableShirt, interfaces.RegionUpper, id)
					}
				}

				n := changed % (k + 1)
				for _, p := range paths[:n] {
					f.fs.touch(p)
				}
				report := f.manager.RefreshAll()

				if report.Changed != n {
					return false
				}
				if n == 0 {
					return f.appearance.recomposes == 0 && !report.Recomposed
				}
				return f.appearance.recomposes <= 1
			},
			gen.IntRange(0, 8),
			gen.IntRange(0, 8),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func writePNG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()
	require.NoError(t, png.Encode(out, img))
}

func newDiskManager(scene interfaces.SceneGraph, reg *registry.Registry) *Manager {
	return NewManager(Options{
		Codec:    codec.NewDecoder(1024),
		Registry: reg,
		Scene:    scene,
		Textures: testTextures,
		Period:   time.Hour,
		Logger:   discardLogger,
	})
}

func TestManager_EndToEnd(t *testing.T) {
	t.Run("png kept and unsupported dropped", func(t *testing.T) {
		dir := t.TempDir()
		good := filepath.Join(dir, "good.png")
		writePNG(t, good, 10)
		bad := filepath.Join(dir, "bad.xyz")
		require.NoError(t, os.WriteFile(bad, []byte("whatever"), 0644))

		m := newDiskManager(nil, registry.New())
		assert.True(t, m.AddFromFiles([]string{good, bad}))
		records := m.Snapshot()
		require.Len(t, records, 1)
		assert.Equal(t, interfaces.FormatPNG, records[0].Format)
	})

	t.Run("reload rebinds face and drops old image", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "skin.png")
		writePNG(t, path, 10)

		reg := registry.New()
		scene := &fakeScene{}
		m := newDiskManager(scene, reg)
		require.True(t, m.AddFromFiles([]string{path}))
		tracking := m.Rows()[0].TrackingID
		a := m.LookupWorldID(tracking)
		obj := &fakeObject{faces: []uuid.UUID{a}}
		scene.objects = append(scene.objects, obj)

		writePNG(t, path, 200)
		later := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, later, later))

		report := m.RefreshAll()
		require.Equal(t, 1, report.Changed)
		b := m.LookupWorldID(tracking)
		assert.NotEqual(t, a, b)
		assert.Equal(t, b, obj.faces[0])
		_, ok := reg.Lookup(a)
		assert.False(t, ok)
	})
}
