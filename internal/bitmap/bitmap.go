package bitmap

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/rewrite"
)

// Rewriter rebinds consumers of one resource id to another
type Rewriter interface {
	Rewrite(oldID, newID uuid.UUID) rewrite.Result
	DefaultID() uuid.UUID
}

// Adopter is implemented by registries that can take an image back under an
// id published by an earlier run
type Adopter interface {
	Adopt(id uuid.UUID, img *interfaces.RawImage) bool
}

// Deps are the collaborators a bitmap needs to load and propagate itself
type Deps struct {
	Codec      interfaces.Codec
	Registry   interfaces.AssetRegistry
	FileSystem interfaces.FileSystem
	Rewriter   Rewriter
	Retries    int
	Logger     *slog.Logger
}

// OSFileSystem reads file metadata from the local disk
type OSFileSystem struct{}

func (OSFileSystem) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Bitmap is one file on disk tracked as a texture. Its tracking id is stable
// for its whole life while its world id changes on every successful reload.
type Bitmap struct {
	filename   string
	shortName  string
	trackingID uuid.UUID
	worldID    uuid.UUID
	format     interfaces.Format
	status     interfaces.LinkStatus
	valid      bool

	lastModified time.Time
	addedAt      time.Time
	retries      int

	deps Deps
}

// FormatFromExtension maps a file extension onto a supported format
func FormatFromExtension(filename string) interfaces.Format {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "bmp":
		return interfaces.FormatBMP
	case "tga":
		return interfaces.FormatTGA
	case "jpg", "jpeg":
		return interfaces.FormatJPEG
	case "png":
		return interfaces.FormatPNG
	default:
		return interfaces.FormatUnknown
	}
}

// New creates a bitmap for filename and performs its first load. The result
// is always non-nil; check Valid before tracking it.
func New(filename string, deps Deps) *Bitmap {
	return newWithTrackingID(filename, uuid.New(), deps)
}

func newWithTrackingID(filename string, trackingID uuid.UUID, deps Deps) *Bitmap {
	b := newBitmap(filename, trackingID, deps)
	if b.format == interfaces.FormatUnknown {
		b.deps.Logger.Warn("unsupported bitmap format", "file", filename)
		return b
	}
	b.valid = b.update(true)
	return b
}

// restore recreates a persisted bitmap under its tracking id. A bitmap that
// was broken stays broken and its file is not read. An unchanged file is
// registered again under the persisted world id when the registry can adopt
// ids. When loading fails the persisted world id is kept, so consumers move
// over once a later refresh succeeds.
func restore(rec interfaces.BitmapRecord, deps Deps) *Bitmap {
	b := newBitmap(rec.Filename, rec.TrackingID, deps)
	if !rec.AddedAt.IsZero() {
		b.addedAt = rec.AddedAt
	}
	if b.format == interfaces.FormatUnknown {
		return b
	}
	b.valid = true

	if rec.Status == interfaces.LinkBroken {
		b.status = interfaces.LinkBroken
		b.worldID = rec.WorldID
		b.lastModified = rec.LastModified
		b.retries = 0
		return b
	}
	if b.adopt(rec) {
		return b
	}
	if !b.update(true) {
		b.worldID = rec.WorldID
	}
	return b
}

// adopt reloads an unchanged file under the world id it had last run
func (b *Bitmap) adopt(rec interfaces.BitmapRecord) bool {
	adopter, ok := b.deps.Registry.(Adopter)
	if !ok || rec.WorldID == uuid.Nil || rec.LastModified.IsZero() {
		return false
	}
	info, err := b.deps.FileSystem.Stat(b.filename)
	if err != nil || !info.ModTime().Equal(rec.LastModified) {
		return false
	}
	raw, err := b.deps.Codec.Decode(b.filename, b.format)
	if err != nil || !adopter.Adopt(rec.WorldID, raw) {
		return false
	}
	b.worldID = rec.WorldID
	b.lastModified = info.ModTime()
	b.deps.Logger.Debug("bitmap reloaded under its previous id", "file", b.filename, "world_id", b.worldID)
	return true
}

func newBitmap(filename string, trackingID uuid.UUID, deps Deps) *Bitmap {
	if deps.Retries < 1 {
		deps.Retries = interfaces.DefaultRetries
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FileSystem == nil {
		deps.FileSystem = OSFileSystem{}
	}

	base := filepath.Base(filename)
	return &Bitmap{
		filename:   filename,
		shortName:  strings.TrimSuffix(base, filepath.Ext(base)),
		trackingID: trackingID,
		format:     FormatFromExtension(filename),
		status:     interfaces.LinkOn,
		retries:    deps.Retries,
		addedAt:    time.Now(),
		deps:       deps,
	}
}

// Refresh reloads the file when it changed on disk and propagates the new
// world id. It returns true when a new image was registered.
func (b *Bitmap) Refresh() bool {
	return b.update(false)
}

func (b *Bitmap) update(first bool) bool {
	if b.status == interfaces.LinkBroken {
		return false
	}

	info, err := b.deps.FileSystem.Stat(b.filename)
	if err != nil {
		b.deps.Logger.Warn("bitmap file is gone, link broken", "file", b.filename, "error", err)
		b.status = interfaces.LinkBroken
		return false
	}

	modified := info.ModTime()
	if !first && modified.Equal(b.lastModified) {
		return false
	}

	raw, err := b.deps.Codec.Decode(b.filename, b.format)
	if err != nil {
		b.retries--
		b.deps.Logger.Warn("failed to decode bitmap", "file", b.filename, "retries_left", b.retries, "error", err)
		if b.retries <= 0 {
			b.retries = 0
			b.status = interfaces.LinkBroken
			b.deps.Logger.Warn("bitmap retries exhausted, link broken", "file", b.filename)
		}
		return false
	}

	oldID := b.worldID
	b.worldID = b.deps.Registry.Register(raw)
	b.lastModified = modified
	b.retries = b.deps.Retries

	if !first && oldID != uuid.Nil {
		if b.deps.Rewriter != nil {
			if res := b.deps.Rewriter.Rewrite(oldID, b.worldID); res.Touched() {
				b.deps.Logger.Debug("consumers rebound", "file", b.filename, "objects", res.ObjectsSynced, "sculpts", res.SculptsUpdated, "layers", res.LayersUpdated)
			}
		}
		b.deps.Registry.Deregister(oldID)
	}

	b.deps.Logger.Debug("bitmap loaded", "file", b.filename, "world_id", b.worldID, "first", first)
	return true
}

// Destroy rebinds every consumer of the current world id to the default
// placeholder and releases the registered image
func (b *Bitmap) Destroy() {
	if b.worldID == uuid.Nil {
		return
	}
	if b.deps.Rewriter != nil {
		b.deps.Rewriter.Rewrite(b.worldID, b.deps.Rewriter.DefaultID())
	}
	b.deps.Registry.Deregister(b.worldID)
	b.worldID = uuid.Nil
}

func (b *Bitmap) Filename() string { return b.filename }
func (b *Bitmap) ShortName() string { return b.shortName }
func (b *Bitmap) TrackingID() uuid.UUID { return b.trackingID }
func (b *Bitmap) WorldID() uuid.UUID { return b.worldID }
func (b *Bitmap) Format() interfaces.Format { return b.format }
func (b *Bitmap) Valid() bool { return b.valid }
func (b *Bitmap) Status() interfaces.LinkStatus { return b.status }
func (b *Bitmap) RetriesRemaining() int { return b.retries }
func (b *Bitmap) LastModified() time.Time { return b.lastModified }

// Record returns the persisted form of the bitmap
func (b *Bitmap) Record() interfaces.BitmapRecord {
	return interfaces.BitmapRecord{
		TrackingID:   b.trackingID,
		WorldID:      b.worldID,
		Filename:     b.filename,
		Format:       b.format,
		Status:       b.status,
		LastModified: b.lastModified,
		AddedAt:      b.addedAt,
	}
}
