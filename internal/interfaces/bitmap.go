package interfaces

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Format identifies the encoding of a watched bitmap
type Format int

const (
	FormatUnknown Format = iota
	FormatBMP
	FormatTGA
	FormatJPEG
	FormatPNG
)

func (f Format) String() string {
	switch f {
	case FormatBMP:
		return "bmp"
	case FormatTGA:
		return "tga"
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	default:
		return "unknown"
	}
}

// ParseFormat is the inverse of Format.String
func ParseFormat(name string) Format {
	switch name {
	case "bmp":
		return FormatBMP
	case "tga":
		return FormatTGA
	case "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	default:
		return FormatUnknown
	}
}

// LinkStatus tells whether a bitmap is still tracking its file
type LinkStatus string

const (
	LinkOn     LinkStatus = "on"
	LinkBroken LinkStatus = "broken"
)

// RawImage is a decoded bitmap ready to be registered
type RawImage struct {
	Width      int
	Height     int
	// Components is the number of bytes per pixel in Pixels
	Components int
	Pixels     []byte
	Source     string
}

// Codec decodes a bitmap file of a known format
type Codec interface {
	Decode(path string, format Format) (*RawImage, error)
}

// AssetRegistry exclusively owns decoded resources; everyone else holds ids
type AssetRegistry interface {
	Register(img *RawImage) uuid.UUID
	Deregister(id uuid.UUID)
	Lookup(id uuid.UUID) (*RawImage, bool)
	Len() int
}

// FileSystem exposes the file metadata needed to detect changes
type FileSystem interface {
	Stat(path string) (os.FileInfo, error)
}

// Row is one display entry of the tracked bitmap list
type Row struct {
	DisplayName string
	TrackingID  uuid.UUID
}

// CycleReport summarises one refresh cycle
type CycleReport struct {
	Timestamp  time.Time
	Checked    int
	Changed    int
	Broken     int
	Recomposed bool
}

// BitmapManager tracks local bitmaps and keeps their consumers up to date
type BitmapManager interface {
	AddFromFiles(paths []string) bool
	Remove(trackingID uuid.UUID)
	RefreshAll() CycleReport
	LookupWorldID(trackingID uuid.UUID) uuid.UUID
	LookupFilename(trackingID uuid.UUID) string
	Rows() []Row
	Snapshot() []BitmapRecord
	Close()
}
