package interfaces

import (
	"time"

	"github.com/google/uuid"
)

// StateManager handles persistent storage of tracked bitmaps and refresh history
type StateManager interface {
	Initialize(dbPath string) error
	SaveBitmaps(records []BitmapRecord) error
	LoadBitmaps() ([]BitmapRecord, error)
	DeleteBitmap(trackingID uuid.UUID) error
	RecordCycle(report CycleReport) error
	LastCycle() (CycleReport, error)
	Close() error
}

// BitmapRecord is the persisted form of a tracked bitmap
type BitmapRecord struct {
	TrackingID   uuid.UUID
	WorldID      uuid.UUID
	Filename     string
	Format       Format
	Status       LinkStatus
	LastModified time.Time
	AddedAt      time.Time
}
