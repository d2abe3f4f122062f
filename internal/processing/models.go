package processing

import (
	"strings"
	"time"
)

// BatchStatus represents the lifecycle of a processing batch.
type BatchStatus string

const (
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchCancelled  BatchStatus = "cancelled"
)

var batchStatuses = []BatchStatus{BatchInProgress, BatchCompleted, BatchCancelled}

// AllBatchStatuses returns the ordered list of known batch statuses.
func AllBatchStatuses() []BatchStatus {
	cp := make([]BatchStatus, len(batchStatuses))
	copy(cp, batchStatuses)
	return cp
}

// ParseBatchStatus converts a string into a known BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, bool) {
	normalized := BatchStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range batchStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// EntryStatus represents the state of one stage attempt.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// Method identifies a named processing technique owning an ordered stage
// sequence.
type Method struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Stage is one ordered step belonging to exactly one method. OrderIndex
// values are strictly increasing within a method and are only comparable
// between stages of the same method.
type Stage struct {
	ID          int64
	MethodID    int64
	OrderIndex  int
	Name        string
	AllowsSplit bool
}

// SnapshotStage is one row of the stage-order snapshot a batch keeps from
// the moment of its creation. The snapshot keeps historical progress valid
// when the method is later extended.
type SnapshotStage struct {
	OrderIndex  int
	StageID     int64
	Name        string
	AllowsSplit bool
}

// Batch represents one production run of material through a method's
// stages.
type Batch struct {
	ID                int64
	Reference         string
	MethodID          int64
	MethodName        string
	InputLot          string
	ProducerID        string
	CurrentStageOrder int
	Status            BatchStatus
	CancelReason      string
	IsDeleted         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Snapshot          []SnapshotStage
}

// IsActive reports whether the batch still accepts progress and waste.
func (b *Batch) IsActive() bool {
	return b != nil && b.Status == BatchInProgress && !b.IsDeleted
}

// StageAt returns the snapshot stage with the given order index.
func (b *Batch) StageAt(orderIndex int) (SnapshotStage, bool) {
	for _, s := range b.Snapshot {
		if s.OrderIndex == orderIndex {
			return s, true
		}
	}
	return SnapshotStage{}, false
}

// StageByID returns the snapshot stage with the given stage identifier.
func (b *Batch) StageByID(stageID int64) (SnapshotStage, bool) {
	for _, s := range b.Snapshot {
		if s.StageID == stageID {
			return s, true
		}
	}
	return SnapshotStage{}, false
}

// NextOrderAfter returns the snapshot order following the given one, or
// false when the given order is the last stage.
func (b *Batch) NextOrderAfter(orderIndex int) (int, bool) {
	for i, s := range b.Snapshot {
		if s.OrderIndex == orderIndex && i+1 < len(b.Snapshot) {
			return b.Snapshot[i+1].OrderIndex, true
		}
	}
	return 0, false
}

// ProgressEntry is the record of one stage's execution for one batch.
type ProgressEntry struct {
	ID             int64
	BatchID        int64
	StageID        int64
	OrderIndex     int
	InputQuantity  float64
	OutputQuantity float64
	Status         EntryStatus
	RecordedAt     time.Time
}

// Waste is byproduct material recorded against a completed progress entry.
// Created immutable; soft-deleted only via administrative correction.
type Waste struct {
	ID         int64
	ProgressID int64
	Quantity   float64
	RecordedBy string
	RecordedAt time.Time
	IsDeleted  bool
}

// Disposal is one disposal action against a waste item. HandledBy is empty
// while the handler is unresolved; unresolved disposals are valid.
type Disposal struct {
	ID               int64
	WasteID          int64
	DisposedQuantity float64
	HandledBy        string
	DisposedAt       time.Time
	IsDeleted        bool
}

// WasteRecord joins a waste item with its producing stage and batch for
// role-scoped listings.
type WasteRecord struct {
	Waste
	StageName      string
	OrderIndex     int
	BatchID        int64
	BatchReference string
	InputLot       string
	MethodName     string
	ProducerID     string
	Remaining      float64
}

// Stats aggregates store contents for diagnostics.
type Stats struct {
	Batches        map[BatchStatus]int
	WasteQuantity  float64
	DisposedTotal  float64
	OpenWasteItems int
}
