package backup

import (
	"pv-go/internal/pv"
)

// Item is one queued upload: a local photo on its way to remote storage.
// Items are transient; they exist only for the duration of a backup batch.
type Item struct {
	ContentHash string
	Source      *pv.Path
	RemoteKey   string
	Size        int64
}

// Status classifies the outcome of one item in a backup batch.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped" // content already stored remotely
	StatusFailed    Status = "failed"
)

// Result is the per-item outcome of a backup batch. One item's failure never
// aborts the batch; failures are captured here and the item is safe to retry.
type Result struct {
	Status      Status
	ContentHash string
	Err         error
}
