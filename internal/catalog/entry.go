package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"pv-go/internal/pv"
)

// Format classifies a photo's encoding.
type Format string

const (
	FormatJPEG  Format = "jpeg"
	FormatPNG   Format = "png"
	FormatHEIC  Format = "heic"
	FormatRAW   Format = "raw"
	FormatOther Format = "other"
)

// BackupStatus tracks an entry's progress through the upload pipeline.
type BackupStatus string

const (
	BackupNotUploaded BackupStatus = "notUploaded"
	BackupUploading   BackupStatus = "uploading"
	BackupUploaded    BackupStatus = "uploaded"
	BackupFailed      BackupStatus = "failed"
)

// Entry is one photo's catalog record. ContentHash is the primary key:
// two files with identical bytes collapse to one entry.
type Entry struct {
	ContentHash  string          `json:"content_hash"`
	FileSize     int64           `json:"file_size"`
	CaptureDate  time.Time       `json:"capture_date,omitzero"`
	ModifiedAt   time.Time       `json:"modified_at"`
	Format       Format          `json:"format"`
	PixelWidth   int             `json:"pixel_width,omitempty"`
	PixelHeight  int             `json:"pixel_height,omitempty"`
	BackupStatus BackupStatus    `json:"backup_status"`
	ArchiveState pv.ArchiveState `json:"archive_state,omitempty"`
	IsStarred    bool            `json:"is_starred,omitempty"`
}

var formatByExtension = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".heic": FormatHEIC,
	".heif": FormatHEIC,
	".dng":  FormatRAW,
	".cr2":  FormatRAW,
	".nef":  FormatRAW,
	".arw":  FormatRAW,
	".raf":  FormatRAW,
}

// FormatForPath classifies a file by its extension.
func FormatForPath(path string) Format {
	if f, ok := formatByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatOther
}
