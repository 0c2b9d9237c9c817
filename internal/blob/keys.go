package blob

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	uploadPrefix   = "uploads/"
	snapshotPrefix = "snapshots/"
)

// UploadKey returns a fresh key for an uploaded theme table. The extension of
// name is kept so the importer can pick a reader.
func UploadKey(name string) string {
	return uploadPrefix + uuid.NewString() + strings.ToLower(path.Ext(name))
}

// SnapshotKey names an archived workbook by its UTC flush time.
func SnapshotKey(at time.Time) string {
	return snapshotPrefix + at.UTC().Format("20060102T150405.000000000Z") + ".xlsx"
}
