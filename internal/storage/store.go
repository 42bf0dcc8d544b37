package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Metadata describes an uploaded file.
type Metadata struct {
	FileName string
	MimeType string
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	URL         string
	ExternalKey string
}

// Store is the file-storage contract the reading and meter services depend
// on. Implementations validate the payload against the configured limits
// before attempting any network call.
type Store interface {
	Upload(ctx context.Context, data []byte, meta Metadata, ownerID uuid.UUID, folder string) (*UploadResult, error)
	Delete(ctx context.Context, externalKey string) error
}

// ErrInvalidMimeType is returned when the file's mime type is not on the
// configured whitelist.
var ErrInvalidMimeType = errors.New("invalid mime type")

// ErrFileTooLarge is returned when the file exceeds the configured byte
// ceiling.
var ErrFileTooLarge = errors.New("file too large")
