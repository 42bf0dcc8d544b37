package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aigualink/water-metering-worker/internal/config"
)

// BlobClient implements Store against an HTTP blob endpoint. Objects are
// addressed as <baseURL>/<folder>/<ownerID>/<random><ext>; the path after
// the base URL doubles as the external key used for deletion.
type BlobClient struct {
	baseURL  string
	apiKey   string
	maxBytes int64
	allowed  map[string]struct{}
	client   *http.Client
	logger   *zap.Logger
}

// NewBlobClient creates a blob-storage client from configuration.
func NewBlobClient(cfg config.StorageConfig, logger *zap.Logger) *BlobClient {
	allowed := make(map[string]struct{}, len(cfg.AllowedMimeTypes))
	for _, mt := range cfg.AllowedMimeTypes {
		allowed[strings.ToLower(mt)] = struct{}{}
	}

	return &BlobClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		maxBytes: cfg.MaxFileSizeBytes,
		allowed:  allowed,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

func (c *BlobClient) validate(size int64, meta Metadata) error {
	if _, ok := c.allowed[strings.ToLower(meta.MimeType)]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidMimeType, meta.MimeType)
	}
	if size > c.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, size, c.maxBytes)
	}
	return nil
}

// Upload validates the payload and PUTs it to the blob endpoint.
func (c *BlobClient) Upload(ctx context.Context, data []byte, meta Metadata, ownerID uuid.UUID, folder string) (*UploadResult, error) {
	if err := c.validate(int64(len(data)), meta); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s/%s%s", folder, ownerID, uuid.New(), path.Ext(meta.FileName))
	url := c.baseURL + "/" + key

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", meta.MimeType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}

	c.logger.Debug("uploaded blob",
		zap.String("key", key),
		zap.Int("size", len(data)),
	)

	return &UploadResult{URL: url, ExternalKey: key}, nil
}

// Delete removes a previously uploaded blob by its external key.
func (c *BlobClient) Delete(ctx context.Context, externalKey string) error {
	url := c.baseURL + "/" + strings.TrimLeft(externalKey, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete rejected with status %d", resp.StatusCode)
	}

	return nil
}
