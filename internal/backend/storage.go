package backend

import (
	"context"

	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
)

// Object is one file to put into the bucket. Data is kept in memory so the
// same object can be sent again on a retry.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
	Upsert      bool
}

// StorageDriver moves objects in and out of the configured bucket.
type StorageDriver interface {
	Upload(ctx context.Context, obj Object) error
	Remove(ctx context.Context, paths []string) error
}

// Upload stores obj and returns its bucket-qualified key.
func (c *Client) Upload(ctx context.Context, obj Object) (string, error) {
	if obj.Path == "" {
		return "", apperr.New(apperr.KindValidation, "storage.upload", "object path is required")
	}
	if err := c.storage.Upload(ctx, obj); err != nil {
		return "", err
	}
	return c.cfg.Bucket + "/" + obj.Path, nil
}

// Remove deletes the objects at paths. Missing objects are not an error.
func (c *Client) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return c.storage.Remove(ctx, paths)
}
