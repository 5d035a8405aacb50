package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Location returns the object's own location.
func (o ObjectInfo) Location(scheme string) Location {
	if scheme == "" {
		scheme = SchemeS3
	}
	return Location{Scheme: scheme, Bucket: o.Bucket, Key: o.Key}
}

// ObjectStore is the read/cleanup capability over query result objects.
type ObjectStore interface {
	// List returns every object whose key starts with the location's prefix.
	List(ctx context.Context, prefix Location) ([]ObjectInfo, error)
	Get(ctx context.Context, object Location) (io.ReadCloser, error)
	// Delete removes every object under prefix.
	Delete(ctx context.Context, prefix Location) error
}
