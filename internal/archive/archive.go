// Package archive stores deliberation minutes and student bulletins in blob
// storage: the local filesystem, S3 or Google Cloud Storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/ensiasd/academics/pkg/academic"
	"github.com/ensiasd/academics/pkg/config"
)

// ErrNotFound is returned when a document has not been archived.
var ErrNotFound = errors.New("document not archived")

// Client abstracts blob storage for archived documents.
type Client interface {
	PutMinutes(ctx context.Context, yearID, deliberationID string, data []byte) error
	GetMinutes(ctx context.Context, yearID, deliberationID string) ([]byte, error)
	PutBulletin(ctx context.Context, yearID, studentID string, data []byte) error
	GetBulletin(ctx context.Context, yearID, studentID string) ([]byte, error)
}

// bucket is the raw object store behind an Archive. read returns
// ErrNotFound for a missing key.
type bucket interface {
	write(ctx context.Context, key, contentType string, data []byte) error
	read(ctx context.Context, key string) ([]byte, error)
}

// kind describes how one document type is laid out.
type kind struct {
	dir         string
	ext         string
	contentType string
	idField     string
}

var (
	minutesKind  = kind{dir: "minutes", ext: ".md", contentType: "text/markdown; charset=utf-8", idField: "deliberation_id"}
	bulletinKind = kind{dir: "bulletins", ext: ".json", contentType: "application/json", idField: "student_id"}
)

// Archive implements Client over a bucket. Documents live at
// <prefix>/<year>/<kind>/<id><ext>.
type Archive struct {
	blobs  bucket
	prefix string
}

// New builds the Client selected by cfg. localDir is used when the local
// backend has no path configured.
func New(ctx context.Context, cfg config.StorageConfig, localDir string) (*Archive, error) {
	switch cfg.Backend {
	case "", "local":
		dir := cfg.LocalPath
		if dir == "" {
			dir = localDir
		}
		return NewLocalStorage(dir), nil
	case "s3":
		return NewS3Storage(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
	case "gcs":
		return NewGCSStorage(ctx, cfg.Bucket, cfg.Prefix)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// checkSegment rejects ids that would escape their directory once joined
// into a key.
func checkSegment(field, id string) *academic.FieldError {
	switch {
	case id == "":
		return &academic.FieldError{Field: field, Message: "required"}
	case id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0):
		return &academic.FieldError{Field: field, Message: fmt.Sprintf("%q is not a valid document id", id)}
	}
	return nil
}

func (a *Archive) key(k kind, yearID, id string) (string, error) {
	var fields []academic.FieldError
	if fe := checkSegment("year_id", yearID); fe != nil {
		fields = append(fields, *fe)
	}
	if fe := checkSegment(k.idField, id); fe != nil {
		fields = append(fields, *fe)
	}
	if len(fields) > 0 {
		return "", academic.NewValidationError(nil, k.dir, id, fields...)
	}
	return path.Join(a.prefix, yearID, k.dir, id+k.ext), nil
}

func (a *Archive) put(ctx context.Context, k kind, yearID, id string, data []byte) error {
	key, err := a.key(k, yearID, id)
	if err != nil {
		return err
	}
	return a.blobs.write(ctx, key, k.contentType, data)
}

func (a *Archive) get(ctx context.Context, k kind, yearID, id string) ([]byte, error) {
	key, err := a.key(k, yearID, id)
	if err != nil {
		return nil, err
	}
	data, err := a.blobs.read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%s %s of %s: %w", strings.TrimSuffix(k.dir, "s"), id, yearID, err)
	}
	return data, err
}

// PutMinutes stores the Markdown minutes of a deliberation.
func (a *Archive) PutMinutes(ctx context.Context, yearID, deliberationID string, data []byte) error {
	return a.put(ctx, minutesKind, yearID, deliberationID, data)
}

// GetMinutes retrieves deliberation minutes.
func (a *Archive) GetMinutes(ctx context.Context, yearID, deliberationID string) ([]byte, error) {
	return a.get(ctx, minutesKind, yearID, deliberationID)
}

// PutBulletin stores a student's bulletin.
func (a *Archive) PutBulletin(ctx context.Context, yearID, studentID string, data []byte) error {
	return a.put(ctx, bulletinKind, yearID, studentID, data)
}

// GetBulletin retrieves a student's bulletin.
func (a *Archive) GetBulletin(ctx context.Context, yearID, studentID string) ([]byte, error) {
	return a.get(ctx, bulletinKind, yearID, studentID)
}
