// Package artifact stores the current model artifact on the local
// filesystem or in Google Cloud Storage and announces new versions over
// Redis pub/sub.
package artifact

import (
	"context"
	"os"

	"github.com/YuminosukeSato/replenish/core/model"
	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// DefaultPath is where the file store keeps the artifact when no path is
// configured.
const DefaultPath = "./models/demand_model.gob"

// FileStore keeps the artifact in one gob file. Saves write a temporary
// file in the same directory and rename it into place.
type FileStore struct {
	path   string
	logger log.Logger
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string, logger log.Logger) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = log.GetLoggerWithName("artifact.file")
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the artifact file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save atomically replaces the artifact file.
func (s *FileStore) Save(_ context.Context, a *forecast.Artifact) error {
	if err := model.SaveAtomic(s.path, a); err != nil {
		return errors.NewStorageError("artifact.FileStore.Save", "file", err)
	}
	s.logger.Info("Saved model artifact",
		log.OperationKey, log.OperationSave,
		log.ModelVersionKey, a.ModelVersion,
		"path", s.path)
	return nil
}

// Load reads the artifact. A missing file matches forecast.ErrNoArtifact.
func (s *FileStore) Load(_ context.Context) (*forecast.Artifact, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, errors.Wrapf(forecast.ErrNoArtifact, "no artifact at %s", s.path)
	}
	var a forecast.Artifact
	if err := model.Load(s.path, &a); err != nil {
		return nil, errors.NewStorageError("artifact.FileStore.Load", "file", err)
	}
	return &a, nil
}

// Open returns a GCS store when bucket is set and a file store at path
// otherwise. The returned func releases the store.
func Open(ctx context.Context, path, bucket, prefix string, logger log.Logger) (forecast.ArtifactStore, func(), error) {
	if bucket == "" {
		return NewFileStore(path, logger), func() {}, nil
	}
	gcs, err := NewGCSStore(ctx, bucket, prefix, logger)
	if err != nil {
		return nil, nil, err
	}
	gcs.logger.Info("Using Cloud Storage for model artifacts", "object", gcs.Object())
	return gcs, func() { _ = gcs.Close() }, nil
}
