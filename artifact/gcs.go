package artifact

import (
	"context"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/YuminosukeSato/replenish/core/model"
	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

const currentObject = "current.gob"

// GCSStore keeps the artifact in a Cloud Storage object. An object only
// becomes visible when its writer is closed, so readers never observe a
// partial upload.
type GCSStore struct {
	client *storage.Client
	bucket string
	object string
	logger log.Logger
}

// NewGCSStore opens a storage client with opts and stores the artifact at
// gs://bucket/prefix/current.gob.
func NewGCSStore(ctx context.Context, bucket, prefix string, logger log.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.NewValidationError("model.gcs_bucket", "must not be empty", bucket)
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.NewStorageError("artifact.NewGCSStore", "gcs", err)
	}
	return NewGCSStoreWithClient(client, bucket, prefix, logger), nil
}

// NewGCSStoreWithClient uses an existing client.
func NewGCSStoreWithClient(client *storage.Client, bucket, prefix string, logger log.Logger) *GCSStore {
	if logger == nil {
		logger = log.GetLoggerWithName("artifact.gcs")
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		object: objectName(prefix),
		logger: logger,
	}
}

func objectName(prefix string) string {
	if prefix == "" {
		return currentObject
	}
	return path.Join(prefix, currentObject)
}

// Object returns the gs:// URL of the artifact.
func (s *GCSStore) Object() string {
	return "gs://" + s.bucket + "/" + s.object
}

// Save uploads the artifact. A failed encode aborts the upload and leaves
// the previous object in place.
func (s *GCSStore) Save(ctx context.Context, a *forecast.Artifact) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.Metadata = map[string]string{"model_version": a.ModelVersion}

	if err := model.SaveToWriter(a, w); err != nil {
		cancel()
		_ = w.Close()
		return errors.NewStorageError("artifact.GCSStore.Save", "gcs", err)
	}
	if err := w.Close(); err != nil {
		return errors.NewStorageError("artifact.GCSStore.Save", "gcs", err)
	}

	s.logger.Info("Uploaded model artifact",
		log.OperationKey, log.OperationSave,
		log.ModelVersionKey, a.ModelVersion,
		"object", s.Object())
	return nil
}

// Load downloads the artifact. A missing object matches forecast.ErrNoArtifact.
func (s *GCSStore) Load(ctx context.Context) (*forecast.Artifact, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Wrapf(forecast.ErrNoArtifact, "no artifact at %s", s.Object())
	}
	if err != nil {
		return nil, errors.NewStorageError("artifact.GCSStore.Load", "gcs", err)
	}
	defer r.Close()

	var a forecast.Artifact
	if err := model.LoadFromReader(&a, r); err != nil {
		return nil, errors.NewStorageError("artifact.GCSStore.Load", "gcs", err)
	}
	return &a, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
