package forecast

import (
	"context"
	"time"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/pkg/errors"
)

// ErrNoArtifact is matched by ArtifactStore.Load when nothing was saved yet.
var ErrNoArtifact = errors.New("no model artifact")

// ArtifactStore holds the single current model artifact. Save must replace
// the previous artifact atomically.
type ArtifactStore interface {
	Save(ctx context.Context, a *Artifact) error
	Load(ctx context.Context) (*Artifact, error)
}

// SalesSource returns daily observations for one store/product within
// [start, end]. An empty result is not an error.
type SalesSource interface {
	Fetch(ctx context.Context, storeID, productID string, start, end time.Time) ([]features.Observation, error)
}

// Catalog lists the known stores and their products.
type Catalog interface {
	Stores(ctx context.Context) ([]string, error)
	Products(ctx context.Context, storeID string) ([]string, error)
}

// BatchSource is a sales source that can also enumerate its series.
type BatchSource interface {
	SalesSource
	Catalog
}

// PredictionStore persists prediction records. Get, Update and Delete
// report a missing record or malformed id as errors.ErrNotFound (Get) or
// false (Update, Delete).
type PredictionStore interface {
	Create(ctx context.Context, rec *PredictionRecord) (string, error)
	Get(ctx context.Context, id string) (*PredictionRecord, error)
	List(ctx context.Context, filter Filter, limit int) ([]PredictionRecord, error)
	Recent(ctx context.Context, limit int) ([]PredictionRecord, error)
	Update(ctx context.Context, id string, u Update) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	AccuracyStats(ctx context.Context, storeID string) (AccuracyStats, error)
}
