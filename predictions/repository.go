package predictions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/metrics"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// Default and maximum listing sizes.
const (
	DefaultListLimit   = 100
	DefaultRecentLimit = 50
	MaxListLimit       = 1000
)

// Repository implements forecast.PredictionStore on gorm.
type Repository struct {
	db     *gorm.DB
	now    func() time.Time
	logger log.Logger
}

var _ forecast.PredictionStore = (*Repository)(nil)

// NewRepository creates a Repository. A nil now uses time.Now.
func NewRepository(db *gorm.DB, now func() time.Time, logger log.Logger) *Repository {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.GetLoggerWithName("predictions")
	}
	return &Repository{db: db, now: now, logger: logger}
}

func storageError(op string, err error) error {
	return errors.NewStorageError("predictions."+op, "gorm", err)
}

// Create inserts rec with a new UUID and returns the id. A zero CreatedAt is
// set to the current time.
func (r *Repository) Create(ctx context.Context, rec *forecast.PredictionRecord) (string, error) {
	row, err := fromRecord(rec)
	if err != nil {
		return "", storageError("Create", err)
	}
	row.ID = uuid.NewString()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return "", storageError("Create", err)
	}
	r.logger.Debug("Created prediction",
		log.PredictionIDKey, row.ID,
		log.StoreIDKey, row.StoreID,
		log.ProductIDKey, row.ProductID)
	return row.ID, nil
}

// Get returns one record. Unknown and malformed ids are errors.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*forecast.PredictionRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "invalid prediction id %q", id)
	}
	var row Prediction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(errors.ErrNotFound, "prediction %s", id)
	}
	if err != nil {
		return nil, storageError("Get", err)
	}
	rec, err := row.toRecord()
	if err != nil {
		return nil, storageError("Get", err)
	}
	return &rec, nil
}

// List returns records matching filter, newest first. limit <= 0 uses
// DefaultListLimit and larger values are capped at MaxListLimit.
func (r *Repository) List(ctx context.Context, filter forecast.Filter, limit int) ([]forecast.PredictionRecord, error) {
	q := r.db.WithContext(ctx).Model(&Prediction{})
	if filter.StoreID != "" {
		q = q.Where("store_id = ?", filter.StoreID)
	}
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	return r.find(q, clampLimit(limit, DefaultListLimit), "List")
}

// Recent returns the newest records across all stores.
func (r *Repository) Recent(ctx context.Context, limit int) ([]forecast.PredictionRecord, error) {
	return r.find(r.db.WithContext(ctx).Model(&Prediction{}), clampLimit(limit, DefaultRecentLimit), "Recent")
}

func clampLimit(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

func (r *Repository) find(q *gorm.DB, limit int, op string) ([]forecast.PredictionRecord, error) {
	var rows []Prediction
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, storageError(op, err)
	}
	out := make([]forecast.PredictionRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, storageError(op, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update applies the non-nil fields of u and stamps updated_at. It reports
// false when no record has the id.
func (r *Repository) Update(ctx context.Context, id string, u forecast.Update) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	fields := map[string]interface{}{"updated_at": r.now().UTC()}
	if u.ActualQuantity != nil {
		fields["actual_quantity"] = *u.ActualQuantity
	}
	if u.Accuracy != nil {
		fields["accuracy"] = *u.Accuracy
	}
	res := r.db.WithContext(ctx).Model(&Prediction{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return false, storageError("Update", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Delete removes a record and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Prediction{})
	if res.Error != nil {
		return false, storageError("Delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AccuracyStats aggregates recorded outcomes, optionally for one store.
func (r *Repository) AccuracyStats(ctx context.Context, storeID string) (forecast.AccuracyStats, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&Prediction{})
		if storeID != "" {
			q = q.Where("store_id = ?", storeID)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return forecast.AccuracyStats{}, storageError("AccuracyStats", err)
	}

	var rows []Prediction
	err := scoped().
		Select("predicted_quantity", "actual_quantity", "accuracy").
		Where("actual_quantity IS NOT NULL AND accuracy IS NOT NULL").
		Find(&rows).Error
	if err != nil {
		return forecast.AccuracyStats{}, storageError("AccuracyStats", err)
	}

	outcomes := make([]metrics.Outcome, len(rows))
	for i, row := range rows {
		outcomes[i] = metrics.Outcome{
			Predicted: float64(row.PredictedQuantity),
			Actual:    float64(*row.ActualQuantity),
			Accuracy:  *row.Accuracy,
		}
	}
	return forecast.AccuracyStats(metrics.SummarizeAccuracy(int(total), outcomes)), nil
}
