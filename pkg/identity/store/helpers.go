package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Generic GORM helpers shared by the store implementation files. They are
// unexported and operate on the raw *gorm.DB so they stay decoupled from
// GORMStore. Each handles the standard concerns: context propagation,
// not-found conversion, and unique constraint detection.

// getByField retrieves a single record of type T by matching field=value,
// converting gorm.ErrRecordNotFound to the provided domain error.
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error, preloads ...string) (*T, error) {
	var result T
	q := db.WithContext(ctx)
	for _, p := range preloads {
		q = q.Preload(p)
	}
	if err := q.Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// listAll retrieves all records of type T. Returns an empty slice (not nil)
// on success with no records.
func listAll[T any](db *gorm.DB, ctx context.Context, conds ...any) ([]*T, error) {
	var results []*T
	if err := db.WithContext(ctx).Find(&results, conds...).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// createWithID generates a UUID for the entity if it has no ID, then creates
// it. Unique constraint violations are converted to dupErr.
func createWithID[T any](db *gorm.DB, ctx context.Context, entity *T, idSetter func(*T, string), currentID string, dupErr error) (string, error) {
	id := currentID
	if id == "" {
		id = uuid.New().String()
		idSetter(entity, id)
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", dupErr
		}
		return "", err
	}
	return id, nil
}
