package repository

import (
	"context"

	"ricemill/internal/model"

	"gorm.io/gorm"
)

// SequenceRepository hands out monotonically increasing document numbers.
// Next must run inside the transaction that consumes the number so a rollback
// returns it.
type SequenceRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

const sequenceAttempts = 3

func (r *sequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	db := GetDB(ctx, r.db)

	for attempt := 0; attempt < sequenceAttempts; attempt++ {
		seq := model.NumberSequence{Name: name}
		if err := db.Where(model.NumberSequence{Name: name}).FirstOrCreate(&seq).Error; err != nil {
			return 0, err
		}

		res := db.Model(&model.NumberSequence{}).
			Where("name = ? AND value = ?", name, seq.Value).
			Update("value", seq.Value+1)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return seq.Value + 1, nil
		}
	}
	return 0, ErrStaleVersion
}
