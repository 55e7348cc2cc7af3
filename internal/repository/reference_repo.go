package repository

import (
	"context"

	"ricemill/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferenceRepository reads machine and employee master data. It has no
// write path; the records are maintained elsewhere.
type ReferenceRepository interface {
	FindMachine(ctx context.Context, id uuid.UUID) (*model.Machine, error)
	FindEmployee(ctx context.Context, id uuid.UUID) (*model.Employee, error)
	ListMachines(ctx context.Context, ids []uuid.UUID) ([]model.Machine, error)
}

type referenceRepository struct {
	db *gorm.DB
}

func NewReferenceRepository(db *gorm.DB) ReferenceRepository {
	return &referenceRepository{db: db}
}

func (r *referenceRepository) FindMachine(ctx context.Context, id uuid.UUID) (*model.Machine, error) {
	var machine model.Machine
	if err := GetDB(ctx, r.db).First(&machine, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

func (r *referenceRepository) FindEmployee(ctx context.Context, id uuid.UUID) (*model.Employee, error) {
	var employee model.Employee
	if err := GetDB(ctx, r.db).First(&employee, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

func (r *referenceRepository) ListMachines(ctx context.Context, ids []uuid.UUID) ([]model.Machine, error) {
	var machines []model.Machine
	if len(ids) == 0 {
		return machines, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Order("name asc").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}
