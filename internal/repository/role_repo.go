package repository

import (
	"context"

	"ricemill/internal/model"

	"gorm.io/gorm"
)

type RoleRepository interface {
	FindOrCreatePermission(ctx context.Context, perm *model.Permission) error
	FindOrCreateRole(ctx context.Context, role *model.Role) error
	ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

// FindOrCreatePermission upserts by code and refreshes the display fields.
func (r *roleRepository) FindOrCreatePermission(ctx context.Context, perm *model.Permission) error {
	db := GetDB(ctx, r.db)
	name, group := perm.Name, perm.Group
	if err := db.Where("code = ?", perm.Code).FirstOrCreate(perm).Error; err != nil {
		return err
	}
	if perm.Name == name && perm.Group == group {
		return nil
	}
	perm.Name, perm.Group = name, group
	return db.Model(perm).Updates(map[string]interface{}{"name": name, "group": group}).Error
}

func (r *roleRepository) FindOrCreateRole(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Where("name = ?", role.Name).FirstOrCreate(role).Error
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, role *model.Role, perms []model.Permission) error {
	return GetDB(ctx, r.db).Model(role).Association("Permissions").Replace(perms)
}

func (r *roleRepository) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	var codes []string
	err := GetDB(ctx, r.db).Table("permissions").
		Select("permissions.code").
		Joins("INNER JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("INNER JOIN roles ON roles.id = role_permissions.role_id").
		Where("roles.name = ?", roleName).
		Order("permissions.code asc").
		Pluck("permissions.code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *roleRepository) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := GetDB(ctx, r.db).
		Preload("Permissions", func(db *gorm.DB) *gorm.DB { return db.Order("code asc") }).
		Order("name asc").
		Find(&roles).Error
	return roles, err
}
