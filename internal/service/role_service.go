package service

import (
	"context"
	"fmt"
	"sort"

	"ricemill/internal/model"
	"ricemill/internal/repository"

	"go.uber.org/zap"
)

// DefaultPermissions are upserted at startup
var DefaultPermissions = []model.Permission{
	{Code: model.PermProductionRead, Name: "View production orders and batches", Group: "production"},
	{Code: model.PermProductionWrite, Name: "Manage production orders and batches", Group: "production"},
	{Code: model.PermProductionVerify, Name: "Verify batch yield", Group: "production"},
	{Code: model.PermAnalyticsRead, Name: "View yield analytics", Group: "analytics"},
	{Code: model.PermAuditRead, Name: "View audit trail", Group: "audit"},
}

// DefaultRoles maps each built-in role to its permission codes
var DefaultRoles = map[string]struct {
	Description string
	PermCodes   []string
}{
	"admin": {
		Description: "Administrator with every production permission",
		PermCodes: []string{
			model.PermProductionRead, model.PermProductionWrite, model.PermProductionVerify,
			model.PermAnalyticsRead, model.PermAuditRead,
		},
	},
	"manager": {
		Description: "Mill manager, plans orders and verifies yield",
		PermCodes: []string{
			model.PermProductionRead, model.PermProductionWrite, model.PermProductionVerify,
			model.PermAnalyticsRead, model.PermAuditRead,
		},
	},
	"supervisor": {
		Description: "Shift supervisor, runs batches and records weights",
		PermCodes: []string{
			model.PermProductionRead, model.PermProductionWrite, model.PermAnalyticsRead,
		},
	},
	"operator": {
		Description: "Machine operator, read only",
		PermCodes:   []string{model.PermProductionRead},
	},
}

type RoleService interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	SeedDefaultRolesAndPermissions(ctx context.Context) error
	ListRoles(ctx context.Context) ([]RoleResponse, error)
}

type RoleResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsSystem    bool     `json:"is_system"`
	Permissions []string `json:"permissions"`
}

type roleService struct {
	roleRepo  repository.RoleRepository
	txManager repository.TransactionManager
	log       *zap.Logger
}

func NewRoleService(roleRepo repository.RoleRepository, txManager repository.TransactionManager, log *zap.Logger) RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &roleService{roleRepo: roleRepo, txManager: txManager, log: log}
}

func (s *roleService) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	codes, err := s.roleRepo.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions of role '%s': %w", roleName, err)
	}
	return codes, nil
}

// SeedDefaultRolesAndPermissions creates the default permissions and roles if not already present
func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		permByCode := make(map[string]model.Permission, len(DefaultPermissions))
		for _, p := range DefaultPermissions {
			perm := p
			if err := s.roleRepo.FindOrCreatePermission(txCtx, &perm); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", p.Code, err)
			}
			permByCode[perm.Code] = perm
		}

		names := make([]string, 0, len(DefaultRoles))
		for name := range DefaultRoles {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			def := DefaultRoles[name]
			role := model.Role{Name: name, Description: def.Description, IsSystem: true}
			if err := s.roleRepo.FindOrCreateRole(txCtx, &role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", name, err)
			}

			perms := make([]model.Permission, 0, len(def.PermCodes))
			for _, code := range def.PermCodes {
				if p, ok := permByCode[code]; ok {
					perms = append(perms, p)
				}
			}
			if err := s.roleRepo.ReplacePermissions(txCtx, &role, perms); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", name, err)
			}
		}

		s.log.Info("default roles and permissions seeded", zap.Int("roles", len(names)), zap.Int("permissions", len(permByCode)))
		return nil
	})
}

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roleRepo.ListRoles(ctx)
	if err != nil {
		return nil, classify(s.log, err, "roles")
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		codes := make([]string, 0, len(r.Permissions))
		for _, p := range r.Permissions {
			codes = append(codes, p.Code)
		}
		res = append(res, RoleResponse{Name: r.Name, Description: r.Description, IsSystem: r.IsSystem, Permissions: codes})
	}
	return res, nil
}
