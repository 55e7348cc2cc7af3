package service

import (
	"context"
	"testing"

	"ricemill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaultRolesAndPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.roles.SeedDefaultRolesAndPermissions(ctx))
	require.NoError(t, env.roles.SeedDefaultRolesAndPermissions(ctx), "seeding is repeatable")

	var perms int64
	require.NoError(t, env.db.Model(&model.Permission{}).Count(&perms).Error)
	assert.Equal(t, int64(len(DefaultPermissions)), perms)

	admin, err := env.roles.GetPermissionsByRoleName(ctx, "admin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		model.PermAnalyticsRead, model.PermAuditRead, model.PermProductionRead,
		model.PermProductionVerify, model.PermProductionWrite,
	}, admin)

	operator, err := env.roles.GetPermissionsByRoleName(ctx, "operator")
	require.NoError(t, err)
	assert.Equal(t, []string{model.PermProductionRead}, operator)

	unknown, err := env.roles.GetPermissionsByRoleName(ctx, "visitor")
	require.NoError(t, err)
	assert.Empty(t, unknown)

	roles, err := env.roles.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, len(DefaultRoles))
	assert.Equal(t, "admin", roles[0].Name)
	assert.Len(t, roles[0].Permissions, len(DefaultPermissions))
	assert.Equal(t, "supervisor", roles[3].Name)
	assert.Equal(t, []string{model.PermAnalyticsRead, model.PermProductionRead, model.PermProductionWrite}, roles[3].Permissions)
	assert.True(t, roles[3].IsSystem)
}

func TestAuditLogsFilterAndPaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "100"})
	require.NoError(t, err)
	_, err = env.orders.Create(ctx, "", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "200"})
	require.NoError(t, err)
	_, err = env.orders.Cancel(ctx, "planner", first.ID, CancelRequest{Reason: "duplicate"})
	require.NoError(t, err)

	all, total, err := env.audit.GetAuditLogs(ctx, AuditLogFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 2)

	creates, total, err := env.audit.GetAuditLogs(ctx, AuditLogFilter{Action: model.ActionCreateProductionOrder})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	users := []string{creates[0].UserID, creates[1].UserID}
	assert.ElementsMatch(t, []string{"planner", "system"}, users)

	cancels, _, err := env.audit.GetAuditLogs(ctx, AuditLogFilter{EntityID: first.ID, Action: model.ActionCancelProductionOrder})
	require.NoError(t, err)
	require.Len(t, cancels, 1)
	assert.Equal(t, first.OrderNumber, cancels[0].EntityName)
	assert.Contains(t, cancels[0].Details, `"to":"CANCELLED"`)
}
