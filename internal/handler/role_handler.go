package handler

import (
	"net/http"

	"ricemill/internal/middleware"
	"ricemill/internal/service"
	"ricemill/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
}

func NewRoleHandler(roleService service.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group("/api/roles")
	roles.Use(middleware.RequireRole(middleware.AdminRole))
	{
		roles.GET("", h.ListRoles)
		roles.DELETE("/permission-cache", h.ClearPermissionCache)
	}
}

// ListRoles returns the seeded roles with their permission codes
// @Summary      List roles
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.RoleResponse}
// @Failure      403  {object}  response.Response
// @Router       /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// ClearPermissionCache drops cached role permissions so grant changes apply immediately
// @Summary      Clear permission cache
// @Tags         roles
// @Security     BearerAuth
// @Produce      json
// @Param        role  query     string  false  "Role name, all roles when empty"
// @Success      200   {object}  response.Response
// @Router       /api/roles/permission-cache [delete]
func (h *RoleHandler) ClearPermissionCache(c *gin.Context) {
	role := c.Query("role")
	middleware.ClearPermissionCache(role)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"cleared": role}))
}
