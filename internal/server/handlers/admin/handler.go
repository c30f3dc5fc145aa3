package admin

import (
	"github.com/gin-gonic/gin"

	"oip/liverates/internal/apimodel/request"
	"oip/liverates/internal/business/admin"
	"oip/liverates/internal/catalog"
	"oip/liverates/internal/pkg/ginx"
	"oip/liverates/internal/server/handlers"
	"oip/liverates/pkg/logger"
)

// AdminHandler 管理命令 HTTP 处理器
type AdminHandler struct {
	service *admin.AdminService
	logger  logger.Logger
}

// NewAdminHandler 创建管理处理器实例
func NewAdminHandler(service *admin.AdminService, log logger.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: log}
}

// Catalog 承运商与服务目录
// GET /api/v1/catalog
func (h *AdminHandler) Catalog(c *gin.Context) {
	ginx.Success(c, gin.H{
		"carriers": catalog.Carriers(),
		"services": catalog.AllServices(),
	})
}

// ClearCache 清空报价缓存
// POST /api/v1/admin/cache/clear
func (h *AdminHandler) ClearCache(c *gin.Context) {
	n, err := h.service.ClearCache(c.Request.Context())
	if err != nil {
		h.logger.Errorf(c.Request.Context(), "[AdminHandler] clear cache failed: %v", err)
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, gin.H{"cleared": n})
}

// Status 系统状态
// GET /api/v1/admin/status
func (h *AdminHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context())
	if err != nil {
		h.logger.Errorf(c.Request.Context(), "[AdminHandler] status failed: %v", err)
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, status)
}

// TestConnection 测试实例的服务商连接
// POST /api/v1/instances/:id/test-connection
func (h *AdminHandler) TestConnection(c *gin.Context) {
	instanceID, ok := handlers.InstanceID(c)
	if !ok {
		ginx.BadRequest(c, "invalid instance id")
		return
	}

	connected, err := h.service.TestConnection(c.Request.Context(), instanceID)
	if err != nil {
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, gin.H{"connected": connected})
}

// ValidateAddress 服务商地址校验
// POST /api/v1/instances/:id/addresses/validate
func (h *AdminHandler) ValidateAddress(c *gin.Context) {
	instanceID, ok := handlers.InstanceID(c)
	if !ok {
		ginx.BadRequest(c, "invalid instance id")
		return
	}

	var req request.ValidateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	addr, err := h.service.ValidateAddress(c.Request.Context(), instanceID, req.ToModel())
	if err != nil {
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, addr)
}

// CarrierAccounts 已连接的承运商账号
// GET /api/v1/instances/:id/carrier-accounts
func (h *AdminHandler) CarrierAccounts(c *gin.Context) {
	instanceID, ok := handlers.InstanceID(c)
	if !ok {
		ginx.BadRequest(c, "invalid instance id")
		return
	}

	accounts, err := h.service.CarrierAccounts(c.Request.Context(), instanceID)
	if err != nil {
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, accounts)
}
