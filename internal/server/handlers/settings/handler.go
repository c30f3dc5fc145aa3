package settings

import (
	"github.com/gin-gonic/gin"

	"oip/liverates/internal/apimodel/request"
	"oip/liverates/internal/apimodel/response"
	"oip/liverates/internal/business/admin"
	"oip/liverates/internal/pkg/ginx"
	"oip/liverates/internal/server/handlers"
	"oip/liverates/pkg/errorutil"
	"oip/liverates/pkg/logger"
)

// SettingsHandler 设置 HTTP 处理器
type SettingsHandler struct {
	service *admin.SettingsService
	logger  logger.Logger
}

// NewSettingsHandler 创建设置处理器实例
func NewSettingsHandler(service *admin.SettingsService, log logger.Logger) *SettingsHandler {
	return &SettingsHandler{service: service, logger: log}
}

// Get 查询实例设置
// GET /api/v1/instances/:id/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	instanceID, ok := handlers.InstanceID(c)
	if !ok {
		ginx.BadRequest(c, "invalid instance id")
		return
	}

	settings, err := h.service.Get(c.Request.Context(), instanceID)
	if err != nil {
		h.logger.Warnf(c.Request.Context(), "[SettingsHandler] get instance %d failed: %v", instanceID, err)
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, response.FromSettings(settings))
}

// Update 覆盖实例设置，保存后清空缓存并测试连接
// PUT /api/v1/instances/:id/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	instanceID, ok := handlers.InstanceID(c)
	if !ok {
		ginx.BadRequest(c, "invalid instance id")
		return
	}

	var req request.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	existing, err := h.service.Get(ctx, instanceID)
	if err != nil && !errorutil.IsKind(err, errorutil.KindNotFound) {
		ginx.FromError(c, err)
		return
	}

	report, err := h.service.Save(ctx, req.ToSettings(instanceID, existing))
	if err != nil {
		h.logger.Warnf(ctx, "[SettingsHandler] save instance %d failed: %v", instanceID, err)
		ginx.FromError(c, err)
		return
	}

	ginx.Success(c, &response.SaveSettingsResponse{
		Settings:         response.FromSettings(report.Settings),
		CacheCleared:     report.CacheCleared,
		ConnectionTested: report.ConnectionTested,
		ConnectionOK:     report.ConnectionOK,
	})
}

// GetGlobal 查询全局选项
// GET /api/v1/settings/global
func (h *SettingsHandler) GetGlobal(c *gin.Context) {
	opts, err := h.service.Global(c.Request.Context())
	if err != nil {
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, response.FromGlobalOptions(opts))
}

// UpdateGlobal 保存全局选项
// PUT /api/v1/settings/global
func (h *SettingsHandler) UpdateGlobal(c *gin.Context) {
	var req request.GlobalOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	opts := req.ToModel()
	if _, err := h.service.SaveGlobal(c.Request.Context(), opts); err != nil {
		ginx.FromError(c, err)
		return
	}
	ginx.Success(c, response.FromGlobalOptions(opts))
}
