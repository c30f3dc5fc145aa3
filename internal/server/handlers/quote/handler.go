package quote

import (
	"github.com/gin-gonic/gin"

	"oip/liverates/internal/apimodel/request"
	"oip/liverates/internal/apimodel/response"
	"oip/liverates/internal/business/admin"
	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/model"
	"oip/liverates/internal/pkg/ginx"
	"oip/liverates/internal/server/handlers"
	"oip/liverates/pkg/logger"
)

// QuoteHandler 报价 HTTP 处理器
type QuoteHandler struct {
	orchestrator *quote.Orchestrator
	settings     *admin.SettingsService
	logger       logger.Logger
}

// NewQuoteHandler 创建报价处理器实例
func NewQuoteHandler(orchestrator *quote.Orchestrator, settings *admin.SettingsService, log logger.Logger) *QuoteHandler {
	return &QuoteHandler{orchestrator: orchestrator, settings: settings, logger: log}
}

// Create 计算运费
// POST /api/v1/instances/:id/quotes
// 除请求格式错误外总是返回 200：实时报价、兜底报价或空列表
func (h *QuoteHandler) Create(c *gin.Context) {
	instanceID, ok := handlers.InstanceID(c)
	if !ok {
		ginx.BadRequest(c, "invalid instance id")
		return
	}

	var req request.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	ctx := c.Request.Context()
	settings, err := h.settings.GetOrDefault(ctx, instanceID)
	if err != nil {
		// 设置读取失败时按未配置处理，结果仍走兜底
		h.logger.Errorf(ctx, "[QuoteHandler] load settings for instance %d failed: %v", instanceID, err)
		settings = model.DefaultSettings(instanceID)
	}

	res := h.orchestrator.Quote(ctx, req.ToQuoteRequest(), settings)
	ginx.Success(c, response.FromResult(res))
}
