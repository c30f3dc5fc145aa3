package routers

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"oip/liverates/internal/server/handlers/admin"
	"oip/liverates/internal/server/handlers/quote"
	"oip/liverates/internal/server/handlers/settings"
	"oip/liverates/internal/server/middlewares"
	"oip/liverates/pkg/logger"
)

// SetupRoutes 配置所有路由，使用 Route Group 分类
func SetupRoutes(
	quoteHandler *quote.QuoteHandler,
	settingsHandler *settings.SettingsHandler,
	adminHandler *admin.AdminHandler,
	log logger.Logger,
) *gin.Engine {
	registerJSONFieldNames()

	r := gin.New()

	r.Use(middlewares.Recovery(log))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.CORS())
	r.Use(middlewares.Logger(log))
	r.Use(middlewares.ErrorHandler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "liverates",
			"message": "Service is running",
		})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/catalog", adminHandler.Catalog)

		instances := v1.Group("/instances/:id")
		{
			instances.POST("/quotes", quoteHandler.Create)
			instances.GET("/settings", settingsHandler.Get)
			instances.PUT("/settings", settingsHandler.Update)
			instances.POST("/test-connection", adminHandler.TestConnection)
			instances.POST("/addresses/validate", adminHandler.ValidateAddress)
			instances.GET("/carrier-accounts", adminHandler.CarrierAccounts)
		}

		global := v1.Group("/settings")
		{
			global.GET("/global", settingsHandler.GetGlobal)
			global.PUT("/global", settingsHandler.UpdateGlobal)
		}

		adminGroup := v1.Group("/admin")
		{
			adminGroup.POST("/cache/clear", adminHandler.ClearCache)
			adminGroup.GET("/status", adminHandler.Status)
		}
	}

	return r
}

// registerJSONFieldNames 校验错误使用 json 字段名
func registerJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}
