package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"oip/liverates/internal/business/admin"
	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/model"
	adminhandler "oip/liverates/internal/server/handlers/admin"
	quotehandler "oip/liverates/internal/server/handlers/quote"
	settingshandler "oip/liverates/internal/server/handlers/settings"
	"oip/liverates/internal/server/routers"
	"oip/liverates/pkg/config"
	"oip/liverates/pkg/infra/memstore"
	"oip/liverates/pkg/infra/mysql"
	"oip/liverates/pkg/infra/redis"
	"oip/liverates/pkg/logger"
	"oip/liverates/pkg/shippo"
)

// App 应用容器
type App struct {
	Engine *gin.Engine
	Logger logger.Logger
}

// InitializeApp 组装依赖：设置库 -> 缓存 -> 服务商客户端 -> 业务服务 -> 路由
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	log, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger failed: %w", err)
	}
	ctx := context.Background()

	// 1. 设置存储
	db, err := mysql.Open(cfg.MySQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	dao := mysql.NewSettingsDAO(db)
	if err := dao.AutoMigrate(ctx); err != nil {
		_ = dao.Close()
		return nil, nil, err
	}

	// 2. 费率缓存
	store, closeStore, err := newCacheStore(cfg)
	if err != nil {
		_ = dao.Close()
		return nil, nil, err
	}
	cache := quote.NewRateCache(store, cfg.Cache.KeyPrefix, log)

	// 3. 服务商客户端
	newClient := func(apiKey string, debug bool) *shippo.Client {
		return shippo.NewClient(shippo.Options{
			APIKey:  apiKey,
			BaseURL: cfg.Shippo.BaseURL,
			Timeout: cfg.Shippo.Timeout,
			Debug:   debug,
			Logger:  log,
		})
	}
	providers := func(apiKey string, debug bool) quote.RateProvider { return newClient(apiKey, debug) }
	accounts := func(apiKey string, debug bool) admin.AccountClient { return newClient(apiKey, debug) }

	// 4. 业务服务
	defaults, err := globalDefaults(cfg.Defaults)
	if err != nil {
		closeStore()
		_ = dao.Close()
		return nil, nil, err
	}
	settingsService := admin.NewSettingsService(dao, cache, accounts, defaults, log)
	if err := settingsService.EnsureDefaults(ctx); err != nil {
		closeStore()
		_ = dao.Close()
		return nil, nil, err
	}

	origin := storeAddress(cfg.Store)
	orchestrator := quote.NewOrchestrator(quote.Options{
		Origin:    origin,
		Units:     model.Units{Weight: cfg.Store.WeightUnit, Dimension: cfg.Store.DimensionUnit},
		Cache:     cache,
		Providers: providers,
		Globals:   settingsService,
		Logger:    log,
	})
	adminService := admin.NewAdminService(settingsService, cache, accounts,
		admin.StatusInfo{CacheBackend: cfg.Cache.Backend, StoreAddress: origin}, log)

	// 5. 路由
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := routers.SetupRoutes(
		quotehandler.NewQuoteHandler(orchestrator, settingsService, log),
		settingshandler.NewSettingsHandler(settingsService, log),
		adminhandler.NewAdminHandler(adminService, log),
		log,
	)

	cleanup := func() {
		closeStore()
		if err := dao.Close(); err != nil {
			log.Errorf(ctx, "close settings db failed: %v", err)
		}
		_ = log.Sync()
	}
	return &App{Engine: engine, Logger: log}, cleanup, nil
}

// newCacheStore 按配置选择缓存后端
func newCacheStore(cfg *config.Config) (quote.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		store, err := redis.NewRateStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return memstore.New(), func() {}, nil
	}
}

func globalDefaults(d config.DefaultsConfig) (*model.GlobalOptions, error) {
	amount, err := decimal.NewFromString(d.FallbackAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid defaults.fallback_amount %q: %w", d.FallbackAmount, err)
	}
	return &model.GlobalOptions{
		Fallback: model.FallbackRate{
			Enabled: d.FallbackEnabled,
			Title:   d.FallbackTitle,
			Amount:  amount,
		},
		PackageStrategy: model.ParsePackageStrategy(d.PackageStrategy),
		Debug:           d.Debug,
	}, nil
}

func storeAddress(s config.StoreConfig) model.Address {
	return model.Address{
		Name:       s.Name,
		Street1:    s.Street1,
		Street2:    s.Street2,
		City:       s.City,
		State:      s.State,
		PostalCode: s.PostalCode,
		Country:    s.Country,
		Phone:      s.Phone,
		Email:      s.Email,
	}
}
