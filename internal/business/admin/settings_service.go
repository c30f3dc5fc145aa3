package admin

import (
	"context"
	"fmt"
	"strings"

	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/catalog"
	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
	"oip/liverates/pkg/logger"
	"oip/liverates/pkg/shippo"
)

// SettingsRepository 设置仓储接口
type SettingsRepository interface {
	// GetInstance 不存在时返回 KindNotFound
	GetInstance(ctx context.Context, instanceID int64) (*model.Settings, error)

	// ListInstances 全部实例
	ListInstances(ctx context.Context) ([]*model.Settings, error)

	// SaveInstance 新增或覆盖
	SaveInstance(ctx context.Context, settings *model.Settings) error

	// GetGlobal 不存在时返回 KindNotFound
	GetGlobal(ctx context.Context) (*model.GlobalOptions, error)

	// SaveGlobal 覆盖全局选项
	SaveGlobal(ctx context.Context, opts *model.GlobalOptions) error
}

// AccountClient 账号级服务商操作
type AccountClient interface {
	TestConnection(ctx context.Context) bool
	ValidateAddress(ctx context.Context, addr model.Address) (*model.Address, error)
	CarrierAccounts(ctx context.Context) ([]shippo.CarrierAccount, error)
}

// ClientFactory 按 API key 创建客户端
type ClientFactory func(apiKey string, debug bool) AccountClient

// SaveReport 保存设置的附带结果
type SaveReport struct {
	Settings         *model.Settings `json:"settings"`
	CacheCleared     int             `json:"cache_cleared"`
	ConnectionTested bool            `json:"connection_tested"`
	ConnectionOK     bool            `json:"connection_ok"`
}

// SettingsService 设置服务：读写实例与全局设置，保存后清空报价缓存
type SettingsService struct {
	repo     SettingsRepository
	cache    *quote.RateCache
	clients  ClientFactory
	defaults *model.GlobalOptions
	logger   logger.Logger
}

// NewSettingsService 创建设置服务实例
// defaults 为全局选项尚未写入时使用的默认值
func NewSettingsService(repo SettingsRepository, cache *quote.RateCache, clients ClientFactory,
	defaults *model.GlobalOptions, log logger.Logger) *SettingsService {
	if defaults == nil {
		defaults = model.DefaultGlobalOptions()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &SettingsService{repo: repo, cache: cache, clients: clients, defaults: defaults, logger: log}
}

// Get 查询实例设置
func (s *SettingsService) Get(ctx context.Context, instanceID int64) (*model.Settings, error) {
	return s.repo.GetInstance(ctx, instanceID)
}

// GetOrDefault 实例不存在时返回默认设置（没有 API key，报价直接走兜底）
func (s *SettingsService) GetOrDefault(ctx context.Context, instanceID int64) (*model.Settings, error) {
	settings, err := s.repo.GetInstance(ctx, instanceID)
	if errorutil.IsKind(err, errorutil.KindNotFound) {
		return model.DefaultSettings(instanceID), nil
	}
	return settings, err
}

// List 全部实例设置
func (s *SettingsService) List(ctx context.Context) ([]*model.Settings, error) {
	return s.repo.ListInstances(ctx)
}

// Save 保存实例设置
// 1. 校验并规范化承运商/服务
// 2. 落库
// 3. 清空报价缓存
// 4. 配置了 API key 时测试连接
func (s *SettingsService) Save(ctx context.Context, settings *model.Settings) (*SaveReport, error) {
	if err := s.normalize(settings); err != nil {
		return nil, err
	}

	if err := s.repo.SaveInstance(ctx, settings); err != nil {
		return nil, fmt.Errorf("save settings failed: %w", err)
	}

	report := &SaveReport{Settings: settings}
	report.CacheCleared = s.clearCache(ctx)

	if settings.APIKey != "" && s.clients != nil {
		report.ConnectionTested = true
		report.ConnectionOK = s.clients(settings.APIKey, settings.Debug).TestConnection(ctx)
		if !report.ConnectionOK {
			s.logger.Warnf(ctx, "[SettingsService] connection test failed for instance %d", settings.InstanceID)
		}
	}

	s.logger.Infof(ctx, "[SettingsService] instance %d saved, %d cache entries cleared",
		settings.InstanceID, report.CacheCleared)
	return report, nil
}

// Global 查询全局选项，未保存过时返回默认值
func (s *SettingsService) Global(ctx context.Context) (*model.GlobalOptions, error) {
	opts, err := s.repo.GetGlobal(ctx)
	if errorutil.IsKind(err, errorutil.KindNotFound) {
		defaults := *s.defaults
		return &defaults, nil
	}
	return opts, err
}

// SaveGlobal 保存全局选项并清空报价缓存
func (s *SettingsService) SaveGlobal(ctx context.Context, opts *model.GlobalOptions) (int, error) {
	if opts.Fallback.Amount.IsNegative() {
		return 0, errorutil.Validation("fallback amount must not be negative", "fallback.amount")
	}
	if strings.TrimSpace(opts.Fallback.Title) == "" {
		opts.Fallback.Title = s.defaults.Fallback.Title
	}
	opts.PackageStrategy = model.ParsePackageStrategy(string(opts.PackageStrategy))

	if err := s.repo.SaveGlobal(ctx, opts); err != nil {
		return 0, fmt.Errorf("save global options failed: %w", err)
	}
	return s.clearCache(ctx), nil
}

// EnsureDefaults 首次启动时写入全局默认选项
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	_, err := s.repo.GetGlobal(ctx)
	if err == nil {
		return nil
	}
	if !errorutil.IsKind(err, errorutil.KindNotFound) {
		return err
	}
	defaults := *s.defaults
	if err := s.repo.SaveGlobal(ctx, &defaults); err != nil {
		return fmt.Errorf("write default options failed: %w", err)
	}
	s.logger.Infof(ctx, "[SettingsService] default global options written")
	return nil
}

func (s *SettingsService) normalize(settings *model.Settings) error {
	if settings.InstanceID <= 0 {
		return errorutil.Validation("invalid instance id", fmt.Sprintf("instance_id=%d", settings.InstanceID))
	}
	if err := settings.Validate(); err != nil {
		return errorutil.Validation(err.Error(), "")
	}

	settings.APIKey = strings.TrimSpace(settings.APIKey)
	if settings.Markup.Type == "" {
		settings.Markup.Type = model.MarkupNone
	}

	settings.Carriers = catalog.NormalizeCarriers(settings.Carriers)
	for _, code := range settings.Carriers {
		if !catalog.IsSupportedCarrier(code) {
			return errorutil.Validation("unsupported carrier", code)
		}
	}

	services := make([]string, 0, len(settings.Services))
	seen := make(map[string]bool, len(settings.Services))
	for _, code := range settings.Services {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		services = append(services, code)
	}
	settings.Services = services

	if settings.PackageStrategy != "" {
		settings.PackageStrategy = model.ParsePackageStrategy(string(settings.PackageStrategy))
	}
	return nil
}

// clearCache 清理失败只记录日志，不影响保存结果
func (s *SettingsService) clearCache(ctx context.Context) int {
	if s.cache == nil {
		return 0
	}
	n, err := s.cache.ClearAll(ctx)
	if err != nil {
		s.logger.Errorf(ctx, "[SettingsService] clear rate cache failed: %v", err)
	}
	return n
}
