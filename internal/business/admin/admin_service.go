package admin

import (
	"context"
	"fmt"

	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/catalog"
	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
	"oip/liverates/pkg/logger"
	"oip/liverates/pkg/shippo"
)

// Version 服务版本
const Version = "1.0.0"

// InstanceStatus 实例概况（不含 API key）
type InstanceStatus struct {
	InstanceID   int64    `json:"instance_id"`
	Title        string   `json:"title"`
	HasAPIKey    bool     `json:"has_api_key"`
	Carriers     []string `json:"carriers"`
	CacheEnabled bool     `json:"cache_enabled"`
	Debug        bool     `json:"debug"`
}

// SystemStatus 系统状态
type SystemStatus struct {
	Version      string               `json:"version"`
	CacheBackend string               `json:"cache_backend"`
	Cache        quote.CacheStats     `json:"cache"`
	Debug        bool                 `json:"debug"`
	StoreAddress model.Address        `json:"store_address"`
	Global       *model.GlobalOptions `json:"global"`
	Instances    []InstanceStatus     `json:"instances"`
	Carriers     []catalog.Carrier    `json:"carriers"`
}

// StatusInfo 静态运行信息
type StatusInfo struct {
	CacheBackend string
	StoreAddress model.Address
}

// AdminService 管理命令：清缓存、测连接、校验地址、系统状态
type AdminService struct {
	settings *SettingsService
	cache    *quote.RateCache
	clients  ClientFactory
	info     StatusInfo
	logger   logger.Logger
}

// NewAdminService 创建管理服务实例
func NewAdminService(settings *SettingsService, cache *quote.RateCache, clients ClientFactory,
	info StatusInfo, log logger.Logger) *AdminService {
	if log == nil {
		log = logger.NewNop()
	}
	return &AdminService{settings: settings, cache: cache, clients: clients, info: info, logger: log}
}

// ClearCache 清空全部报价缓存
func (s *AdminService) ClearCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.ClearAll(ctx)
}

// TestConnection 用实例的 API key 测试连接
func (s *AdminService) TestConnection(ctx context.Context, instanceID int64) (bool, error) {
	client, err := s.clientFor(ctx, instanceID)
	if err != nil {
		return false, err
	}
	return client.TestConnection(ctx), nil
}

// ValidateAddress 调用服务商校验地址
func (s *AdminService) ValidateAddress(ctx context.Context, instanceID int64, addr model.Address) (*model.Address, error) {
	addr = addr.Normalize()
	if err := addr.ValidateStrict(); err != nil {
		return nil, errorutil.Validation("invalid address", err.Error())
	}

	client, err := s.clientFor(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return client.ValidateAddress(ctx, addr)
}

// CarrierAccounts 实例账号下已连接的承运商账号
func (s *AdminService) CarrierAccounts(ctx context.Context, instanceID int64) ([]shippo.CarrierAccount, error) {
	client, err := s.clientFor(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return client.CarrierAccounts(ctx)
}

// Status 汇总系统状态
func (s *AdminService) Status(ctx context.Context) (*SystemStatus, error) {
	global, err := s.settings.Global(ctx)
	if err != nil {
		return nil, fmt.Errorf("load global options failed: %w", err)
	}
	instances, err := s.settings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances failed: %w", err)
	}

	status := &SystemStatus{
		Version:      Version,
		CacheBackend: s.info.CacheBackend,
		Debug:        global.Debug,
		StoreAddress: s.info.StoreAddress,
		Global:       global,
		Instances:    make([]InstanceStatus, 0, len(instances)),
		Carriers:     catalog.Carriers(),
	}
	if s.cache != nil {
		status.Cache = s.cache.Stats()
	}
	for _, inst := range instances {
		status.Instances = append(status.Instances, InstanceStatus{
			InstanceID:   inst.InstanceID,
			Title:        inst.Title,
			HasAPIKey:    inst.APIKey != "",
			Carriers:     inst.Carriers,
			CacheEnabled: inst.CacheEnabled,
			Debug:        inst.Debug,
		})
		status.Debug = status.Debug || inst.Debug
	}
	return status, nil
}

func (s *AdminService) clientFor(ctx context.Context, instanceID int64) (AccountClient, error) {
	settings, err := s.settings.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if settings.APIKey == "" {
		return nil, errorutil.Configuration("API key is not set")
	}
	if s.clients == nil {
		return nil, errorutil.Configuration("no rate provider configured")
	}
	return s.clients(settings.APIKey, settings.Debug), nil
}
