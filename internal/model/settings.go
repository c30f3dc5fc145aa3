package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarkupType 加价方式
type MarkupType string

const (
	MarkupNone       MarkupType = "none"
	MarkupFlat       MarkupType = "flat"
	MarkupPercentage MarkupType = "percentage"
)

// Markup 加价规则
type Markup struct {
	Type   MarkupType      `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// Valid 加价方式是否合法
func (m Markup) Valid() bool {
	switch m.Type {
	case MarkupNone, MarkupFlat, MarkupPercentage, "":
		return true
	}
	return false
}

// PackageStrategy 装箱策略（目前只有 single 真正生效）
type PackageStrategy string

const (
	StrategySingle      PackageStrategy = "single"
	StrategyPerItem     PackageStrategy = "per_item"
	StrategyWeightBased PackageStrategy = "weight_based"
)

// ParsePackageStrategy 非法值回落为 single
func ParsePackageStrategy(s string) PackageStrategy {
	switch PackageStrategy(s) {
	case StrategyPerItem, StrategyWeightBased:
		return PackageStrategy(s)
	default:
		return StrategySingle
	}
}

// FallbackRate 兜底费率
type FallbackRate struct {
	Enabled bool            `json:"enabled"`
	Title   string          `json:"title"`
	Amount  decimal.Decimal `json:"amount"`
}

// Settings 配送方式实例设置（报价时只读）
type Settings struct {
	InstanceID       int64         `json:"instance_id"`
	Title            string        `json:"title"`
	APIKey           string        `json:"api_key,omitempty"`
	Carriers         []string      `json:"carriers"`
	Services         []string      `json:"services"`
	Markup           Markup        `json:"markup"`
	ShowDeliveryTime bool          `json:"show_delivery_time"`
	CacheEnabled     bool          `json:"cache_enabled"`
	CacheDuration    time.Duration `json:"cache_duration"`
	Debug            bool          `json:"debug"`

	// PackageStrategy 为空时使用全局选项
	PackageStrategy PackageStrategy `json:"package_strategy,omitempty"`
	// Fallback 为 nil 时使用全局默认兜底费率
	Fallback *FallbackRate `json:"fallback,omitempty"`
}

// DefaultSettings 新实例的默认值
func DefaultSettings(instanceID int64) *Settings {
	return &Settings{
		InstanceID:       instanceID,
		Title:            "Shippo Live Rates",
		Carriers:         []string{"usps"},
		Services:         []string{},
		Markup:           Markup{Type: MarkupNone, Amount: decimal.Zero},
		ShowDeliveryTime: true,
		CacheEnabled:     true,
		CacheDuration:    time.Hour,
		Debug:            false,
	}
}

// CacheTTL 缓存关闭或时长为 0 时返回 0
func (s *Settings) CacheTTL() time.Duration {
	if !s.CacheEnabled || s.CacheDuration <= 0 {
		return 0
	}
	return s.CacheDuration
}

// EffectivePackageStrategy 实例未设置时使用全局选项
func (s *Settings) EffectivePackageStrategy(global *GlobalOptions) PackageStrategy {
	if s.PackageStrategy != "" {
		return s.PackageStrategy
	}
	if global != nil && global.PackageStrategy != "" {
		return global.PackageStrategy
	}
	return StrategySingle
}

// EffectiveFallback 实例级兜底费率优先于全局默认
func (s *Settings) EffectiveFallback(global *GlobalOptions) *FallbackRate {
	if s.Fallback != nil {
		return s.Fallback
	}
	if global != nil {
		return &global.Fallback
	}
	return nil
}

// Validate 保存前校验
func (s *Settings) Validate() error {
	if !s.Markup.Valid() {
		return fmt.Errorf("unsupported markup type: %q", s.Markup.Type)
	}
	if s.Markup.Amount.IsNegative() {
		return fmt.Errorf("markup amount must not be negative")
	}
	if s.CacheDuration < 0 {
		return fmt.Errorf("cache duration must not be negative")
	}
	if s.Fallback != nil && s.Fallback.Amount.IsNegative() {
		return fmt.Errorf("fallback amount must not be negative")
	}
	return nil
}

// GlobalOptions 全局选项
type GlobalOptions struct {
	Fallback        FallbackRate    `json:"fallback"`
	PackageStrategy PackageStrategy `json:"package_strategy"`
	Debug           bool            `json:"debug"`
}

// DefaultGlobalOptions 首次启动时写入的默认值
func DefaultGlobalOptions() *GlobalOptions {
	return &GlobalOptions{
		Fallback: FallbackRate{
			Enabled: false,
			Title:   "Flat Rate Shipping",
			Amount:  decimal.NewFromInt(10),
		},
		PackageStrategy: StrategySingle,
	}
}
