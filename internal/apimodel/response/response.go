package response

import (
	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/model"
)

// QuoteResponse 报价结果，按展示顺序排列
type QuoteResponse struct {
	Quotes model.QuoteSet `json:"quotes"`
	Source model.Source   `json:"source"`
	States []quote.State  `json:"states,omitempty"` // 仅调试模式返回
}

// FromResult 转换编排结果，调试模式下附带状态轨迹
func FromResult(res *quote.Result) *QuoteResponse {
	out := &QuoteResponse{Quotes: res.Quotes, Source: res.Source}
	if out.Quotes == nil {
		out.Quotes = model.QuoteSet{}
	}
	if res.Debug {
		out.States = res.States
	}
	return out
}

// FallbackResponse 兜底费率
type FallbackResponse struct {
	Enabled bool   `json:"enabled"`
	Title   string `json:"title"`
	Amount  string `json:"amount"`
}

// SettingsResponse 实例设置（API key 脱敏）
type SettingsResponse struct {
	InstanceID         int64             `json:"instance_id"`
	Title              string            `json:"title"`
	APIKey             string            `json:"api_key"`
	Carriers           []string          `json:"carriers"`
	Services           []string          `json:"services"`
	MarkupType         string            `json:"markup_type"`
	MarkupAmount       string            `json:"markup_amount"`
	ShowDeliveryTime   bool              `json:"show_delivery_time"`
	CacheEnabled       bool              `json:"cache_enabled"`
	CacheDurationHours float64           `json:"cache_duration_hours"`
	Debug              bool              `json:"debug"`
	PackageStrategy    string            `json:"package_strategy,omitempty"`
	Fallback           *FallbackResponse `json:"fallback,omitempty"`
}

// FromSettings 转换实例设置
func FromSettings(s *model.Settings) *SettingsResponse {
	out := &SettingsResponse{
		InstanceID:         s.InstanceID,
		Title:              s.Title,
		APIKey:             MaskKey(s.APIKey),
		Carriers:           s.Carriers,
		Services:           s.Services,
		MarkupType:         string(s.Markup.Type),
		MarkupAmount:       s.Markup.Amount.String(),
		ShowDeliveryTime:   s.ShowDeliveryTime,
		CacheEnabled:       s.CacheEnabled,
		CacheDurationHours: s.CacheDuration.Hours(),
		Debug:              s.Debug,
		PackageStrategy:    string(s.PackageStrategy),
	}
	if s.Fallback != nil {
		out.Fallback = fromFallback(*s.Fallback)
	}
	return out
}

// SaveSettingsResponse 保存结果
type SaveSettingsResponse struct {
	Settings         *SettingsResponse `json:"settings"`
	CacheCleared     int               `json:"cache_cleared"`
	ConnectionTested bool              `json:"connection_tested"`
	ConnectionOK     bool              `json:"connection_ok"`
}

// GlobalOptionsResponse 全局选项
type GlobalOptionsResponse struct {
	Fallback        *FallbackResponse `json:"fallback"`
	PackageStrategy string            `json:"package_strategy"`
	Debug           bool              `json:"debug"`
}

// FromGlobalOptions 转换全局选项
func FromGlobalOptions(g *model.GlobalOptions) *GlobalOptionsResponse {
	return &GlobalOptionsResponse{
		Fallback:        fromFallback(g.Fallback),
		PackageStrategy: string(g.PackageStrategy),
		Debug:           g.Debug,
	}
}

// MaskKey 只保留后 4 位
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func fromFallback(f model.FallbackRate) *FallbackResponse {
	return &FallbackResponse{Enabled: f.Enabled, Title: f.Title, Amount: f.Amount.StringFixed(2)}
}
