package request

import (
	"time"

	"github.com/shopspring/decimal"

	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/model"
)

// AddressRequest 地址
type AddressRequest struct {
	Name       string `json:"name"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// ToModel 转换为领域地址
func (a AddressRequest) ToModel() model.Address {
	return model.Address{
		Name:       a.Name,
		Street1:    a.Street1,
		Street2:    a.Street2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
		Email:      a.Email,
	}.Normalize()
}

// QuoteRequest 报价请求
// 收货地址不完整不会返回 400，而是走兜底费率
type QuoteRequest struct {
	Destination   AddressRequest   `json:"destination"`
	Items         []model.CartItem `json:"items" binding:"dive"`
	WeightUnit    string           `json:"weight_unit" binding:"omitempty,oneof=kg g lbs lb oz"`
	DimensionUnit string           `json:"dimension_unit" binding:"omitempty,oneof=cm m mm in yd"`
}

// ToQuoteRequest 转换为编排器请求
func (r *QuoteRequest) ToQuoteRequest() *quote.QuoteRequest {
	return &quote.QuoteRequest{
		Destination: r.Destination.ToModel(),
		Items:       r.Items,
		Units:       model.Units{Weight: r.WeightUnit, Dimension: r.DimensionUnit},
	}
}

// ValidateAddressRequest 地址校验请求
type ValidateAddressRequest struct {
	Street1    string `json:"street1" binding:"required"`
	Street2    string `json:"street2"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required,len=2"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email" binding:"omitempty,email"`
}

// ToModel 转换为领域地址
func (r *ValidateAddressRequest) ToModel() model.Address {
	return AddressRequest{
		Name: r.Name, Street1: r.Street1, Street2: r.Street2, City: r.City, State: r.State,
		PostalCode: r.PostalCode, Country: r.Country, Phone: r.Phone, Email: r.Email,
	}.ToModel()
}

// FallbackRequest 兜底费率
type FallbackRequest struct {
	Enabled bool            `json:"enabled"`
	Title   string          `json:"title" binding:"max=255"`
	Amount  decimal.Decimal `json:"amount"`
}

// SettingsRequest 实例设置（整体覆盖）
type SettingsRequest struct {
	Title              string           `json:"title" binding:"max=255"`
	APIKey             *string          `json:"api_key"` // 不传则保留原值
	Carriers           []string         `json:"carriers"`
	Services           []string         `json:"services"`
	MarkupType         string           `json:"markup_type" binding:"omitempty,oneof=none flat percentage"`
	MarkupAmount       decimal.Decimal  `json:"markup_amount"`
	ShowDeliveryTime   *bool            `json:"show_delivery_time"`
	CacheEnabled       *bool            `json:"cache_enabled"`
	CacheDurationHours *float64         `json:"cache_duration_hours" binding:"omitempty,gte=0"`
	Debug              bool             `json:"debug"`
	PackageStrategy    string           `json:"package_strategy" binding:"omitempty,oneof=single per_item weight_based"`
	Fallback           *FallbackRequest `json:"fallback"`
}

// ToSettings 以 existing 为基础构造新设置
func (r *SettingsRequest) ToSettings(instanceID int64, existing *model.Settings) *model.Settings {
	s := model.DefaultSettings(instanceID)
	if existing != nil {
		s.APIKey = existing.APIKey
	}

	if r.Title != "" {
		s.Title = r.Title
	}
	if r.APIKey != nil {
		s.APIKey = *r.APIKey
	}
	if r.Carriers != nil {
		s.Carriers = r.Carriers
	}
	if r.Services != nil {
		s.Services = r.Services
	}
	if r.MarkupType != "" {
		s.Markup = model.Markup{Type: model.MarkupType(r.MarkupType), Amount: r.MarkupAmount}
	}
	if r.ShowDeliveryTime != nil {
		s.ShowDeliveryTime = *r.ShowDeliveryTime
	}
	if r.CacheEnabled != nil {
		s.CacheEnabled = *r.CacheEnabled
	}
	if r.CacheDurationHours != nil {
		s.CacheDuration = time.Duration(*r.CacheDurationHours * float64(time.Hour))
	}
	s.Debug = r.Debug
	s.PackageStrategy = model.PackageStrategy(r.PackageStrategy)
	if r.Fallback != nil {
		s.Fallback = &model.FallbackRate{Enabled: r.Fallback.Enabled, Title: r.Fallback.Title, Amount: r.Fallback.Amount}
	}
	return s
}

// GlobalOptionsRequest 全局选项
type GlobalOptionsRequest struct {
	Fallback        FallbackRequest `json:"fallback"`
	PackageStrategy string          `json:"package_strategy" binding:"omitempty,oneof=single per_item weight_based"`
	Debug           bool            `json:"debug"`
}

// ToModel 转换为领域对象
func (r *GlobalOptionsRequest) ToModel() *model.GlobalOptions {
	return &model.GlobalOptions{
		Fallback: model.FallbackRate{
			Enabled: r.Fallback.Enabled,
			Title:   r.Fallback.Title,
			Amount:  r.Fallback.Amount,
		},
		PackageStrategy: model.PackageStrategy(r.PackageStrategy),
		Debug:           r.Debug,
	}
}
