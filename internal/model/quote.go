package model

import "github.com/shopspring/decimal"

// MethodID 配送方式 ID，同时是报价 ID 的前缀
const MethodID = "shippo_live_rates"

// RawRate 服务商返回的单条费率
type RawRate struct {
	Carrier               string `json:"carrier"`
	ServiceToken          string `json:"service_token"`
	ServiceName           string `json:"service_name"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	EstimatedDays         *int   `json:"estimated_days,omitempty"`
	EstimatedDeliveryDate string `json:"estimated_delivery_date,omitempty"`
	ObjectID              string `json:"object_id"`
}

// QuoteMeta 报价附加信息
type QuoteMeta struct {
	ServiceCode    string `json:"service_code"`
	CarrierName    string `json:"carrier"`
	DeliveryDays   *int   `json:"delivery_days,omitempty"`
	DeliveryDate   string `json:"delivery_date,omitempty"`
	ProviderRateID string `json:"shippo_rate_id,omitempty"`
	Currency       string `json:"currency,omitempty"`
}

// Quote 结账页展示的配送选项
type Quote struct {
	ID      string          `json:"id"`
	Label   string          `json:"label"`
	Cost    decimal.Decimal `json:"cost"`
	Carrier string          `json:"carrier"`
	Meta    QuoteMeta       `json:"meta_data"`
}

// QuoteSet 按承运商分组、组内按价格升序的报价列表
type QuoteSet []Quote

// Source 报价来源
type Source string

const (
	SourceLive      Source = "live"
	SourceCache     Source = "cache"
	SourceFallback  Source = "fallback"
	SourceEmergency Source = "emergency"
	SourceNone      Source = "none"
)
