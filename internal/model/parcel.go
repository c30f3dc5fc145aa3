package model

import "math"

// CartItem 购物车行项目，重量与尺寸使用平台存储的单位
type CartItem struct {
	ProductID string  `json:"product_id" binding:"required"`
	Quantity  int     `json:"quantity" binding:"gte=0"`
	Weight    float64 `json:"weight"`
	Length    float64 `json:"length"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// Units 购物车数据的重量/尺寸单位
type Units struct {
	Weight    string `json:"weight_unit"`
	Dimension string `json:"dimension_unit"`
}

// DefaultUnits 公制单位
var DefaultUnits = Units{Weight: "kg", Dimension: "cm"}

// Parcel 包裹（长宽高 cm，重量 kg）
type Parcel struct {
	Length       float64 `json:"length"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	DistanceUnit string  `json:"distance_unit"`
	Weight       float64 `json:"weight"`
	MassUnit     string  `json:"mass_unit"`
}

// RateRequest 一次报价的不可变请求
type RateRequest struct {
	origin      Address
	destination Address
	parcels     []Parcel
	carriers    []string
}

// NewRateRequest 构造请求，入参被复制
func NewRateRequest(origin, destination Address, parcels []Parcel, carriers []string) *RateRequest {
	return &RateRequest{
		origin:      origin,
		destination: destination,
		parcels:     append([]Parcel(nil), parcels...),
		carriers:    append([]string(nil), carriers...),
	}
}

func (r *RateRequest) Origin() Address      { return r.origin }
func (r *RateRequest) Destination() Address { return r.destination }
func (r *RateRequest) Parcels() []Parcel    { return append([]Parcel(nil), r.parcels...) }
func (r *RateRequest) Carriers() []string   { return append([]string(nil), r.carriers...) }

// Round 四舍五入到指定小数位
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
