package services

import (
	"context"
	"strings"

	"oip/liverates/internal/model"
	"oip/liverates/pkg/logger"
)

const (
	// parcelPrecision 包裹数值保留的小数位
	parcelPrecision = 4
	// minWeightKg 无重量时的最小重量（100g）
	minWeightKg = 0.1
)

// defaultEnvelope 没有任何尺寸时使用的默认包裹 10x10x2 cm
var defaultEnvelope = [3]float64{10, 10, 2}

var weightToKg = map[string]float64{
	"kg":  1,
	"g":   0.001,
	"lbs": 0.45359237,
	"lb":  0.45359237,
	"oz":  0.028349523125,
}

var dimensionToCm = map[string]float64{
	"cm": 1,
	"m":  100,
	"mm": 0.1,
	"in": 2.54,
	"yd": 91.44,
}

// PackageBuilder 装箱器：把购物车合并为包裹
type PackageBuilder struct {
	strategy model.PackageStrategy
	logger   logger.Logger
}

// NewPackageBuilder 创建装箱器
func NewPackageBuilder(strategy model.PackageStrategy, log logger.Logger) *PackageBuilder {
	if log == nil {
		log = logger.NewNop()
	}
	return &PackageBuilder{strategy: strategy, logger: log}
}

// BuildParcels 生成包裹列表，永远返回一个包裹
// 重量按数量累加，长宽高分别取各商品最大值，不做拆箱
func (b *PackageBuilder) BuildParcels(ctx context.Context, items []model.CartItem, units model.Units) []model.Parcel {
	if b.strategy != "" && b.strategy != model.StrategySingle {
		b.logger.Debugf(ctx, "[PackageBuilder] strategy %q not implemented, packing everything into one parcel", b.strategy)
	}

	weightFactor := unitFactor(weightToKg, units.Weight)
	dimFactor := unitFactor(dimensionToCm, units.Dimension)

	var totalWeight, maxLength, maxWidth, maxHeight float64
	hasDimensions := false

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}

		weight := item.Weight * weightFactor
		if weight > 0 {
			totalWeight += weight * float64(item.Quantity)
		}

		length := item.Length * dimFactor
		width := item.Width * dimFactor
		height := item.Height * dimFactor
		if length > 0 && width > 0 && height > 0 {
			hasDimensions = true
			maxLength = max(maxLength, length)
			maxWidth = max(maxWidth, width)
			maxHeight = max(maxHeight, height)
		}
	}

	if totalWeight <= 0 {
		totalWeight = minWeightKg
	}

	if !hasDimensions {
		maxLength, maxWidth, maxHeight = defaultEnvelope[0], defaultEnvelope[1], defaultEnvelope[2]
	}

	parcel := model.Parcel{
		Length:       model.Round(maxLength, parcelPrecision),
		Width:        model.Round(maxWidth, parcelPrecision),
		Height:       model.Round(maxHeight, parcelPrecision),
		DistanceUnit: "cm",
		Weight:       model.Round(totalWeight, parcelPrecision),
		MassUnit:     "kg",
	}
	// 极小的数值在四舍五入后可能变成 0
	if parcel.Weight <= 0 {
		parcel.Weight = minWeightKg
	}
	if parcel.Length <= 0 || parcel.Width <= 0 || parcel.Height <= 0 {
		parcel.Length, parcel.Width, parcel.Height = defaultEnvelope[0], defaultEnvelope[1], defaultEnvelope[2]
	}

	b.logger.Debugf(ctx, "[PackageBuilder] prepared parcel: %+v", parcel)
	return []model.Parcel{parcel}
}

// unitFactor 未知单位按公制处理
func unitFactor(table map[string]float64, unit string) float64 {
	if f, ok := table[strings.ToLower(strings.TrimSpace(unit))]; ok {
		return f
	}
	return 1
}
