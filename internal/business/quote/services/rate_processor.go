package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"oip/liverates/internal/catalog"
	"oip/liverates/internal/model"
	"oip/liverates/pkg/logger"
)

// ProcessOptions 费率处理参数
type ProcessOptions struct {
	EnabledCarriers  []string
	EnabledServices  []string
	Markup           model.Markup
	ShowDeliveryTime bool
}

// RateProcessor 费率处理器：过滤、加价、生成标签并排序
type RateProcessor struct {
	logger logger.Logger
}

// NewRateProcessor 创建费率处理器
func NewRateProcessor(log logger.Logger) *RateProcessor {
	if log == nil {
		log = logger.NewNop()
	}
	return &RateProcessor{logger: log}
}

// Process 把服务商费率转换为报价列表
//
// 过滤顺序：缺字段 → 承运商未启用 → 服务白名单（只约束目录内已知的服务）。
// 同一 service token 出现多次时保留价格最低的一条，价格相同保留先出现的。
func (p *RateProcessor) Process(ctx context.Context, raw []model.RawRate, opts ProcessOptions) model.QuoteSet {
	enabledCarriers := toSet(catalog.NormalizeCarriers(opts.EnabledCarriers))
	enabledServices := toSet(opts.EnabledServices)

	byID := make(map[string]model.Quote, len(raw))
	order := make([]string, 0, len(raw))

	for _, rate := range raw {
		amount, ok := parseAmount(rate)
		if !ok {
			p.logger.Debugf(ctx, "[RateProcessor] skip incomplete rate: %+v", rate)
			continue
		}

		carrier := catalog.NormalizeCarrier(rate.Carrier)
		if _, ok := enabledCarriers[carrier]; !ok {
			continue
		}

		if len(enabledServices) > 0 && catalog.IsKnownService(rate.ServiceToken) {
			if _, ok := enabledServices[rate.ServiceToken]; !ok {
				continue
			}
		}

		quote := model.Quote{
			ID:      model.MethodID + ":" + rate.ServiceToken,
			Label:   buildLabel(rate, opts.ShowDeliveryTime),
			Cost:    ApplyMarkup(amount, opts.Markup),
			Carrier: carrier,
			Meta: model.QuoteMeta{
				ServiceCode:    rate.ServiceToken,
				CarrierName:    rate.Carrier,
				DeliveryDays:   rate.EstimatedDays,
				DeliveryDate:   rate.EstimatedDeliveryDate,
				ProviderRateID: rate.ObjectID,
				Currency:       rate.Currency,
			},
		}

		if existing, ok := byID[quote.ID]; ok {
			if quote.Cost.LessThan(existing.Cost) {
				byID[quote.ID] = quote
			}
			p.logger.Debugf(ctx, "[RateProcessor] duplicate service token %s", rate.ServiceToken)
			continue
		}
		byID[quote.ID] = quote
		order = append(order, quote.ID)
	}

	quotes := make(model.QuoteSet, 0, len(order))
	for _, id := range order {
		quotes = append(quotes, byID[id])
	}
	SortQuotes(quotes)

	p.logger.Infof(ctx, "[RateProcessor] %d of %d rates kept", len(quotes), len(raw))
	return quotes
}

// SortQuotes 按承运商 code 升序，组内按价格升序，价格相同按 ID
func SortQuotes(quotes model.QuoteSet) {
	sort.SliceStable(quotes, func(i, j int) bool {
		a, b := quotes[i], quotes[j]
		if a.Carrier != b.Carrier {
			return a.Carrier < b.Carrier
		}
		if !a.Cost.Equal(b.Cost) {
			return a.Cost.LessThan(b.Cost)
		}
		return a.ID < b.ID
	})
}

// ApplyMarkup 应用加价规则，结果不小于 0
func ApplyMarkup(amount decimal.Decimal, markup model.Markup) decimal.Decimal {
	switch markup.Type {
	case model.MarkupFlat:
		amount = amount.Add(markup.Amount)
	case model.MarkupPercentage:
		amount = amount.Add(amount.Mul(markup.Amount).Div(decimal.NewFromInt(100)))
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// buildLabel "<Provider> - <Service>"，可选 " (N day|days)"
func buildLabel(rate model.RawRate, showDeliveryTime bool) string {
	label := rate.Carrier + " - " + rate.ServiceName
	if showDeliveryTime && rate.EstimatedDays != nil && *rate.EstimatedDays > 0 {
		days := *rate.EstimatedDays
		unit := "days"
		if days == 1 {
			unit = "day"
		}
		label += fmt.Sprintf(" (%d %s)", days, unit)
	}
	return label
}

// parseAmount 缺少 token/name/amount 或金额非法时返回 false
func parseAmount(rate model.RawRate) (decimal.Decimal, bool) {
	if strings.TrimSpace(rate.ServiceToken) == "" || strings.TrimSpace(rate.ServiceName) == "" {
		return decimal.Zero, false
	}
	if strings.TrimSpace(rate.Amount) == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(rate.Amount))
	if err != nil || amount.IsNegative() {
		return decimal.Zero, false
	}
	return amount, true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
