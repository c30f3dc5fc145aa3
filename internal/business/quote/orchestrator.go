package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"oip/liverates/internal/business/quote/services"
	"oip/liverates/internal/catalog"
	"oip/liverates/internal/framework"
	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
	"oip/liverates/pkg/logger"
)

// State 编排状态
type State string

const (
	StateIdle            State = "idle"
	StateValidatingInput State = "validating_input"
	StateCacheLookup     State = "cache_lookup"
	StateCacheHit        State = "cache_hit"
	StateCacheMiss       State = "cache_miss"
	StateBuildingRequest State = "building_request"
	StateCallingAPI      State = "calling_api"
	StateProcessingRates State = "processing_rates"
	StateCachingResult   State = "caching_result"
	StateFallback        State = "fallback"
	StateEmit            State = "emit"
)

const (
	// FallbackQuoteID 兜底报价 ID
	FallbackQuoteID = model.MethodID + ":fallback"
	// EmergencyQuoteID 调试模式下的应急报价 ID
	EmergencyQuoteID = model.MethodID + ":emergency"
	// EmergencyTitle 应急报价标题
	EmergencyTitle = "Shipping (live rates unavailable)"
)

// emergencyAmount 应急报价金额
var emergencyAmount = decimal.NewFromInt(10)

// RateProvider 费率服务商
type RateProvider interface {
	CreateShipment(ctx context.Context, origin, destination model.Address, parcels []model.Parcel) (string, error)
	GetRates(ctx context.Context, shipmentID string, carriers []string) ([]model.RawRate, error)
}

// ProviderFactory 按实例的 API key 创建服务商客户端
type ProviderFactory func(apiKey string, debug bool) RateProvider

// GlobalOptionsSource 全局选项来源
type GlobalOptionsSource interface {
	Global(ctx context.Context) (*model.GlobalOptions, error)
}

// QuoteRequest 结账页发起的报价请求
type QuoteRequest struct {
	Destination model.Address    `json:"destination"`
	Items       []model.CartItem `json:"items"`
	Units       model.Units      `json:"units"`
}

// Result 编排结果；Err 仅用于诊断，不会返回给顾客
type Result struct {
	Quotes model.QuoteSet `json:"quotes"`
	Source model.Source   `json:"source"`
	States []State        `json:"states"`
	Err    error          `json:"-"`
	// Debug 实例或全局选项开启了调试模式
	Debug bool `json:"-"`
}

// Options 编排器依赖
type Options struct {
	Origin    model.Address
	Units     model.Units
	Cache     *RateCache
	Providers ProviderFactory
	Globals   GlobalOptionsSource
	Logger    logger.Logger
}

// Orchestrator 报价编排器
type Orchestrator struct {
	origin    model.Address
	units     model.Units
	cache     *RateCache
	providers ProviderFactory
	globals   GlobalOptionsSource
	processor *services.RateProcessor
	logger    logger.Logger
	group     singleflight.Group
}

// NewOrchestrator 创建编排器
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Units.Weight == "" && opts.Units.Dimension == "" {
		opts.Units = model.DefaultUnits
	}
	return &Orchestrator{
		origin:    opts.Origin.Normalize(),
		units:     opts.Units,
		cache:     opts.Cache,
		providers: opts.Providers,
		globals:   opts.Globals,
		processor: services.NewRateProcessor(opts.Logger),
		logger:    opts.Logger,
	}
}

// run 单次编排的上下文
type run struct {
	req      *QuoteRequest
	settings *model.Settings
	global   *model.GlobalOptions
	log      logger.Logger
	debug    bool

	carriers []string
	key      string
	quotes   model.QuoteSet
	source   model.Source
	states   []State
}

// providerResult singleflight 共享的服务商原始费率
type providerResult struct {
	raw    []model.RawRate
	states []State
}

// Quote 执行一次报价
func (o *Orchestrator) Quote(ctx context.Context, req *QuoteRequest, settings *model.Settings) *Result {
	if settings == nil {
		settings = model.DefaultSettings(0)
	}
	if req == nil {
		req = &QuoteRequest{}
	}
	ctx = logger.WithInstanceID(ctx, settings.InstanceID)

	r := &run{
		req:      req,
		settings: settings,
		global:   o.loadGlobal(ctx),
		states:   []State{StateIdle},
	}
	r.debug = settings.Debug || r.global.Debug
	r.log = logger.Gated(o.logger, r.debug)

	chain := framework.NewPreProcessor([]framework.Step{
		{Name: string(StateValidatingInput), Func: func(ctx context.Context) error { return o.validateInput(ctx, r) }},
		{Name: string(StateCacheLookup), Func: func(ctx context.Context) error { return o.lookupCache(ctx, r) }},
		{Name: "fetch", Func: func(ctx context.Context) error { return o.fetch(ctx, r) }},
	}).OnEnter(func(name string) {
		if name != "fetch" {
			r.states = append(r.states, State(name))
		}
	})

	err := chain.Run(ctx)
	if err != nil {
		o.fallback(ctx, r, err)
	}
	r.states = append(r.states, StateEmit)

	r.log.Infof(ctx, "[Orchestrator] emit %d quotes, source=%s", len(r.quotes), r.source)
	return &Result{Quotes: r.quotes, Source: r.source, States: r.states, Err: err, Debug: r.debug}
}

func (o *Orchestrator) loadGlobal(ctx context.Context) *model.GlobalOptions {
	if o.globals == nil {
		return model.DefaultGlobalOptions()
	}
	global, err := o.globals.Global(ctx)
	if err != nil || global == nil {
		o.logger.Warnf(ctx, "[Orchestrator] load global options failed, using defaults: %v", err)
		return model.DefaultGlobalOptions()
	}
	return global
}

// validateInput 缺 API key、未选承运商、收货地址不完整都直接进入兜底
func (o *Orchestrator) validateInput(ctx context.Context, r *run) error {
	if r.settings.APIKey == "" {
		return errorutil.Configuration("API key is not set")
	}

	r.carriers = catalog.NormalizeCarriers(r.settings.Carriers)
	if len(r.carriers) == 0 {
		return errorutil.Configuration("no carriers selected")
	}

	if missing := r.req.Destination.MissingFields(); len(missing) > 0 {
		return errorutil.Validation("incomplete destination address", fmt.Sprintf("invalid fields: %v", missing))
	}
	return nil
}

// lookupCache 命中时以 ErrStop 结束函数链
func (o *Orchestrator) lookupCache(ctx context.Context, r *run) error {
	r.key = Fingerprint(o.cachePrefix(), FingerprintInput{
		Destination: r.req.Destination,
		Items:       r.req.Items,
		Units:       o.unitsFor(r.req),
		Carriers:    r.carriers,
		Services:    r.settings.Services,
		Markup:      r.settings.Markup,
	})

	if o.cache == nil || r.settings.CacheTTL() <= 0 {
		r.states = append(r.states, StateCacheMiss)
		return nil
	}

	if set, ok := o.cache.Get(ctx, r.key); ok {
		r.log.Debugf(ctx, "[Orchestrator] cache hit %s", r.key)
		r.states = append(r.states, StateCacheHit)
		r.quotes = set
		r.source = model.SourceCache
		return framework.ErrStop
	}
	r.states = append(r.states, StateCacheMiss)
	return nil
}

// fetch 服务商调用按请求合并，费率处理与缓存写入按各调用方自己的设置执行
func (o *Orchestrator) fetch(ctx context.Context, r *run) error {
	raw, err := o.fetchShared(ctx, r)
	if err != nil {
		return err
	}

	var quotes model.QuoteSet
	steps := []framework.Step{
		{Name: string(StateProcessingRates), Func: func(ctx context.Context) error {
			quotes = o.processor.Process(ctx, raw, services.ProcessOptions{
				EnabledCarriers:  r.carriers,
				EnabledServices:  r.settings.Services,
				Markup:           r.settings.Markup,
				ShowDeliveryTime: r.settings.ShowDeliveryTime,
			})
			if len(quotes) == 0 {
				return errorutil.EmptyResult(fmt.Sprintf("no rates matched, %d returned by provider", len(raw)))
			}
			return nil
		}},
	}
	if ttl := r.settings.CacheTTL(); o.cache != nil && ttl > 0 {
		steps = append(steps, framework.Step{Name: string(StateCachingResult), Func: func(ctx context.Context) error {
			o.cache.Put(ctx, r.key, quotes, ttl)
			r.log.Debugf(ctx, "[Orchestrator] cached %d quotes under %s", len(quotes), r.key)
			return nil
		}})
	}

	err = framework.NewPreProcessor(steps).OnEnter(func(name string) {
		r.states = append(r.states, State(name))
	}).Run(ctx)
	if err != nil {
		return err
	}

	r.quotes = quotes
	r.source = model.SourceLive
	return nil
}

// fetchShared 相同请求的并发未命中共用一次服务商调用
// 共享调用不随任何一个调用方取消，只受客户端单次请求超时约束；调用方取消时仅自己停止等待
func (o *Orchestrator) fetchShared(ctx context.Context, r *run) ([]model.RawRate, error) {
	flightKey := fmt.Sprintf("%d:%s", r.settings.InstanceID, r.key)
	detached := context.WithoutCancel(ctx)
	ch := o.group.DoChan(flightKey, func() (interface{}, error) {
		return o.callProvider(detached, r)
	})

	select {
	case <-ctx.Done():
		return nil, errorutil.Transport("quote request canceled", ctx.Err())
	case res := <-ch:
		pr, _ := res.Val.(*providerResult)
		if pr != nil {
			r.states = append(r.states, pr.states...)
		}
		if res.Shared {
			r.log.Debugf(ctx, "[Orchestrator] shared in-flight request %s", flightKey)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return pr.raw, nil
	}
}

func (o *Orchestrator) callProvider(ctx context.Context, r *run) (*providerResult, error) {
	res := &providerResult{}
	var request *model.RateRequest

	steps := []framework.Step{
		{Name: string(StateBuildingRequest), Func: func(ctx context.Context) error {
			strategy := r.settings.EffectivePackageStrategy(r.global)
			parcels := services.NewPackageBuilder(strategy, r.log).BuildParcels(ctx, r.req.Items, o.unitsFor(r.req))
			request = model.NewRateRequest(o.origin, r.req.Destination.Normalize(), parcels, r.carriers)
			return nil
		}},
		{Name: string(StateCallingAPI), Func: func(ctx context.Context) error {
			if o.providers == nil {
				return errorutil.Configuration("no rate provider configured")
			}
			provider := o.providers(r.settings.APIKey, r.debug)
			shipmentID, err := provider.CreateShipment(ctx, request.Origin(), request.Destination(), request.Parcels())
			if err != nil {
				return err
			}
			res.raw, err = provider.GetRates(ctx, shipmentID, request.Carriers())
			return err
		}},
	}

	err := framework.NewPreProcessor(steps).OnEnter(func(name string) {
		res.states = append(res.states, State(name))
	}).Run(ctx)
	return res, err
}

// fallback 实例级兜底优先于全局；都未启用时仅在调试模式给出应急报价
func (o *Orchestrator) fallback(ctx context.Context, r *run, err error) {
	r.states = append(r.states, StateFallback)
	o.logFailure(ctx, r, err)

	if fb := r.settings.EffectiveFallback(r.global); fb != nil && fb.Enabled {
		cost := fb.Amount
		if cost.IsNegative() {
			cost = decimal.Zero
		}
		r.quotes = model.QuoteSet{{
			ID:      FallbackQuoteID,
			Label:   fb.Title,
			Cost:    cost,
			Carrier: "fallback",
			Meta:    model.QuoteMeta{ServiceCode: "fallback"},
		}}
		r.source = model.SourceFallback
		return
	}

	if r.debug {
		r.quotes = model.QuoteSet{{
			ID:      EmergencyQuoteID,
			Label:   EmergencyTitle,
			Cost:    emergencyAmount,
			Carrier: "emergency",
			Meta:    model.QuoteMeta{ServiceCode: "emergency"},
		}}
		r.source = model.SourceEmergency
		return
	}

	r.quotes = model.QuoteSet{}
	r.source = model.SourceNone
}

// logFailure 传输/服务商/响应格式错误总是以 error 级别记录，其余受调试开关控制
func (o *Orchestrator) logFailure(ctx context.Context, r *run, err error) {
	msg := err.Error()
	var e *errorutil.Error
	if errors.As(err, &e) && e.DevDetails != "" {
		msg += " (" + e.DevDetails + ")"
	}

	switch errorutil.KindOf(err) {
	case errorutil.KindTransport, errorutil.KindProvider, errorutil.KindMalformed:
		o.logger.Errorf(ctx, "[Orchestrator] live rates unavailable: %s", msg)
	case errorutil.KindEmptyResult:
		r.log.Infof(ctx, "[Orchestrator] %s", msg)
	default:
		r.log.Warnf(ctx, "[Orchestrator] falling back: %s", msg)
	}
}

func (o *Orchestrator) unitsFor(req *QuoteRequest) model.Units {
	units := o.units
	if req.Units.Weight != "" {
		units.Weight = req.Units.Weight
	}
	if req.Units.Dimension != "" {
		units.Dimension = req.Units.Dimension
	}
	return units
}

func (o *Orchestrator) cachePrefix() string {
	if o.cache == nil {
		return DefaultKeyPrefix
	}
	return o.cache.Prefix()
}
