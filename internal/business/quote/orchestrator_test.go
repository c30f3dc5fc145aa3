package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
	"oip/liverates/pkg/infra/memstore"
	"oip/liverates/pkg/logger"
)

type fakeProvider struct {
	mu        sync.Mutex
	rates     []model.RawRate
	createErr error
	ratesErr  error
	release   chan struct{}

	factoryCalls atomic.Int64
	shipments    atomic.Int64
	lastOrigin   model.Address
	lastParcels  []model.Parcel
	lastCarriers []string
}

func (f *fakeProvider) factory() ProviderFactory {
	return func(apiKey string, debug bool) RateProvider {
		f.factoryCalls.Inc()
		return f
	}
}

func (f *fakeProvider) CreateShipment(ctx context.Context, origin, _ model.Address, parcels []model.Parcel) (string, error) {
	f.shipments.Inc()
	f.mu.Lock()
	f.lastOrigin = origin
	f.lastParcels = parcels
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", errorutil.Transport("request canceled", ctx.Err())
		}
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	return "shp_1", nil
}

func (f *fakeProvider) GetRates(_ context.Context, _ string, carriers []string) ([]model.RawRate, error) {
	f.mu.Lock()
	f.lastCarriers = carriers
	f.mu.Unlock()
	return f.rates, f.ratesErr
}

func uspsRates() []model.RawRate {
	return []model.RawRate{
		{Carrier: "USPS", ServiceToken: "usps_priority_express", ServiceName: "Priority Mail Express", Amount: "12.50", Currency: "USD", ObjectID: "r2"},
		{Carrier: "USPS", ServiceToken: "usps_priority", ServiceName: "Priority Mail", Amount: "8.25", Currency: "USD", ObjectID: "r1"},
	}
}

func testRequest() *QuoteRequest {
	return &QuoteRequest{
		Destination: model.Address{Street1: "1 Main St", City: "Austin", State: "TX", PostalCode: "73301", Country: "us"},
		Items:       []model.CartItem{{ProductID: "42", Quantity: 2, Weight: 1.5, Length: 20, Width: 10, Height: 5}},
	}
}

func testSettings() *model.Settings {
	s := model.DefaultSettings(7)
	s.APIKey = "shippo_test_key"
	s.Fallback = &model.FallbackRate{Enabled: true, Title: "Flat Rate Shipping", Amount: decimal.NewFromInt(10)}
	return s
}

var origin = model.Address{Street1: "100 Warehouse Rd", City: "Denver", State: "CO", PostalCode: "80202", Country: "US"}

func newOrchestrator(p *fakeProvider, cache *RateCache, log logger.Logger) *Orchestrator {
	return NewOrchestrator(Options{Origin: origin, Cache: cache, Providers: p.factory(), Logger: log})
}

func costsOf(qs model.QuoteSet) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Cost.StringFixed(2))
	}
	return out
}

func TestQuoteLiveThenCached(t *testing.T) {
	p := &fakeProvider{rates: uspsRates()}
	o := newOrchestrator(p, NewRateCache(memstore.New(), "", nil), nil)
	ctx := context.Background()

	res := o.Quote(ctx, testRequest(), testSettings())
	require.NoError(t, res.Err)
	assert.Equal(t, model.SourceLive, res.Source)
	assert.Equal(t, []string{"8.25", "12.50"}, costsOf(res.Quotes))
	assert.Equal(t, []State{
		StateIdle, StateValidatingInput, StateCacheLookup, StateCacheMiss,
		StateBuildingRequest, StateCallingAPI, StateProcessingRates, StateCachingResult, StateEmit,
	}, res.States)

	assert.Equal(t, origin, p.lastOrigin)
	assert.Equal(t, []string{"usps"}, p.lastCarriers)
	require.Len(t, p.lastParcels, 1)
	assert.Equal(t, 3.0, p.lastParcels[0].Weight)
	assert.Equal(t, 20.0, p.lastParcels[0].Length)

	again := o.Quote(ctx, testRequest(), testSettings())
	assert.Equal(t, model.SourceCache, again.Source)
	assert.Equal(t, []string{"8.25", "12.50"}, costsOf(again.Quotes))
	assert.Equal(t, []State{StateIdle, StateValidatingInput, StateCacheLookup, StateCacheHit, StateEmit}, again.States)
	assert.EqualValues(t, 1, p.shipments.Load())
}

func TestQuoteCacheDisabled(t *testing.T) {
	p := &fakeProvider{rates: uspsRates()}
	store := memstore.New()
	o := newOrchestrator(p, NewRateCache(store, "", nil), nil)
	s := testSettings()
	s.CacheEnabled = false

	for i := 0; i < 2; i++ {
		res := o.Quote(context.Background(), testRequest(), s)
		assert.Equal(t, model.SourceLive, res.Source)
		assert.NotContains(t, res.States, StateCachingResult)
	}
	assert.EqualValues(t, 2, p.shipments.Load())
	assert.Equal(t, 0, store.Len())
}

func TestQuoteEmptyAPIKeyFallsBackWithoutNetwork(t *testing.T) {
	p := &fakeProvider{rates: uspsRates()}
	o := newOrchestrator(p, nil, nil)
	s := testSettings()
	s.APIKey = ""

	res := o.Quote(context.Background(), testRequest(), s)
	assert.Equal(t, model.SourceFallback, res.Source)
	require.Len(t, res.Quotes, 1)
	assert.Equal(t, FallbackQuoteID, res.Quotes[0].ID)
	assert.Equal(t, "Flat Rate Shipping", res.Quotes[0].Label)
	assert.Equal(t, "10.00", res.Quotes[0].Cost.StringFixed(2))
	assert.True(t, errorutil.IsKind(res.Err, errorutil.KindConfiguration))
	assert.Equal(t, []State{StateIdle, StateValidatingInput, StateFallback, StateEmit}, res.States)
	assert.Zero(t, p.factoryCalls.Load())
}

func TestQuoteNoCarriersFallsBack(t *testing.T) {
	p := &fakeProvider{rates: uspsRates()}
	s := testSettings()
	s.Carriers = []string{" ", ""}

	res := newOrchestrator(p, nil, nil).Quote(context.Background(), testRequest(), s)
	assert.Equal(t, model.SourceFallback, res.Source)
	assert.True(t, errorutil.IsKind(res.Err, errorutil.KindConfiguration))
	assert.Zero(t, p.factoryCalls.Load())
}

func TestQuoteUSWithoutStateFallsBack(t *testing.T) {
	p := &fakeProvider{rates: uspsRates()}
	req := testRequest()
	req.Destination.State = ""

	res := newOrchestrator(p, nil, nil).Quote(context.Background(), req, testSettings())
	assert.Equal(t, model.SourceFallback, res.Source)
	assert.True(t, errorutil.IsKind(res.Err, errorutil.KindValidation))
	assert.Zero(t, p.factoryCalls.Load())
}

func TestQuoteProviderFailureFallsBack(t *testing.T) {
	cases := map[string]*fakeProvider{
		"shipment transport": {createErr: errorutil.Transport("request failed", errors.New("dial tcp: timeout"))},
		"rates provider":     {ratesErr: errorutil.Provider(400, "provider error", "Invalid carrier")},
		"rates malformed":    {ratesErr: errorutil.Malformed("invalid JSON", nil)},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			cache := NewRateCache(memstore.New(), "", nil)
			res := newOrchestrator(p, cache, nil).Quote(context.Background(), testRequest(), testSettings())
			assert.Equal(t, model.SourceFallback, res.Source)
			require.Len(t, res.Quotes, 1)
			assert.Equal(t, FallbackQuoteID, res.Quotes[0].ID)
			assert.Error(t, res.Err)
			assert.Zero(t, cache.Stats().Writes)
		})
	}
}

func TestQuoteEmptyResultFallsBack(t *testing.T) {
	p := &fakeProvider{rates: []model.RawRate{
		{Carrier: "UPS", ServiceToken: "ups_ground", ServiceName: "Ground", Amount: "9.00"},
	}}
	cache := NewRateCache(memstore.New(), "", nil)

	res := newOrchestrator(p, cache, nil).Quote(context.Background(), testRequest(), testSettings())
	assert.Equal(t, model.SourceFallback, res.Source)
	assert.True(t, errorutil.IsKind(res.Err, errorutil.KindEmptyResult))
	assert.Zero(t, cache.Stats().Writes)
}

func TestQuoteFallbackPrecedence(t *testing.T) {
	p := &fakeProvider{}
	global := model.DefaultGlobalOptions()
	global.Fallback = model.FallbackRate{Enabled: true, Title: "Global Flat", Amount: decimal.NewFromInt(15)}
	o := NewOrchestrator(Options{Origin: origin, Providers: p.factory(), Globals: staticGlobals{global}})

	s := testSettings()
	s.APIKey = ""
	s.Fallback = nil
	res := o.Quote(context.Background(), testRequest(), s)
	require.Len(t, res.Quotes, 1)
	assert.Equal(t, "Global Flat", res.Quotes[0].Label)

	s.Fallback = &model.FallbackRate{Enabled: true, Title: "Instance Flat", Amount: decimal.NewFromInt(4)}
	res = o.Quote(context.Background(), testRequest(), s)
	assert.Equal(t, "Instance Flat", res.Quotes[0].Label)
	assert.Equal(t, "4.00", res.Quotes[0].Cost.StringFixed(2))
}

func TestQuoteEmergencyOnlyInDebug(t *testing.T) {
	p := &fakeProvider{}
	o := newOrchestrator(p, nil, nil)
	s := testSettings()
	s.APIKey = ""
	s.Fallback = &model.FallbackRate{Enabled: false, Title: "Off", Amount: decimal.NewFromInt(1)}

	res := o.Quote(context.Background(), testRequest(), s)
	assert.Equal(t, model.SourceNone, res.Source)
	assert.Empty(t, res.Quotes)

	s.Debug = true
	res = o.Quote(context.Background(), testRequest(), s)
	assert.Equal(t, model.SourceEmergency, res.Source)
	require.Len(t, res.Quotes, 1)
	assert.Equal(t, EmergencyQuoteID, res.Quotes[0].ID)
	assert.Equal(t, EmergencyTitle, res.Quotes[0].Label)
}

func TestQuoteLogsTransportErrorsWithoutDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := &fakeProvider{createErr: errorutil.Transport("request failed", errors.New("connection reset"))}
	o := newOrchestrator(p, nil, logger.NewFromZap(zap.New(core)))

	o.Quote(context.Background(), testRequest(), testSettings())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Contains(t, entry.Message, "connection reset")
	assert.Equal(t, int64(7), entry.ContextMap()["instance_id"])
}

func TestQuoteValidationLoggedOnlyInDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	o := newOrchestrator(&fakeProvider{}, nil, logger.NewFromZap(zap.New(core)))
	req := testRequest()
	req.Destination.PostalCode = ""

	o.Quote(context.Background(), req, testSettings())
	assert.Zero(t, logs.Len())

	s := testSettings()
	s.Debug = true
	o.Quote(context.Background(), req, s)
	assert.NotZero(t, logs.FilterMessageSnippet("postal_code").Len())
}

func TestQuoteCollapsesConcurrentMisses(t *testing.T) {
	p := &fakeProvider{rates: uspsRates(), release: make(chan struct{})}
	o := newOrchestrator(p, NewRateCache(memstore.New(), "", nil), nil)

	const callers = 8
	results := make([]*Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Quote(context.Background(), testRequest(), testSettings())
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.EqualValues(t, 1, p.shipments.Load())
	for _, res := range results {
		assert.Contains(t, []model.Source{model.SourceLive, model.SourceCache}, res.Source)
		assert.Equal(t, []string{"8.25", "12.50"}, costsOf(res.Quotes))
	}
}

func TestQuoteCanceledCallerDoesNotFailSharedRequest(t *testing.T) {
	p := &fakeProvider{rates: uspsRates(), release: make(chan struct{})}
	o := newOrchestrator(p, NewRateCache(memstore.New(), "", nil), nil)

	first, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan *Result, 1)
	go func() { firstDone <- o.Quote(first, testRequest(), testSettings()) }()
	require.Eventually(t, func() bool { return p.shipments.Load() == 1 }, time.Second, 5*time.Millisecond)

	secondDone := make(chan *Result, 1)
	go func() { secondDone <- o.Quote(context.Background(), testRequest(), testSettings()) }()
	time.Sleep(50 * time.Millisecond)

	cancel()
	canceled := <-firstDone
	assert.Equal(t, model.SourceFallback, canceled.Source)
	assert.True(t, errorutil.IsKind(canceled.Err, errorutil.KindTransport))

	close(p.release)
	res := <-secondDone
	require.NoError(t, res.Err)
	assert.Equal(t, model.SourceLive, res.Source)
	assert.Equal(t, []string{"8.25", "12.50"}, costsOf(res.Quotes))
	assert.EqualValues(t, 1, p.shipments.Load())
}

func TestQuoteSharedRequestKeepsPerCallerLabels(t *testing.T) {
	two := 2
	rates := uspsRates()
	for i := range rates {
		rates[i].EstimatedDays = &two
	}
	p := &fakeProvider{rates: rates, release: make(chan struct{})}
	o := newOrchestrator(p, nil, nil)

	withDays := testSettings()
	withDays.ShowDeliveryTime = true
	withoutDays := testSettings()
	withoutDays.ShowDeliveryTime = false

	var a, b *Result
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a = o.Quote(context.Background(), testRequest(), withDays) }()
	require.Eventually(t, func() bool { return p.shipments.Load() == 1 }, time.Second, 5*time.Millisecond)
	go func() { defer wg.Done(); b = o.Quote(context.Background(), testRequest(), withoutDays) }()
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.EqualValues(t, 1, p.shipments.Load())
	require.Equal(t, model.SourceLive, a.Source)
	require.Equal(t, model.SourceLive, b.Source)
	for _, q := range a.Quotes {
		assert.Contains(t, q.Label, "(2 days)")
	}
	for _, q := range b.Quotes {
		assert.NotContains(t, q.Label, "days)")
	}
}

func TestQuoteDestinationChecksOnlyRequiredFields(t *testing.T) {
	p := &fakeProvider{rates: uspsRates()}
	o := newOrchestrator(p, nil, nil)

	badEmail := testRequest()
	badEmail.Destination.Email = "not-an-email"
	res := o.Quote(context.Background(), badEmail, testSettings())
	require.NoError(t, res.Err)
	assert.Equal(t, model.SourceLive, res.Source)

	uk := testRequest()
	uk.Destination = model.Address{Street1: "10 Downing St", City: "London", PostalCode: "SW1A 2AA", Country: "UK"}
	res = o.Quote(context.Background(), uk, testSettings())
	require.NoError(t, res.Err)
	assert.Equal(t, model.SourceLive, res.Source)
}

type staticGlobals struct{ opts *model.GlobalOptions }

func (s staticGlobals) Global(context.Context) (*model.GlobalOptions, error) { return s.opts, nil }
