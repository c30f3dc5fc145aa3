package quote

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oip/liverates/internal/model"
	"oip/liverates/pkg/infra/memstore"
)

func fingerprintInput() FingerprintInput {
	return FingerprintInput{
		Destination: model.Address{Street1: "1 Main St", City: "Austin", State: "TX", PostalCode: "73301", Country: "US"},
		Items:       []model.CartItem{{ProductID: "42", Quantity: 2, Weight: 1.5, Length: 10, Width: 8, Height: 4}},
		Units:       model.DefaultUnits,
		Carriers:    []string{"usps", "ups"},
		Services:    []string{"usps_priority", "ups_ground"},
		Markup:      model.Markup{Type: model.MarkupFlat, Amount: decimal.NewFromInt(2)},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	in := fingerprintInput()
	a := Fingerprint("", in)
	b := Fingerprint("", fingerprintInput())
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, DefaultKeyPrefix))
	assert.Len(t, strings.Split(strings.TrimPrefix(a, DefaultKeyPrefix), "_"), 4)

	reordered := fingerprintInput()
	reordered.Carriers = []string{"ups", "usps"}
	reordered.Services = []string{"ups_ground", "usps_priority"}
	assert.Equal(t, a, Fingerprint("", reordered))
}

func TestFingerprintChangesWithEveryField(t *testing.T) {
	base := Fingerprint("", fingerprintInput())

	mutations := map[string]func(*FingerprintInput){
		"street":     func(in *FingerprintInput) { in.Destination.Street1 = "2 Main St" },
		"postal":     func(in *FingerprintInput) { in.Destination.PostalCode = "73302" },
		"state":      func(in *FingerprintInput) { in.Destination.State = "CA" },
		"country":    func(in *FingerprintInput) { in.Destination.Country = "CA" },
		"quantity":   func(in *FingerprintInput) { in.Items[0].Quantity = 3 },
		"weight":     func(in *FingerprintInput) { in.Items[0].Weight = 1.6 },
		"height":     func(in *FingerprintInput) { in.Items[0].Height = 5 },
		"product":    func(in *FingerprintInput) { in.Items[0].ProductID = "43" },
		"units":      func(in *FingerprintInput) { in.Units = model.Units{Weight: "lbs", Dimension: "in"} },
		"carriers":   func(in *FingerprintInput) { in.Carriers = []string{"usps"} },
		"services":   func(in *FingerprintInput) { in.Services = nil },
		"markupType": func(in *FingerprintInput) { in.Markup.Type = model.MarkupPercentage },
		"markupAmt":  func(in *FingerprintInput) { in.Markup.Amount = decimal.NewFromInt(3) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := fingerprintInput()
			mutate(&in)
			assert.NotEqual(t, base, Fingerprint("", in))
		})
	}
}

func sampleSet() model.QuoteSet {
	d := 2
	return model.QuoteSet{
		{
			ID:      "shippo_live_rates:usps_priority",
			Label:   "USPS - Priority Mail (2 days)",
			Cost:    decimal.RequireFromString("8.25"),
			Carrier: "usps",
			Meta:    model.QuoteMeta{ServiceCode: "usps_priority", CarrierName: "USPS", DeliveryDays: &d, ProviderRateID: "r1", Currency: "USD"},
		},
		{
			ID:      "shippo_live_rates:usps_priority_express",
			Label:   "USPS - Priority Mail Express",
			Cost:    decimal.RequireFromString("12.50"),
			Carrier: "usps",
			Meta:    model.QuoteMeta{ServiceCode: "usps_priority_express", CarrierName: "USPS"},
		},
	}
}

func TestRateCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := memstore.New().WithClock(func() time.Time { return now })
	cache := NewRateCache(store, "", nil)
	key := cache.Key(fingerprintInput())

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Put(ctx, key, sampleSet(), time.Hour)
	stored, _, err := store.Get(ctx, key)
	require.NoError(t, err)

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	again, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, stored, again)
	assert.True(t, got[1].Cost.Equal(decimal.RequireFromString("12.5")))

	now = now.Add(time.Hour)
	_, ok = cache.Get(ctx, key)
	assert.False(t, ok)

	assert.Equal(t, CacheStats{Hits: 1, Misses: 2, Writes: 1}, cache.Stats())
}

func TestRateCacheZeroTTLDisablesWrite(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	cache := NewRateCache(store, "", nil)

	cache.Put(ctx, "shippo_rates_k", sampleSet(), 0)
	assert.Equal(t, 0, store.Len())
	assert.Zero(t, cache.Stats().Writes)
}

func TestRateCacheClearAll(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Set(ctx, "unrelated", []byte("x"), time.Hour))
	cache := NewRateCache(store, "", nil)

	cache.Put(ctx, "shippo_rates_a", sampleSet(), time.Hour)
	cache.Put(ctx, "shippo_rates_b", sampleSet(), time.Hour)

	n, err := cache.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, store.Len())
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenStore) DeletePrefix(context.Context, string) (int, error) {
	return 0, errors.New("connection refused")
}

func TestRateCacheStoreErrorsDegrade(t *testing.T) {
	ctx := context.Background()
	cache := NewRateCache(brokenStore{}, "", nil)

	cache.Put(ctx, "shippo_rates_k", sampleSet(), time.Hour)
	_, ok := cache.Get(ctx, "shippo_rates_k")
	assert.False(t, ok)

	_, err := cache.ClearAll(ctx)
	assert.Error(t, err)
	assert.Equal(t, CacheStats{Misses: 1}, cache.Stats())
}

func TestRateCacheCorruptedEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.Set(ctx, "shippo_rates_bad", []byte("{not json"), time.Hour))

	_, ok := NewRateCache(store, "", nil).Get(ctx, "shippo_rates_bad")
	assert.False(t, ok)
}
