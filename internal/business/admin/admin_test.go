package admin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
	"oip/liverates/pkg/infra/memstore"
	"oip/liverates/pkg/shippo"
)

type memRepo struct {
	mu        sync.Mutex
	instances map[int64]model.Settings
	global    *model.GlobalOptions
}

func newMemRepo() *memRepo {
	return &memRepo{instances: map[int64]model.Settings{}}
}

func (r *memRepo) GetInstance(_ context.Context, id int64) (*model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.instances[id]
	if !ok {
		return nil, errorutil.NotFound(fmt.Sprintf("instance %d not found", id))
	}
	return &s, nil
}

func (r *memRepo) ListInstances(context.Context) ([]*model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Settings, 0, len(r.instances))
	for _, s := range r.instances {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out, nil
}

func (r *memRepo) SaveInstance(_ context.Context, s *model.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[s.InstanceID] = *s
	return nil
}

func (r *memRepo) GetGlobal(context.Context) (*model.GlobalOptions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.global == nil {
		return nil, errorutil.NotFound("global options not found")
	}
	g := *r.global
	return &g, nil
}

func (r *memRepo) SaveGlobal(_ context.Context, opts *model.GlobalOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := *opts
	r.global = &g
	return nil
}

type fakeClient struct {
	connected bool
	keys      []string
	validated *model.Address
}

func (f *fakeClient) factory() ClientFactory {
	return func(apiKey string, debug bool) AccountClient {
		f.keys = append(f.keys, apiKey)
		return f
	}
}

func (f *fakeClient) TestConnection(context.Context) bool { return f.connected }

func (f *fakeClient) ValidateAddress(_ context.Context, addr model.Address) (*model.Address, error) {
	f.validated = &addr
	out := addr
	out.Street1 = "1 MAIN ST"
	return &out, nil
}

func (f *fakeClient) CarrierAccounts(context.Context) ([]shippo.CarrierAccount, error) {
	return []shippo.CarrierAccount{{ObjectID: "ca_1", Carrier: "usps", Active: true}}, nil
}

type fixture struct {
	repo     *memRepo
	store    *memstore.Store
	cache    *quote.RateCache
	client   *fakeClient
	settings *SettingsService
	admin    *AdminService
}

func newFixture() *fixture {
	f := &fixture{repo: newMemRepo(), store: memstore.New(), client: &fakeClient{connected: true}}
	f.cache = quote.NewRateCache(f.store, "", nil)
	f.settings = NewSettingsService(f.repo, f.cache, f.client.factory(), nil, nil)
	f.admin = NewAdminService(f.settings, f.cache, f.client.factory(), StatusInfo{CacheBackend: "memory"}, nil)
	return f
}

func (f *fixture) seedCache(t *testing.T, n int) {
	for i := 0; i < n; i++ {
		f.cache.Put(context.Background(), fmt.Sprintf("shippo_rates_%d", i), model.QuoteSet{}, time.Hour)
	}
	require.Equal(t, n, f.store.Len())
}

func TestSaveClearsCacheAndTestsConnection(t *testing.T) {
	f := newFixture()
	f.seedCache(t, 3)

	s := model.DefaultSettings(4)
	s.APIKey = "  shippo_test_1  "
	s.Carriers = []string{"USPS", "fedex", "usps"}
	s.Services = []string{"USPS_Priority", "usps_priority", ""}

	report, err := f.settings.Save(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 3, report.CacheCleared)
	assert.True(t, report.ConnectionTested)
	assert.True(t, report.ConnectionOK)
	assert.Equal(t, []string{"shippo_test_1"}, f.client.keys)
	assert.Equal(t, 0, f.store.Len())

	got, err := f.settings.Get(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"fedex", "usps"}, got.Carriers)
	assert.Equal(t, []string{"usps_priority"}, got.Services)
}

func TestSaveWithoutKeySkipsConnectionTest(t *testing.T) {
	f := newFixture()
	report, err := f.settings.Save(context.Background(), model.DefaultSettings(1))
	require.NoError(t, err)
	assert.False(t, report.ConnectionTested)
	assert.Empty(t, f.client.keys)
}

func TestSaveRejectsInvalidSettings(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name   string
		mutate func(*model.Settings)
	}{
		{"instance id", func(s *model.Settings) { s.InstanceID = 0 }},
		{"carrier", func(s *model.Settings) { s.Carriers = []string{"dhl"} }},
		{"markup type", func(s *model.Settings) { s.Markup.Type = "double" }},
		{"markup amount", func(s *model.Settings) {
			s.Markup = model.Markup{Type: model.MarkupFlat, Amount: decimal.NewFromInt(-1)}
		}},
		{"cache duration", func(s *model.Settings) { s.CacheDuration = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := model.DefaultSettings(2)
			tc.mutate(s)
			_, err := f.settings.Save(context.Background(), s)
			assert.True(t, errorutil.IsKind(err, errorutil.KindValidation), "%v", err)
		})
	}
}

func TestGetOrDefault(t *testing.T) {
	f := newFixture()
	s, err := f.settings.GetOrDefault(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), s.InstanceID)
	assert.Empty(t, s.APIKey)

	_, err = f.settings.Get(context.Background(), 11)
	assert.True(t, errorutil.IsKind(err, errorutil.KindNotFound))
}

func TestGlobalOptions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	g, err := f.settings.Global(ctx)
	require.NoError(t, err)
	assert.False(t, g.Fallback.Enabled)
	assert.Equal(t, "Flat Rate Shipping", g.Fallback.Title)

	require.NoError(t, f.settings.EnsureDefaults(ctx))
	require.NotNil(t, f.repo.global)

	f.seedCache(t, 2)
	n, err := f.settings.SaveGlobal(ctx, &model.GlobalOptions{
		Fallback:        model.FallbackRate{Enabled: true, Amount: decimal.NewFromInt(12)},
		PackageStrategy: "boxes",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	g, err = f.settings.Global(ctx)
	require.NoError(t, err)
	assert.True(t, g.Fallback.Enabled)
	assert.Equal(t, "Flat Rate Shipping", g.Fallback.Title)
	assert.Equal(t, model.StrategySingle, g.PackageStrategy)

	_, err = f.settings.SaveGlobal(ctx, &model.GlobalOptions{Fallback: model.FallbackRate{Amount: decimal.NewFromInt(-1)}})
	assert.True(t, errorutil.IsKind(err, errorutil.KindValidation))
}

func TestEnsureDefaultsKeepsExisting(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.repo.global = &model.GlobalOptions{Fallback: model.FallbackRate{Enabled: true, Title: "Mine", Amount: decimal.NewFromInt(3)}}

	require.NoError(t, f.settings.EnsureDefaults(ctx))
	assert.Equal(t, "Mine", f.repo.global.Fallback.Title)
}

func TestAdminCommands(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.admin.TestConnection(ctx, 1)
	assert.True(t, errorutil.IsKind(err, errorutil.KindNotFound))

	s := model.DefaultSettings(1)
	_, err = f.settings.Save(ctx, s)
	require.NoError(t, err)
	_, err = f.admin.TestConnection(ctx, 1)
	assert.True(t, errorutil.IsKind(err, errorutil.KindConfiguration))

	s.APIKey = "shippo_test_2"
	_, err = f.settings.Save(ctx, s)
	require.NoError(t, err)

	ok, err := f.admin.TestConnection(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	addr, err := f.admin.ValidateAddress(ctx, 1, model.Address{Street1: " 1 main st ", City: "Austin", State: "TX", PostalCode: "73301", Country: "us"})
	require.NoError(t, err)
	assert.Equal(t, "1 MAIN ST", addr.Street1)
	assert.Equal(t, "US", f.client.validated.Country)

	f.client.validated = nil
	_, err = f.admin.ValidateAddress(ctx, 1, model.Address{Street1: "1 Main St", City: "Austin", State: "TX", PostalCode: "73301", Country: "US", Email: "not-an-email"})
	assert.True(t, errorutil.IsKind(err, errorutil.KindValidation))
	assert.Nil(t, f.client.validated)

	accounts, err := f.admin.CarrierAccounts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	f.seedCache(t, 4)
	n, err := f.admin.ClearCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s := model.DefaultSettings(8)
	s.APIKey = "secret"
	s.Debug = true
	_, err := f.settings.Save(ctx, s)
	require.NoError(t, err)

	status, err := f.admin.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Version, status.Version)
	assert.Equal(t, "memory", status.CacheBackend)
	assert.True(t, status.Debug)
	require.Len(t, status.Instances, 1)
	assert.True(t, status.Instances[0].HasAPIKey)
	assert.Len(t, status.Carriers, 3)
	assert.EqualValues(t, 1, status.Cache.Clears)
}
