package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"oip/liverates/internal/apimodel/request"
	"oip/liverates/internal/business/quote"
	"oip/liverates/internal/model"
	"oip/liverates/pkg/config"
	"oip/liverates/pkg/infra/memstore"
	"oip/liverates/pkg/infra/redis"
	"oip/liverates/pkg/logger"
	"oip/liverates/pkg/shippo"
)

var (
	configPath   = flag.String("config", "./config/config.yaml", "配置文件路径")
	testcasePath = flag.String("testcase", "./tools/fasttest/testcase/quotes.json", "测试用例路径")
	skipRedis    = flag.Bool("skip-redis", false, "使用进程内缓存，不连接 Redis")
	carriers     = flag.String("carriers", "usps,ups,fedex", "启用的承运商，逗号分隔")
	debug        = flag.Bool("debug", false, "调试模式：打印服务商请求日志与状态轨迹")
)

// TestCase 测试用例结构
type TestCase struct {
	Name         string `json:"name"`
	ExpectSource string `json:"expect_source"` // 为空时要求 live 或 cache
	request.QuoteRequest
}

// staticGlobals 使用配置文件中的默认全局选项
type staticGlobals struct {
	opts *model.GlobalOptions
}

func (s staticGlobals) Global(context.Context) (*model.GlobalOptions, error) {
	return s.opts, nil
}

func main() {
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("  FastTest - Live Rates 报价快速测试工具")
	fmt.Println("========================================")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Config loaded: %s\n", cfg.App.Name)

	apiKey := os.Getenv("SHIPPO_API_KEY")
	if apiKey == "" {
		fmt.Println("⚠️  SHIPPO_API_KEY is empty, every case will take the fallback path")
	}

	// 2. 加载测试用例
	testCases, err := loadTestCases(*testcasePath)
	if err != nil {
		fmt.Printf("❌ Failed to load test cases: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Loaded %d test cases from %s\n", len(testCases), *testcasePath)

	log, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Printf("❌ Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. 初始化缓存（根据 skip-redis 参数决定）
	var store quote.Store
	if *skipRedis || cfg.Cache.Backend != "redis" {
		fmt.Println("⚠️  In-process cache: Redis disabled")
		store = memstore.New()
	} else {
		redisStore, err := redis.NewRateStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			fmt.Printf("❌ Failed to create Redis store: %v\n", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		fmt.Println("✅ Redis cache initialized")
	}
	cache := quote.NewRateCache(store, cfg.Cache.KeyPrefix, log)
	if n, err := cache.ClearAll(context.Background()); err == nil && n > 0 {
		fmt.Printf("✅ Cleared %d stale cache entries\n", n)
	}

	global, err := globalOptions(cfg.Defaults)
	if err != nil {
		fmt.Printf("❌ Invalid defaults: %v\n", err)
		os.Exit(1)
	}

	orchestrator := quote.NewOrchestrator(quote.Options{
		Origin: model.Address{
			Name:       cfg.Store.Name,
			Street1:    cfg.Store.Street1,
			Street2:    cfg.Store.Street2,
			City:       cfg.Store.City,
			State:      cfg.Store.State,
			PostalCode: cfg.Store.PostalCode,
			Country:    cfg.Store.Country,
		},
		Units: model.Units{Weight: cfg.Store.WeightUnit, Dimension: cfg.Store.DimensionUnit},
		Cache: cache,
		Providers: func(key string, verbose bool) quote.RateProvider {
			return shippo.NewClient(shippo.Options{
				APIKey:  key,
				BaseURL: cfg.Shippo.BaseURL,
				Timeout: cfg.Shippo.Timeout,
				Debug:   verbose,
				Logger:  log,
			})
		},
		Globals: staticGlobals{opts: global},
		Logger:  log,
	})

	settings := model.DefaultSettings(1)
	settings.APIKey = apiKey
	settings.Carriers = strings.Split(*carriers, ",")
	settings.Debug = *debug

	// 4. 执行测试用例
	fmt.Println("\n========================================")
	fmt.Println("  Running Test Cases")
	fmt.Println("========================================")

	successCount := 0
	failureCount := 0

	for i, tc := range testCases {
		fmt.Printf("\n[Test %d/%d] %s\n", i+1, len(testCases), tc.Name)
		fmt.Println("----------------------------------------")

		startTime := time.Now()
		res := orchestrator.Quote(context.Background(), tc.ToQuoteRequest(), settings)
		duration := time.Since(startTime)

		printResult(res)
		if err := check(tc, res); err != nil {
			fmt.Printf("❌ FAILED: %v\n", err)
			failureCount++
		} else {
			fmt.Printf("✅ PASSED\n")
			successCount++
		}
		fmt.Printf("⏱️  Duration: %v\n", duration)
	}

	// 5. 输出测试汇总
	stats := cache.Stats()
	fmt.Println("\n========================================")
	fmt.Println("  Test Summary")
	fmt.Println("========================================")
	fmt.Printf("Total: %d\n", len(testCases))
	fmt.Printf("Passed: %d ✅\n", successCount)
	fmt.Printf("Failed: %d ❌\n", failureCount)
	fmt.Printf("Cache: hits=%d misses=%d writes=%d\n", stats.Hits, stats.Misses, stats.Writes)

	if failureCount > 0 {
		os.Exit(1)
	}
}

// loadTestCases 从 JSON 文件加载测试用例
func loadTestCases(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read testcase file: %w", err)
	}

	var testCases []TestCase
	if err := json.Unmarshal(data, &testCases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal testcase: %w", err)
	}

	return testCases, nil
}

func globalOptions(d config.DefaultsConfig) (*model.GlobalOptions, error) {
	amount, err := decimal.NewFromString(d.FallbackAmount)
	if err != nil {
		return nil, fmt.Errorf("fallback_amount %q: %w", d.FallbackAmount, err)
	}
	return &model.GlobalOptions{
		Fallback:        model.FallbackRate{Enabled: d.FallbackEnabled, Title: d.FallbackTitle, Amount: amount},
		PackageStrategy: model.ParsePackageStrategy(d.PackageStrategy),
		Debug:           d.Debug,
	}, nil
}

// check 未指定期望来源时要求拿到实时或缓存报价
func check(tc TestCase, res *quote.Result) error {
	if tc.ExpectSource != "" {
		if string(res.Source) != tc.ExpectSource {
			return fmt.Errorf("source %s, want %s", res.Source, tc.ExpectSource)
		}
		return nil
	}
	if res.Source != model.SourceLive && res.Source != model.SourceCache {
		return fmt.Errorf("no live rates (source %s): %v", res.Source, res.Err)
	}
	return nil
}

func printResult(res *quote.Result) {
	fmt.Printf("  Source: %s, Quotes: %d\n", res.Source, len(res.Quotes))
	if res.Err != nil {
		fmt.Printf("  Error: %v\n", res.Err)
	}
	if *debug {
		fmt.Printf("  States: %v\n", res.States)
	}
	for _, q := range res.Quotes {
		fmt.Printf("    - %s  %s  %s\n", q.ID, q.Cost.StringFixed(2), q.Label)
	}
}
