package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Shippo   ShippoConfig   `mapstructure:"shippo"`
	Store    StoreConfig    `mapstructure:"store"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// MySQLConfig MySQL 配置（配送方式设置存储）
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig 费率缓存配置
type CacheConfig struct {
	Backend   string `mapstructure:"backend"`    // memory/redis
	KeyPrefix string `mapstructure:"key_prefix"` // 缓存 key 前缀
}

// ShippoConfig 费率服务商配置
type ShippoConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"` // 单次请求上限
}

// StoreConfig 发货地址（店铺地址）
type StoreConfig struct {
	Name       string `mapstructure:"name"`
	Street1    string `mapstructure:"street1"`
	Street2    string `mapstructure:"street2"`
	City       string `mapstructure:"city"`
	State      string `mapstructure:"state"`
	PostalCode string `mapstructure:"postal_code"`
	Country    string `mapstructure:"country"`
	Phone      string `mapstructure:"phone"`
	Email      string `mapstructure:"email"`
	// WeightUnit / DimensionUnit 购物车商品数据使用的单位
	WeightUnit    string `mapstructure:"weight_unit"`
	DimensionUnit string `mapstructure:"dimension_unit"`
}

// DefaultsConfig 全局默认选项（首次启动写入设置库）
type DefaultsConfig struct {
	FallbackEnabled bool   `mapstructure:"fallback_enabled"`
	FallbackTitle   string `mapstructure:"fallback_title"`
	FallbackAmount  string `mapstructure:"fallback_amount"`
	PackageStrategy string `mapstructure:"package_strategy"`
	Debug           bool   `mapstructure:"debug"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LIVERATES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults 未配置项的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "liverates")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("server.port", "8080")
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.key_prefix", "shippo_rates_")
	v.SetDefault("shippo.base_url", "https://api.goshippo.com/")
	v.SetDefault("shippo.timeout", 30*time.Second)
	v.SetDefault("store.weight_unit", "kg")
	v.SetDefault("store.dimension_unit", "cm")
	v.SetDefault("defaults.fallback_enabled", false)
	v.SetDefault("defaults.fallback_title", "Flat Rate Shipping")
	v.SetDefault("defaults.fallback_amount", "10")
	v.SetDefault("defaults.package_strategy", "single")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("unsupported cache.backend: %q", c.Cache.Backend)
	}
	if c.Shippo.BaseURL == "" {
		return fmt.Errorf("shippo.base_url is required")
	}
	if c.Shippo.Timeout <= 0 || c.Shippo.Timeout > 30*time.Second {
		return fmt.Errorf("shippo.timeout must be within (0, 30s]")
	}
	if c.Store.PostalCode == "" || c.Store.City == "" || c.Store.Country == "" {
		return fmt.Errorf("store address requires city, postal_code and country")
	}
	return nil
}
