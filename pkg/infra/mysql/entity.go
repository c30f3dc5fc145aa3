package mysql

import (
	"time"

	"gorm.io/datatypes"
)

// MethodInstance 配送方式实例
type MethodInstance struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	Title            string         `gorm:"column:title;type:varchar(255);not null"`
	APIKey           string         `gorm:"column:api_key;type:varchar(255)"`
	Carriers         datatypes.JSON `gorm:"column:carriers"`
	Services         datatypes.JSON `gorm:"column:services"`
	MarkupType       string         `gorm:"column:markup_type;type:varchar(16);not null"`
	MarkupAmount     string         `gorm:"column:markup_amount;type:varchar(32);not null"`
	ShowDeliveryTime bool           `gorm:"column:show_delivery_time;not null"`
	CacheEnabled     bool           `gorm:"column:cache_enabled;not null"`
	CacheSeconds     int64          `gorm:"column:cache_seconds;not null"`
	Debug            bool           `gorm:"column:debug;not null"`
	PackageStrategy  string         `gorm:"column:package_strategy;type:varchar(32)"`
	Fallback         datatypes.JSON `gorm:"column:fallback"` // 为空时使用全局兜底费率
	CreatedAt        time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (MethodInstance) TableName() string {
	return "shipping_method_instances"
}

// GlobalOption 全局选项（单行，id 固定为 1）
type GlobalOption struct {
	ID              int64     `gorm:"column:id;primaryKey"`
	FallbackEnabled bool      `gorm:"column:fallback_enabled;not null"`
	FallbackTitle   string    `gorm:"column:fallback_title;type:varchar(255);not null"`
	FallbackAmount  string    `gorm:"column:fallback_amount;type:varchar(32);not null"`
	PackageStrategy string    `gorm:"column:package_strategy;type:varchar(32);not null"`
	Debug           bool      `gorm:"column:debug;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (GlobalOption) TableName() string {
	return "shipping_global_options"
}
