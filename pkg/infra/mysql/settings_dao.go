package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"oip/liverates/internal/model"
	"oip/liverates/pkg/errorutil"
)

// globalOptionID 全局选项固定行
const globalOptionID = 1

// Open 连接 MySQL
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// SettingsDAO 配送方式设置数据访问对象
type SettingsDAO struct {
	db *gorm.DB
}

// NewSettingsDAO 创建 SettingsDAO 实例
func NewSettingsDAO(db *gorm.DB) *SettingsDAO {
	return &SettingsDAO{db: db}
}

// AutoMigrate 建表
func (dao *SettingsDAO) AutoMigrate(ctx context.Context) error {
	if err := dao.db.WithContext(ctx).AutoMigrate(&MethodInstance{}, &GlobalOption{}); err != nil {
		return fmt.Errorf("failed to migrate settings tables: %w", err)
	}
	return nil
}

// GetInstance 根据实例 ID 获取设置
func (dao *SettingsDAO) GetInstance(ctx context.Context, instanceID int64) (*model.Settings, error) {
	var po MethodInstance
	err := dao.db.WithContext(ctx).Where("id = ?", instanceID).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorutil.NotFound(fmt.Sprintf("instance %d not found", instanceID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %d: %w", instanceID, err)
	}
	return fromInstance(&po)
}

// ListInstances 全部实例，按 ID 升序
func (dao *SettingsDAO) ListInstances(ctx context.Context) ([]*model.Settings, error) {
	var pos []MethodInstance
	if err := dao.db.WithContext(ctx).Order("id ASC").Find(&pos).Error; err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	out := make([]*model.Settings, 0, len(pos))
	for i := range pos {
		s, err := fromInstance(&pos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveInstance 新增或覆盖实例设置
func (dao *SettingsDAO) SaveInstance(ctx context.Context, settings *model.Settings) error {
	po, err := toInstance(settings)
	if err != nil {
		return err
	}
	err = dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(po).Error
	if err != nil {
		return fmt.Errorf("failed to save instance %d: %w", settings.InstanceID, err)
	}
	return nil
}

// GetGlobal 获取全局选项
func (dao *SettingsDAO) GetGlobal(ctx context.Context) (*model.GlobalOptions, error) {
	var po GlobalOption
	err := dao.db.WithContext(ctx).Where("id = ?", globalOptionID).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errorutil.NotFound("global options not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global options: %w", err)
	}

	amount, err := decimal.NewFromString(po.FallbackAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback amount %q: %w", po.FallbackAmount, err)
	}
	return &model.GlobalOptions{
		Fallback: model.FallbackRate{
			Enabled: po.FallbackEnabled,
			Title:   po.FallbackTitle,
			Amount:  amount,
		},
		PackageStrategy: model.ParsePackageStrategy(po.PackageStrategy),
		Debug:           po.Debug,
	}, nil
}

// SaveGlobal 覆盖全局选项
func (dao *SettingsDAO) SaveGlobal(ctx context.Context, opts *model.GlobalOptions) error {
	po := &GlobalOption{
		ID:              globalOptionID,
		FallbackEnabled: opts.Fallback.Enabled,
		FallbackTitle:   opts.Fallback.Title,
		FallbackAmount:  opts.Fallback.Amount.String(),
		PackageStrategy: string(opts.PackageStrategy),
		Debug:           opts.Debug,
	}
	err := dao.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(po).Error
	if err != nil {
		return fmt.Errorf("failed to save global options: %w", err)
	}
	return nil
}

// Count 实例数量
func (dao *SettingsDAO) Count(ctx context.Context) (int64, error) {
	var count int64
	err := dao.db.WithContext(ctx).Model(&MethodInstance{}).Count(&count).Error
	return count, err
}

// Close 关闭数据库连接
func (dao *SettingsDAO) Close() error {
	sqlDB, err := dao.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toInstance(s *model.Settings) (*MethodInstance, error) {
	carriers, err := json.Marshal(nonNil(s.Carriers))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal carriers: %w", err)
	}
	services, err := json.Marshal(nonNil(s.Services))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal services: %w", err)
	}

	var fallback datatypes.JSON
	if s.Fallback != nil {
		if fallback, err = json.Marshal(s.Fallback); err != nil {
			return nil, fmt.Errorf("failed to marshal fallback: %w", err)
		}
	}

	markupType := s.Markup.Type
	if markupType == "" {
		markupType = model.MarkupNone
	}

	return &MethodInstance{
		ID:               s.InstanceID,
		Title:            s.Title,
		APIKey:           s.APIKey,
		Carriers:         carriers,
		Services:         services,
		MarkupType:       string(markupType),
		MarkupAmount:     s.Markup.Amount.String(),
		ShowDeliveryTime: s.ShowDeliveryTime,
		CacheEnabled:     s.CacheEnabled,
		CacheSeconds:     int64(s.CacheDuration / time.Second),
		Debug:            s.Debug,
		PackageStrategy:  string(s.PackageStrategy),
		Fallback:         fallback,
	}, nil
}

func fromInstance(po *MethodInstance) (*model.Settings, error) {
	s := &model.Settings{
		InstanceID:       po.ID,
		Title:            po.Title,
		APIKey:           po.APIKey,
		Carriers:         []string{},
		Services:         []string{},
		ShowDeliveryTime: po.ShowDeliveryTime,
		CacheEnabled:     po.CacheEnabled,
		CacheDuration:    time.Duration(po.CacheSeconds) * time.Second,
		Debug:            po.Debug,
		PackageStrategy:  model.PackageStrategy(po.PackageStrategy),
	}

	if len(po.Carriers) > 0 {
		if err := json.Unmarshal(po.Carriers, &s.Carriers); err != nil {
			return nil, fmt.Errorf("invalid carriers for instance %d: %w", po.ID, err)
		}
	}
	if len(po.Services) > 0 {
		if err := json.Unmarshal(po.Services, &s.Services); err != nil {
			return nil, fmt.Errorf("invalid services for instance %d: %w", po.ID, err)
		}
	}
	if len(po.Fallback) > 0 && string(po.Fallback) != "null" {
		s.Fallback = &model.FallbackRate{}
		if err := json.Unmarshal(po.Fallback, s.Fallback); err != nil {
			return nil, fmt.Errorf("invalid fallback for instance %d: %w", po.ID, err)
		}
	}

	amount, err := decimal.NewFromString(po.MarkupAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid markup amount for instance %d: %w", po.ID, err)
	}
	s.Markup = model.Markup{Type: model.MarkupType(po.MarkupType), Amount: amount}
	return s, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
