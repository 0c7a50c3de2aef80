package data

import (
	"context"
	"fmt"

	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/lk2023060901/transmute-backend/internal/pkg/database"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsRowID = 1

type SettingsPO struct {
	ID                int    `gorm:"column:id;primaryKey;autoIncrement:false"`
	Theme             string `gorm:"column:theme;size:32;not null"`
	AutoDownload      bool   `gorm:"column:auto_download;not null"`
	KeepOriginals     bool   `gorm:"column:keep_originals;not null"`
	CleanupTTLMinutes int64  `gorm:"column:cleanup_ttl_minutes;not null"`
}

// SettingsRepo keeps the application settings in a single row.
type SettingsRepo struct {
	db    *database.DB
	table string
}

func NewSettingsRepo(db *database.DB, table string) (*SettingsRepo, error) {
	name, err := validator.Identifier(table)
	if err != nil {
		return nil, fmt.Errorf("settings repo: %w", err)
	}
	return &SettingsRepo{db: db, table: name}, nil
}

var _ biz.SettingsRepo = (*SettingsRepo)(nil)

// Migrate creates the table and seeds the default row if it is missing.
func (r *SettingsRepo) Migrate(ctx context.Context) error {
	return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Table(r.table).AutoMigrate(&SettingsPO{}); err != nil {
			return fmt.Errorf("migrate %s: %w", r.table, err)
		}
		seed := toSettingsPO(biz.DefaultSettings())
		return tx.Table(r.table).Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error
	})
}

// Get returns the stored settings, or the defaults when no row exists.
func (r *SettingsRepo) Get(ctx context.Context) (*biz.Settings, error) {
	return r.get(r.db.Conn(ctx))
}

// Update validates patch against the current row and writes the result in
// one transaction. Nothing is written when any value is invalid.
func (r *SettingsRepo) Update(ctx context.Context, patch map[string]any) (*biz.Settings, error) {
	var updated *biz.Settings
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		current, err := r.get(tx)
		if err != nil {
			return err
		}
		next, err := current.Apply(patch)
		if err != nil {
			return err
		}
		if err := tx.Table(r.table).Save(toSettingsPO(next)).Error; err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *SettingsRepo) get(conn *gorm.DB) (*biz.Settings, error) {
	var po SettingsPO
	err := conn.Table(r.table).Where("id = ?", settingsRowID).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return biz.DefaultSettings(), nil
		}
		return nil, err
	}
	return &biz.Settings{
		Theme:             po.Theme,
		AutoDownload:      po.AutoDownload,
		KeepOriginals:     po.KeepOriginals,
		CleanupTTLMinutes: po.CleanupTTLMinutes,
	}, nil
}

func toSettingsPO(s *biz.Settings) *SettingsPO {
	return &SettingsPO{
		ID:                settingsRowID,
		Theme:             s.Theme,
		AutoDownload:      s.AutoDownload,
		KeepOriginals:     s.KeepOriginals,
		CleanupTTLMinutes: s.CleanupTTLMinutes,
	}
}
