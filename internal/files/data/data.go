// Package data implements the file, relation and settings stores on gorm.
package data

import (
	"context"
	"fmt"

	"github.com/lk2023060901/transmute-backend/internal/pkg/database"
)

// TableNames names the table behind each store.
type TableNames struct {
	Files       string
	Conversions string
	Relations   string
	Settings    string
}

// Stores bundles every store of the files domain.
type Stores struct {
	Originals *FileRepo
	Converted *FileRepo
	Relations *RelationRepo
	Settings  *SettingsRepo
}

// NewStores builds the stores and migrates their tables.
func NewStores(ctx context.Context, db *database.DB, tables TableNames, opts ...FileOption) (*Stores, error) {
	originals, err := NewFileRepo(db, tables.Files, opts...)
	if err != nil {
		return nil, err
	}
	converted, err := NewFileRepo(db, tables.Conversions, opts...)
	if err != nil {
		return nil, err
	}
	relations, err := NewRelationRepo(db, tables.Relations)
	if err != nil {
		return nil, err
	}
	settings, err := NewSettingsRepo(db, tables.Settings)
	if err != nil {
		return nil, err
	}

	s := &Stores{
		Originals: originals,
		Converted: converted,
		Relations: relations,
		Settings:  settings,
	}
	for _, m := range []interface{ Migrate(context.Context) error }{originals, converted, relations, settings} {
		if err := m.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return s, nil
}
