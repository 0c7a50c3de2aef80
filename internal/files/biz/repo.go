package biz

import "context"

// FileRepo stores FileRecords in one table. Originals and converted files
// use separate instances.
type FileRepo interface {
	Table() string
	// Insert assigns rec.CreatedAt.
	Insert(ctx context.Context, rec *FileRecord) error
	Get(ctx context.Context, id string) (*FileRecord, error)
	// List returns records in insertion order.
	List(ctx context.Context) ([]*FileRecord, error)
	Delete(ctx context.Context, id string) error
}

type RelationRepo interface {
	Insert(ctx context.Context, rel *ConversionRelation) error
	// GetByOriginal returns the first converted id recorded for originalID.
	GetByOriginal(ctx context.Context, originalID string) (string, error)
	ListByOriginal(ctx context.Context, originalID string) ([]string, error)
	GetByConverted(ctx context.Context, convertedID string) (string, error)
	Get(ctx context.Context, convertedID string) (*ConversionRelation, error)
	List(ctx context.Context) ([]*ConversionRelation, error)
	DeleteByOriginal(ctx context.Context, originalID string) error
	DeleteByConverted(ctx context.Context, convertedID string) error
}

type SettingsRepo interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, patch map[string]any) (*Settings, error)
}
