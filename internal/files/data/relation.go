package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	"github.com/lk2023060901/transmute-backend/internal/pkg/database"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"gorm.io/gorm"
)

// RelationPO links one converted file to its source. A converted file has
// exactly one origin, so converted_file_id is the key.
type RelationPO struct {
	ConvertedFileID   string `gorm:"column:converted_file_id;primaryKey;size:64"`
	OriginalFileID    string `gorm:"column:original_file_id;size:64;not null"`
	OriginalFilename  string `gorm:"column:original_filename;not null"`
	OriginalMediaType string `gorm:"column:original_media_type;size:64;not null;default:''"`
	OriginalExtension string `gorm:"column:original_extension;size:65;not null;default:''"`
	OriginalSizeBytes int64  `gorm:"column:original_size_bytes;not null"`
	Seq               int64  `gorm:"column:insert_seq;not null"`
}

type RelationRepo struct {
	db    *database.DB
	table string
	seq   sequence
}

func NewRelationRepo(db *database.DB, table string) (*RelationRepo, error) {
	name, err := validator.Identifier(table)
	if err != nil {
		return nil, fmt.Errorf("relation repo: %w", err)
	}
	return &RelationRepo{db: db, table: name}, nil
}

var _ biz.RelationRepo = (*RelationRepo)(nil)

func (r *RelationRepo) Migrate(ctx context.Context) error {
	conn := r.db.Conn(ctx)
	if err := conn.Table(r.table).AutoMigrate(&RelationPO{}); err != nil {
		return fmt.Errorf("migrate %s: %w", r.table, err)
	}
	ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_original ON %s (original_file_id, insert_seq)", r.table, r.table)
	if err := conn.Exec(ddl).Error; err != nil {
		return fmt.Errorf("migrate %s index: %w", r.table, err)
	}
	return nil
}

func (r *RelationRepo) Insert(ctx context.Context, rel *biz.ConversionRelation) error {
	if rel == nil {
		return fmt.Errorf("%w: nil relation", biz.ErrSchemaMismatch)
	}
	if err := rel.Check(); err != nil {
		return err
	}

	po := &RelationPO{
		ConvertedFileID:   rel.ConvertedFileID,
		OriginalFileID:    rel.OriginalFileID,
		OriginalFilename:  rel.OriginalFilename,
		OriginalMediaType: rel.OriginalMediaType,
		OriginalExtension: rel.OriginalExtension,
		OriginalSizeBytes: rel.OriginalSizeBytes,
		Seq:               r.seq.next(time.Now()),
	}
	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Table(r.table).Create(po).Error
	})
	if database.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: converted id %s already has a relation", biz.ErrSchemaMismatch, rel.ConvertedFileID)
	}
	return err
}

func (r *RelationRepo) GetByOriginal(ctx context.Context, originalID string) (string, error) {
	var po RelationPO
	err := r.db.Conn(ctx).Table(r.table).
		Where("original_file_id = ?", originalID).
		Order("insert_seq").
		First(&po).Error
	if err != nil {
		return "", r.notFound(err, "original", originalID)
	}
	return po.ConvertedFileID, nil
}

func (r *RelationRepo) ListByOriginal(ctx context.Context, originalID string) ([]string, error) {
	var ids []string
	err := r.db.Conn(ctx).Table(r.table).
		Where("original_file_id = ?", originalID).
		Order("insert_seq").
		Pluck("converted_file_id", &ids).Error
	return ids, err
}

func (r *RelationRepo) GetByConverted(ctx context.Context, convertedID string) (string, error) {
	rel, err := r.Get(ctx, convertedID)
	if err != nil {
		return "", err
	}
	return rel.OriginalFileID, nil
}

func (r *RelationRepo) Get(ctx context.Context, convertedID string) (*biz.ConversionRelation, error) {
	var po RelationPO
	err := r.db.Conn(ctx).Table(r.table).Where("converted_file_id = ?", convertedID).First(&po).Error
	if err != nil {
		return nil, r.notFound(err, "converted", convertedID)
	}
	return toRelation(&po), nil
}

func (r *RelationRepo) List(ctx context.Context) ([]*biz.ConversionRelation, error) {
	var pos []RelationPO
	if err := r.db.Conn(ctx).Table(r.table).Order("insert_seq").Find(&pos).Error; err != nil {
		return nil, err
	}
	out := make([]*biz.ConversionRelation, 0, len(pos))
	for i := range pos {
		out = append(out, toRelation(&pos[i]))
	}
	return out, nil
}

func (r *RelationRepo) DeleteByOriginal(ctx context.Context, originalID string) error {
	return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Table(r.table).Where("original_file_id = ?", originalID).Delete(&RelationPO{}).Error
	})
}

func (r *RelationRepo) DeleteByConverted(ctx context.Context, convertedID string) error {
	return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Table(r.table).Where("converted_file_id = ?", convertedID).Delete(&RelationPO{}).Error
	})
}

func (r *RelationRepo) notFound(err error, side, id string) error {
	if database.IsRecordNotFoundError(err) {
		return fmt.Errorf("%w: no relation for %s id %s", biz.ErrNotFound, side, id)
	}
	return err
}

func toRelation(po *RelationPO) *biz.ConversionRelation {
	return &biz.ConversionRelation{
		OriginalFileID:    po.OriginalFileID,
		ConvertedFileID:   po.ConvertedFileID,
		OriginalFilename:  po.OriginalFilename,
		OriginalMediaType: po.OriginalMediaType,
		OriginalExtension: po.OriginalExtension,
		OriginalSizeBytes: po.OriginalSizeBytes,
	}
}
