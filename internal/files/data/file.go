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

// FilePO is the row shape shared by every file metadata table.
type FilePO struct {
	ID               string `gorm:"column:id;primaryKey;size:64"`
	StoragePath      string `gorm:"column:storage_path;not null"`
	OriginalFilename string `gorm:"column:original_filename;not null"`
	MediaType        string `gorm:"column:media_type;size:64;not null;default:''"`
	Extension        string `gorm:"column:extension;size:65;not null;default:''"`
	SizeBytes        int64  `gorm:"column:size_bytes;not null"`
	Checksum         string `gorm:"column:sha256_checksum;size:64;not null"`
	Created          string `gorm:"column:created_at;size:19;not null"`
	// Seq orders rows inserted within the same second.
	Seq int64 `gorm:"column:insert_seq;not null"`
}

// Clock returns the current time. Stores convert it to UTC.
type Clock func() time.Time

type FileOption func(*FileRepo)

// WithClock overrides the clock used to stamp created_at.
func WithClock(c Clock) FileOption {
	return func(r *FileRepo) { r.now = c }
}

// FileRepo is a file metadata store bound to one table.
type FileRepo struct {
	db    *database.DB
	table string
	now   Clock
	seq   sequence
}

// NewFileRepo validates table once; only the validated name is used in
// queries afterwards.
func NewFileRepo(db *database.DB, table string, opts ...FileOption) (*FileRepo, error) {
	name, err := validator.Identifier(table)
	if err != nil {
		return nil, fmt.Errorf("file repo: %w", err)
	}
	r := &FileRepo{db: db, table: name, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var _ biz.FileRepo = (*FileRepo)(nil)

func (r *FileRepo) Table() string {
	return r.table
}

// Migrate creates the table and its ordering index.
func (r *FileRepo) Migrate(ctx context.Context) error {
	conn := r.db.Conn(ctx)
	if err := conn.Table(r.table).AutoMigrate(&FilePO{}); err != nil {
		return fmt.Errorf("migrate %s: %w", r.table, err)
	}
	ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_order ON %s (created_at, insert_seq)", r.table, r.table)
	if err := conn.Exec(ddl).Error; err != nil {
		return fmt.Errorf("migrate %s index: %w", r.table, err)
	}
	return nil
}

// Insert stores rec after a completeness check. rec.CreatedAt is
// overwritten with the store's timestamp.
func (r *FileRepo) Insert(ctx context.Context, rec *biz.FileRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", biz.ErrSchemaMismatch)
	}
	if err := rec.Check(); err != nil {
		return err
	}

	now := r.now().UTC()
	po := &FilePO{
		ID:               rec.ID,
		StoragePath:      rec.StoragePath,
		OriginalFilename: rec.OriginalFilename,
		MediaType:        rec.MediaType,
		Extension:        rec.Extension,
		SizeBytes:        rec.SizeBytes,
		Checksum:         rec.Checksum,
		Created:          now.Format(biz.TimeLayout),
		Seq:              r.seq.next(now),
	}

	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var count int64
		if err := tx.Table(r.table).Where("id = ?", po.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: id %s already exists in %s", biz.ErrSchemaMismatch, po.ID, r.table)
		}
		return tx.Table(r.table).Create(po).Error
	})
	if err != nil {
		if database.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: id %s already exists in %s", biz.ErrSchemaMismatch, po.ID, r.table)
		}
		return err
	}

	rec.CreatedAt = po.Created
	return nil
}

func (r *FileRepo) Get(ctx context.Context, id string) (*biz.FileRecord, error) {
	var po FilePO
	err := r.db.Conn(ctx).Table(r.table).Where("id = ?", id).First(&po).Error
	if err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s has no id %s", biz.ErrNotFound, r.table, id)
		}
		return nil, err
	}
	return toRecord(&po), nil
}

func (r *FileRepo) List(ctx context.Context) ([]*biz.FileRecord, error) {
	var pos []FilePO
	err := r.db.Conn(ctx).Table(r.table).Order("created_at, insert_seq").Find(&pos).Error
	if err != nil {
		return nil, err
	}
	out := make([]*biz.FileRecord, 0, len(pos))
	for i := range pos {
		out = append(out, toRecord(&pos[i]))
	}
	return out, nil
}

// Delete removes the row only. A missing id is not an error.
func (r *FileRepo) Delete(ctx context.Context, id string) error {
	return r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Table(r.table).Where("id = ?", id).Delete(&FilePO{}).Error
	})
}

func toRecord(po *FilePO) *biz.FileRecord {
	return &biz.FileRecord{
		ID:               po.ID,
		StoragePath:      po.StoragePath,
		OriginalFilename: po.OriginalFilename,
		MediaType:        po.MediaType,
		Extension:        po.Extension,
		SizeBytes:        po.SizeBytes,
		Checksum:         po.Checksum,
		CreatedAt:        po.Created,
	}
}
