// Package biz holds the file lifecycle: uploads, conversions, downloads,
// cascading deletes and TTL expiry.
package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/sse"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"github.com/lk2023060901/transmute-backend/internal/storage"
	"go.uber.org/zap"
)

// Registry resolves converters by format.
type Registry interface {
	ConverterFor(in, out string) (converter.Converter, bool)
	CompatibleFormats(format string) []string
}

// Mirror copies converted artifacts to secondary storage. Failures are
// logged and never fail the request.
type Mirror interface {
	Publish(ctx context.Context, path, contentType string) error
	Remove(ctx context.Context, path string) error
}

// Locker serializes work across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Notifier fans lifecycle events out to subscribers.
type Notifier interface {
	Publish(resource string, e sse.Event) int
}

// Lifecycle event types.
const (
	EventFileUploaded        = "file.uploaded"
	EventFileDeleted         = "file.deleted"
	EventFileExpired         = "file.expired"
	EventConversionCompleted = "conversion.completed"
	EventConversionDeleted   = "conversion.deleted"
	EventConversionExpired   = "conversion.expired"
)

// Deps are the collaborators shared by the use cases.
type Deps struct {
	Originals FileRepo
	Converted FileRepo
	Relations RelationRepo
	Settings  SettingsRepo
	Store     *storage.FileStore
	Paths     *validator.PathValidator
	Registry  Registry
	// Mirror and Events are optional.
	Mirror Mirror
	Events Notifier
	Logger *logger.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Originals == nil, d.Converted == nil, d.Relations == nil, d.Settings == nil:
		return errors.New("biz: stores are required")
	case d.Store == nil, d.Paths == nil:
		return errors.New("biz: file store and path validator are required")
	case d.Registry == nil:
		return errors.New("biz: registry is required")
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return nil
}

// resolve returns the canonical on-disk path of rec. A path that stays
// inside the roots but no longer exists yields ErrNotFound.
func (d *Deps) resolve(rec *FileRecord) (string, error) {
	path, err := d.Paths.Validate(rec.StoragePath)
	if err == nil {
		return path, nil
	}
	if _, terr := d.Paths.ValidateTarget(rec.StoragePath); terr != nil {
		return "", err
	}
	if d.Store.Exists(rec.StoragePath) {
		return "", err
	}
	return "", fmt.Errorf("%w: file %s is missing on disk", ErrNotFound, rec.ID)
}

// purge unlinks the file behind rec and deletes its row from repo. A file
// already gone from disk is not an error.
func (d *Deps) purge(ctx context.Context, repo FileRepo, rec *FileRecord) error {
	path, err := d.resolve(rec)
	switch {
	case err == nil:
		if err := d.Store.Remove(path); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageFailed, err)
		}
	case errors.Is(err, ErrNotFound):
		d.Logger.WithContext(ctx).Debug("file already gone", zap.String("id", rec.ID), zap.String("table", repo.Table()))
	default:
		return err
	}
	if err := repo.Delete(ctx, rec.ID); err != nil {
		return fmt.Errorf("delete %s from %s: %w", rec.ID, repo.Table(), err)
	}
	return nil
}

// purgeConverted is purge on the converted store plus removal of the
// mirrored copy.
func (d *Deps) purgeConverted(ctx context.Context, rec *FileRecord) error {
	if err := d.purge(ctx, d.Converted, rec); err != nil {
		return err
	}
	if d.Mirror != nil {
		if err := d.Mirror.Remove(ctx, rec.StoragePath); err != nil {
			d.Logger.WithContext(ctx).Warn("mirror remove failed", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

// notify publishes an event about rec under resource. Subscribers to the
// empty resource see everything.
func (d *Deps) notify(kind, resource string, rec *FileRecord) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(resource, sse.Event{Type: kind, Data: rec})
}

// lookup finds id among originals first, then converted files.
func (d *Deps) lookup(ctx context.Context, id string) (*FileRecord, error) {
	rec, err := d.Originals.Get(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return d.Converted.Get(ctx, id)
}
