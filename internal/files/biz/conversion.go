package biz

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/metrics"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"github.com/lk2023060901/transmute-backend/internal/storage"
	"go.uber.org/zap"
)

// ConversionUseCase turns originals into converted files.
type ConversionUseCase struct {
	deps    Deps
	timeout time.Duration
	log     *logger.Logger
}

// NewConversionUseCase bounds each converter call by timeout; zero means
// no limit beyond the caller's context.
func NewConversionUseCase(deps Deps, timeout time.Duration) (*ConversionUseCase, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &ConversionUseCase{deps: deps, timeout: timeout, log: deps.Logger.Named("conversion")}, nil
}

// Create converts the original identified by originalID to format and
// records the result.
func (uc *ConversionUseCase) Create(ctx context.Context, originalID, format string) (*FileRecord, error) {
	ctx = logger.WithFileID(ctx, originalID)
	log := uc.log.WithContext(ctx)

	original, err := uc.deps.Originals.Get(ctx, originalID)
	if err != nil {
		return nil, err
	}
	src, err := uc.deps.resolve(original)
	if err != nil {
		return nil, err
	}

	format = validator.SanitizeExtension(format)
	if format == "" {
		return nil, fmt.Errorf("%w: empty output format", ErrNoConverterAvailable)
	}
	conv, ok := uc.deps.Registry.ConverterFor(original.MediaType, format)
	if !ok {
		return nil, fmt.Errorf("%w: no converter found for %s to %s", ErrNoConverterAvailable, original.MediaType, format)
	}
	// the declared sets allow pairs a converter still refuses, e.g. png to png
	if !slices.Contains(conv.CompatibleWith(converter.Normalize(original.MediaType)), converter.Normalize(format)) {
		return nil, fmt.Errorf("%w: %s cannot convert %s to %s", ErrNoConverterAvailable, conv.Name(), original.MediaType, format)
	}

	produced, cleanup, err := uc.convert(ctx, conv, src, original.MediaType, format)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	target, err := uc.deps.Paths.ValidateTarget(filepath.Join(uc.deps.Store.Dirs().Outputs, storage.NewName(format)))
	if err != nil {
		return nil, err
	}
	if err := uc.deps.Store.Move(produced, target); err != nil {
		_ = uc.deps.Store.Remove(produced)
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	blob, err := uc.deps.Store.Digest(target)
	if err != nil {
		_ = uc.deps.Store.Remove(target)
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	id := filepath.Base(target)
	id = id[:len(id)-len(filepath.Ext(id))]
	rec := &FileRecord{
		ID:               id,
		StoragePath:      target,
		OriginalFilename: original.OriginalFilename,
		MediaType:        format,
		Extension:        "." + format,
		SizeBytes:        blob.Size,
		Checksum:         blob.Checksum,
	}
	if err := uc.deps.Converted.Insert(ctx, rec); err != nil {
		log.Error("file moved, metadata insert failed",
			zap.String("original_id", original.ID),
			zap.String("converted_id", rec.ID),
			zap.String("path", target),
			zap.Error(err),
		)
		_ = uc.deps.Store.Remove(target)
		return nil, err
	}

	rel := &ConversionRelation{
		OriginalFileID:    original.ID,
		ConvertedFileID:   rec.ID,
		OriginalFilename:  original.OriginalFilename,
		OriginalMediaType: original.MediaType,
		OriginalExtension: original.Extension,
		OriginalSizeBytes: original.SizeBytes,
	}
	if err := uc.deps.Relations.Insert(ctx, rel); err != nil {
		log.Error("conversion relation missing",
			zap.String("original_id", original.ID),
			zap.String("converted_id", rec.ID),
			zap.Error(err),
		)
		return nil, err
	}

	uc.publish(ctx, rec)
	uc.dropOriginal(ctx, original)

	log.Info("conversion completed",
		zap.String("converter", conv.Name()),
		zap.String("converted_id", rec.ID),
		zap.String("from", original.MediaType),
		zap.String("to", format),
		zap.String("size", humanize.Bytes(uint64(rec.SizeBytes))),
	)
	uc.deps.notify(EventConversionCompleted, original.ID, rec)
	return rec, nil
}

// convert runs conv in a scratch directory under the tmp root and returns
// the validated first output. cleanup removes the scratch directory and
// any extra outputs.
func (uc *ConversionUseCase) convert(ctx context.Context, conv converter.Converter, src, from, to string) (string, func(), error) {
	jobDir, err := uc.deps.Store.MkdirTemp()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	cleanup := func() {
		if err := uc.deps.Store.RemoveAll(jobDir); err != nil {
			uc.log.Warn("remove job dir failed", zap.String("dir", jobDir), zap.Error(err))
		}
	}

	convCtx := ctx
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		convCtx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	started := time.Now()
	outputs, err := conv.Convert(convCtx, converter.Job{
		InputPath:    src,
		OutputDir:    jobDir,
		InputFormat:  converter.Normalize(from),
		OutputFormat: converter.Normalize(to),
	})
	if err == nil && len(outputs) == 0 {
		err = errors.New("converter produced no output")
	}
	metrics.ObserveConversion(conv.Name(), started, err)
	if err != nil {
		cleanup()
		if errors.Is(err, converter.ErrUnsupportedPair) {
			return "", nil, fmt.Errorf("%w: %w", ErrNoConverterAvailable, err)
		}
		return "", nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	produced, err := uc.deps.Paths.Validate(outputs[0])
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return produced, cleanup, nil
}

func (uc *ConversionUseCase) publish(ctx context.Context, rec *FileRecord) {
	if uc.deps.Mirror == nil {
		return
	}
	if err := uc.deps.Mirror.Publish(ctx, rec.StoragePath, converter.ContentType(rec.MediaType)); err != nil {
		uc.log.WithContext(ctx).Warn("mirror publish failed", zap.String("converted_id", rec.ID), zap.Error(err))
	}
}

// dropOriginal deletes the source once converted when keep_originals is
// off. The relation keeps the original's descriptive fields.
func (uc *ConversionUseCase) dropOriginal(ctx context.Context, original *FileRecord) {
	log := uc.log.WithContext(ctx)
	settings, err := uc.deps.Settings.Get(ctx)
	if err != nil {
		log.Warn("read settings failed, keeping original", zap.Error(err))
		return
	}
	if settings.KeepOriginals {
		return
	}
	if err := uc.deps.purge(ctx, uc.deps.Originals, original); err != nil {
		log.Error("delete original after conversion failed", zap.String("original_id", original.ID), zap.Error(err))
	}
}

// Delete removes one converted file and its relation. The original is
// left alone.
func (uc *ConversionUseCase) Delete(ctx context.Context, id string) error {
	rec, err := uc.deps.Converted.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := uc.deps.purgeConverted(ctx, rec); err != nil {
		return err
	}
	if err := uc.deps.Relations.DeleteByConverted(ctx, id); err != nil {
		return err
	}
	uc.log.WithContext(ctx).Info("converted file deleted", zap.String("converted_id", id))
	uc.deps.notify(EventConversionDeleted, id, rec)
	return nil
}

// DeleteAll removes every converted file and returns how many went.
func (uc *ConversionUseCase) DeleteAll(ctx context.Context) (int, error) {
	recs, err := uc.deps.Converted.List(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	var errs []error
	for _, rec := range recs {
		if err := uc.Delete(ctx, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// ListComplete returns converted files joined with their origin.
func (uc *ConversionUseCase) ListComplete(ctx context.Context) ([]*CompletedConversion, error) {
	recs, err := uc.deps.Converted.List(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := uc.deps.Relations.List(ctx)
	if err != nil {
		return nil, err
	}
	byConverted := make(map[string]*ConversionRelation, len(rels))
	for _, rel := range rels {
		byConverted[rel.ConvertedFileID] = rel
	}

	out := make([]*CompletedConversion, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &CompletedConversion{FileRecord: rec, Original: byConverted[rec.ID]})
	}
	return out, nil
}
