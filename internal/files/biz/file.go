package biz

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/metrics"
	"github.com/lk2023060901/transmute-backend/internal/pkg/validator"
	"github.com/lk2023060901/transmute-backend/internal/storage"
	"go.uber.org/zap"
)

// sniffBytes is how much of an upload is inspected when its name carries
// no extension.
const sniffBytes = 3072

// FileUseCase manages uploaded originals and file retrieval.
type FileUseCase struct {
	deps Deps
	log  *logger.Logger
}

func NewFileUseCase(deps Deps) (*FileUseCase, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &FileUseCase{deps: deps, log: deps.Logger.Named("files")}, nil
}

// Upload stores r as a new original. The media type comes from the
// filename extension, or from the content when the name has none.
func (uc *FileUseCase) Upload(ctx context.Context, filename string, r io.Reader) (*UploadedFile, error) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: empty upload filename", ErrInvalidFilename)
	}
	ext := validator.SanitizeExtension(filepath.Ext(name))

	blob, err := uc.deps.Store.Save(uc.deps.Store.Dirs().Uploads, ext, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	path, err := uc.deps.Paths.Validate(blob.Path)
	if err != nil {
		_ = uc.deps.Store.Remove(blob.Path)
		return nil, err
	}

	if ext == "" {
		path, ext = uc.sniff(ctx, path)
	}

	id, _, _ := strings.Cut(filepath.Base(path), ".")
	rec := &FileRecord{
		ID:               id,
		StoragePath:      path,
		OriginalFilename: name,
		MediaType:        ext,
		SizeBytes:        blob.Size,
		Checksum:         blob.Checksum,
	}
	if ext != "" {
		rec.Extension = "." + ext
	}

	if err := uc.deps.Originals.Insert(ctx, rec); err != nil {
		_ = uc.deps.Store.Remove(path)
		return nil, err
	}

	metrics.UploadsTotal.Inc()
	metrics.UploadBytesTotal.Add(float64(rec.SizeBytes))
	uc.log.WithContext(ctx).Info("file uploaded",
		zap.String("id", rec.ID),
		zap.String("filename", rec.OriginalFilename),
		zap.String("media_type", rec.MediaType),
		zap.String("size", humanize.Bytes(uint64(rec.SizeBytes))),
	)
	uc.deps.notify(EventFileUploaded, rec.ID, rec)
	return uc.withFormats(rec), nil
}

// sniff detects the type of an extensionless upload and renames the blob
// to carry the detected extension. On any failure the file keeps no type.
func (uc *FileUseCase) sniff(ctx context.Context, path string) (string, string) {
	head, err := uc.deps.Store.Head(path, sniffBytes)
	if err != nil {
		return path, ""
	}
	ext := validator.SanitizeExtension(mimetype.Detect(head).Extension())
	if ext == "" {
		return path, ""
	}

	target, err := uc.deps.Paths.ValidateTarget(path + "." + ext)
	if err != nil {
		return path, ""
	}
	if err := uc.deps.Store.Move(path, target); err != nil {
		uc.log.WithContext(ctx).Warn("rename sniffed upload failed", zap.String("path", path), zap.Error(err))
		return path, ""
	}
	return target, ext
}

// List returns every original with its conversion targets.
func (uc *FileUseCase) List(ctx context.Context) ([]*UploadedFile, error) {
	recs, err := uc.deps.Originals.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*UploadedFile, 0, len(recs))
	for _, rec := range recs {
		out = append(out, uc.withFormats(rec))
	}
	return out, nil
}

func (uc *FileUseCase) withFormats(rec *FileRecord) *UploadedFile {
	formats := uc.deps.Registry.CompatibleFormats(rec.MediaType)
	if formats == nil {
		formats = []string{}
	}
	return &UploadedFile{FileRecord: rec, CompatibleFormats: formats}
}

// Delete removes an original, every file converted from it and the
// relations linking them.
func (uc *FileUseCase) Delete(ctx context.Context, id string) error {
	log := uc.log.WithContext(logger.WithFileID(ctx, id))

	rec, err := uc.deps.Originals.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := uc.deps.purge(ctx, uc.deps.Originals, rec); err != nil {
		return err
	}

	convertedIDs, err := uc.deps.Relations.ListByOriginal(ctx, id)
	if err != nil {
		return err
	}
	var errs []error
	for _, cid := range convertedIDs {
		crec, err := uc.deps.Converted.Get(ctx, cid)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err == nil {
			err = uc.deps.purgeConverted(ctx, crec)
		}
		if err != nil {
			log.Error("cascade delete failed", zap.String("converted_id", cid), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := uc.deps.Relations.DeleteByOriginal(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	log.Info("file deleted", zap.Int("converted", len(convertedIDs)))
	uc.deps.notify(EventFileDeleted, id, rec)
	return nil
}

// DeleteAll deletes every original and returns how many were removed.
func (uc *FileUseCase) DeleteAll(ctx context.Context) (int, error) {
	recs, err := uc.deps.Originals.List(ctx)
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

// Open returns the record for id, searching originals then converted
// files, and its content. The caller closes the reader.
func (uc *FileUseCase) Open(ctx context.Context, id string) (*FileRecord, io.ReadCloser, error) {
	rec, err := uc.deps.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	path, err := uc.deps.resolve(rec)
	if err != nil {
		return nil, nil, err
	}
	f, err := uc.deps.Store.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return rec, f, nil
}

// Archive is a zip of several stored files, written to the tmp root.
type Archive struct {
	Path string
	Name string
	Size int64
}

type archiveEntry struct {
	name string
	path string
}

// Archive zips the files named by ids. Every id is resolved and checked
// before anything is written. cleanup removes the archive.
func (uc *FileUseCase) Archive(ctx context.Context, ids []string) (*Archive, func(), error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("%w: no file ids given", ErrSchemaMismatch)
	}

	entries := make([]archiveEntry, 0, len(ids))
	for _, id := range ids {
		rec, err := uc.deps.lookup(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		path, err := uc.deps.resolve(rec)
		if err != nil {
			return nil, nil, err
		}
		if _, err := uc.deps.Store.Stat(path); err != nil {
			return nil, nil, fmt.Errorf("%w: file %s is missing on disk", ErrNotFound, id)
		}
		entries = append(entries, archiveEntry{name: entryName(rec), path: path})
	}

	target, err := uc.deps.Paths.ValidateTarget(filepath.Join(uc.deps.Store.Dirs().Tmp, storage.NewName("zip")))
	if err != nil {
		return nil, nil, err
	}
	size, err := uc.writeZip(target, entries)
	if err != nil {
		_ = uc.deps.Store.Remove(target)
		return nil, nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	cleanup := func() {
		if err := uc.deps.Store.Remove(target); err != nil {
			uc.log.Warn("remove archive failed", zap.String("path", target), zap.Error(err))
		}
	}
	uc.log.WithContext(ctx).Info("archive built",
		zap.Int("files", len(entries)),
		zap.String("size", humanize.Bytes(uint64(size))),
	)
	return &Archive{Path: target, Name: filepath.Base(target), Size: size}, cleanup, nil
}

func (uc *FileUseCase) writeZip(target string, entries []archiveEntry) (int64, error) {
	f, err := uc.deps.Store.Create(target)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if err := uc.addToZip(zw, e); err != nil {
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (uc *FileUseCase) addToZip(zw *zip.Writer, e archiveEntry) error {
	src, err := uc.deps.Store.Open(e.path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// entryName is "<original stem>_<id><ext>", so two conversions of the same
// upload never collide.
func entryName(rec *FileRecord) string {
	base := filepath.Base(rec.OriginalFilename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "file"
	}
	return stem + "_" + rec.ID + rec.Extension
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
