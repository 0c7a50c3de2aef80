package biz

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the created_at format: UTC, second precision.
const TimeLayout = "2006-01-02 15:04:05"

// FileRecord describes one stored file, either an upload or a conversion
// output. Records are immutable once inserted.
type FileRecord struct {
	ID               string `json:"id"`
	StoragePath      string `json:"-"`
	OriginalFilename string `json:"original_filename"`
	MediaType        string `json:"media_type"`
	Extension        string `json:"extension"`
	SizeBytes        int64  `json:"size_bytes"`
	Checksum         string `json:"sha256_checksum"`
	CreatedAt        string `json:"created_at"`
}

// CreatedTime parses CreatedAt as UTC.
func (r *FileRecord) CreatedTime() (time.Time, error) {
	return time.ParseInLocation(TimeLayout, r.CreatedAt, time.UTC)
}

// Check reports the fields that keep r from being inserted. CreatedAt is
// not checked since stores assign it.
func (r *FileRecord) Check() error {
	var bad []string
	if strings.TrimSpace(r.ID) == "" {
		bad = append(bad, "id")
	}
	if strings.TrimSpace(r.StoragePath) == "" {
		bad = append(bad, "storage_path")
	}
	if strings.TrimSpace(r.OriginalFilename) == "" {
		bad = append(bad, "original_filename")
	}
	if (r.MediaType == "") != (r.Extension == "") {
		bad = append(bad, "media_type/extension")
	}
	if r.SizeBytes < 0 {
		bad = append(bad, "size_bytes")
	}
	if !isSHA256(r.Checksum) {
		bad = append(bad, "sha256_checksum")
	}
	return mismatch(bad)
}

// ConversionRelation links a converted file to its source. The original's
// descriptive fields are copied so the link outlives the original record.
type ConversionRelation struct {
	OriginalFileID    string `json:"original_file_id"`
	ConvertedFileID   string `json:"converted_file_id"`
	OriginalFilename  string `json:"original_filename"`
	OriginalMediaType string `json:"original_media_type"`
	OriginalExtension string `json:"original_extension"`
	OriginalSizeBytes int64  `json:"original_size_bytes"`
}

func (r *ConversionRelation) Check() error {
	var bad []string
	if strings.TrimSpace(r.OriginalFileID) == "" {
		bad = append(bad, "original_file_id")
	}
	if strings.TrimSpace(r.ConvertedFileID) == "" {
		bad = append(bad, "converted_file_id")
	}
	if strings.TrimSpace(r.OriginalFilename) == "" {
		bad = append(bad, "original_filename")
	}
	if (r.OriginalMediaType == "") != (r.OriginalExtension == "") {
		bad = append(bad, "original_media_type/original_extension")
	}
	if r.OriginalSizeBytes < 0 {
		bad = append(bad, "original_size_bytes")
	}
	return mismatch(bad)
}

// CompletedConversion is a converted file joined with its origin.
type CompletedConversion struct {
	*FileRecord
	Original *ConversionRelation `json:"original,omitempty"`
}

// UploadedFile is an original plus the formats it can be converted to.
type UploadedFile struct {
	*FileRecord
	CompatibleFormats []string `json:"compatible_formats"`
}

func mismatch(fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return fmt.Errorf("%w: invalid fields: %s", ErrSchemaMismatch, strings.Join(fields, ", "))
}

func isSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
