package service

import (
	"github.com/lk2023060901/transmute-backend/internal/converter/registry"
)

type ConvertRequest struct {
	ID           string `json:"id" binding:"required"`
	OutputFormat string `json:"output_format" binding:"required"`
}

type BatchDownloadRequest struct {
	FileIDs []string `json:"file_ids" binding:"required,min=1"`
}

type DeletedResponse struct {
	Deleted int `json:"deleted"`
}

type FormatsResponse struct {
	Formats    map[string][]string   `json:"formats"`
	Converters []registry.Descriptor `json:"converters"`
	Aliases    map[string]string     `json:"aliases"`
}

type CompatibleFormatsResponse struct {
	Format            string   `json:"format"`
	CompatibleFormats []string `json:"compatible_formats"`
}
