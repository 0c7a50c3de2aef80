package service

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/transmute-backend/internal/converter"
	"github.com/lk2023060901/transmute-backend/internal/converter/registry"
	"github.com/lk2023060901/transmute-backend/internal/files/biz"
	apperrors "github.com/lk2023060901/transmute-backend/internal/pkg/errors"
	"github.com/lk2023060901/transmute-backend/internal/pkg/logger"
	"github.com/lk2023060901/transmute-backend/internal/pkg/response"
	"go.uber.org/zap"
)

// FileService exposes uploads, conversions, formats and settings over HTTP.
type FileService struct {
	files          *biz.FileUseCase
	conversions    *biz.ConversionUseCase
	settings       *biz.SettingsUseCase
	registry       *registry.Registry
	maxUploadBytes int64
	logger         *logger.Logger
}

func NewFileService(
	files *biz.FileUseCase,
	conversions *biz.ConversionUseCase,
	settings *biz.SettingsUseCase,
	reg *registry.Registry,
	maxUploadBytes int64,
	log *logger.Logger,
) *FileService {
	return &FileService{
		files:          files,
		conversions:    conversions,
		settings:       settings,
		registry:       reg,
		maxUploadBytes: maxUploadBytes,
		logger:         log.Named("http"),
	}
}

func (s *FileService) RegisterRoutes(r *gin.RouterGroup) {
	files := r.Group("/files")
	{
		files.POST("", s.Upload)
		files.GET("", s.ListFiles)
		files.POST("/batch", s.BatchDownload)
		files.DELETE("/all", s.DeleteAllFiles)
		files.GET("/:id", s.Download)
		files.DELETE("/:id", s.DeleteFile)
	}

	formats := r.Group("/formats")
	{
		formats.GET("", s.ListFormats)
		formats.GET("/:format", s.CompatibleFormats)
	}

	conversions := r.Group("/conversions")
	{
		conversions.POST("", s.Convert)
		conversions.GET("/complete", s.ListComplete)
		conversions.DELETE("/all", s.DeleteAllConversions)
		conversions.DELETE("/:id", s.DeleteConversion)
	}

	r.GET("/settings", s.GetSettings)
	r.PATCH("/settings", s.UpdateSettings)
}

// Upload accepts a multipart "file" field.
func (s *FileService) Upload(c *gin.Context) {
	if s.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ErrorWithCode(c, apperrors.ErrRequestTooLarge, fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return
		}
		response.BadRequest(c, "multipart field \"file\" is required")
		return
	}

	f, err := header.Open()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	defer f.Close()

	uploaded, err := s.files.Upload(c.Request.Context(), header.Filename, f)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Created(c, uploaded)
}

func (s *FileService) ListFiles(c *gin.Context) {
	files, err := s.files.List(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, files)
}

// Download streams one original or converted file as an attachment.
func (s *FileService) Download(c *gin.Context) {
	rec, rc, err := s.files.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, rec.SizeBytes, converter.ContentType(rec.MediaType), rc, map[string]string{
		"Content-Disposition": attachment(downloadName(rec)),
	})
}

func (s *FileService) DeleteFile(c *gin.Context) {
	if err := s.files.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}
	response.SuccessWithMessage(c, "file deleted", nil)
}

func (s *FileService) DeleteAllFiles(c *gin.Context) {
	n, err := s.files.DeleteAll(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, DeletedResponse{Deleted: n})
}

// BatchDownload zips the requested files and streams the archive.
func (s *FileService) BatchDownload(c *gin.Context) {
	var req BatchDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	archive, cleanup, err := s.files.Archive(c.Request.Context(), req.FileIDs)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer cleanup()

	c.Header("Content-Disposition", attachment(archive.Name))
	c.File(archive.Path)
}

func (s *FileService) ListFormats(c *gin.Context) {
	response.Success(c, FormatsResponse{
		Formats:    s.registry.Matrix(),
		Converters: s.registry.Descriptors(),
		Aliases:    converter.Aliases(),
	})
}

func (s *FileService) CompatibleFormats(c *gin.Context) {
	format := converter.Normalize(c.Param("format"))
	response.Success(c, CompatibleFormatsResponse{
		Format:            format,
		CompatibleFormats: s.registry.CompatibleFormats(format),
	})
}

func (s *FileService) Convert(c *gin.Context) {
	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rec, err := s.conversions.Create(c.Request.Context(), req.ID, req.OutputFormat)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Created(c, rec)
}

func (s *FileService) ListComplete(c *gin.Context) {
	list, err := s.conversions.ListComplete(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, list)
}

func (s *FileService) DeleteConversion(c *gin.Context) {
	if err := s.conversions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}
	response.SuccessWithMessage(c, "conversion deleted", nil)
}

func (s *FileService) DeleteAllConversions(c *gin.Context) {
	n, err := s.conversions.DeleteAll(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, DeletedResponse{Deleted: n})
}

func (s *FileService) GetSettings(c *gin.Context) {
	settings, err := s.settings.Get(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, settings)
}

// UpdateSettings applies a partial JSON object. Unknown keys are ignored.
func (s *FileService) UpdateSettings(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	settings, err := s.settings.Update(c.Request.Context(), patch)
	if err != nil {
		s.handleError(c, err)
		return
	}
	response.Success(c, settings)
}

// errorCodes maps domain errors onto response codes, most specific first.
var errorCodes = []struct {
	err  error
	code int
}{
	{biz.ErrNotFound, apperrors.ErrFileNotFound},
	{biz.ErrSchemaMismatch, apperrors.ErrSchemaMismatch},
	{biz.ErrInvalidIdentifier, apperrors.ErrInvalidIdentifier},
	{biz.ErrPathOutsideAllowedRoot, apperrors.ErrPathOutsideAllowedRoot},
	{biz.ErrInvalidFilename, apperrors.ErrInvalidFilename},
	{biz.ErrNoConverterAvailable, apperrors.ErrNoConverterAvailable},
	{biz.ErrConversionFailed, apperrors.ErrConversionFailed},
	{biz.ErrInvalidSettingsValue, apperrors.ErrInvalidSettingsValue},
	{biz.ErrStorageFailed, apperrors.ErrStorageFailed},
}

func (s *FileService) handleError(c *gin.Context, err error) {
	code := apperrors.ErrInternalServer
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			code = m.code
			break
		}
	}

	if apperrors.IsServerError(code) {
		s.logger.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("code", code),
			zap.Error(err),
		)
	}
	response.HandleError(c, apperrors.Wrap(err, code, err.Error()))
}

// downloadName is the original filename's stem with the stored extension.
func downloadName(rec *biz.FileRecord) string {
	base := filepath.Base(rec.OriginalFilename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = rec.ID
	}
	return stem + rec.Extension
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
