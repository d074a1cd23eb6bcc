package backend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/shrinkray/internal/core"
	"github.com/jo-hoe/shrinkray/internal/queue"
)

// APIService exposes the record queue as a JSON API under /api.
type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)

	api := e.Group("/api")
	api.GET("/images", s.listImagesHandler)
	api.POST("/images", s.uploadImagesHandler)
	api.PUT("/images/:id/quality", s.setQualityHandler)
	api.POST("/images/:id/compress", s.compressImageHandler)
	api.POST("/images/compress", s.compressAllHandler)
	api.DELETE("/images/:id", s.deleteImageHandler)
	api.DELETE("/images", s.clearImagesHandler)
	api.GET("/images/:id/download", s.downloadImageHandler)
}

type imageResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	ContentType    string `json:"contentType"`
	Quality        int    `json:"quality"`
	Status         string `json:"status"`
	CompressedSize int64  `json:"compressedSize,omitempty"`
	CompressedType string `json:"compressedType,omitempty"`
}

type ingestResponse struct {
	Added    []imageResponse `json:"added"`
	Rejected []rejectedFile  `json:"rejected,omitempty"`
}

type rejectedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type setQualityRequest struct {
	Quality int `json:"quality" validate:"required,min=10,max=100"`
}

func (s *APIService) probeHandler(c echo.Context) error {
	return c.String(http.StatusOK, "API Service is running")
}

func (s *APIService) listImagesHandler(c echo.Context) error {
	records, err := s.coreService.Records()
	if err != nil {
		slog.Error("listImagesHandler: failed to list records",
			"status", http.StatusInternalServerError, "error", err)
		return c.String(http.StatusInternalServerError, "Failed to list images")
	}

	responses := make([]imageResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toImageResponse(record))
	}
	return c.JSON(http.StatusOK, responses)
}

func (s *APIService) uploadImagesHandler(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error("uploadImagesHandler: failed to parse multipart form",
			"status", http.StatusBadRequest, "error", err)
		return c.String(http.StatusBadRequest, "Failed to parse multipart form")
	}

	fileHeaders := form.File["images"]
	if len(fileHeaders) == 0 {
		return c.String(http.StatusBadRequest, "No files in 'images' form field")
	}

	uploads := make([]core.FileUpload, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		upload, err := readUpload(header)
		if err != nil {
			slog.Error("uploadImagesHandler: failed to read uploaded file",
				"status", http.StatusInternalServerError, "error", err, "filename", header.Filename)
			return c.String(http.StatusInternalServerError, "Failed to read uploaded file")
		}
		uploads = append(uploads, upload)
	}

	result, err := s.coreService.AddImages(uploads)
	if errors.Is(err, core.ErrNoSupportedFiles) || errors.Is(err, core.ErrQueueFull) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		slog.Error("uploadImagesHandler: failed to ingest files",
			"status", http.StatusInternalServerError, "error", err)
		return c.String(http.StatusInternalServerError, "Failed to ingest files")
	}

	response := ingestResponse{Added: make([]imageResponse, 0, len(result.Added))}
	for _, record := range result.Added {
		response.Added = append(response.Added, toImageResponse(record))
	}
	for _, rejected := range result.Rejected {
		response.Rejected = append(response.Rejected, rejectedFile{Name: rejected.Name, Reason: rejected.Reason})
	}
	return c.JSON(http.StatusCreated, response)
}

func (s *APIService) setQualityHandler(c echo.Context) error {
	id := c.Param("id")

	var request setQualityRequest
	if err := c.Bind(&request); err != nil {
		return c.String(http.StatusBadRequest, "Failed to parse request body")
	}
	if err := c.Validate(&request); err != nil {
		return err
	}

	if err := s.coreService.SetQuality(id, request.Quality); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return c.String(http.StatusNotFound, "Image not found")
		}
		slog.Error("setQualityHandler: failed to set quality",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return c.String(http.StatusInternalServerError, "Failed to set quality")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) compressImageHandler(c echo.Context) error {
	id := c.Param("id")

	outcome, err := s.coreService.Compress(id)
	if errors.Is(err, queue.ErrNotFound) {
		return c.String(http.StatusNotFound, "Image not found")
	}
	if err != nil {
		slog.Error("compressImageHandler: compression failed",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return c.String(http.StatusInternalServerError, "Compression failed")
	}
	if outcome == nil {
		// Record removed while compressing
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, toImageResponse(outcome.Record))
}

func (s *APIService) compressAllHandler(c echo.Context) error {
	outcomes, err := s.coreService.CompressAll()
	if err != nil {
		slog.Error("compressAllHandler: batch compression failed",
			"status", http.StatusInternalServerError, "error", err)
		return c.String(http.StatusInternalServerError, "Batch compression failed")
	}

	responses := make([]imageResponse, 0, len(outcomes))
	for _, outcome := range outcomes {
		responses = append(responses, toImageResponse(outcome.Record))
	}
	return c.JSON(http.StatusOK, responses)
}

func (s *APIService) deleteImageHandler(c echo.Context) error {
	id := c.Param("id")

	if err := s.coreService.RemoveImage(id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return c.String(http.StatusNotFound, "Image not found")
		}
		slog.Error("deleteImageHandler: failed to delete image",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return c.String(http.StatusInternalServerError, "Failed to delete image")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) clearImagesHandler(c echo.Context) error {
	if err := s.coreService.ClearImages(); err != nil {
		slog.Error("clearImagesHandler: failed to clear queue",
			"status", http.StatusInternalServerError, "error", err)
		return c.String(http.StatusInternalServerError, "Failed to clear queue")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) downloadImageHandler(c echo.Context) error {
	id := c.Param("id")

	record, err := s.coreService.Record(id)
	if errors.Is(err, queue.ErrNotFound) {
		return c.String(http.StatusNotFound, "Image not found")
	}
	if err != nil {
		slog.Error("downloadImageHandler: failed to fetch record",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return c.String(http.StatusInternalServerError, "Failed to fetch image")
	}
	if record.Status != queue.StatusCompressed {
		return c.String(http.StatusConflict, "Image has not been compressed yet")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, s.coreService.DownloadName(record)))
	return c.Blob(http.StatusOK, record.CompressedType, record.Compressed)
}

func toImageResponse(record *queue.Record) imageResponse {
	return imageResponse{
		ID:             record.ID,
		Name:           record.Name,
		Size:           record.Size,
		ContentType:    record.ContentType,
		Quality:        record.Quality,
		Status:         string(record.Status),
		CompressedSize: record.CompressedSize,
		CompressedType: record.CompressedType,
	}
}

func readUpload(header *multipart.FileHeader) (core.FileUpload, error) {
	src, err := header.Open()
	if err != nil {
		return core.FileUpload{}, fmt.Errorf("failed to open %s: %w", header.Filename, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("failed to close uploaded file reader", "error", cerr, "filename", header.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		return core.FileUpload{}, fmt.Errorf("failed to read %s: %w", header.Filename, err)
	}

	return core.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
