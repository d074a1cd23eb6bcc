package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/shrinkray/internal/compress"
	"github.com/jo-hoe/shrinkray/internal/queue"
)

// ErrNoSupportedFiles is returned when an incoming batch contains no file
// of a supported image type.
var ErrNoSupportedFiles = errors.New("no supported image files in selection")

// ErrQueueFull is returned when accepting a batch would push the queue over
// its configured maximum length. The whole batch is rejected.
var ErrQueueFull = errors.New("queue limit reached")

// supportedTypes is the ingestion allow-list.
var supportedTypes = map[string]bool{
	compress.MimeJPEG: true,
	compress.MimePNG:  true,
	compress.MimeGIF:  true,
}

// CoreService owns the record queue and runs the compression pipeline
// against it.
type CoreService struct {
	config *ServiceConfig
	store  queue.Store

	// ingestMu serializes ingestion so the capacity check and the appends
	// it guards happen atomically. Without it two concurrent batches can
	// both pass the length check and push the queue over its maximum.
	ingestMu sync.Mutex
}

func NewCoreService(config *ServiceConfig) *CoreService {
	store, err := queue.NewStore(
		config.Store.Type,
		config.Store.ConnectionString,
		time.Duration(config.Store.SessionTTLMinutes)*time.Minute,
	)
	if err != nil {
		slog.Error("failed to initialize record store", "error", err)
		panic(err)
	}
	return newCoreService(config, store)
}

func newCoreService(config *ServiceConfig, store queue.Store) *CoreService {
	return &CoreService{
		config: config,
		store:  store,
	}
}

// FileUpload carries one candidate file from the transport layer.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// RejectedFile names a file dropped during ingestion and why.
type RejectedFile struct {
	Name   string
	Reason string
}

// IngestResult reports what happened to a batch of candidate files.
type IngestResult struct {
	Added    []*queue.Record
	Rejected []RejectedFile
}

// AddImages validates and enqueues a batch of uploads. Files outside the
// type allow-list are filtered first; if nothing survives the filter the
// batch fails with ErrNoSupportedFiles. A batch that would overflow the
// queue is rejected as a whole with ErrQueueFull, leaving the queue
// unchanged. Oversized files are dropped individually by name without
// blocking their siblings.
func (service *CoreService) AddImages(files []FileUpload) (*IngestResult, error) {
	supported := make([]FileUpload, 0, len(files))
	for _, file := range files {
		if supportedTypes[normalizeContentType(file)] {
			supported = append(supported, file)
		}
	}
	if len(supported) == 0 {
		return nil, ErrNoSupportedFiles
	}

	service.ingestMu.Lock()
	defer service.ingestMu.Unlock()

	count, err := service.store.Len()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	if count+len(supported) > service.config.MaxQueueLength {
		return nil, fmt.Errorf("%w: maximum is %d images", ErrQueueFull, service.config.MaxQueueLength)
	}

	result := &IngestResult{}
	for _, file := range supported {
		if int64(len(file.Data)) > service.config.MaxFileBytes {
			slog.Warn("rejecting oversized file",
				"filename", file.Name,
				"size_bytes", len(file.Data),
				"max_bytes", service.config.MaxFileBytes)
			result.Rejected = append(result.Rejected, RejectedFile{
				Name: file.Name,
				Reason: fmt.Sprintf("exceeds the %s limit",
					humanize.IBytes(uint64(service.config.MaxFileBytes))),
			})
			continue
		}

		record := &queue.Record{
			ID:          queue.NewID(),
			Name:        file.Name,
			Size:        int64(len(file.Data)),
			ContentType: normalizeContentType(file),
			Original:    file.Data,
			Quality:     service.config.DefaultQuality,
			Status:      queue.StatusPending,
		}
		if err := service.store.Append(record); err != nil {
			return nil, fmt.Errorf("failed to enqueue %s: %w", file.Name, err)
		}

		slog.Info("image enqueued",
			"image_id", record.ID,
			"filename", record.Name,
			"content_type", record.ContentType,
			"size_bytes", record.Size)
		result.Added = append(result.Added, record)
	}
	return result, nil
}

// Records returns a snapshot of the queue in insertion order.
func (service *CoreService) Records() ([]*queue.Record, error) {
	return service.store.List()
}

func (service *CoreService) Record(id string) (*queue.Record, error) {
	return service.store.Get(id)
}

func (service *CoreService) Count() (int, error) {
	return service.store.Len()
}

// SetQuality updates the quality parameter used by the record's next
// compression run. Already-compressed data is left untouched.
func (service *CoreService) SetQuality(id string, quality int) error {
	if quality < compress.MinQuality || quality > compress.MaxQuality {
		return fmt.Errorf("quality must be in [%d,%d], got %d",
			compress.MinQuality, compress.MaxQuality, quality)
	}
	return service.store.SetQuality(id, quality)
}

// CompressOutcome summarizes one finished compression run.
type CompressOutcome struct {
	Record         *queue.Record
	OriginalSize   int64
	CompressedSize int64
	PercentSaved   int
	Shrunk         bool
}

// Compress runs the pipeline for one record, always starting from the
// original bytes. A record removed while its compression was in flight is
// treated as a no-op: the outcome is nil and no error is reported.
func (service *CoreService) Compress(id string) (*CompressOutcome, error) {
	record, err := service.store.Get(id)
	if err != nil {
		return nil, err
	}

	result, err := compress.Compress(record.Original, record.ContentType, record.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to compress %s: %w", record.Name, err)
	}

	if err := service.store.SetCompressed(id, result.Data, result.ContentType); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			slog.Debug("record removed while compressing, discarding result", "image_id", id)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to store compression result for %s: %w", record.Name, err)
	}

	// Re-read so the returned record reflects the stored result
	record, err = service.store.Get(id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			slog.Debug("record removed while compressing, discarding result", "image_id", id)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to reload record %s: %w", id, err)
	}

	outcome := newCompressOutcome(record, int64(len(result.Data)))
	slog.Info("image compressed",
		"image_id", id,
		"filename", record.Name,
		"quality", record.Quality,
		"input_size_bytes", outcome.OriginalSize,
		"output_size_bytes", outcome.CompressedSize,
		"percent_saved", outcome.PercentSaved)
	return outcome, nil
}

// CompressAll runs the pipeline over every record that is not yet
// compressed, strictly in queue order with a small delay between items.
// A failing record is reported and skipped; it never aborts the rest of
// the batch.
func (service *CoreService) CompressAll() ([]*CompressOutcome, error) {
	records, err := service.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	delay := time.Duration(service.config.BatchDelayMs) * time.Millisecond
	var outcomes []*CompressOutcome
	first := true
	for _, record := range records {
		if record.Status == queue.StatusCompressed {
			continue
		}
		if !first {
			time.Sleep(delay)
		}
		first = false

		outcome, err := service.Compress(record.ID)
		if err != nil {
			if errors.Is(err, queue.ErrNotFound) {
				// Removed since the snapshot was taken
				continue
			}
			slog.Error("batch compression item failed",
				"image_id", record.ID,
				"filename", record.Name,
				"error", err)
			continue
		}
		if outcome != nil {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

func (service *CoreService) RemoveImage(id string) error {
	return service.store.Remove(id)
}

func (service *CoreService) ClearImages() error {
	return service.store.Clear()
}

// DownloadName derives the download filename from the record's original
// name and declared type: <stem>_compressed.<ext>.
func (service *CoreService) DownloadName(record *queue.Record) string {
	stem := strings.TrimSuffix(record.Name, filepath.Ext(record.Name))
	if stem == "" {
		stem = "image"
	}
	ext := strings.TrimPrefix(record.ContentType, "image/")
	return fmt.Sprintf("%s_compressed.%s", stem, ext)
}

// Thumbnail renders image data at the configured preview width.
func (service *CoreService) Thumbnail(data []byte) ([]byte, error) {
	return compress.Thumbnail(data, service.config.ThumbnailWidth)
}

func (service *CoreService) Close() error {
	return service.store.Close()
}

func newCompressOutcome(record *queue.Record, compressedSize int64) *CompressOutcome {
	outcome := &CompressOutcome{
		Record:         record,
		OriginalSize:   record.Size,
		CompressedSize: compressedSize,
		Shrunk:         compressedSize < record.Size,
	}
	if record.Size > 0 {
		outcome.PercentSaved = int(float64(record.Size-compressedSize) / float64(record.Size) * 100)
	}
	return outcome
}

// normalizeContentType lowercases the declared type and falls back to
// content sniffing when the client sent none.
func normalizeContentType(file FileUpload) string {
	contentType := strings.ToLower(strings.TrimSpace(file.ContentType))
	if contentType == "" {
		contentType = http.DetectContentType(file.Data)
	}
	if contentType == "image/jpg" {
		contentType = compress.MimeJPEG
	}
	return contentType
}
