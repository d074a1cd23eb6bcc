package frontend

import (
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/shrinkray/internal/core"
	"github.com/jo-hoe/shrinkray/internal/queue"
)

const (
	MainPageName = "index.html"
	mimePNG      = "image/png"

	maxDisplayNameRunes = 28
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig

	faviconOnce sync.Once
	favicon     []byte
	faviconErr  error
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	// Create template renderer
	e.Renderer = &Template{
		templates: template.Must(template.New("").ParseFS(assetsFS, viewsPattern)),
	}

	e.GET("/", service.rootRedirectHandler) // Redirect root to index.html
	e.GET("/"+MainPageName, service.indexHandler)

	e.POST("/htmx/upload", service.htmxUploadHandler)
	e.GET("/htmx/queue", service.htmxQueueHandler)
	e.GET("/htmx/results", service.htmxResultsHandler)
	e.POST("/htmx/image/:id/quality", service.htmxSetQualityHandler)
	e.POST("/htmx/image/:id/compress", service.htmxCompressHandler)
	e.POST("/htmx/compress-all", service.htmxCompressAllHandler)
	e.DELETE("/htmx/image/:id", service.htmxRemoveHandler)
	e.DELETE("/htmx/images", service.htmxClearHandler)
	e.GET("/htmx/image/original-thumb/:id", service.htmxOriginalThumbnailHandler)
	e.GET("/htmx/image/compressed-thumb/:id", service.htmxCompressedThumbnailHandler)

	e.GET("/download/:id", service.downloadHandler)

	// Favicon routes
	e.GET("/icon.svg", service.iconHandler)
	e.GET("/favicon.png", service.faviconHandler)
}

type indexData struct {
	MaxQueueLength int
	MaxFileSize    string
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	return ctx.Render(http.StatusOK, MainPageName, indexData{
		MaxQueueLength: service.config.MaxQueueLength,
		MaxFileSize:    humanize.IBytes(uint64(service.config.MaxFileBytes)),
	})
}

func (service *FrontendService) htmxUploadHandler(ctx echo.Context) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		slog.Error("htmxUploadHandler: failed to parse multipart form",
			"status", http.StatusBadRequest, "error", err)
		return ctx.HTML(http.StatusBadRequest, toastHTML("error", "Could not read the dropped files"))
	}

	fileHeaders := form.File["images"]
	if len(fileHeaders) == 0 {
		return ctx.HTML(http.StatusBadRequest, toastHTML("error", "No files selected"))
	}

	uploads := make([]core.FileUpload, 0, len(fileHeaders))
	for _, header := range fileHeaders {
		src, err := header.Open()
		if err != nil {
			slog.Error("htmxUploadHandler: failed to open uploaded file",
				"status", http.StatusInternalServerError, "error", err, "filename", header.Filename)
			return ctx.HTML(http.StatusInternalServerError, toastHTML("error", "Failed to open uploaded file"))
		}
		data, err := io.ReadAll(src)
		if cerr := src.Close(); cerr != nil {
			slog.Error("htmxUploadHandler: failed to close uploaded file reader", "error", cerr, "filename", header.Filename)
		}
		if err != nil {
			slog.Error("htmxUploadHandler: failed to read uploaded file",
				"status", http.StatusInternalServerError, "error", err, "filename", header.Filename)
			return ctx.HTML(http.StatusInternalServerError, toastHTML("error", "Failed to read uploaded file"))
		}
		uploads = append(uploads, core.FileUpload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	result, err := service.coreService.AddImages(uploads)
	if errors.Is(err, core.ErrNoSupportedFiles) {
		return ctx.HTML(http.StatusOK, toastHTML("error", "Only JPEG, PNG and GIF files are supported"))
	}
	if errors.Is(err, core.ErrQueueFull) {
		return ctx.HTML(http.StatusOK, toastHTML("error",
			fmt.Sprintf("Queue limit of %d images reached", service.config.MaxQueueLength)))
	}
	if err != nil {
		slog.Error("htmxUploadHandler: failed to ingest files",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.HTML(http.StatusInternalServerError, toastHTML("error", "Failed to add images"))
	}

	var b strings.Builder
	if len(result.Added) > 0 {
		b.WriteString(toastHTML("info", fmt.Sprintf("Added %d image(s) to the queue", len(result.Added))))
	}
	for _, rejected := range result.Rejected {
		b.WriteString(toastHTML("error",
			fmt.Sprintf("%s %s", html.EscapeString(truncateName(rejected.Name)), rejected.Reason)))
	}

	queueHTML, err := service.buildQueueHTML("", true)
	if err != nil {
		slog.Error("htmxUploadHandler: failed to build queue for OOB update",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.HTML(http.StatusOK, b.String())
	}
	b.WriteString(queueHTML)

	return ctx.HTML(http.StatusOK, b.String())
}

func (service *FrontendService) htmxQueueHandler(ctx echo.Context) error {
	queueHTML, err := service.buildQueueHTML("", false)
	if err != nil {
		slog.Error("htmxQueueHandler: failed to build queue",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list queue")
	}

	// Prevent caching so the latest queue state is always shown
	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, queueHTML)
}

func (service *FrontendService) htmxResultsHandler(ctx echo.Context) error {
	resultsHTML, err := service.buildResultsHTML(false)
	if err != nil {
		slog.Error("htmxResultsHandler: failed to build results",
			"status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to list results")
	}

	service.setNoCache(ctx)

	return ctx.HTML(http.StatusOK, resultsHTML)
}

func (service *FrontendService) htmxSetQualityHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	quality, err := strconv.Atoi(ctx.FormValue("quality"))
	if err != nil {
		return ctx.String(http.StatusBadRequest, "Invalid quality value")
	}

	if err := service.coreService.SetQuality(id, quality); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return ctx.String(http.StatusNotFound, "Image not found")
		}
		slog.Warn("htmxSetQualityHandler: failed to set quality",
			"status", http.StatusBadRequest, "image_id", id, "error", err)
		return ctx.String(http.StatusBadRequest, "Failed to set quality")
	}

	// The slider targets its own readout
	return ctx.HTML(http.StatusOK, fmt.Sprintf("%d%%", quality))
}

func (service *FrontendService) htmxCompressHandler(ctx echo.Context) error {
	id := ctx.Param("id")

	failedID := ""
	var toast string
	_, err := service.coreService.Compress(id)
	if errors.Is(err, queue.ErrNotFound) {
		toast = toastHTML("error", "Image is no longer in the queue")
	} else if err != nil {
		slog.Error("htmxCompressHandler: compression failed",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		failedID = id
		toast = toastHTML("error", "Compression failed, you can retry")
	}

	return service.renderQueueAndResults(ctx, failedID, toast)
}

func (service *FrontendService) htmxCompressAllHandler(ctx echo.Context) error {
	if _, err := service.coreService.CompressAll(); err != nil {
		slog.Error("htmxCompressAllHandler: batch compression failed",
			"status", http.StatusInternalServerError, "error", err)
		return service.renderQueueAndResults(ctx, "", toastHTML("error", "Batch compression failed"))
	}
	return service.renderQueueAndResults(ctx, "", "")
}

func (service *FrontendService) htmxRemoveHandler(ctx echo.Context) error {
	id := ctx.Param("id")

	if err := service.coreService.RemoveImage(id); err != nil && !errors.Is(err, queue.ErrNotFound) {
		slog.Error("htmxRemoveHandler: failed to remove image",
			"status", http.StatusInternalServerError, "image_id", id, "error", err)
		return service.renderQueueAndResults(ctx, "", toastHTML("error", "Failed to remove image"))
	}
	return service.renderQueueAndResults(ctx, "", "")
}

func (service *FrontendService) htmxClearHandler(ctx echo.Context) error {
	if err := service.coreService.ClearImages(); err != nil {
		slog.Error("htmxClearHandler: failed to clear queue",
			"status", http.StatusInternalServerError, "error", err)
		return service.renderQueueAndResults(ctx, "", toastHTML("error", "Failed to clear the queue"))
	}
	return service.renderQueueAndResults(ctx, "", "")
}

func (service *FrontendService) htmxOriginalThumbnailHandler(ctx echo.Context) error {
	return service.thumbnailResponse(ctx, func(record *queue.Record) []byte {
		return record.Original
	})
}

func (service *FrontendService) htmxCompressedThumbnailHandler(ctx echo.Context) error {
	return service.thumbnailResponse(ctx, func(record *queue.Record) []byte {
		return record.Compressed
	})
}

func (service *FrontendService) thumbnailResponse(ctx echo.Context, pick func(*queue.Record) []byte) error {
	id := ctx.Param("id")
	if id == "" {
		return ctx.String(http.StatusBadRequest, "Missing image ID")
	}

	record, err := service.coreService.Record(id)
	if err != nil {
		slog.Warn("thumbnailResponse: image not available",
			"status", http.StatusNotFound, "image_id", id, "error", err)
		return ctx.String(http.StatusNotFound, "Image not available")
	}
	data := pick(record)
	if len(data) == 0 {
		return ctx.String(http.StatusNotFound, "Image data not available")
	}

	thumbnail, err := service.coreService.Thumbnail(data)
	if err != nil {
		slog.Warn("thumbnailResponse: thumbnail not available",
			"status", http.StatusNotFound, "image_id", id, "error", err)
		return ctx.String(http.StatusNotFound, "Thumbnail not available")
	}

	// Prevent caching
	service.setNoCache(ctx)

	return ctx.Blob(http.StatusOK, mimePNG, thumbnail)
}

func (service *FrontendService) downloadHandler(ctx echo.Context) error {
	id := ctx.Param("id")

	record, err := service.coreService.Record(id)
	if err != nil {
		return ctx.String(http.StatusNotFound, "Image not found")
	}
	if record.Status != queue.StatusCompressed {
		return ctx.String(http.StatusConflict, "Image has not been compressed yet")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, service.coreService.DownloadName(record)))
	return ctx.Blob(http.StatusOK, record.CompressedType, record.Compressed)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}

func (service *FrontendService) faviconHandler(ctx echo.Context) error {
	service.faviconOnce.Do(func() {
		data, err := assetsFS.ReadFile("views/icon.svg")
		if err != nil {
			service.faviconErr = err
			return
		}
		service.favicon, service.faviconErr = renderSVGToPNG(data, faviconSize, faviconSize)
	})
	if service.faviconErr != nil {
		slog.Error("faviconHandler: failed to rasterize icon",
			"status", http.StatusInternalServerError, "error", service.faviconErr)
		return ctx.String(http.StatusInternalServerError, "Failed to load favicon")
	}

	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, mimePNG, service.favicon)
}

// renderQueueAndResults answers mutation requests with the queue section
// plus the results section as an out-of-band update, so both views always
// reflect the latest record list.
func (service *FrontendService) renderQueueAndResults(ctx echo.Context, failedID, toast string) error {
	queueHTML, err := service.buildQueueHTML(failedID, false)
	if err != nil {
		slog.Error("renderQueueAndResults: failed to build queue", "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to render queue")
	}
	resultsHTML, err := service.buildResultsHTML(true)
	if err != nil {
		slog.Error("renderQueueAndResults: failed to build results", "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to render results")
	}

	service.setNoCache(ctx)

	var b strings.Builder
	b.WriteString(queueHTML)
	b.WriteString(resultsHTML)
	if toast != "" {
		b.WriteString(`<div id="toasts" hx-swap-oob="beforeend">` + toast + `</div>`)
	}
	return ctx.HTML(http.StatusOK, b.String())
}

// buildQueueHTML renders the queue section from a store snapshot. The
// section is hidden entirely when the queue is empty. failedID marks one
// record whose last compression attempt failed.
func (service *FrontendService) buildQueueHTML(failedID string, oob bool) (string, error) {
	records, err := service.coreService.Records()
	if err != nil {
		return "", err
	}

	oobAttr := ""
	if oob {
		oobAttr = ` hx-swap-oob="outerHTML"`
	}

	var b strings.Builder
	if len(records) == 0 {
		b.WriteString(`<section id="queue"` + oobAttr + ` hidden></section>`)
		return b.String(), nil
	}

	b.WriteString(`<section id="queue"` + oobAttr + `>`)
	b.WriteString(fmt.Sprintf(`<header class="queue-header">
	<h2>Queue <span class="count">%d/%d</span></h2>
	<div class="queue-actions">
		<button hx-post="/htmx/compress-all" hx-target="#queue" hx-swap="outerHTML">Compress all</button>
		<button hx-delete="/htmx/images" hx-target="#queue" hx-swap="outerHTML" class="secondary">Clear</button>
	</div>
</header>`, len(records), service.config.MaxQueueLength))

	for _, record := range records {
		b.WriteString(service.buildQueueItemHTML(record, record.ID == failedID))
	}
	b.WriteString(`</section>`)
	return b.String(), nil
}

func (service *FrontendService) buildQueueItemHTML(record *queue.Record, failed bool) string {
	id := record.ID
	name := html.EscapeString(truncateName(record.Name))

	return fmt.Sprintf(`<div class="queue-item" id="item-%s"><article>
	<img src="/htmx/image/original-thumb/%s" alt="Thumbnail %s" loading="lazy">
	<div class="item-meta">
		<strong title="%s">%s</strong>
		<small>%s</small>
		%s
	</div>
	<label class="quality">
		Quality
		<input type="range" min="10" max="100" value="%d" name="quality"
			hx-post="/htmx/image/%s/quality" hx-trigger="change"
			hx-target="#quality-value-%s" hx-swap="innerHTML"
			oninput="document.getElementById('quality-value-%s').textContent = this.value + '%%'">
		<output id="quality-value-%s">%d%%</output>
	</label>
	<div class="item-actions">
		<button hx-post="/htmx/image/%s/compress" hx-target="#queue" hx-swap="outerHTML">Compress</button>
		<button hx-delete="/htmx/image/%s" hx-target="#queue" hx-swap="outerHTML" class="secondary">Remove</button>
	</div>
</article></div>`,
		id, id, name,
		html.EscapeString(record.Name), name,
		humanize.IBytes(uint64(record.Size)),
		statusHTML(record, failed),
		record.Quality, id, id, id, id, record.Quality,
		id, id)
}

// buildResultsHTML renders the results section over compressed records
// only; it is hidden entirely when none qualify.
func (service *FrontendService) buildResultsHTML(oob bool) (string, error) {
	records, err := service.coreService.Records()
	if err != nil {
		return "", err
	}

	compressed := make([]*queue.Record, 0, len(records))
	for _, record := range records {
		if record.Status == queue.StatusCompressed {
			compressed = append(compressed, record)
		}
	}

	oobAttr := ""
	if oob {
		oobAttr = ` hx-swap-oob="outerHTML"`
	}

	var b strings.Builder
	if len(compressed) == 0 {
		b.WriteString(`<section id="results"` + oobAttr + ` hidden></section>`)
		return b.String(), nil
	}

	var totalOriginal, totalCompressed int64
	for _, record := range compressed {
		totalOriginal += record.Size
		totalCompressed += record.CompressedSize
	}

	b.WriteString(`<section id="results"` + oobAttr + `>`)
	b.WriteString(fmt.Sprintf(`<header class="results-header">
	<h2>Results</h2>
	<small>%s of %s total</small>
	<button id="download-all" type="button">Download all</button>
</header>`,
		humanize.IBytes(uint64(totalCompressed)),
		humanize.IBytes(uint64(totalOriginal))))

	for _, record := range compressed {
		b.WriteString(service.buildResultItemHTML(record))
	}
	b.WriteString(`</section>`)
	return b.String(), nil
}

func (service *FrontendService) buildResultItemHTML(record *queue.Record) string {
	id := record.ID
	name := html.EscapeString(truncateName(record.Name))

	return fmt.Sprintf(`<div class="result-item" id="result-%s"><article>
	<div class="compare">
		<figure>
			<img src="/htmx/image/original-thumb/%s" alt="Original %s" loading="lazy">
			<figcaption>Original · %s</figcaption>
		</figure>
		<figure>
			<img src="/htmx/image/compressed-thumb/%s" alt="Compressed %s" loading="lazy">
			<figcaption>Compressed · %s</figcaption>
		</figure>
	</div>
	<footer>
		<strong title="%s">%s</strong>
		%s
		<a href="/download/%s" download>Download</a>
	</footer>
</article></div>`,
		id, id, name,
		humanize.IBytes(uint64(record.Size)),
		id, name,
		humanize.IBytes(uint64(record.CompressedSize)),
		html.EscapeString(record.Name), name,
		savingsBadgeHTML(record),
		id)
}

func statusHTML(record *queue.Record, failed bool) string {
	if failed {
		return `<span class="status error">Compression failed</span>`
	}
	if record.Status != queue.StatusCompressed {
		return `<span class="status pending">Pending</span>`
	}
	return savingsBadgeHTML(record)
}

func savingsBadgeHTML(record *queue.Record) string {
	if percent := percentSaved(record); percent > 0 {
		return fmt.Sprintf(`<span class="status saved">Saved %d%%</span>`, percent)
	}
	return `<span class="status neutral">Already optimized</span>`
}

// percentSaved reports how much smaller the compressed data is, in whole
// percent. Zero or negative savings count as no savings.
func percentSaved(record *queue.Record) int {
	if record.Size <= 0 || record.CompressedSize >= record.Size {
		return 0
	}
	return int(float64(record.Size-record.CompressedSize) / float64(record.Size) * 100)
}

func toastHTML(severity, message string) string {
	return fmt.Sprintf(`<div class="toast %s" role="status">%s</div>`, severity, message)
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) <= maxDisplayNameRunes {
		return name
	}
	return string(runes[:maxDisplayNameRunes]) + "…"
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
