package articles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/cost-model-service/internal/models"
)

const enqueueFailedMessage = "failed to enqueue processing job"

// JobScheduler starts the background run of an article.
type JobScheduler interface {
	Schedule(ctx context.Context, articleID uint) error
}

// CostModelEntryResponse is one cost contribution in an article response.
type CostModelEntryResponse struct {
	IndexID uint    `json:"index_id"`
	Part    float64 `json:"part"`
	Label   *string `json:"label"`
}

// ArticleResponse is the JSON shape of an article. File contents are never
// returned, only their names.
type ArticleResponse struct {
	ID                           uint                     `json:"id"`
	ArticleName                  string                   `json:"article_name"`
	Description                  *string                  `json:"description"`
	UnitWeight                   *float64                 `json:"unit_weight"`
	ProductSpecificationFilename *string                  `json:"product_specification_filename"`
	DrawingFilename              *string                  `json:"drawing_filename"`
	ProcessingStatus             string                   `json:"processing_status"`
	ProcessingError              *string                  `json:"processing_error"`
	ProcessingStartedAt          *time.Time               `json:"processing_started_at"`
	ProcessingCompletedAt        *time.Time               `json:"processing_completed_at"`
	CreatedAt                    time.Time                `json:"created_at"`
	UpdatedAt                    time.Time                `json:"updated_at"`
	CostModelEntries             []CostModelEntryResponse `json:"cost_model_entries"`
}

// NewArticleResponse converts a stored article.
func NewArticleResponse(a *models.Article) ArticleResponse {
	resp := ArticleResponse{
		ID:                           a.ID,
		ArticleName:                  a.ArticleName,
		Description:                  a.Description,
		UnitWeight:                   a.UnitWeight,
		ProductSpecificationFilename: a.ProductSpecificationFilename,
		DrawingFilename:              a.DrawingFilename,
		ProcessingStatus:             a.ProcessingStatus,
		ProcessingError:              a.ProcessingError,
		ProcessingStartedAt:          a.ProcessingStartedAt,
		ProcessingCompletedAt:        a.ProcessingCompletedAt,
		CreatedAt:                    a.CreatedAt,
		UpdatedAt:                    a.UpdatedAt,
		CostModelEntries:             make([]CostModelEntryResponse, len(a.CostModelEntries)),
	}
	for i, e := range a.CostModelEntries {
		resp.CostModelEntries[i] = CostModelEntryResponse{IndexID: e.IndexID, Part: e.Part, Label: e.Label}
	}
	return resp
}

// ArticleSummary is a row of the article list.
type ArticleSummary struct {
	ID               uint      `json:"id"`
	ArticleName      string    `json:"article_name"`
	UnitWeight       *float64  `json:"unit_weight"`
	ProcessingStatus string    `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
}

// Handlers serves the article endpoints
type Handlers struct {
	store          *Store
	queue          JobScheduler
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandlers creates the article handlers. Uploads larger than
// maxUploadBytes in total are rejected.
func NewHandlers(store *Store, queue JobScheduler, maxUploadBytes int64, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, queue: queue, maxUploadBytes: maxUploadBytes, logger: logger}
}

// Register mounts the endpoints on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.POST("/analyze", h.Analyze)
	r.GET("/articles", h.List)
	r.GET("/articles/:id", h.Get)
	r.GET("/articles/:id/status", h.Status)
}

// Analyze stores the uploaded specification as a new pending article,
// schedules its processing and answers 201 without waiting for the run.
func (h *Handlers) Analyze(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a multipart/form-data upload"})
		return
	}

	name := strings.TrimSpace(c.PostForm("articleName"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "articleName is required"})
		return
	}

	spec, specName, err := readUpload(c, "productSpecification")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if spec == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productSpecification file is required"})
		return
	}

	drawing, drawingName, err := readUpload(c, "drawing")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	article := models.Article{
		ArticleName:                  name,
		ProductSpecificationFile:     spec,
		ProductSpecificationFilename: &specName,
	}
	if desc := strings.TrimSpace(c.PostForm("description")); desc != "" {
		article.Description = &desc
	}
	if drawing != nil {
		article.DrawingFile = drawing
		article.DrawingFilename = &drawingName
	}

	ctx := c.Request.Context()

	exists, err := h.store.NameExists(ctx, name)
	if err != nil {
		h.logger.Error("Failed to check article name", "article_name", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create article"})
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("article with name '%s' already exists", name)})
		return
	}

	if err := h.store.Create(ctx, &article); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("article with name '%s' already exists", name)})
			return
		}
		h.logger.Error("Failed to create article", "article_name", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create article"})
		return
	}

	if err := h.queue.Schedule(ctx, article.ID); err != nil {
		h.logger.Error("Failed to schedule article processing", "article_id", article.ID, "error", err)
		// Without a job the article would stay pending forever
		if markErr := h.store.MarkFailed(context.WithoutCancel(ctx), article.ID, enqueueFailedMessage, time.Now().UTC()); markErr != nil {
			h.logger.Error("Failed to mark unscheduled article failed", "article_id", article.ID, "error", markErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": enqueueFailedMessage})
		return
	}

	h.logger.Info("Article created and scheduled",
		"article_id", article.ID,
		"article_name", name,
		"specification", specName,
		"specification_bytes", len(spec),
	)

	c.JSON(http.StatusCreated, NewArticleResponse(&article))
}

// Status returns the processing fields of an article. It never fails
// because a run failed; the failure is part of the answer.
func (h *Handlers) Status(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	st, err := h.store.Status(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load article status", "article_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load article status"})
		return
	}

	c.JSON(http.StatusOK, st)
}

// Get returns the full article with its cost model entries.
func (h *Handlers) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	article, err := h.store.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load article", "article_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load article"})
		return
	}

	c.JSON(http.StatusOK, NewArticleResponse(article))
}

// List returns up to limit (default 100, max 500) articles newest first.
func (h *Handlers) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 500)
	}

	list, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list articles"})
		return
	}

	resp := make([]ArticleSummary, len(list))
	for i, a := range list {
		resp[i] = ArticleSummary{
			ID:               a.ID,
			ArticleName:      a.ArticleName,
			UnitWeight:       a.UnitWeight,
			ProcessingStatus: a.ProcessingStatus,
			CreatedAt:        a.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
		return 0, false
	}
	return uint(id), true
}

// readUpload returns the content and name of the form file field, or nil
// content when the field is absent.
func readUpload(c *gin.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("invalid %s upload: %w", field, err)
	}
	if header.Filename == "" {
		return nil, "", nil
	}

	content, err := readFileHeader(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s upload: %w", field, err)
	}
	return content, header.Filename, nil
}

func readFileHeader(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
